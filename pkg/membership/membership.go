// Package membership applies join/leave and vote changes using store-side set
// and counter operations, so concurrent callers cannot overwrite each other.
package membership

import (
	"context"
	"errors"
	"strings"

	"github.com/c4u/launchpad/repos/docstore"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

var ErrNoActor = errors.New("no actor given")

// Set is an array-valued member field on documents of one collection.
type Set struct {
	store      docstore.Store
	collection string
	field      string
}

func NewSet(store docstore.Store, collection, field string) *Set {
	return &Set{store: store, collection: collection, field: field}
}

// Join adds member to the document's set. Joining twice is a no-op.
func (s *Set) Join(ctx context.Context, id, member string) error {
	return s.apply(ctx, id, member, docstore.ArrayUnion)
}

// Leave removes member from the document's set. Leaving when absent is a no-op.
func (s *Set) Leave(ctx context.Context, id, member string) error {
	return s.apply(ctx, id, member, docstore.ArrayRemove)
}

func (s *Set) apply(ctx context.Context, id, member string, op func(...interface{}) interface{}) error {
	member = strings.TrimSpace(member)
	if member == "" {
		return ErrNoActor
	}
	return s.store.Update(ctx, s.collection, id, []docstore.Update{
		{Path: s.field, Value: op(member)},
	})
}

type voteMode int

const (
	cast voteMode = iota
	retract
	toggle
)

// Counter is a per-item integer tally guarded by a per-user flag map, e.g.
// paperVotes/{item}.votes and userVotes/{user}.votes[item].
type Counter struct {
	store      docstore.Store
	collection string
	field      string
	flags      string
	flagField  string
}

func NewCounter(store docstore.Store, collection, field, flagCollection, flagField string) *Counter {
	return &Counter{
		store:      store,
		collection: collection,
		field:      field,
		flags:      flagCollection,
		flagField:  flagField,
	}
}

// Cast records userID's vote for itemID. It returns false when the user had
// already voted.
func (c *Counter) Cast(ctx context.Context, itemID, userID string) (bool, error) {
	_, changed, err := c.apply(ctx, itemID, userID, cast)
	return changed, err
}

// Retract removes userID's vote. It returns false when there was none.
func (c *Counter) Retract(ctx context.Context, itemID, userID string) (bool, error) {
	_, changed, err := c.apply(ctx, itemID, userID, retract)
	return changed, err
}

// Toggle casts or retracts depending on the user's current flag and returns
// whether the user has voted afterwards.
func (c *Counter) Toggle(ctx context.Context, itemID, userID string) (bool, error) {
	voted, _, err := c.apply(ctx, itemID, userID, toggle)
	return voted, err
}

func (c *Counter) apply(ctx context.Context, itemID, userID string, mode voteMode) (voted, changed bool, err error) {
	if strings.TrimSpace(userID) == "" {
		return false, false, ErrNoActor
	}

	err = c.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		voted, changed = false, false

		flags, err := c.readFlags(tx, userID)
		if err != nil {
			return err
		}
		current := flags[itemID]

		target := !current
		switch mode {
		case cast:
			target = true
		case retract:
			target = false
		}
		voted = target
		if current == target {
			return nil
		}

		delta := int64(1)
		var flag interface{} = true
		if !target {
			delta = -1
			flag = docstore.Delete
		}
		if err := tx.Set(c.collection, itemID, map[string]interface{}{
			c.field: docstore.Increment(delta),
		}, true); err != nil {
			return err
		}
		changed = true
		return tx.Set(c.flags, userID, map[string]interface{}{
			c.flagField: map[string]interface{}{itemID: flag},
		}, true)
	})
	if err != nil {
		return false, false, xerrors.Errorf("update vote on %s: %w", itemID, err)
	}
	return voted, changed, nil
}

func (c *Counter) readFlags(tx docstore.Tx, userID string) (map[string]bool, error) {
	doc, err := tx.Get(c.flags, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	return flagsFrom(doc, c.flagField), nil
}

// Flags returns the items userID has voted for.
func (c *Counter) Flags(ctx context.Context, userID string) (map[string]bool, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNoActor
	}
	doc, err := c.store.Get(ctx, c.flags, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	return flagsFrom(doc, c.flagField), nil
}

// Count reads the current tally. Missing or corrupt tallies read as 0.
func (c *Counter) Count(ctx context.Context, itemID string) (int64, error) {
	doc, err := c.store.Get(ctx, c.collection, itemID)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, ok := doc.Int(c.field)
	if !ok || n < 0 {
		return 0, nil
	}
	return n, nil
}

// Ensure creates the tally document with 0 if it is missing, and resets it to 0
// if it holds a non-numeric or negative value. It returns the resulting count.
func (c *Counter) Ensure(ctx context.Context, itemID string) (int64, error) {
	var count int64
	err := c.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		count = 0
		doc, err := tx.Get(c.collection, itemID)
		if errors.Is(err, docstore.ErrNotFound) {
			return tx.Set(c.collection, itemID, map[string]interface{}{c.field: int64(0)}, false)
		}
		if err != nil {
			return err
		}
		n, ok := doc.Int(c.field)
		if ok && n >= 0 {
			count = n
			return nil
		}
		log.Printf("Resetting corrupt %s/%s %s=%v", c.collection, itemID, c.field, doc.Data[c.field])
		return tx.Set(c.collection, itemID, map[string]interface{}{c.field: int64(0)}, true)
	})
	if err != nil {
		return 0, xerrors.Errorf("ensure tally %s: %w", itemID, err)
	}
	return count, nil
}

func flagsFrom(doc docstore.Document, field string) map[string]bool {
	out := map[string]bool{}
	for k, v := range doc.Map(field) {
		if b, ok := v.(bool); ok && b {
			out[k] = true
		}
	}
	return out
}
