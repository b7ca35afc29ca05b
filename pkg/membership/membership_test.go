package membership

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/c4u/launchpad/repos/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(t *testing.T, store *docstore.Memory, attendees ...string) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), "events", "e1", map[string]interface{}{
		"title":     "Journal club",
		"attendees": attendees,
	}, false))
}

func attendees(t *testing.T, store *docstore.Memory) []string {
	t.Helper()
	doc, err := store.Get(context.Background(), "events", "e1")
	require.NoError(t, err)
	return doc.Strings("attendees")
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	newEvent(t, store, "ada")
	set := NewSet(store, "events", "attendees")

	require.NoError(t, set.Join(ctx, "e1", "bob"))
	once := attendees(t, store)
	require.NoError(t, set.Join(ctx, "e1", "bob"))
	assert.Equal(t, once, attendees(t, store))
	assert.Equal(t, []string{"ada", "bob"}, once)
}

func TestLeaveAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	newEvent(t, store, "ada", "bob")
	set := NewSet(store, "events", "attendees")

	require.NoError(t, set.Leave(ctx, "e1", "carol"))
	assert.Equal(t, []string{"ada", "bob"}, attendees(t, store))

	require.NoError(t, set.Leave(ctx, "e1", "ada"))
	assert.Equal(t, []string{"bob"}, attendees(t, store))
}

func TestJoinMissingDocument(t *testing.T) {
	set := NewSet(docstore.NewMemory(), "events", "attendees")
	err := set.Join(context.Background(), "missing", "ada")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestJoinRequiresMember(t *testing.T) {
	set := NewSet(docstore.NewMemory(), "events", "attendees")
	assert.ErrorIs(t, set.Join(context.Background(), "e1", "  "), ErrNoActor)
}

// Two actors joining with overlapping requests must both end up attending.
func TestConcurrentJoinsDoNotLoseMembers(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	newEvent(t, store, "host")
	set := NewSet(store, "events", "attendees")

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			assert.NoError(t, set.Join(ctx, "e1", fmt.Sprintf("member-%d", i)))
		}(i)
	}
	close(start)
	wg.Wait()

	got := attendees(t, store)
	assert.Len(t, got, 41)
	assert.Equal(t, "host", got[0])
}

func newCounter(store docstore.Store) *Counter {
	return NewCounter(store, "paperVotes", "votes", "userVotes", "votes")
}

func TestCastThenRetractRestoresCount(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	votes := newCounter(store)
	require.NoError(t, store.Set(ctx, "paperVotes", "p1", map[string]interface{}{"votes": 4}, false))

	changed, err := votes.Cast(ctx, "p1", "uid-1")
	require.NoError(t, err)
	assert.True(t, changed)
	n, err := votes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	flags, err := votes.Flags(ctx, "uid-1")
	require.NoError(t, err)
	assert.True(t, flags["p1"])

	changed, err = votes.Retract(ctx, "p1", "uid-1")
	require.NoError(t, err)
	assert.True(t, changed)
	n, err = votes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	flags, err = votes.Flags(ctx, "uid-1")
	require.NoError(t, err)
	assert.False(t, flags["p1"])
}

func TestCastTwiceCountsOnce(t *testing.T) {
	ctx := context.Background()
	votes := newCounter(docstore.NewMemory())

	_, err := votes.Cast(ctx, "p1", "uid-1")
	require.NoError(t, err)
	changed, err := votes.Cast(ctx, "p1", "uid-1")
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := votes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRetractWithoutVoteIsNoop(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	votes := newCounter(store)
	require.NoError(t, store.Set(ctx, "paperVotes", "p1", map[string]interface{}{"votes": 2}, false))

	changed, err := votes.Retract(ctx, "p1", "uid-1")
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := votes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	votes := newCounter(docstore.NewMemory())

	voted, err := votes.Toggle(ctx, "p1", "uid-1")
	require.NoError(t, err)
	assert.True(t, voted)

	voted, err = votes.Toggle(ctx, "p1", "uid-1")
	require.NoError(t, err)
	assert.False(t, voted)

	n, err := votes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestConcurrentVotesFromDifferentUsers(t *testing.T) {
	ctx := context.Background()
	votes := newCounter(docstore.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := votes.Cast(ctx, "p1", fmt.Sprintf("uid-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := votes.Count(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
}

func TestEnsureCreatesAndHeals(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	votes := newCounter(store)

	n, err := votes.Ensure(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	doc, err := store.Get(ctx, "paperVotes", "fresh")
	require.NoError(t, err)
	stored, ok := doc.Int("votes")
	assert.True(t, ok)
	assert.Equal(t, int64(0), stored)

	require.NoError(t, store.Set(ctx, "paperVotes", "neg", map[string]interface{}{"votes": -2}, false))
	require.NoError(t, store.Set(ctx, "paperVotes", "text", map[string]interface{}{"votes": "many"}, false))
	require.NoError(t, store.Set(ctx, "paperVotes", "ok", map[string]interface{}{"votes": 7}, false))

	for id, want := range map[string]int64{"neg": 0, "text": 0, "ok": 7} {
		n, err := votes.Ensure(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, n, id)

		doc, err := store.Get(ctx, "paperVotes", id)
		require.NoError(t, err)
		stored, ok := doc.Int("votes")
		assert.True(t, ok, id)
		assert.Equal(t, want, stored, id)
	}
}

func TestVoteRequiresUser(t *testing.T) {
	votes := newCounter(docstore.NewMemory())
	_, err := votes.Cast(context.Background(), "p1", "")
	assert.ErrorIs(t, err, ErrNoActor)
}
