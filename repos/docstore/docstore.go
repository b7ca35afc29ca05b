package docstore

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a single record in a named collection.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// Update is a single field change. FieldPath takes precedence over Path and must be
// used when a key may contain dots.
type Update struct {
	Path      string
	FieldPath []string
	Value     interface{}
}

// Watcher delivers full collection snapshots.
type Watcher interface {
	// Next blocks until the collection changes and returns every document in it.
	// The first call returns the current state.
	Next() ([]Document, error)
	Stop()
}

// Watchable is the subscription half of Store.
type Watchable interface {
	Watch(ctx context.Context, collection string) Watcher
}

// Tx is the view of the store inside RunTransaction. All reads must happen
// before any write.
type Tx interface {
	Get(collection, id string) (Document, error)
	Set(collection, id string, fields map[string]interface{}, merge bool) error
	Update(collection, id string, updates []Update) error
	Delete(collection, id string) error
}

// Store is the narrow document database contract the services depend on.
type Store interface {
	Watchable
	Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]interface{}, merge bool) error
	Update(ctx context.Context, collection, id string, updates []Update) error
	Delete(ctx context.Context, collection, id string) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

type arrayUnion []interface{}

type arrayRemove []interface{}

type increment int64

type deleteField struct{}

// Delete removes a field when used as a value in Update or a merging Set.
var Delete interface{} = deleteField{}

// ArrayUnion adds each value to an array field unless already present.
func ArrayUnion(values ...interface{}) interface{} {
	return arrayUnion(values)
}

// ArrayRemove removes every occurrence of each value from an array field.
func ArrayRemove(values ...interface{}) interface{} {
	return arrayRemove(values)
}

// Increment adds n to a numeric field. Missing or non-numeric fields become n.
func Increment(n int64) interface{} {
	return increment(n)
}

func (u Update) path() []string {
	if len(u.FieldPath) > 0 {
		return u.FieldPath
	}
	return strings.Split(u.Path, ".")
}

// String returns the field as a string, or "" when absent or of another type.
func (d Document) String(field string) string {
	v, _ := d.Data[field].(string)
	return v
}

// Bool returns the field as a bool.
func (d Document) Bool(field string) bool {
	v, _ := d.Data[field].(bool)
	return v
}

// Int returns the field as an integer. ok is false for missing or non-numeric
// values.
func (d Document) Int(field string) (n int64, ok bool) {
	switch v := d.Data[field].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

// Strings returns an array field of strings, skipping non-string entries.
func (d Document) Strings(field string) []string {
	switch v := d.Data[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Time returns a timestamp field, or the zero time.
func (d Document) Time(field string) time.Time {
	v, _ := d.Data[field].(time.Time)
	return v
}

// Map returns a nested map field.
func (d Document) Map(field string) map[string]interface{} {
	v, _ := d.Data[field].(map[string]interface{})
	return v
}
