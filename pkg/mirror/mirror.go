// Package mirror keeps an in-memory copy of a remote collection, replacing it
// wholesale on every snapshot.
package mirror

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/c4u/launchpad/pkg/metrics"
	"github.com/c4u/launchpad/repos/docstore"
	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

// ErrSubscriptionClosed is recorded when the store ends a subscription on its own.
var ErrSubscriptionClosed = errors.New("subscription closed by store")

var errResubscribe = errors.New("resubscribe")

// Decoder turns a document into a mirrored item.
type Decoder[T any] func(doc docstore.Document) (T, error)

// Status is the user-visible state of a mirror.
type Status struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Option configures a Mirror.
type Option func(*options)

type options struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxRetries uint64
}

// WithBackoff sets the exponential backoff used after subscription failures.
func WithBackoff(base, max time.Duration, retries uint64) Option {
	return func(o *options) {
		o.baseDelay = base
		o.maxDelay = max
		o.maxRetries = retries
	}
}

// Mirror is a live copy of one collection.
type Mirror[T any] struct {
	source     docstore.Watchable
	collection string
	decode     Decoder[T]
	opts       options

	mu        sync.RWMutex
	items     []T
	status    Status
	listeners []func([]T)
}

// New creates a mirror of collection. It does nothing until Run is called.
func New[T any](source docstore.Watchable, collection string, decode Decoder[T], opts ...Option) *Mirror[T] {
	o := options{
		baseDelay:  500 * time.Millisecond,
		maxDelay:   30 * time.Second,
		maxRetries: 8,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mirror[T]{
		source:     source,
		collection: collection,
		decode:     decode,
		opts:       o,
		status:     Status{Loading: true},
	}
}

// OnSnapshot registers fn to be called with every new full list. Must be called
// before Run.
func (m *Mirror[T]) OnSnapshot(fn func([]T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Items returns a copy of the current list.
func (m *Mirror[T]) Items() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]T(nil), m.items...)
}

func (m *Mirror[T]) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run subscribes to the collection and blocks until ctx is cancelled or the
// retry budget is spent. The budget resets whenever a snapshot arrives.
func (m *Mirror[T]) Run(ctx context.Context) error {
	for {
		err := retry.Do(ctx, m.backoff(), m.attempt)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errResubscribe):
			continue
		default:
			if err != nil {
				log.Errorf("Giving up on %s subscription: %v", m.collection, err)
			}
			return err
		}
	}
}

func (m *Mirror[T]) backoff() retry.Backoff {
	b := retry.NewExponential(m.opts.baseDelay)
	b = retry.WithCappedDuration(m.opts.maxDelay, b)
	return retry.WithMaxRetries(m.opts.maxRetries, b)
}

func (m *Mirror[T]) attempt(ctx context.Context) error {
	received, err := m.watch(ctx)
	if ctx.Err() != nil {
		return nil
	}
	m.fail(err)
	if received {
		return errResubscribe
	}
	return retry.RetryableError(err)
}

func (m *Mirror[T]) watch(ctx context.Context) (bool, error) {
	w := m.source.Watch(ctx, m.collection)
	defer w.Stop()

	received := false
	for {
		docs, err := w.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				err = ErrSubscriptionClosed
			}
			return received, err
		}
		received = true
		m.replace(docs)
	}
}

func (m *Mirror[T]) replace(docs []docstore.Document) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := m.decode(doc)
		if err != nil {
			log.Printf("Skipping %s/%s: %v", m.collection, doc.ID, err)
			continue
		}
		items = append(items, item)
	}

	m.mu.Lock()
	m.items = items
	m.status = Status{Count: len(items), UpdatedAt: time.Now()}
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	metrics.TrackSnapshot(m.collection, len(items))
	for _, fn := range listeners {
		fn(append([]T(nil), items...))
	}
}

func (m *Mirror[T]) fail(err error) {
	log.Printf("Subscription to %s failed: %v", m.collection, err)
	metrics.TrackMirrorError(m.collection)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Loading = false
	m.status.Error = err.Error()
}
