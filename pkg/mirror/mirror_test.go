package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/c4u/launchpad/repos/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

type step struct {
	docs []docstore.Document
	err  error
}

// scriptedSource hands out one scripted watcher per Watch call.
type scriptedSource struct {
	mu      sync.Mutex
	scripts [][]step
	watches int
}

func (s *scriptedSource) Watch(ctx context.Context, collection string) docstore.Watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches++
	if len(s.scripts) == 0 {
		return &scriptedWatcher{ctx: ctx}
	}
	script := s.scripts[0]
	s.scripts = s.scripts[1:]
	return &scriptedWatcher{ctx: ctx, steps: script}
}

func (s *scriptedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watches
}

type scriptedWatcher struct {
	ctx   context.Context
	steps []step
}

func (w *scriptedWatcher) Next() ([]docstore.Document, error) {
	if len(w.steps) == 0 {
		<-w.ctx.Done()
		return nil, w.ctx.Err()
	}
	st := w.steps[0]
	w.steps = w.steps[1:]
	return st.docs, st.err
}

func (w *scriptedWatcher) Stop() {}

func decodeTitle(doc docstore.Document) (string, error) {
	title := doc.String("title")
	if title == "" {
		return "", errors.New("missing title")
	}
	return title, nil
}

func fastBackoff(retries uint64) Option {
	return WithBackoff(time.Millisecond, 5*time.Millisecond, retries)
}

func TestMirrorReplacesOnEverySnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := docstore.NewMemory()
	require.NoError(t, store.Set(ctx, "events", "a", map[string]interface{}{"title": "A"}, false))

	m := New[string](store, "events", decodeTitle)
	assert.True(t, m.Status().Loading)

	seen := make(chan []string, 10)
	m.OnSnapshot(func(items []string) { seen <- items })
	go m.Run(ctx)

	assert.Equal(t, []string{"A"}, <-seen)

	require.NoError(t, store.Set(ctx, "events", "b", map[string]interface{}{"title": "B"}, false))
	assert.Equal(t, []string{"A", "B"}, <-seen)

	require.NoError(t, store.Delete(ctx, "events", "a"))
	assert.Equal(t, []string{"B"}, <-seen)
	assert.Equal(t, []string{"B"}, m.Items())

	st := m.Status()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, 1, st.Count)
}

func TestMirrorSkipsUndecodableDocuments(t *testing.T) {
	src := &scriptedSource{scripts: [][]step{{
		{docs: []docstore.Document{
			{ID: "1", Data: map[string]interface{}{"title": "ok"}},
			{ID: "2", Data: map[string]interface{}{}},
		}},
	}}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New[string](src, "events", decodeTitle, fastBackoff(1))
	seen := make(chan []string, 1)
	m.OnSnapshot(func(items []string) { seen <- items })
	go m.Run(ctx)

	assert.Equal(t, []string{"ok"}, <-seen)
}

func TestMirrorSurfacesErrorAndGivesUp(t *testing.T) {
	boom := errors.New("unavailable")
	src := &scriptedSource{scripts: [][]step{
		{{err: boom}},
		{{err: boom}},
		{{err: boom}},
	}}

	m := New[string](src, "events", decodeTitle, fastBackoff(2))
	err := m.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, src.count())

	st := m.Status()
	assert.False(t, st.Loading)
	assert.Equal(t, "unavailable", st.Error)
}

func TestMirrorRecoversAfterTransientFailure(t *testing.T) {
	boom := errors.New("unavailable")
	src := &scriptedSource{scripts: [][]step{
		{{err: boom}},
		{{docs: []docstore.Document{{ID: "1", Data: map[string]interface{}{"title": "back"}}}}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New[string](src, "events", decodeTitle, fastBackoff(3))
	seen := make(chan []string, 1)
	m.OnSnapshot(func(items []string) { seen <- items })
	go m.Run(ctx)

	assert.Equal(t, []string{"back"}, <-seen)
	assert.Empty(t, m.Status().Error)
}

func TestMirrorResubscribesWhenStoreClosesStream(t *testing.T) {
	src := &scriptedSource{scripts: [][]step{
		{{docs: []docstore.Document{{ID: "1", Data: map[string]interface{}{"title": "first"}}}}, {err: iterator.Done}},
		{{docs: []docstore.Document{{ID: "1", Data: map[string]interface{}{"title": "second"}}}}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New[string](src, "events", decodeTitle, fastBackoff(0))
	seen := make(chan []string, 2)
	m.OnSnapshot(func(items []string) { seen <- items })
	go m.Run(ctx)

	assert.Equal(t, []string{"first"}, <-seen)
	assert.Equal(t, []string{"second"}, <-seen)
	assert.Equal(t, 2, src.count())
}

func TestMirrorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New[string](docstore.NewMemory(), "events", decodeTitle)

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("mirror did not stop")
	}
}
