package docstore

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/samborkent/uuidv7"
	"google.golang.org/api/iterator"
)

// Memory is an in-process Store. Field transforms are applied under a single
// lock, so concurrent ArrayUnion/Increment calls never lose updates.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]interface{}
	watchers    map[string]map[*memoryWatcher]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]map[string]interface{}),
		watchers:    make(map[string]map[*memoryWatcher]struct{}),
	}
}

func (m *Memory) Watch(ctx context.Context, collection string) Watcher {
	w := &memoryWatcher{
		ctx:     ctx,
		store:   m,
		name:    collection,
		updates: make(chan []Document, 1),
		stop:    make(chan struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchers[collection] == nil {
		m.watchers[collection] = make(map[*memoryWatcher]struct{})
	}
	m.watchers[collection][w] = struct{}{}
	w.offer(m.snapshotLocked(collection))
	return w
}

func (m *Memory) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuidv7.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(collection, id, fields, false)
	m.publishLocked(collection)
	return id, nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(collection, id)
}

func (m *Memory) Set(ctx context.Context, collection, id string, fields map[string]interface{}, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(collection, id, fields, merge)
	m.publishLocked(collection)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, updates []Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateLocked(collection, id, updates); err != nil {
		return err
	}
	m.publishLocked(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections[collection], id)
	m.publishLocked(collection)
	return nil
}

// RunTransaction holds the store lock for the whole of fn. Writes are staged and
// applied only when fn returns nil.
func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, write := range tx.writes {
		if err := write(); err != nil {
			return err
		}
	}
	for collection := range tx.touched {
		m.publishLocked(collection)
	}
	return nil
}

// Close stops every open watcher.
func (m *Memory) Close() error {
	m.mu.Lock()
	var open []*memoryWatcher
	for _, set := range m.watchers {
		for w := range set {
			open = append(open, w)
		}
	}
	m.mu.Unlock()
	for _, w := range open {
		w.Stop()
	}
	return nil
}

func (m *Memory) getLocked(collection, id string) (Document, error) {
	data, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: cloneMap(data)}, nil
}

func (m *Memory) setLocked(collection, id string, fields map[string]interface{}, merge bool) {
	docs := m.collections[collection]
	if docs == nil {
		docs = make(map[string]map[string]interface{})
		m.collections[collection] = docs
	}
	data := docs[id]
	if data == nil || !merge {
		data = make(map[string]interface{})
	}
	mergeInto(data, fields)
	docs[id] = data
}

func (m *Memory) updateLocked(collection, id string, updates []Update) error {
	data, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for _, u := range updates {
		applyAt(data, u.path(), u.Value)
	}
	return nil
}

func (m *Memory) snapshotLocked(collection string) []Document {
	docs := m.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, Document{ID: id, Data: cloneMap(docs[id])})
	}
	return out
}

func (m *Memory) publishLocked(collection string) {
	if len(m.watchers[collection]) == 0 {
		return
	}
	snapshot := m.snapshotLocked(collection)
	for w := range m.watchers[collection] {
		w.offer(snapshot)
	}
}

func (m *Memory) removeWatcher(w *memoryWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watchers[w.name], w)
}

type memoryTx struct {
	store   *Memory
	writes  []func() error
	touched map[string]struct{}
}

func (t *memoryTx) touch(collection string) {
	if t.touched == nil {
		t.touched = make(map[string]struct{})
	}
	t.touched[collection] = struct{}{}
}

func (t *memoryTx) Get(collection, id string) (Document, error) {
	return t.store.getLocked(collection, id)
}

func (t *memoryTx) Set(collection, id string, fields map[string]interface{}, merge bool) error {
	t.touch(collection)
	t.writes = append(t.writes, func() error {
		t.store.setLocked(collection, id, fields, merge)
		return nil
	})
	return nil
}

func (t *memoryTx) Update(collection, id string, updates []Update) error {
	t.touch(collection)
	t.writes = append(t.writes, func() error {
		return t.store.updateLocked(collection, id, updates)
	})
	return nil
}

func (t *memoryTx) Delete(collection, id string) error {
	t.touch(collection)
	t.writes = append(t.writes, func() error {
		delete(t.store.collections[collection], id)
		return nil
	})
	return nil
}

type memoryWatcher struct {
	ctx     context.Context
	store   *Memory
	name    string
	updates chan []Document
	stop    chan struct{}
	once    sync.Once
}

// offer replaces any undelivered snapshot with the latest one.
func (w *memoryWatcher) offer(snapshot []Document) {
	select {
	case <-w.updates:
	default:
	}
	w.updates <- snapshot
}

func (w *memoryWatcher) Next() ([]Document, error) {
	select {
	case <-w.stop:
		return nil, iterator.Done
	default:
	}
	select {
	case docs := <-w.updates:
		return docs, nil
	case <-w.stop:
		return nil, iterator.Done
	case <-w.ctx.Done():
		return nil, w.ctx.Err()
	}
}

func (w *memoryWatcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		w.store.removeWatcher(w)
	})
}

// mergeInto writes src into dst, descending into nested maps the way a
// merging Set does.
func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		if nested, ok := v.(map[string]interface{}); ok {
			existing, ok := dst[k].(map[string]interface{})
			if !ok {
				existing = make(map[string]interface{})
			}
			mergeInto(existing, nested)
			dst[k] = existing
			continue
		}
		applyAt(dst, []string{k}, v)
	}
}

func applyAt(data map[string]interface{}, path []string, value interface{}) {
	for _, key := range path[:len(path)-1] {
		next, ok := data[key].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			data[key] = next
		}
		data = next
	}
	key := path[len(path)-1]

	switch t := value.(type) {
	case deleteField:
		delete(data, key)
	case increment:
		switch cur := data[key].(type) {
		case int64:
			data[key] = cur + int64(t)
		case float64:
			data[key] = cur + float64(t)
		default:
			data[key] = int64(t)
		}
	case arrayUnion:
		current, _ := data[key].([]interface{})
		current = append([]interface{}(nil), current...)
		for _, item := range t {
			item = normalize(item)
			if !containsValue(current, item) {
				current = append(current, item)
			}
		}
		data[key] = current
	case arrayRemove:
		current, _ := data[key].([]interface{})
		kept := make([]interface{}, 0, len(current))
		for _, item := range current {
			if !containsValue([]interface{}(t), item) {
				kept = append(kept, item)
			}
		}
		data[key] = kept
	default:
		data[key] = normalize(value)
	}
}

func containsValue(list []interface{}, v interface{}) bool {
	for _, item := range list {
		if reflect.DeepEqual(normalize(item), v) {
			return true
		}
	}
	return false
}

// normalize converts values to the shapes Firestore hands back: int64 numbers,
// []interface{} arrays and map[string]interface{} maps.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case map[string]interface{}:
		return cloneMap(t)
	}
	return v
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = normalize(v)
	}
	return out
}
