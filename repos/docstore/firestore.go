package docstore

import (
	"context"

	"cloud.google.com/go/firestore"
	"golang.org/x/xerrors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is the Store backed by Cloud Firestore.
type Firestore struct {
	Client *firestore.Client
}

// NewFirestore wraps an existing Firestore client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{Client: client}
}

func (s *Firestore) Watch(ctx context.Context, collection string) Watcher {
	return &firestoreWatcher{it: s.Client.Collection(collection).Snapshots(ctx)}
}

func (s *Firestore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	ref, _, err := s.Client.Collection(collection).Add(ctx, toFirestoreMap(fields))
	if err != nil {
		return "", xerrors.Errorf("add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	doc, err := s.Client.Collection(collection).Doc(id).Get(ctx)
	return fromSnapshot(doc, err)
}

func (s *Firestore) Set(ctx context.Context, collection, id string, fields map[string]interface{}, merge bool) error {
	_, err := s.Client.Collection(collection).Doc(id).Set(ctx, toFirestoreMap(fields), setOptions(merge)...)
	return mapError(err)
}

func (s *Firestore) Update(ctx context.Context, collection, id string, updates []Update) error {
	_, err := s.Client.Collection(collection).Doc(id).Update(ctx, toFirestoreUpdates(updates))
	return mapError(err)
}

func (s *Firestore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.Client.Collection(collection).Doc(id).Delete(ctx)
	return mapError(err)
}

func (s *Firestore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{client: s.Client, tx: tx})
	})
}

func (s *Firestore) Close() error {
	return s.Client.Close()
}

type firestoreTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
}

func (t *firestoreTx) Get(collection, id string) (Document, error) {
	doc, err := t.tx.Get(t.client.Collection(collection).Doc(id))
	return fromSnapshot(doc, err)
}

func (t *firestoreTx) Set(collection, id string, fields map[string]interface{}, merge bool) error {
	return t.tx.Set(t.client.Collection(collection).Doc(id), toFirestoreMap(fields), setOptions(merge)...)
}

func (t *firestoreTx) Update(collection, id string, updates []Update) error {
	return t.tx.Update(t.client.Collection(collection).Doc(id), toFirestoreUpdates(updates))
}

func (t *firestoreTx) Delete(collection, id string) error {
	return t.tx.Delete(t.client.Collection(collection).Doc(id))
}

type firestoreWatcher struct {
	it *firestore.QuerySnapshotIterator
}

func (w *firestoreWatcher) Next() ([]Document, error) {
	snap, err := w.it.Next()
	if err != nil {
		return nil, err
	}
	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil, xerrors.Errorf("read snapshot documents: %w", err)
	}
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Document{ID: doc.Ref.ID, Data: doc.Data()})
	}
	return out, nil
}

func (w *firestoreWatcher) Stop() {
	w.it.Stop()
}

func fromSnapshot(doc *firestore.DocumentSnapshot, err error) (Document, error) {
	if err != nil {
		return Document{}, mapError(err)
	}
	if !doc.Exists() {
		return Document{}, ErrNotFound
	}
	return Document{ID: doc.Ref.ID, Data: doc.Data()}, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func setOptions(merge bool) []firestore.SetOption {
	if merge {
		return []firestore.SetOption{firestore.MergeAll}
	}
	return nil
}

func toFirestoreUpdates(updates []Update) []firestore.Update {
	out := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		fu := firestore.Update{Value: toFirestoreValue(u.Value)}
		if len(u.FieldPath) > 0 {
			fu.FieldPath = firestore.FieldPath(u.FieldPath)
		} else {
			fu.Path = u.Path
		}
		out = append(out, fu)
	}
	return out
}

func toFirestoreMap(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v interface{}) interface{} {
	switch t := v.(type) {
	case arrayUnion:
		return firestore.ArrayUnion(t...)
	case arrayRemove:
		return firestore.ArrayRemove(t...)
	case increment:
		return firestore.Increment(int64(t))
	case deleteField:
		return firestore.Delete
	case map[string]interface{}:
		return toFirestoreMap(t)
	}
	return v
}
