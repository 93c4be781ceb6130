// Package memstore is an in-memory implementation of the docstore contract,
// used by tests and by the demo client's offline mode.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mahaj/convosync/pkg/docstore"
)

type Store struct {
	mu       sync.Mutex
	docs     map[string]map[string]any // path -> fields
	versions map[string]int64          // collection -> last snapshot version
	colSubs  map[string]map[int]*subscription
	docSubs  map[string]map[int]*subscription
	nextSub  int
	closed   bool
}

type subscription struct {
	store  *Store
	key    string
	id     int
	doc    bool
	snapFn docstore.SnapshotFunc
	docFn  docstore.DocFunc
	once   sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		if s.doc {
			delete(s.store.docSubs[s.key], s.id)
		} else {
			delete(s.store.colSubs[s.key], s.id)
		}
	})
}

func New() *Store {
	return &Store{
		docs:     make(map[string]map[string]any),
		versions: make(map[string]int64),
		colSubs:  make(map[string]map[int]*subscription),
		docSubs:  make(map[string]map[int]*subscription),
	}
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection+"/"+id, data, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	s.mu.Lock()
	existing, ok := s.docs[path]
	if !ok || !merge {
		existing = make(map[string]any)
	}
	for k, v := range data {
		docstore.ApplyField(existing, k, v)
	}
	s.docs[path] = existing
	notify := s.collectNotify(docstore.ParentCollection(path), path)
	s.mu.Unlock()
	notify()
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	doc, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	for k, v := range fields {
		docstore.ApplyField(doc, k, v)
	}
	notify := s.collectNotify(docstore.ParentCollection(path), path)
	s.mu.Unlock()
	notify()
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	delete(s.docs, path)
	notify := s.collectNotify(docstore.ParentCollection(path), path)
	s.mu.Unlock()
	notify()
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[path]
	if !ok {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	return docstore.Doc{Path: path, ID: docstore.DocID(path), Data: docstore.DeepCopy(data)}, nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	s.mu.Lock()
	sub := &subscription{store: s, key: collection, id: s.nextSub, snapFn: fn}
	s.nextSub++
	if s.colSubs[collection] == nil {
		s.colSubs[collection] = make(map[int]*subscription)
	}
	s.colSubs[collection][sub.id] = sub
	snap := s.snapshotLocked(collection)
	s.mu.Unlock()

	fn(snap, nil)
	return sub, nil
}

func (s *Store) SubscribeDoc(ctx context.Context, path string, fn docstore.DocFunc) (docstore.Subscription, error) {
	s.mu.Lock()
	sub := &subscription{store: s, key: path, id: s.nextSub, doc: true, docFn: fn}
	s.nextSub++
	if s.docSubs[path] == nil {
		s.docSubs[path] = make(map[int]*subscription)
	}
	s.docSubs[path][sub.id] = sub
	doc := s.docLocked(path)
	s.mu.Unlock()

	fn(doc, nil)
	return sub, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.colSubs = map[string]map[int]*subscription{}
	s.docSubs = map[string]map[int]*subscription{}
	s.mu.Unlock()
	return nil
}

// snapshotLocked builds a full replacement snapshot and bumps the collection
// version.
func (s *Store) snapshotLocked(collection string) docstore.Snapshot {
	s.versions[collection]++
	snap := docstore.Snapshot{Collection: collection, Version: s.versions[collection]}
	prefix := collection + "/"
	for path, data := range s.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		// Direct children only, not nested sub-collections.
		if strings.ContainsRune(path[len(prefix):], '/') {
			continue
		}
		snap.Docs = append(snap.Docs, docstore.Doc{Path: path, ID: docstore.DocID(path), Data: docstore.DeepCopy(data)})
	}
	return snap
}

func (s *Store) docLocked(path string) docstore.Doc {
	doc := docstore.Doc{Path: path, ID: docstore.DocID(path)}
	if data, ok := s.docs[path]; ok {
		doc.Data = docstore.DeepCopy(data)
	}
	return doc
}

// collectNotify captures the subscriber callbacks affected by a write while
// the lock is held and returns a closure that fires them after release, so a
// callback may write back into the store without deadlocking.
func (s *Store) collectNotify(collection, path string) func() {
	var fns []func()
	if subs := s.colSubs[collection]; len(subs) > 0 {
		snap := s.snapshotLocked(collection)
		for _, sub := range subs {
			fn := sub.snapFn
			fns = append(fns, func() { fn(snap, nil) })
		}
	}
	if subs := s.docSubs[path]; len(subs) > 0 {
		doc := s.docLocked(path)
		for _, sub := range subs {
			fn := sub.docFn
			fns = append(fns, func() { fn(doc, nil) })
		}
	}
	return func() {
		for _, fn := range fns {
			fn()
		}
	}
}

type batch struct {
	store *Store
	ops   []func(ctx context.Context) error
}

func (s *Store) Batch() docstore.WriteBatch { return &batch{store: s} }

func (b *batch) Set(path string, data map[string]any, merge bool) docstore.WriteBatch {
	b.ops = append(b.ops, func(ctx context.Context) error { return b.store.Set(ctx, path, data, merge) })
	return b
}

func (b *batch) Update(path string, fields map[string]any) docstore.WriteBatch {
	b.ops = append(b.ops, func(ctx context.Context) error { return b.store.Update(ctx, path, fields) })
	return b
}

func (b *batch) Commit(ctx context.Context) error {
	for _, op := range b.ops {
		if err := op(ctx); err != nil {
			return err
		}
	}
	return nil
}
