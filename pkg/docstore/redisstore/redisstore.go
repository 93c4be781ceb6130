// Package redisstore implements the docstore contract against Redis:
// documents as JSON values, collection membership as sets, live queries via
// pub/sub and snapshot versions via INCR.
package redisstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/docstore"
)

const (
	docPrefix = "cs:doc:"
	colPrefix = "cs:col:"
	verPrefix = "cs:ver:"
	liveColCh = "cs:live:col:"
	liveDocCh = "cs:live:doc:"
)

type Store struct {
	rdb *redis.Client
	log zerolog.Logger
}

func New(addr string, log zerolog.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &Store{rdb: rdb, log: log.With().Str("component", "redisstore").Logger()}
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection+"/"+id, data, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	doc := make(map[string]any)
	if merge {
		if existing, err := s.Get(ctx, path); err == nil {
			doc = existing.Data
		}
	}
	for k, v := range data {
		docstore.ApplyField(doc, k, v)
	}
	return s.write(ctx, path, doc)
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	existing, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	for k, v := range fields {
		docstore.ApplyField(existing.Data, k, v)
	}
	return s.write(ctx, path, existing.Data)
}

func (s *Store) write(ctx context.Context, path string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	collection := docstore.ParentCollection(path)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, docPrefix+path, raw, 0)
	pipe.SAdd(ctx, colPrefix+collection, docstore.DocID(path))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, collection, path)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	collection := docstore.ParentCollection(path)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, docPrefix+path)
	pipe.SRem(ctx, colPrefix+collection, docstore.DocID(path))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.publish(ctx, collection, path)
}

// publish bumps the collection version and wakes both collection and
// document subscribers. Subscribers re-read the collection themselves; the
// payload only carries the version.
func (s *Store) publish(ctx context.Context, collection, path string) error {
	ver, err := s.rdb.Incr(ctx, verPrefix+collection).Result()
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]any{"version": ver})
	if err := s.rdb.Publish(ctx, liveColCh+collection, payload).Err(); err != nil {
		return err
	}
	return s.rdb.Publish(ctx, liveDocCh+path, payload).Err()
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Doc, error) {
	raw, err := s.rdb.Get(ctx, docPrefix+path).Result()
	if err == redis.Nil {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Doc{}, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return docstore.Doc{}, err
	}
	return docstore.Doc{Path: path, ID: docstore.DocID(path), Data: data}, nil
}

func (s *Store) readCollection(ctx context.Context, collection string, version int64) (docstore.Snapshot, error) {
	snap := docstore.Snapshot{Collection: collection, Version: version}
	ids, err := s.rdb.SMembers(ctx, colPrefix+collection).Result()
	if err != nil {
		return snap, err
	}
	for _, id := range ids {
		doc, err := s.Get(ctx, collection+"/"+id)
		if err == docstore.ErrNotFound {
			// Deleted between SMEMBERS and GET.
			continue
		}
		if err != nil {
			return snap, err
		}
		snap.Docs = append(snap.Docs, doc)
	}
	return snap, nil
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.pubsub.Close()
	})
}

func (s *Store) Subscribe(ctx context.Context, collection string, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, liveColCh+collection)
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{pubsub: pubsub, cancel: cancel}

	go func() {
		// Initial snapshot, then one per published change.
		ver, _ := s.rdb.Get(subCtx, verPrefix+collection).Int64()
		snap, err := s.readCollection(subCtx, collection, ver)
		if subCtx.Err() != nil {
			return
		}
		fn(snap, err)

		for msg := range pubsub.Channel() {
			var evt struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				s.log.Error().Err(err).Msg("bad live payload")
				continue
			}
			snap, err := s.readCollection(subCtx, collection, evt.Version)
			if subCtx.Err() != nil {
				return
			}
			fn(snap, err)
		}
	}()

	return sub, nil
}

func (s *Store) SubscribeDoc(ctx context.Context, path string, fn docstore.DocFunc) (docstore.Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, liveDocCh+path)
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{pubsub: pubsub, cancel: cancel}

	go func() {
		doc, err := s.Get(subCtx, path)
		if err == docstore.ErrNotFound {
			doc, err = docstore.Doc{Path: path, ID: docstore.DocID(path)}, nil
		}
		if subCtx.Err() != nil {
			return
		}
		fn(doc, err)

		for range pubsub.Channel() {
			doc, err := s.Get(subCtx, path)
			if err == docstore.ErrNotFound {
				doc, err = docstore.Doc{Path: path, ID: docstore.DocID(path)}, nil
			}
			if subCtx.Err() != nil {
				return
			}
			fn(doc, err)
		}
	}()

	return sub, nil
}

type batch struct {
	store *Store
	ops   []batchOp
}

type batchOp struct {
	path   string
	fields map[string]any
	set    bool
	merge  bool
}

func (s *Store) Batch() docstore.WriteBatch { return &batch{store: s} }

func (b *batch) Set(path string, data map[string]any, merge bool) docstore.WriteBatch {
	b.ops = append(b.ops, batchOp{path: path, fields: data, set: true, merge: merge})
	return b
}

func (b *batch) Update(path string, fields map[string]any) docstore.WriteBatch {
	b.ops = append(b.ops, batchOp{path: path, fields: fields})
	return b
}

// Commit applies the queued writes through one pipeline. Reads for merge and
// update targets happen first; the read-modify-write window is the same
// last-write-wins window every non-transactional client of the store has.
func (b *batch) Commit(ctx context.Context) error {
	type staged struct {
		path string
		doc  map[string]any
	}
	var writes []staged
	for _, op := range b.ops {
		doc := make(map[string]any)
		if !op.set || op.merge {
			existing, err := b.store.Get(ctx, op.path)
			if err == nil {
				doc = existing.Data
			} else if err != docstore.ErrNotFound {
				return err
			} else if !op.set {
				return docstore.ErrNotFound
			}
		}
		for k, v := range op.fields {
			docstore.ApplyField(doc, k, v)
		}
		writes = append(writes, staged{path: op.path, doc: doc})
	}

	pipe := b.store.rdb.TxPipeline()
	for _, w := range writes {
		raw, err := json.Marshal(w.doc)
		if err != nil {
			return err
		}
		pipe.Set(ctx, docPrefix+w.path, raw, 0)
		pipe.SAdd(ctx, colPrefix+docstore.ParentCollection(w.path), docstore.DocID(w.path))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	for _, w := range writes {
		if err := b.store.publish(ctx, docstore.ParentCollection(w.path), w.path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
