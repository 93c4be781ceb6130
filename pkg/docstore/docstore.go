// Package docstore defines the contract this module consumes from the
// backend's document database: path-addressed documents grouped into
// collections, partial field-path updates, and live-query subscriptions that
// deliver full snapshots on every change.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// Doc is one document as observed in a snapshot or a point read.
type Doc struct {
	// Path addresses the document, e.g. "chats/u1_u2/messages/abc123".
	Path string
	// ID is the last path segment.
	ID string
	// Data holds the decoded document fields.
	Data map[string]any
}

// Snapshot is a full point-in-time replacement of a subscribed collection's
// contents, never an incremental diff. Version increases monotonically per
// collection so consumers can detect out-of-order deliveries.
type Snapshot struct {
	Collection string
	Docs       []Doc
	Version    int64
}

// Subscription is a live-query handle. Cancel stops further callbacks and is
// safe to call more than once.
type Subscription interface {
	Cancel()
}

// SnapshotFunc receives collection snapshots. A non-nil err signals a
// transport error; the store does not retry internally.
type SnapshotFunc func(snap Snapshot, err error)

// DocFunc receives single-document snapshots for doc-level subscriptions.
type DocFunc func(doc Doc, err error)

// WriteBatch accumulates multi-document writes committed together.
type WriteBatch interface {
	Set(path string, data map[string]any, merge bool) WriteBatch
	Update(path string, fields map[string]any) WriteBatch
	Commit(ctx context.Context) error
}

// Store is the document database surface the sync engine depends on.
// Update accepts dotted field paths ("reactions.u1", "typing.u2") that
// modify one key inside a nested map without overwriting siblings.
type Store interface {
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (Doc, error)
	Subscribe(ctx context.Context, collection string, fn SnapshotFunc) (Subscription, error)
	SubscribeDoc(ctx context.Context, path string, fn DocFunc) (Subscription, error)
	Batch() WriteBatch
	Close() error
}

// serverTimestamp is the sentinel for a server-assigned timestamp, distinct
// from client-supplied numeric timestamps.
type serverTimestamp struct{}

// arrayUnion appends values to an array field, skipping ones already present.
type arrayUnion struct{ Values []any }

// fieldDelete removes a field (or one key of a nested map under a dotted
// path) from the document.
type fieldDelete struct{}

// increment adds a delta to a numeric field, treating a missing field as
// zero.
type increment struct{ Delta int64 }

func ServerTimestamp() any { return serverTimestamp{} }

func ArrayUnion(values ...any) any { return arrayUnion{Values: values} }

func FieldDelete() any { return fieldDelete{} }

func Increment(delta int64) any { return increment{Delta: delta} }

func IsServerTimestamp(v any) bool { _, ok := v.(serverTimestamp); return ok }

func IsFieldDelete(v any) bool { _, ok := v.(fieldDelete); return ok }

func AsArrayUnion(v any) ([]any, bool) {
	u, ok := v.(arrayUnion)
	if !ok {
		return nil, false
	}
	return u.Values, true
}

func AsIncrement(v any) (int64, bool) {
	i, ok := v.(increment)
	if !ok {
		return 0, false
	}
	return i.Delta, true
}
