// Package wsstore implements the docstore contract over the hosted backend's
// realtime websocket gateway. Subscriptions arrive as pushed snapshot frames;
// writes are request/ack frames over the same connection.
package wsstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/errs"
)

const (
	// Time allowed to write a frame to the gateway.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the gateway.
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	ackTimeout = 15 * time.Second
)

type frame struct {
	Op      string         `json:"op"`
	Req     int64          `json:"req,omitempty"`
	Target  string         `json:"target,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Merge   bool           `json:"merge,omitempty"`
	Ops     []frame        `json:"ops,omitempty"`
	Version int64          `json:"version,omitempty"`
	Docs    []wireDoc      `json:"docs,omitempty"`
	Doc     *wireDoc       `json:"doc,omitempty"`
	ID      string         `json:"id,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type wireDoc struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type Store struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex // guards conn writes

	mu      sync.Mutex
	nextReq int64
	pending map[int64]chan frame
	colSubs map[string]docstore.SnapshotFunc
	docSubs map[string]docstore.DocFunc

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the gateway with a bearer token, the same handshake the
// terminal client uses against the HTTP API.
func Dial(ctx context.Context, gatewayURL, token string, log zerolog.Logger) (*Store, error) {
	u, err := url.Parse(gatewayURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, errs.Wrap(errs.Network, err, "gateway dial %s", u.Host)
	}

	s := &Store{
		conn:    conn,
		log:     log.With().Str("component", "wsstore").Logger(),
		pending: make(map[int64]chan frame),
		colSubs: make(map[string]docstore.SnapshotFunc),
		docSubs: make(map[string]docstore.DocFunc),
		done:    make(chan struct{}),
	}
	go s.readPump()
	go s.pingLoop()
	return s, nil
}

// readPump dispatches inbound frames to subscriptions and pending requests.
func (s *Store) readPump() {
	defer s.Close()
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error().Err(err).Msg("gateway read failed")
			}
			s.failSubscribers(errs.Wrap(errs.Network, err, "gateway connection lost"))
			return
		}

		switch f.Op {
		case "snapshot":
			s.mu.Lock()
			fn := s.colSubs[f.Target]
			s.mu.Unlock()
			if fn == nil {
				continue
			}
			snap := docstore.Snapshot{Collection: f.Target, Version: f.Version}
			for _, d := range f.Docs {
				snap.Docs = append(snap.Docs, docstore.Doc{
					Path: f.Target + "/" + d.ID,
					ID:   d.ID,
					Data: d.Data,
				})
			}
			fn(snap, nil)
		case "doc":
			s.mu.Lock()
			fn := s.docSubs[f.Target]
			s.mu.Unlock()
			if fn == nil {
				continue
			}
			doc := docstore.Doc{Path: f.Target, ID: docstore.DocID(f.Target)}
			if f.Doc != nil {
				doc.Data = f.Doc.Data
			}
			fn(doc, nil)
		case "ack":
			s.mu.Lock()
			ch := s.pending[f.Req]
			delete(s.pending, f.Req)
			s.mu.Unlock()
			if ch != nil {
				ch <- f
			}
		default:
			s.log.Warn().Str("op", f.Op).Msg("unknown gateway frame")
		}
	}
}

func (s *Store) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// failSubscribers surfaces a transport error to every live subscription once.
// The store does not retry; retry policy belongs to the caller.
func (s *Store) failSubscribers(err error) {
	s.mu.Lock()
	colSubs := s.colSubs
	docSubs := s.docSubs
	s.colSubs = make(map[string]docstore.SnapshotFunc)
	s.docSubs = make(map[string]docstore.DocFunc)
	s.mu.Unlock()

	for target, fn := range colSubs {
		fn(docstore.Snapshot{Collection: target}, err)
	}
	for target, fn := range docSubs {
		fn(docstore.Doc{Path: target}, err)
	}
}

func (s *Store) send(f frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return errs.Wrap(errs.Network, err, "gateway write")
	}
	return nil
}

// request sends a frame and waits for its ack.
func (s *Store) request(ctx context.Context, f frame) (frame, error) {
	ch := make(chan frame, 1)
	s.mu.Lock()
	s.nextReq++
	f.Req = s.nextReq
	s.pending[f.Req] = ch
	s.mu.Unlock()

	if err := s.send(f); err != nil {
		s.mu.Lock()
		delete(s.pending, f.Req)
		s.mu.Unlock()
		return frame{}, err
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return frame{}, errs.New(errs.Unknown, ack.Error)
		}
		return ack, nil
	case <-time.After(ackTimeout):
		return frame{}, errs.New(errs.Network, "gateway ack timeout")
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-s.done:
		return frame{}, errs.New(errs.Network, "gateway connection closed")
	}
}

func (s *Store) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	ack, err := s.request(ctx, frame{Op: "add", Target: collection, Data: encodeFields(data)})
	if err != nil {
		return "", err
	}
	return ack.ID, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	_, err := s.request(ctx, frame{Op: "set", Target: path, Data: encodeFields(data), Merge: merge})
	return err
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := s.request(ctx, frame{Op: "update", Target: path, Data: encodeFields(fields)})
	return err
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.request(ctx, frame{Op: "delete", Target: path})
	return err
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Doc, error) {
	ack, err := s.request(ctx, frame{Op: "get", Target: path})
	if err != nil {
		return docstore.Doc{}, err
	}
	if ack.Doc == nil {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	return docstore.Doc{Path: path, ID: docstore.DocID(path), Data: ack.Doc.Data}, nil
}

type subscription struct {
	store  *Store
	target string
	doc    bool
	once   sync.Once
}

func (sub *subscription) Cancel() {
	sub.once.Do(func() {
		sub.store.mu.Lock()
		if sub.doc {
			delete(sub.store.docSubs, sub.target)
		} else {
			delete(sub.store.colSubs, sub.target)
		}
		sub.store.mu.Unlock()
		sub.store.send(frame{Op: "unsub", Target: sub.target})
	})
}

func (s *Store) Subscribe(ctx context.Context, collection string, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	s.mu.Lock()
	s.colSubs[collection] = fn
	s.mu.Unlock()
	if _, err := s.request(ctx, frame{Op: "sub", Target: collection}); err != nil {
		s.mu.Lock()
		delete(s.colSubs, collection)
		s.mu.Unlock()
		return nil, err
	}
	return &subscription{store: s, target: collection}, nil
}

func (s *Store) SubscribeDoc(ctx context.Context, path string, fn docstore.DocFunc) (docstore.Subscription, error) {
	s.mu.Lock()
	s.docSubs[path] = fn
	s.mu.Unlock()
	if _, err := s.request(ctx, frame{Op: "subdoc", Target: path}); err != nil {
		s.mu.Lock()
		delete(s.docSubs, path)
		s.mu.Unlock()
		return nil, err
	}
	return &subscription{store: s, target: path, doc: true}, nil
}

type batch struct {
	store *Store
	ops   []frame
}

func (s *Store) Batch() docstore.WriteBatch { return &batch{store: s} }

func (b *batch) Set(path string, data map[string]any, merge bool) docstore.WriteBatch {
	b.ops = append(b.ops, frame{Op: "set", Target: path, Data: encodeFields(data), Merge: merge})
	return b
}

func (b *batch) Update(path string, fields map[string]any) docstore.WriteBatch {
	b.ops = append(b.ops, frame{Op: "update", Target: path, Data: encodeFields(fields)})
	return b
}

func (b *batch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	_, err := b.store.request(ctx, frame{Op: "batch", Ops: b.ops})
	return err
}

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// encodeFields rewrites write sentinels into their wire representation so
// the gateway resolves them server-side.
func encodeFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch {
		case docstore.IsServerTimestamp(v):
			out[k] = map[string]any{"$serverTimestamp": true}
		case docstore.IsFieldDelete(v):
			out[k] = map[string]any{"$delete": true}
		default:
			if vals, ok := docstore.AsArrayUnion(v); ok {
				out[k] = map[string]any{"$arrayUnion": vals}
				continue
			}
			if delta, ok := docstore.AsIncrement(v); ok {
				out[k] = map[string]any{"$increment": delta}
				continue
			}
			if nested, ok := v.(map[string]any); ok {
				out[k] = encodeFields(nested)
				continue
			}
			out[k] = v
		}
	}
	return out
}
