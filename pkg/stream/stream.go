// Package stream normalizes the store's live-query primitive into typed,
// per-conversation feeds: an ordered message snapshot feed and a separate
// conversation-metadata feed for typing and presence.
package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/model"
)

// MessageSnapshot is a full replacement of the conversation's remote-known
// messages, not a diff. Version orders deliveries; consumers drop snapshots
// older than the last one applied.
type MessageSnapshot struct {
	Messages []model.Message
	Version  int64
}

// MessageFunc observes message snapshots. A non-nil err is a transport
// error; the feed does not retry. Retry policy belongs to the caller.
type MessageFunc func(snap MessageSnapshot, err error)

// MetaFunc observes the conversation metadata document.
type MetaFunc func(meta model.ConversationMeta, err error)

// Feed owns the live subscriptions for one conversation. Close stops all
// callbacks and is idempotent.
type Feed struct {
	store  docstore.Store
	chatID string
	log    zerolog.Logger

	mu   sync.Mutex
	subs []docstore.Subscription
	once sync.Once
}

func NewFeed(store docstore.Store, chatID string, log zerolog.Logger) *Feed {
	return &Feed{
		store:  store,
		chatID: chatID,
		log:    log.With().Str("component", "stream").Str("chat", chatID).Logger(),
	}
}

// Messages opens the live message subscription. Snapshot order across
// deliveries is not causally ordered relative to local optimistic writes;
// the conversation state's merge policy handles that race.
func (f *Feed) Messages(ctx context.Context, fn MessageFunc) error {
	sub, err := f.store.Subscribe(ctx, docstore.MessagesCollection(f.chatID), func(snap docstore.Snapshot, err error) {
		if err != nil {
			f.log.Error().Err(err).Msg("message feed error")
			fn(MessageSnapshot{}, err)
			return
		}
		out := MessageSnapshot{Version: snap.Version}
		for _, doc := range snap.Docs {
			msg, err := DecodeMessage(doc)
			if err != nil {
				f.log.Error().Err(err).Str("doc", doc.ID).Msg("skipping undecodable message")
				continue
			}
			out.Messages = append(out.Messages, msg)
		}
		fn(out, nil)
	})
	if err != nil {
		return err
	}
	f.track(sub)
	return nil
}

// Meta opens the conversation-document subscription carrying typing and
// presence fields, independent of message flow.
func (f *Feed) Meta(ctx context.Context, fn MetaFunc) error {
	sub, err := f.store.SubscribeDoc(ctx, docstore.ChatDoc(f.chatID), func(doc docstore.Doc, err error) {
		if err != nil {
			f.log.Error().Err(err).Msg("meta feed error")
			fn(model.ConversationMeta{}, err)
			return
		}
		meta, err := decodeMeta(doc)
		if err != nil {
			f.log.Error().Err(err).Msg("skipping undecodable conversation doc")
			return
		}
		fn(meta, nil)
	})
	if err != nil {
		return err
	}
	f.track(sub)
	return nil
}

func (f *Feed) track(sub docstore.Subscription) {
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
}

// Close cancels every open subscription. Closing twice is safe; a feed left
// open past its conversation view leaks a callback that keeps mutating
// orphaned state.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		subs := f.subs
		f.subs = nil
		f.mu.Unlock()
		for _, sub := range subs {
			sub.Cancel()
		}
	})
}

// DecodeMessage maps a store document onto the message model. The document
// id wins over any id field inside the data.
func DecodeMessage(doc docstore.Doc) (model.Message, error) {
	var msg model.Message
	if err := roundtrip(doc.Data, &msg); err != nil {
		return model.Message{}, err
	}
	msg.ID = doc.ID
	if msg.Status == "" {
		msg.Status = model.StatusSent
	}
	return msg, nil
}

func decodeMeta(doc docstore.Doc) (model.ConversationMeta, error) {
	var meta model.ConversationMeta
	if doc.Data != nil {
		if err := roundtrip(doc.Data, &meta); err != nil {
			return model.ConversationMeta{}, err
		}
	}
	meta.ID = doc.ID
	return meta, nil
}

func roundtrip(data map[string]any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
