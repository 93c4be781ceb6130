package stream

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/docstore/memstore"
	"github.com/mahaj/convosync/pkg/model"
)

func TestMessagesFeed(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	feed := NewFeed(store, "alice_bob", zerolog.Nop())
	defer feed.Close()

	var snaps []MessageSnapshot
	require.NoError(t, feed.Messages(ctx, func(snap MessageSnapshot, err error) {
		require.NoError(t, err)
		snaps = append(snaps, snap)
	}))
	require.Len(t, snaps, 1, "initial delivery on subscribe")

	_, err := store.Add(ctx, "chats/alice_bob/messages", map[string]any{
		"senderId":  "alice",
		"text":      "hello",
		"timestamp": int64(100),
		"status":    "sent",
	})
	require.NoError(t, err)

	require.Len(t, snaps, 2)
	last := snaps[1]
	require.Greater(t, last.Version, snaps[0].Version)
	require.Len(t, last.Messages, 1)
	require.Equal(t, "alice", last.Messages[0].SenderID)
	require.Equal(t, model.StatusSent, last.Messages[0].Status)
}

func TestMetaFeed(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	feed := NewFeed(store, "alice_bob", zerolog.Nop())
	defer feed.Close()

	var metas []model.ConversationMeta
	require.NoError(t, feed.Meta(ctx, func(meta model.ConversationMeta, err error) {
		require.NoError(t, err)
		metas = append(metas, meta)
	}))

	require.NoError(t, store.Set(ctx, "chats/alice_bob", map[string]any{
		"lastMessage": "hi there",
		"typing":      map[string]any{"bob": int64(12345)},
	}, true))

	require.Len(t, metas, 2)
	require.Equal(t, "alice_bob", metas[1].ID)
	require.Equal(t, "hi there", metas[1].LastMessage)
	require.EqualValues(t, 12345, metas[1].Typing["bob"])
}

func TestCloseStopsDeliveries(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	feed := NewFeed(store, "alice_bob", zerolog.Nop())

	deliveries := 0
	require.NoError(t, feed.Messages(ctx, func(MessageSnapshot, error) { deliveries++ }))
	require.Equal(t, 1, deliveries)

	feed.Close()
	feed.Close()

	_, err := store.Add(ctx, "chats/alice_bob/messages", map[string]any{"text": "late"})
	require.NoError(t, err)
	require.Equal(t, 1, deliveries, "closed feed delivers nothing")
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage(docstore.Doc{
		Path: "chats/c/messages/abc",
		ID:   "abc",
		Data: map[string]any{
			"id":        "stale-inner-id",
			"senderId":  "u1",
			"text":      "hi",
			"timestamp": float64(500),
			"reactions": map[string]any{"u2": "❤️"},
			"replyTo":   map[string]any{"id": "prev", "text": "quoted", "senderName": "Bob"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "abc", msg.ID, "document id wins over the data field")
	require.EqualValues(t, 500, msg.Timestamp)
	require.Equal(t, model.StatusSent, msg.Status, "missing status defaults to sent")
	require.Equal(t, "❤️", msg.Reactions["u2"])
	require.NotNil(t, msg.ReplyTo)
	require.Equal(t, "prev", msg.ReplyTo.ID)
}
