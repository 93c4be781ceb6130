package typing

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/docstore/memstore"
)

func typingField(t *testing.T, store *memstore.Store, chatID, userID string) (int64, bool) {
	t.Helper()
	doc, err := store.Get(context.Background(), docstore.ChatDoc(chatID))
	if err == docstore.ErrNotFound {
		return 0, false
	}
	require.NoError(t, err)
	m, ok := doc.Data["typing"].(map[string]any)
	if !ok {
		return 0, false
	}
	ts, ok := m[userID].(int64)
	return ts, ok
}

func TestTrackerPublishesOnFirstKeystroke(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, "c1", "u1", zerolog.Nop())
	defer tr.Close(context.Background())

	tr.InputChanged(context.Background(), "h")
	ts, ok := typingField(t, store, "c1", "u1")
	require.True(t, ok, "first keystroke publishes immediately")
	require.Greater(t, ts, int64(0))
}

func TestTrackerDebounceClears(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, "c1", "u1", zerolog.Nop()).WithWindows(30*time.Millisecond, time.Second)
	defer tr.Close(context.Background())

	tr.InputChanged(context.Background(), "hello")
	_, ok := typingField(t, store, "c1", "u1")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := typingField(t, store, "c1", "u1")
		return !ok
	}, time.Second, 5*time.Millisecond, "flag clears after the debounce elapses")
}

func TestTrackerKeystrokesExtendWindow(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, "c1", "u1", zerolog.Nop()).WithWindows(80*time.Millisecond, time.Second)
	defer tr.Close(context.Background())

	// Keep typing past the debounce window; each keystroke rearms it.
	for i := 0; i < 5; i++ {
		tr.InputChanged(context.Background(), "hello world")
		time.Sleep(30 * time.Millisecond)
	}
	_, ok := typingField(t, store, "c1", "u1")
	require.True(t, ok, "continuous typing keeps the flag set")

	require.Eventually(t, func() bool {
		_, ok := typingField(t, store, "c1", "u1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestTrackerEmptyInputClearsImmediately(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, "c1", "u1", zerolog.Nop())
	defer tr.Close(context.Background())

	tr.InputChanged(context.Background(), "hi")
	tr.InputChanged(context.Background(), "")
	_, ok := typingField(t, store, "c1", "u1")
	require.False(t, ok, "cleared input publishes the clear without waiting")
}

func TestTrackerStopped(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, "c1", "u1", zerolog.Nop())
	defer tr.Close(context.Background())

	tr.InputChanged(context.Background(), "about to send")
	tr.Stopped(context.Background())
	_, ok := typingField(t, store, "c1", "u1")
	require.False(t, ok)

	// A second Stopped with nothing to clear publishes nothing.
	tr.Stopped(context.Background())
	_, ok = typingField(t, store, "c1", "u1")
	require.False(t, ok)
}

func TestTrackerCloseClearsAndIsIdempotent(t *testing.T) {
	store := memstore.New()
	tr := NewTracker(store, "c1", "u1", zerolog.Nop())

	tr.InputChanged(context.Background(), "typing away")
	tr.Close(context.Background())
	_, ok := typingField(t, store, "c1", "u1")
	require.False(t, ok)

	tr.Close(context.Background())
	tr.InputChanged(context.Background(), "after close")
	_, ok = typingField(t, store, "c1", "u1")
	require.False(t, ok, "a closed tracker publishes nothing")
}

func TestPresenceSetOnline(t *testing.T) {
	store := memstore.New()
	p := NewPresence(store, "u1", zerolog.Nop())

	p.SetOnline(context.Background(), true)
	doc, err := store.Get(context.Background(), docstore.UserDoc("u1"))
	require.NoError(t, err)
	require.Equal(t, true, doc.Data["online"])
	require.IsType(t, int64(0), doc.Data["lastSeen"], "server-assigned instant, not a sentinel")

	p.SetOnline(context.Background(), false)
	doc, err = store.Get(context.Background(), docstore.UserDoc("u1"))
	require.NoError(t, err)
	require.Equal(t, false, doc.Data["online"])
}
