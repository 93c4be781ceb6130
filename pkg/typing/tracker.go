// Package typing publishes the local user's debounced typing state and
// presence, and interprets the remote side's signals with a staleness
// window.
package typing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/docstore"
)

const (
	// DefaultDebounce is how long after the last keystroke the typing flag
	// clears on its own.
	DefaultDebounce = 2 * time.Second

	// DefaultStaleness is the window after which a remote typing signal
	// reads as "not typing" even without an explicit clear. Covers peers
	// whose app died with the flag set.
	DefaultStaleness = 2 * time.Second

	// refreshInterval throttles timestamp refreshes while typing
	// continues, so long bursts keep the remote signal fresh without a
	// write per keystroke.
	refreshInterval = 500 * time.Millisecond
)

// Tracker runs the Idle -> Typing -> Idle machine for one local user in one
// conversation. Publish failures are logged, never surfaced; a lost typing
// write is cosmetic.
type Tracker struct {
	store     docstore.Store
	chatID    string
	userID    string
	debounce  time.Duration
	staleness time.Duration
	log       zerolog.Logger

	mu            sync.Mutex
	typing        bool
	timer         *time.Timer
	timerGen      int
	lastPublished time.Time
	closed        bool
}

func NewTracker(store docstore.Store, chatID, userID string, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		chatID:    chatID,
		userID:    userID,
		debounce:  DefaultDebounce,
		staleness: DefaultStaleness,
		log:       log.With().Str("component", "typing").Str("chat", chatID).Logger(),
	}
}

// WithWindows overrides the debounce and staleness durations. Tunables, not
// contract.
func (t *Tracker) WithWindows(debounce, staleness time.Duration) *Tracker {
	t.debounce = debounce
	t.staleness = staleness
	return t
}

func (t *Tracker) Staleness() time.Duration { return t.staleness }

// InputChanged feeds the tracker the current input text. The first non-empty
// change fires Idle -> Typing; every further keystroke rearms the countdown;
// an empty input clears immediately.
func (t *Tracker) InputChanged(ctx context.Context, text string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if text == "" {
		wasTyping := t.typing
		t.typing = false
		t.stopTimerLocked()
		t.mu.Unlock()
		if wasTyping {
			t.publish(ctx, false)
		}
		return
	}

	first := !t.typing
	t.typing = true
	refresh := first || time.Since(t.lastPublished) >= refreshInterval
	if refresh {
		t.lastPublished = time.Now()
	}
	t.armTimerLocked()
	t.mu.Unlock()

	if refresh {
		t.publish(ctx, true)
	}
}

// Stopped clears the typing flag immediately, e.g. right before a send.
func (t *Tracker) Stopped(ctx context.Context) {
	t.mu.Lock()
	wasTyping := t.typing
	t.typing = false
	t.stopTimerLocked()
	t.mu.Unlock()
	if wasTyping {
		t.publish(ctx, false)
	}
}

// armTimerLocked replaces the countdown. The generation counter invalidates
// any already-fired timer callback from an older arm, so a stale "stopped
// typing" write cannot race a newer "still typing" state.
func (t *Tracker) armTimerLocked() {
	t.stopTimerLocked()
	t.timerGen++
	gen := t.timerGen
	t.timer = time.AfterFunc(t.debounce, func() {
		t.mu.Lock()
		if gen != t.timerGen || !t.typing || t.closed {
			t.mu.Unlock()
			return
		}
		t.typing = false
		t.mu.Unlock()
		t.publish(context.Background(), false)
	})
}

func (t *Tracker) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.timerGen++
}

// publish writes the typing field for this user on the conversation doc. A
// fresh unix-ms timestamp while typing, a field delete on clear.
func (t *Tracker) publish(ctx context.Context, typing bool) {
	var value any = time.Now().UnixMilli()
	if !typing {
		value = docstore.FieldDelete()
	}
	err := t.store.Set(ctx, docstore.ChatDoc(t.chatID), map[string]any{
		"typing." + t.userID: value,
	}, true)
	if err != nil {
		t.log.Error().Err(err).Bool("typing", typing).Msg("failed to publish typing state")
	}
}

// Close clears the flag remotely if needed and stops the timer. Idempotent.
func (t *Tracker) Close(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	wasTyping := t.typing
	t.typing = false
	t.stopTimerLocked()
	t.mu.Unlock()
	if wasTyping {
		t.publish(ctx, false)
	}
}

// Presence publishes the coarse online flag on the user document: true on
// conversation mount, false on unmount, with a server-assigned lastSeen.
// There is no heartbeat in between; a crashed client reads as online until
// its next update.
type Presence struct {
	store  docstore.Store
	userID string
	log    zerolog.Logger
}

func NewPresence(store docstore.Store, userID string, log zerolog.Logger) *Presence {
	return &Presence{store: store, userID: userID, log: log.With().Str("component", "presence").Logger()}
}

func (p *Presence) SetOnline(ctx context.Context, online bool) {
	err := p.store.Set(ctx, docstore.UserDoc(p.userID), map[string]any{
		"online":   online,
		"lastSeen": docstore.ServerTimestamp(),
	}, true)
	if err != nil {
		p.log.Error().Err(err).Bool("online", online).Msg("failed to publish presence")
	}
}
