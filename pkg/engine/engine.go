// Package engine composes the sync components into a per-conversation
// session: live feeds into the local state, an optimistic coordinator for
// user actions, typing and presence tied to the session lifecycle.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/conversation"
	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/media"
	"github.com/mahaj/convosync/pkg/model"
	"github.com/mahaj/convosync/pkg/send"
	"github.com/mahaj/convosync/pkg/stream"
	"github.com/mahaj/convosync/pkg/tempid"
	"github.com/mahaj/convosync/pkg/typing"
)

// Options tunes a session. Zero values fall back to defaults.
type Options struct {
	// Device disambiguates temporary ids across devices of one user.
	Device int64

	TypingDebounce  time.Duration
	TypingStaleness time.Duration

	// OnMessages observes every change of the visible message list.
	OnMessages func([]model.Message)
	// OnMeta observes conversation metadata (typing, presence, preview).
	OnMeta func(model.ConversationMeta)
	// OnError observes feed transport errors. The engine does not retry;
	// reopening the session is the caller's policy.
	OnError func(error)
}

// Session is the live view of one conversation for one local user. It owns
// the subscriptions and must be closed when the conversation view goes away,
// or the leaked callbacks keep mutating orphaned state.
type Session struct {
	ChatID string

	store       docstore.Store
	state       *conversation.State
	feed        *stream.Feed
	coordinator *send.Coordinator
	tracker     *typing.Tracker
	presence    *typing.Presence
	self        model.User
	log         zerolog.Logger

	mu   sync.Mutex
	meta model.ConversationMeta
	opts Options

	closeOnce sync.Once
}

// Open subscribes to the conversation shared by self and peer and marks
// self online. The returned session is live immediately: the initial
// snapshot arrives through OnMessages like any other delivery.
func Open(ctx context.Context, store docstore.Store, pipeline *media.Pipeline, self, peer model.User, log zerolog.Logger, opts Options) (*Session, error) {
	chatID := docstore.ChatID(self.ID, peer.ID)
	log = log.With().Str("chat", chatID).Str("user", self.ID).Logger()

	ids, err := tempid.NewGenerator(opts.Device)
	if err != nil {
		return nil, err
	}

	state := conversation.New()
	s := &Session{
		ChatID:      chatID,
		store:       store,
		state:       state,
		feed:        stream.NewFeed(store, chatID, log),
		coordinator: send.NewCoordinator(store, state, pipeline, ids, chatID, self, peer, log),
		tracker:     typing.NewTracker(store, chatID, self.ID, log),
		presence:    typing.NewPresence(store, self.ID, log),
		self:        self,
		log:         log,
		opts:        opts,
	}
	if opts.TypingDebounce > 0 || opts.TypingStaleness > 0 {
		debounce, staleness := opts.TypingDebounce, opts.TypingStaleness
		if debounce == 0 {
			debounce = typing.DefaultDebounce
		}
		if staleness == 0 {
			staleness = typing.DefaultStaleness
		}
		s.tracker.WithWindows(debounce, staleness)
	}
	s.coordinator.OnChange(s.notifyMessages)

	err = s.feed.Messages(ctx, func(snap stream.MessageSnapshot, err error) {
		if err != nil {
			s.fail(err)
			return
		}
		if s.state.ApplySnapshot(snap.Messages, snap.Version) {
			s.notifyMessages()
		}
	})
	if err != nil {
		return nil, err
	}

	err = s.feed.Meta(ctx, func(meta model.ConversationMeta, err error) {
		if err != nil {
			s.fail(err)
			return
		}
		s.mu.Lock()
		s.meta = meta
		fn := s.opts.OnMeta
		s.mu.Unlock()
		if fn != nil {
			fn(meta)
		}
	})
	if err != nil {
		s.feed.Close()
		return nil, err
	}

	s.presence.SetOnline(ctx, true)
	return s, nil
}

// Coordinator exposes the optimistic send operations.
func (s *Session) Coordinator() *send.Coordinator { return s.coordinator }

// Messages returns the current visible list for the local user.
func (s *Session) Messages() []model.Message {
	return s.state.Visible(s.self.ID)
}

// InputChanged forwards composer input to the typing tracker.
func (s *Session) InputChanged(ctx context.Context, text string) {
	s.tracker.InputChanged(ctx, text)
}

// StoppedTyping clears the typing flag, e.g. right before a send.
func (s *Session) StoppedTyping(ctx context.Context) {
	s.tracker.Stopped(ctx)
}

// TypingPeers lists users whose typing signal is still fresh.
func (s *Session) TypingPeers() []string {
	s.mu.Lock()
	meta := s.meta
	s.mu.Unlock()
	return meta.TypingUsers(s.self.ID, time.Now().UnixMilli(), s.tracker.Staleness().Milliseconds())
}

// Meta returns the last observed conversation metadata.
func (s *Session) Meta() model.ConversationMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *Session) notifyMessages() {
	s.mu.Lock()
	fn := s.opts.OnMessages
	s.mu.Unlock()
	if fn != nil {
		fn(s.Messages())
	}
}

func (s *Session) fail(err error) {
	s.log.Error().Err(err).Msg("feed error")
	s.mu.Lock()
	fn := s.opts.OnError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Close tears the session down: typing flag cleared, presence offline,
// subscriptions cancelled. Safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.tracker.Close(ctx)
		s.presence.SetOnline(ctx, false)
		s.feed.Close()
	})
}
