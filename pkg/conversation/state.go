// Package conversation holds the in-memory, ordered, deduplicated view of a
// single conversation, merged from remote snapshots and optimistic local
// writes. The reducer is pure state: no UI, no I/O, unit-testable on its own.
package conversation

import (
	"errors"
	"sort"
	"sync"

	"github.com/mahaj/convosync/pkg/model"
)

var ErrUnknownTempID = errors.New("no pending message with that temporary id")

// State merges three sources, in increasing authority for fields the server
// owns: optimistic pending entries (temporary ids, sending/failed), settled
// entries (reconciled to a durable id but not yet observed in a snapshot),
// and the remote-known set from the last applied snapshot.
type State struct {
	mu          sync.Mutex
	remote      map[string]model.Message // durable id -> server state
	settled     map[string]model.Message // durable id -> reconciled, awaiting snapshot
	pending     map[string]model.Message // temp id -> optimistic state
	lastVersion int64
}

func New() *State {
	return &State{
		remote:  make(map[string]model.Message),
		settled: make(map[string]model.Message),
		pending: make(map[string]model.Message),
	}
}

// ApplySnapshot replaces the remote-known set with a full snapshot delivery.
// Pending optimistic entries survive: they have no durable id yet, so no
// snapshot can carry them. Snapshots older than the last applied version are
// dropped, which keeps out-of-order deliveries from rolling back
// server-owned fields like delivered/read.
func (s *State) ApplySnapshot(messages []model.Message, version int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version > 0 && version <= s.lastVersion {
		return false
	}
	if version > s.lastVersion {
		s.lastVersion = version
	}

	s.remote = make(map[string]model.Message, len(messages))
	for _, m := range messages {
		s.remote[m.ID] = m.Clone()
		// Server state supersedes the locally retained copy.
		delete(s.settled, m.ID)
	}
	return true
}

// ApplyOptimistic inserts a locally created message in sending state under
// its temporary id.
func (s *State) ApplyOptimistic(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg.Status = model.StatusSending
	s.pending[msg.ID] = msg.Clone()
}

// Reconcile settles an optimistic entry. On success the temporary id is
// rewritten to the durable id exactly once; the message is never visible
// under both. On failure the entry stays pending with failed status so the
// user keeps the content for a manual resend.
func (s *State) Reconcile(tempID, durableID string, sendErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.pending[tempID]
	if !ok {
		return ErrUnknownTempID
	}

	if sendErr != nil {
		msg.Status = model.StatusFailed
		s.pending[tempID] = msg
		return nil
	}

	delete(s.pending, tempID)
	if _, seen := s.remote[durableID]; seen {
		// A snapshot carrying the durable id raced ahead of the ack;
		// the server copy is already authoritative.
		return nil
	}
	msg.ID = durableID
	msg.Status = model.StatusSent
	s.settled[durableID] = msg
	return nil
}

// Visible returns the rendered sequence for one viewer: each logical message
// exactly once, messages hidden via deletedFor excluded, ordered by
// client timestamp ascending with id as the tie-break.
func (s *State) Visible(viewerID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(s.remote)+len(s.settled)+len(s.pending))
	for _, m := range s.remote {
		if !m.HiddenFor(viewerID) {
			out = append(out, m.Clone())
		}
	}
	for id, m := range s.settled {
		if _, shadowed := s.remote[id]; shadowed {
			continue
		}
		if !m.HiddenFor(viewerID) {
			out = append(out, m.Clone())
		}
	}
	for _, m := range s.pending {
		if !m.HiddenFor(viewerID) {
			out = append(out, m.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get looks a message up by id across all three sources.
func (s *State) Get(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.pending[id]; ok {
		return m.Clone(), true
	}
	if m, ok := s.remote[id]; ok {
		return m.Clone(), true
	}
	if m, ok := s.settled[id]; ok {
		return m.Clone(), true
	}
	return model.Message{}, false
}

// RepliesTo returns the ids of messages whose denormalized reply snapshot
// references the given message. Used to propagate edits into those
// snapshots.
func (s *State) RepliesTo(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.remote {
		if m.ReplyTo != nil && m.ReplyTo.ID == id {
			out = append(out, m.ID)
		}
	}
	for rid, m := range s.settled {
		if _, shadowed := s.remote[rid]; shadowed {
			continue
		}
		if m.ReplyTo != nil && m.ReplyTo.ID == id {
			out = append(out, m.ID)
		}
	}
	return out
}

// PendingCount reports how many optimistic entries have not settled yet.
func (s *State) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
