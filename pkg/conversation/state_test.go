package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mahaj/convosync/pkg/model"
)

func msg(id, sender, text string, ts int64, status model.MessageStatus) model.Message {
	return model.Message{ID: id, SenderID: sender, Text: text, Timestamp: ts, Status: status}
}

func TestReconcileRewritesTempIDExactlyOnce(t *testing.T) {
	s := New()
	s.ApplyOptimistic(msg("tmp-1", "u1", "hello", 100, model.StatusSending))

	require.NoError(t, s.Reconcile("tmp-1", "abc123", nil))

	visible := s.Visible("u1")
	require.Len(t, visible, 1)
	require.Equal(t, "abc123", visible[0].ID)
	require.Equal(t, model.StatusSent, visible[0].Status)

	// The temporary id is gone for good.
	require.ErrorIs(t, s.Reconcile("tmp-1", "abc123", nil), ErrUnknownTempID)
}

func TestNoDuplicateAfterReconcileAndSnapshot(t *testing.T) {
	s := New()
	s.ApplyOptimistic(msg("tmp-1", "u1", "hello", 100, model.StatusSending))

	// Snapshot carrying the durable id arrives before the ack.
	s.ApplySnapshot([]model.Message{msg("abc123", "u1", "hello", 100, model.StatusSent)}, 1)
	require.NoError(t, s.Reconcile("tmp-1", "abc123", nil))

	visible := s.Visible("u1")
	require.Len(t, visible, 1)
	require.Equal(t, "abc123", visible[0].ID)

	// And again with the ack first, snapshot second.
	s2 := New()
	s2.ApplyOptimistic(msg("tmp-2", "u1", "again", 200, model.StatusSending))
	require.NoError(t, s2.Reconcile("tmp-2", "def456", nil))
	s2.ApplySnapshot([]model.Message{msg("def456", "u1", "again", 200, model.StatusDelivered)}, 1)

	visible = s2.Visible("u1")
	require.Len(t, visible, 1)
	require.Equal(t, "def456", visible[0].ID)
	require.Equal(t, model.StatusDelivered, visible[0].Status)
}

func TestFailedSendStaysVisible(t *testing.T) {
	s := New()
	s.ApplyOptimistic(msg("tmp-1", "u1", "hello", 100, model.StatusSending))
	require.NoError(t, s.Reconcile("tmp-1", "", errors.New("write rejected")))

	visible := s.Visible("u1")
	require.Len(t, visible, 1)
	require.Equal(t, "tmp-1", visible[0].ID, "id unchanged on failure")
	require.Equal(t, model.StatusFailed, visible[0].Status)
	require.Equal(t, "hello", visible[0].Text, "content retained for manual resend")

	// Snapshots keep flowing and must not evict the failed entry.
	s.ApplySnapshot([]model.Message{msg("zzz", "u2", "other", 50, model.StatusSent)}, 1)
	require.Len(t, s.Visible("u1"), 2)
}

func TestVisibleOrdersByTimestampAscending(t *testing.T) {
	s := New()
	s.ApplySnapshot([]model.Message{
		msg("c", "u2", "third", 300, model.StatusSent),
		msg("a", "u1", "first", 100, model.StatusSent),
		msg("b", "u2", "second", 200, model.StatusSent),
	}, 1)
	s.ApplyOptimistic(msg("tmp-1", "u1", "fourth", 400, model.StatusSending))

	visible := s.Visible("u1")
	require.Len(t, visible, 4)
	for i := 1; i < len(visible); i++ {
		require.LessOrEqual(t, visible[i-1].Timestamp, visible[i].Timestamp)
	}
	require.Equal(t, []string{"first", "second", "third", "fourth"},
		[]string{visible[0].Text, visible[1].Text, visible[2].Text, visible[3].Text})
}

func TestEqualTimestampsTieBreakByID(t *testing.T) {
	s := New()
	s.ApplySnapshot([]model.Message{
		msg("b", "u1", "2", 100, model.StatusSent),
		msg("a", "u1", "1", 100, model.StatusSent),
	}, 1)
	visible := s.Visible("u1")
	require.Equal(t, "a", visible[0].ID)
	require.Equal(t, "b", visible[1].ID)
}

func TestStaleSnapshotVersionIgnored(t *testing.T) {
	s := New()

	// Deliveries arrive out of order: the newer one first.
	require.True(t, s.ApplySnapshot([]model.Message{
		msg("abc", "u1", "hi", 100, model.StatusDelivered),
	}, 5))
	require.False(t, s.ApplySnapshot([]model.Message{
		msg("abc", "u1", "hi", 100, model.StatusSent),
	}, 3), "older version must be dropped")

	visible := s.Visible("u1")
	require.Len(t, visible, 1)
	require.Equal(t, model.StatusDelivered, visible[0].Status)
}

func TestSnapshotWinsForServerOwnedFields(t *testing.T) {
	s := New()
	s.ApplyOptimistic(msg("tmp-1", "u1", "hello", 100, model.StatusSending))
	require.NoError(t, s.Reconcile("tmp-1", "abc", nil))

	// Server turned the message delivered and a peer reacted.
	remote := msg("abc", "u1", "hello", 100, model.StatusDelivered)
	remote.Reactions = map[string]string{"u2": "❤️"}
	s.ApplySnapshot([]model.Message{remote}, 1)

	visible := s.Visible("u1")
	require.Len(t, visible, 1)
	require.Equal(t, model.StatusDelivered, visible[0].Status)
	require.Equal(t, "❤️", visible[0].Reactions["u2"])
}

func TestDeletedForFiltersOnlyThatViewer(t *testing.T) {
	s := New()
	hidden := msg("abc", "u2", "secret", 100, model.StatusSent)
	hidden.DeletedFor = []string{"u1"}
	s.ApplySnapshot([]model.Message{
		hidden,
		msg("def", "u2", "visible", 200, model.StatusSent),
	}, 1)

	require.Len(t, s.Visible("u1"), 1, "hidden for u1")
	other := s.Visible("u2")
	require.Len(t, other, 2, "still present for u2")
	require.Equal(t, "secret", other[0].Text, "original content retained")
}

func TestRepliesTo(t *testing.T) {
	s := New()
	reply := msg("r1", "u2", "replying", 200, model.StatusSent)
	reply.ReplyTo = &model.ReplyRef{ID: "abc", Text: "hello"}
	s.ApplySnapshot([]model.Message{
		msg("abc", "u1", "hello", 100, model.StatusSent),
		reply,
		msg("other", "u2", "unrelated", 300, model.StatusSent),
	}, 1)

	require.Equal(t, []string{"r1"}, s.RepliesTo("abc"))
	require.Empty(t, s.RepliesTo("other"))
}

func TestPendingCount(t *testing.T) {
	s := New()
	require.Zero(t, s.PendingCount())
	s.ApplyOptimistic(msg("tmp-1", "u1", "a", 1, model.StatusSending))
	s.ApplyOptimistic(msg("tmp-2", "u1", "b", 2, model.StatusSending))
	require.Equal(t, 2, s.PendingCount())
	require.NoError(t, s.Reconcile("tmp-1", "d1", nil))
	require.Equal(t, 1, s.PendingCount())
}
