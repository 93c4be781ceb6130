// Package send coordinates optimistic user actions for one conversation:
// apply locally first, dispatch the remote write, reconcile when it settles.
package send

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/convosync/pkg/conversation"
	"github.com/mahaj/convosync/pkg/docstore"
	"github.com/mahaj/convosync/pkg/errs"
	"github.com/mahaj/convosync/pkg/media"
	"github.com/mahaj/convosync/pkg/model"
	"github.com/mahaj/convosync/pkg/tempid"
)

var lastMessagePreview = map[model.MediaKind]string{
	model.MediaImage: "📷 Photo",
	model.MediaVideo: "🎥 Video",
	model.MediaAudio: "🎤 Voice message",
}

type Coordinator struct {
	store    docstore.Store
	state    *conversation.State
	pipeline *media.Pipeline
	ids      *tempid.Generator
	chatID   string
	self     model.User
	peer     model.User
	log      zerolog.Logger
	onChange func()
	now      func() int64
}

func NewCoordinator(store docstore.Store, state *conversation.State, pipeline *media.Pipeline, ids *tempid.Generator, chatID string, self, peer model.User, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		state:    state,
		pipeline: pipeline,
		ids:      ids,
		chatID:   chatID,
		self:     self,
		peer:     peer,
		log:      log.With().Str("component", "send").Str("chat", chatID).Logger(),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// OnChange registers a hook fired after every local state mutation, so a
// renderer can re-derive the visible list.
func (c *Coordinator) OnChange(fn func()) { c.onChange = fn }

// WithClock overrides the timestamp source. Tests only.
func (c *Coordinator) WithClock(now func() int64) *Coordinator {
	c.now = now
	return c
}

// Send creates a message optimistically and dispatches the remote write.
// Returns the temporary id; the visible entry flips to the durable id on
// acknowledgement, or to failed status on error with no automatic retry.
func (c *Coordinator) Send(ctx context.Context, text string, replyTo *model.ReplyRef) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", errs.ErrEmptyMessage
	}
	msg := model.Message{
		ID:        c.ids.Next(),
		SenderID:  c.self.ID,
		Text:      trimmed,
		Timestamp: c.now(),
		ReplyTo:   replyTo,
	}
	return c.dispatch(ctx, msg, trimmed)
}

// SendMedia uploads the attachment first; a failed upload produces no
// message at all. On success the durable URL is embedded and the message
// dispatched like a text send.
func (c *Coordinator) SendMedia(ctx context.Context, localPath string, kind model.MediaKind, caption string) (string, error) {
	res, err := c.pipeline.Upload(ctx, localPath, kind)
	if err != nil {
		return "", err
	}
	msg := model.Message{
		ID:        c.ids.Next(),
		SenderID:  c.self.ID,
		Text:      strings.TrimSpace(caption),
		Timestamp: c.now(),
		MediaURL:  res.URL,
		MediaType: kind,
	}
	return c.dispatch(ctx, msg, lastMessagePreview[kind])
}

func (c *Coordinator) dispatch(ctx context.Context, msg model.Message, preview string) (string, error) {
	tempID := msg.ID
	c.state.ApplyOptimistic(msg)
	c.changed()

	data := map[string]any{
		"senderId":  msg.SenderID,
		"text":      msg.Text,
		"timestamp": msg.Timestamp,
		"status":    string(model.StatusSent),
	}
	if msg.HasMedia() {
		data["mediaUrl"] = msg.MediaURL
		data["mediaType"] = string(msg.MediaType)
	}
	if msg.ReplyTo != nil {
		data["replyTo"] = map[string]any{
			"id":         msg.ReplyTo.ID,
			"text":       msg.ReplyTo.Text,
			"senderName": msg.ReplyTo.SenderName,
		}
	}

	durableID, err := c.store.Add(ctx, docstore.MessagesCollection(c.chatID), data)
	if rerr := c.state.Reconcile(tempID, durableID, err); rerr != nil {
		c.log.Error().Err(rerr).Str("temp", tempID).Msg("reconcile failed")
	}
	c.changed()
	if err != nil {
		c.log.Error().Err(err).Str("temp", tempID).Msg("send failed")
		return tempID, errs.Wrap(errs.Network, err, "send message")
	}

	c.touchConversation(ctx, preview)
	return durableID, nil
}

// touchConversation maintains the conversation document's preview fields and
// the peer's unread counter. Failures are logged only; the message itself
// already committed.
func (c *Coordinator) touchConversation(ctx context.Context, preview string) {
	fields := map[string]any{
		"participants":    docstore.ArrayUnion(c.self.ID, c.peer.ID),
		"lastMessage":     preview,
		"lastMessageTime": c.now(),
	}
	if c.peer.ID != "" {
		fields["unreadCount."+c.peer.ID] = docstore.Increment(1)
	}
	if err := c.store.Set(ctx, docstore.ChatDoc(c.chatID), fields, true); err != nil {
		c.log.Error().Err(err).Msg("failed to update conversation preview")
	}
}

// React toggles the acting user's reaction on a message: same emoji removes
// it, a different emoji replaces it, at most one reaction per user. The
// read-modify-write has no transactional guard; concurrent toggles from two
// devices settle last-write-wins.
func (c *Coordinator) React(ctx context.Context, messageID, emoji string) error {
	if tempid.IsTemp(messageID) {
		return errs.New(errs.Validation, "cannot react to an unsent message")
	}
	path := docstore.MessagesCollection(c.chatID) + "/" + messageID
	doc, err := c.store.Get(ctx, path)
	if err == docstore.ErrNotFound {
		return errs.Wrap(errs.NotFound, err, "message %s", messageID)
	}
	if err != nil {
		return errs.Wrap(errs.Network, err, "read reactions")
	}

	current := ""
	if reactions, ok := doc.Data["reactions"].(map[string]any); ok {
		current, _ = reactions[c.self.ID].(string)
	}

	var value any = emoji
	if current == emoji {
		value = docstore.FieldDelete()
	}
	if err := c.store.Update(ctx, path, map[string]any{"reactions." + c.self.ID: value}); err != nil {
		c.log.Error().Err(err).Str("message", messageID).Msg("reaction update failed")
		return errs.Wrap(errs.Network, err, "update reaction")
	}
	return nil
}

// EditText rewrites a message's text and, in the same batch, every
// denormalized reply snapshot that references it. The propagation is a
// consistency rule, not a nicety: reply previews would otherwise show stale
// text forever.
func (c *Coordinator) EditText(ctx context.Context, messageID, newText string) error {
	trimmed := strings.TrimSpace(newText)
	if trimmed == "" {
		return errs.ErrEmptyMessage
	}
	if tempid.IsTemp(messageID) {
		return errs.New(errs.Validation, "cannot edit an unsent message")
	}

	collection := docstore.MessagesCollection(c.chatID)
	batch := c.store.Batch()
	batch.Update(collection+"/"+messageID, map[string]any{
		"text":     trimmed,
		"isEdited": true,
		"editedAt": c.now(),
	})
	for _, replyID := range c.state.RepliesTo(messageID) {
		batch.Update(collection+"/"+replyID, map[string]any{
			"replyTo.text": trimmed,
		})
	}
	if err := batch.Commit(ctx); err != nil {
		c.log.Error().Err(err).Str("message", messageID).Msg("edit failed")
		return errs.Wrap(errs.Network, err, "edit message")
	}
	return nil
}

// DeleteForMe hides the message for the acting user only. The document keeps
// its content for the other participants.
func (c *Coordinator) DeleteForMe(ctx context.Context, messageID string) error {
	if tempid.IsTemp(messageID) {
		return errs.New(errs.Validation, "cannot delete an unsent message")
	}
	path := docstore.MessagesCollection(c.chatID) + "/" + messageID
	err := c.store.Update(ctx, path, map[string]any{
		"deletedFor": docstore.ArrayUnion(c.self.ID),
	})
	if err != nil {
		c.log.Error().Err(err).Str("message", messageID).Msg("delete-for-me failed")
		return errs.Wrap(errs.Network, err, "delete for me")
	}
	return nil
}

// DeleteForEveryone tombstones the message irreversibly: flag set, text
// replaced by the placeholder.
func (c *Coordinator) DeleteForEveryone(ctx context.Context, messageID string) error {
	if tempid.IsTemp(messageID) {
		return errs.New(errs.Validation, "cannot delete an unsent message")
	}
	path := docstore.MessagesCollection(c.chatID) + "/" + messageID
	err := c.store.Update(ctx, path, map[string]any{
		"deletedForEveryone": true,
		"text":               model.TombstoneText,
	})
	if err != nil {
		c.log.Error().Err(err).Str("message", messageID).Msg("delete-for-everyone failed")
		return errs.Wrap(errs.Network, err, "delete for everyone")
	}
	return nil
}

// ReplyRefTo builds the denormalized snapshot for replying to a message,
// naming the sender the way the composer shows it.
func (c *Coordinator) ReplyRefTo(messageID string) (*model.ReplyRef, bool) {
	msg, ok := c.state.Get(messageID)
	if !ok {
		return nil, false
	}
	name := c.peer.Name
	if msg.SenderID == c.self.ID {
		name = "You"
	}
	text := msg.Text
	if text == "" && msg.HasMedia() {
		text = lastMessagePreview[msg.MediaType]
	}
	return &model.ReplyRef{ID: msg.ID, Text: text, SenderName: name}, true
}

func (c *Coordinator) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
