package model

import "slices"

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// TombstoneText replaces the original text when a message is deleted for
// everyone.
const TombstoneText = "This message was deleted"

// ReplyRef is a denormalized snapshot of the message being replied to, not a
// live join. When the referenced message is edited, the snapshot text must be
// rewritten alongside it.
type ReplyRef struct {
	ID         string `json:"id"`
	Text       string `json:"text,omitempty"`
	SenderName string `json:"senderName,omitempty"`
}

// Message is one unit of conversation content. ID lives in one of two
// identity spaces: a client-generated temporary id while the remote write is
// in flight, or the durable id assigned by the store on commit.
type Message struct {
	ID                 string            `json:"id"`
	SenderID           string            `json:"senderId"`
	Text               string            `json:"text,omitempty"`
	Timestamp          int64             `json:"timestamp"` // client-assigned, unix ms
	Status             MessageStatus     `json:"status"`
	MediaURL           string            `json:"mediaUrl,omitempty"`
	MediaType          MediaKind         `json:"mediaType,omitempty"`
	ReplyTo            *ReplyRef         `json:"replyTo,omitempty"`
	Reactions          map[string]string `json:"reactions,omitempty"` // userId -> emoji, at most one per user
	DeletedFor         []string          `json:"deletedFor,omitempty"`
	DeletedForEveryone bool              `json:"deletedForEveryone,omitempty"`
	IsEdited           bool              `json:"isEdited,omitempty"`
	EditedAt           int64             `json:"editedAt,omitempty"`
}

// HiddenFor reports whether the message is locally hidden for the given
// viewer. The message stays in the store for other participants.
func (m *Message) HiddenFor(userID string) bool {
	return slices.Contains(m.DeletedFor, userID)
}

func (m *Message) HasMedia() bool {
	return m.MediaURL != ""
}

// Clone returns a deep copy so reducer output can be handed to callers
// without sharing mutable maps.
func (m *Message) Clone() Message {
	out := *m
	if m.Reactions != nil {
		out.Reactions = make(map[string]string, len(m.Reactions))
		for k, v := range m.Reactions {
			out.Reactions[k] = v
		}
	}
	out.DeletedFor = slices.Clone(m.DeletedFor)
	if m.ReplyTo != nil {
		ref := *m.ReplyTo
		out.ReplyTo = &ref
	}
	return out
}
