package model

// User mirrors the user document kept by the backend.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen,omitempty"` // unix ms, server-assigned
}

// ConversationMeta is the conversation-level document: participant list,
// last-message preview and the live typing/presence fields. Typing maps a
// user id to the unix-ms instant of their last typing signal; a signal older
// than the staleness window reads as "not typing" even when no explicit clear
// arrived.
type ConversationMeta struct {
	ID              string           `json:"id"`
	Participants    []string         `json:"participants,omitempty"`
	LastMessage     string           `json:"lastMessage,omitempty"`
	LastMessageTime int64            `json:"lastMessageTime,omitempty"`
	Typing          map[string]int64 `json:"typing,omitempty"`
	UnreadCount     map[string]int64 `json:"unreadCount,omitempty"`
	Presence        map[string]User  `json:"presence,omitempty"`
}

// TypingUsers returns the ids of users whose typing signal is still fresh at
// the given instant, excluding selfID. windowMS is the staleness window.
func (c *ConversationMeta) TypingUsers(selfID string, nowMS, windowMS int64) []string {
	var out []string
	for id, ts := range c.Typing {
		if id == selfID {
			continue
		}
		if ts > 0 && nowMS-ts <= windowMS {
			out = append(out, id)
		}
	}
	return out
}

type UploadState string

const (
	UploadValidating UploadState = "validating"
	UploadUploading  UploadState = "uploading"
	UploadRetrying   UploadState = "retrying"
	UploadSucceeded  UploadState = "succeeded"
	UploadFailed     UploadState = "failed"
)

// PendingUpload tracks one in-flight media attachment. It is owned by the
// media pipeline and discarded once the upload settles.
type PendingUpload struct {
	LocalPath string
	Kind      MediaKind
	State     UploadState
	Attempts  int
}
