package docstore

import (
	"sort"
	"strings"
)

// MessagesCollection returns the collection path holding a conversation's
// messages.
func MessagesCollection(chatID string) string {
	return "chats/" + chatID + "/messages"
}

// ChatDoc returns the conversation metadata document path.
func ChatDoc(chatID string) string {
	return "chats/" + chatID
}

// UserDoc returns the user document path.
func UserDoc(userID string) string {
	return "users/" + userID
}

// ChatID derives the deterministic conversation id for a pair of users, order
// independent so both sides address the same documents.
func ChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// DocID returns the last segment of a document path.
func DocID(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ParentCollection returns the collection a document path belongs to.
func ParentCollection(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}
