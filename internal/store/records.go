package store

import "time"

// Persisted layout: one list-valued record per user for conversation
// memberships, one record per conversation for aggregate metadata, one
// list-valued record per conversation for its messages.

func UserKey(username string) string { return "user:" + username }

func ConversationListKey(username string) string { return "conversations:" + username }

func ConversationKey(id string) string { return "conversation:" + id }

func MessagesKey(id string) string { return "messages:" + id }

// UserRecord is written by the external account system; this core only
// reads it to validate conversation partners.
type UserRecord struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

// Membership is one entry in a user's conversation list, naming the other
// participant.
type Membership struct {
	Id   string `json:"id"`
	With string `json:"with"`
}

// ConversationMeta is the denormalized per-conversation record: the
// participant pair, the most recent message snippet and per-user unread
// counters.
type ConversationMeta struct {
	Id           string         `json:"id"`
	Participants [2]string      `json:"participants"`
	LastMessage  string         `json:"last_message,omitempty"`
	Unread       map[string]int `json:"unread"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (m *ConversationMeta) HasParticipant(username string) bool {
	return m.Participants[0] == username || m.Participants[1] == username
}

// Other returns the participant that is not username.
func (m *ConversationMeta) Other(username string) string {
	if m.Participants[0] == username {
		return m.Participants[1]
	}
	return m.Participants[0]
}
