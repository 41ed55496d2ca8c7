package types

import (
	"time"
)

type User struct {
	Id       string `json:"id,omitempty"`
	Username string `json:"username"`
}

// Conversation is a user's view of a two-party conversation: Name is the
// other participant's username and UnreadCount the viewer's own counter.
type Conversation struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	UnreadCount int    `json:"unread_count"`
	LastMessage string `json:"last_message,omitempty"`
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversation_id"`
	Author         string    `json:"author"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}
