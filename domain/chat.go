package domain

import (
	"time"

	"github.com/google/uuid"
)

// LastMessageLimit caps the conversation preview stored alongside the
// conversation row, in runes.
const LastMessageLimit = 100

// ChatRepository defines the interface for conversations and messages.
type ChatRepository interface {
	// InsertConversation saves a new conversation with its participants.
	InsertConversation(conversation *Conversation) error
	// GetConversation retrieves a conversation with its participant IDs.
	GetConversation(id uuid.UUID) (*Conversation, error)
	// GetUserConversations retrieves the conversations a user participates
	// in, most recently active first.
	GetUserConversations(userID uuid.UUID) ([]*Conversation, error)
	// IsParticipant reports whether a user participates in a conversation.
	IsParticipant(conversationID, userID uuid.UUID) (bool, error)

	// InsertMessage saves a message and refreshes the conversation preview.
	InsertMessage(message *Message) error
	// GetMessage retrieves a message by ID.
	GetMessage(id uuid.UUID) (*Message, error)
	// GetMessages retrieves a conversation's messages, oldest first, limited
	// and offset for history paging. Deleted messages keep their row with an
	// empty body.
	GetMessages(conversationID uuid.UUID, limit, offset int) ([]*Message, error)
	// UpdateMessageBody replaces a message body and marks it edited.
	UpdateMessageBody(id uuid.UUID, body string) error
	// SoftDeleteMessage blanks a message body and marks it deleted.
	SoftDeleteMessage(id uuid.UUID) error
	// MarkMessagesRead records that a user read all messages in the
	// conversation up to now, returning how many were newly marked.
	MarkMessagesRead(conversationID, userID uuid.UUID) (int, error)
	// CountUnread returns the number of unread messages for a user in a
	// conversation.
	CountUnread(conversationID, userID uuid.UUID) (int, error)
}

// Conversation groups messages between two or more users, typically a client
// and their agent.
type Conversation struct {
	ID            uuid.UUID
	Subject       string      // Optional subject line.
	PropertyID    *uuid.UUID  // Property the thread is about, if any.
	Participants  []uuid.UUID // User IDs taking part.
	LastMessage   string      // Preview of the latest message, truncated to LastMessageLimit runes.
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// Message is a single chat message. Deleted messages keep their row so
// history ordering is stable across clients.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Body           string
	Edited         bool
	Deleted        bool
	CreatedAt      time.Time
}

// TruncateLastMessage shortens a message body to the stored preview length.
func TruncateLastMessage(body string) string {
	runes := []rune(body)
	if len(runes) <= LastMessageLimit {
		return body
	}
	return string(runes[:LastMessageLimit])
}
