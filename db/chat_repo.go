package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.ChatRepository = (*Repository)(nil)

// dbConversation represents a conversation as stored in the database.
// Participants live in their own join table and are loaded separately.
type dbConversation struct {
	ID            uuid.UUID     `db:"id"`
	Subject       string        `db:"subject"`
	PropertyID    uuid.NullUUID `db:"property_id"`
	LastMessage   string        `db:"last_message"`
	LastMessageAt sql.NullTime  `db:"last_message_at"`
	CreatedAt     time.Time     `db:"created_at"`
}

// toDomainConversation converts a dbConversation into a domain.Conversation.
// The participant list is attached by the caller.
func toDomainConversation(dbConversation *dbConversation) *domain.Conversation {
	conversation := &domain.Conversation{
		ID:          dbConversation.ID,
		Subject:     dbConversation.Subject,
		LastMessage: dbConversation.LastMessage,
		CreatedAt:   dbConversation.CreatedAt,
	}

	if dbConversation.PropertyID.Valid {
		id := dbConversation.PropertyID.UUID
		conversation.PropertyID = &id
	}

	if dbConversation.LastMessageAt.Valid {
		at := dbConversation.LastMessageAt.Time
		conversation.LastMessageAt = &at
	}

	return conversation
}

// getParticipants loads the participant user IDs of a conversation.
func (repo *Repository) getParticipants(conversationID uuid.UUID) ([]uuid.UUID, error) {
	var participants []uuid.UUID
	query := `SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id ASC`

	err := repo.dbConn.Select(&participants, repo.dbConn.Rebind(query), conversationID)
	if err != nil {
		return nil, fmt.Errorf("fetching participants for conversation %s : %w", conversationID, err)
	}

	return participants, nil
}

// InsertConversation saves a new conversation together with its participant
// rows. The two writes share a transaction so a conversation can never exist
// without its participants.
func (repo *Repository) InsertConversation(conversation *domain.Conversation) error {
	dbConversation := &dbConversation{
		ID:          conversation.ID,
		Subject:     conversation.Subject,
		LastMessage: conversation.LastMessage,
		CreatedAt:   conversation.CreatedAt,
	}

	if conversation.PropertyID != nil {
		dbConversation.PropertyID = uuid.NullUUID{UUID: *conversation.PropertyID, Valid: true}
	}

	if conversation.LastMessageAt != nil {
		dbConversation.LastMessageAt = sql.NullTime{Time: *conversation.LastMessageAt, Valid: true}
	}

	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("starting transaction for conversation %s : %w", conversation.ID, err)
	}
	defer tx.Rollback()

	query := `INSERT INTO conversations (id, subject, property_id, last_message, last_message_at, created_at)
	          VALUES (:id, :subject, :property_id, :last_message, :last_message_at, :created_at)`

	_, err = tx.NamedExec(query, dbConversation)
	if err != nil {
		return fmt.Errorf("inserting conversation %s : %w", conversation.ID, err)
	}

	participantQuery := tx.Rebind(`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`)
	for _, userID := range conversation.Participants {
		_, err = tx.Exec(participantQuery, conversation.ID, userID)
		if err != nil {
			return fmt.Errorf("inserting participant %s in conversation %s : %w", userID, conversation.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation %s : %w", conversation.ID, err)
	}
	return nil
}

// GetConversation retrieves a conversation with its participant IDs.
func (repo *Repository) GetConversation(id uuid.UUID) (*domain.Conversation, error) {
	var dbConversation dbConversation
	query := `SELECT * FROM conversations WHERE id = ?`

	err := repo.dbConn.Get(&dbConversation, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s : %w", id, err)
	}

	conversation := toDomainConversation(&dbConversation)
	conversation.Participants, err = repo.getParticipants(id)
	if err != nil {
		return nil, err
	}

	return conversation, nil
}

// GetUserConversations retrieves the conversations a user participates in,
// most recently active first.
func (repo *Repository) GetUserConversations(userID uuid.UUID) ([]*domain.Conversation, error) {
	var dbConversations []*dbConversation
	query := `SELECT conversations.* FROM conversations
	          JOIN conversation_participants ON conversation_participants.conversation_id = conversations.id
	          WHERE conversation_participants.user_id = ?
	          ORDER BY COALESCE(conversations.last_message_at, conversations.created_at) DESC`

	err := repo.dbConn.Select(&dbConversations, repo.dbConn.Rebind(query), userID)
	if err != nil {
		return nil, fmt.Errorf("fetching conversations for user %s : %w", userID, err)
	}

	domainConversations := make([]*domain.Conversation, len(dbConversations))
	for i, dbConversation := range dbConversations {
		conversation := toDomainConversation(dbConversation)
		conversation.Participants, err = repo.getParticipants(conversation.ID)
		if err != nil {
			return nil, err
		}
		domainConversations[i] = conversation
	}
	return domainConversations, nil
}

// IsParticipant reports whether a user participates in a conversation.
func (repo *Repository) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`

	err := repo.dbConn.Get(&count, repo.dbConn.Rebind(query), conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("checking participant %s in conversation %s : %w", userID, conversationID, err)
	}

	return count > 0, nil
}

// dbMessage represents a chat message as stored in the database.
type dbMessage struct {
	ID             uuid.UUID `db:"id"`
	ConversationID uuid.UUID `db:"conversation_id"`
	SenderID       uuid.UUID `db:"sender_id"`
	Body           string    `db:"body"`
	Edited         bool      `db:"edited"`
	Deleted        bool      `db:"deleted"`
	CreatedAt      time.Time `db:"created_at"`
}

// toDomainMessage converts a dbMessage into a domain.Message.
func toDomainMessage(dbMessage *dbMessage) *domain.Message {
	return &domain.Message{
		ID:             dbMessage.ID,
		ConversationID: dbMessage.ConversationID,
		SenderID:       dbMessage.SenderID,
		Body:           dbMessage.Body,
		Edited:         dbMessage.Edited,
		Deleted:        dbMessage.Deleted,
		CreatedAt:      dbMessage.CreatedAt,
	}
}

// InsertMessage saves a message and refreshes the conversation preview in the
// same transaction.
func (repo *Repository) InsertMessage(message *domain.Message) error {
	dbMessage := &dbMessage{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Body:           message.Body,
		Edited:         message.Edited,
		Deleted:        message.Deleted,
		CreatedAt:      message.CreatedAt,
	}

	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("starting transaction for message %s : %w", message.ID, err)
	}
	defer tx.Rollback()

	query := `INSERT INTO messages (id, conversation_id, sender_id, body, edited, deleted, created_at)
	          VALUES (:id, :conversation_id, :sender_id, :body, :edited, :deleted, :created_at)`

	_, err = tx.NamedExec(query, dbMessage)
	if err != nil {
		return fmt.Errorf("inserting message %s : %w", message.ID, err)
	}

	preview := domain.TruncateLastMessage(message.Body)
	previewQuery := tx.Rebind(`UPDATE conversations SET last_message = ?, last_message_at = ? WHERE id = ?`)
	_, err = tx.Exec(previewQuery, preview, message.CreatedAt, message.ConversationID)
	if err != nil {
		return fmt.Errorf("refreshing preview for conversation %s : %w", message.ConversationID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message %s : %w", message.ID, err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (repo *Repository) GetMessage(id uuid.UUID) (*domain.Message, error) {
	var dbMessage dbMessage
	query := `SELECT * FROM messages WHERE id = ?`

	err := repo.dbConn.Get(&dbMessage, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting message %s : %w", id, err)
	}

	return toDomainMessage(&dbMessage), nil
}

// GetMessages retrieves a conversation's messages, oldest first, limited and
// offset for history paging.
func (repo *Repository) GetMessages(conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	var dbMessages []*dbMessage
	query := `SELECT * FROM messages WHERE conversation_id = ?
	          ORDER BY created_at ASC, id ASC
	          LIMIT ? OFFSET ?`

	err := repo.dbConn.Select(&dbMessages, repo.dbConn.Rebind(query), conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetching messages for conversation %s : %w", conversationID, err)
	}

	domainMessages := make([]*domain.Message, len(dbMessages))
	for i, dbMessage := range dbMessages {
		domainMessages[i] = toDomainMessage(dbMessage)
	}
	return domainMessages, nil
}

// UpdateMessageBody replaces a message body and marks it edited. The
// conversation preview is refreshed when the edited message is the latest.
func (repo *Repository) UpdateMessageBody(id uuid.UUID, body string) error {
	query := `UPDATE messages SET body = ?, edited = TRUE WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), body, id)
	if err != nil {
		return fmt.Errorf("updating message %s body : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for message %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no message found with id %s to update", id)
	}

	preview := domain.TruncateLastMessage(body)
	previewQuery := `UPDATE conversations SET last_message = ?
	          WHERE id = (SELECT conversation_id FROM messages WHERE id = ?)
	            AND last_message_at = (SELECT created_at FROM messages WHERE id = ?)`

	_, err = repo.dbConn.Exec(repo.dbConn.Rebind(previewQuery), preview, id, id)
	if err != nil {
		return fmt.Errorf("refreshing preview for message %s : %w", id, err)
	}
	return nil
}

// SoftDeleteMessage blanks a message body and marks it deleted. The row
// stays so history ordering is stable across clients.
func (repo *Repository) SoftDeleteMessage(id uuid.UUID) error {
	query := `UPDATE messages SET body = '', deleted = TRUE WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("deleting message %s : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for message %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no message found with id %s to delete", id)
	}
	return nil
}

// MarkMessagesRead records that a user read every message in the
// conversation they did not send, returning how many were newly marked.
func (repo *Repository) MarkMessagesRead(conversationID, userID uuid.UUID) (int, error) {
	query := `INSERT INTO message_reads (message_id, user_id)
	          SELECT messages.id, ? FROM messages
	          WHERE messages.conversation_id = ? AND messages.sender_id != ?
	            AND NOT EXISTS (
	              SELECT 1 FROM message_reads
	              WHERE message_reads.message_id = messages.id AND message_reads.user_id = ?
	            )`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), userID, conversationID, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("marking messages read for %s in conversation %s : %w", userID, conversationID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking read rows affected : %w", err)
	}

	return int(rowsAffected), nil
}

// CountUnread returns the number of unread messages for a user in a
// conversation. Deleted messages do not count.
func (repo *Repository) CountUnread(conversationID, userID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages
	          WHERE conversation_id = ? AND sender_id != ? AND deleted = FALSE
	            AND NOT EXISTS (
	              SELECT 1 FROM message_reads
	              WHERE message_reads.message_id = messages.id AND message_reads.user_id = ?
	            )`

	err := repo.dbConn.Get(&count, repo.dbConn.Rebind(query), conversationID, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages for %s in conversation %s : %w", userID, conversationID, err)
	}

	return count, nil
}
