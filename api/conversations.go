package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func (server *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	viewer := currentUser(r)

	conversations, err := server.repo.GetUserConversations(viewer.ID)
	if err != nil {
		failFrom(w, err)
		return
	}

	views := make([]conversationView, 0, len(conversations))
	for _, conversation := range conversations {
		unread, err := server.repo.CountUnread(conversation.ID, viewer.ID)
		if err != nil {
			log.Printf("warning: counting unread in %s: %v", conversation.ID, err)
		}
		views = append(views, viewConversation(conversation, unread))
	}

	respond(w, http.StatusOK, views)
}

func (server *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Subject      string      `json:"subject"`
		PropertyID   *uuid.UUID  `json:"property_id"`
		Participants []uuid.UUID `json:"participants"`
		Message      string      `json:"message"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	viewer := currentUser(r)
	participants := []uuid.UUID{viewer.ID}
	for _, participant := range payload.Participants {
		if participant == viewer.ID || participant == uuid.Nil {
			continue
		}
		participants = append(participants, participant)
	}
	if len(participants) < 2 {
		fail(w, http.StatusUnprocessableEntity, "at least one other participant is required")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	conversation := &domain.Conversation{
		ID:           id,
		Subject:      payload.Subject,
		PropertyID:   payload.PropertyID,
		Participants: participants,
		CreatedAt:    now,
	}
	if err := server.repo.InsertConversation(conversation); err != nil {
		failFrom(w, err)
		return
	}

	if strings.TrimSpace(payload.Message) != "" {
		messageID, err := uuid.NewV7()
		if err != nil {
			failFrom(w, err)
			return
		}
		message := &domain.Message{
			ID:             messageID,
			ConversationID: conversation.ID,
			SenderID:       viewer.ID,
			Body:           payload.Message,
			CreatedAt:      now,
		}
		if err := server.repo.InsertMessage(message); err != nil {
			failFrom(w, err)
			return
		}
		conversation.LastMessage = message.Body
		conversation.LastMessageAt = &message.CreatedAt
	}

	respond(w, http.StatusCreated, viewConversation(conversation, 0))
}

func (server *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	viewer := currentUser(r)
	member, err := server.repo.IsParticipant(conversationID, viewer.ID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if !member {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	conversation, err := server.repo.GetConversation(conversationID)
	if err != nil {
		failFrom(w, err)
		return
	}
	unread, err := server.repo.CountUnread(conversationID, viewer.ID)
	if err != nil {
		log.Printf("warning: counting unread in %s: %v", conversationID, err)
	}

	respond(w, http.StatusOK, viewConversation(conversation, unread))
}

// handleListMessages pages through a conversation's history, oldest first,
// and marks the read cursor.
func (server *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := pathID(r, "conversationID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	viewer := currentUser(r)
	member, err := server.repo.IsParticipant(conversationID, viewer.ID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if !member {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	limit, offset := pageParams(r)
	messages, err := server.repo.GetMessages(conversationID, limit, offset)
	if err != nil {
		failFrom(w, err)
		return
	}

	if _, err := server.repo.MarkMessagesRead(conversationID, viewer.ID); err != nil {
		log.Printf("warning: marking messages read in %s: %v", conversationID, err)
	}

	views := make([]messageView, 0, len(messages))
	for _, message := range messages {
		views = append(views, viewMessage(message, viewer.ID))
	}
	respond(w, http.StatusOK, views)
}
