package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/matching"
)

// clientDetail is the full client sheet: account, search profile, and the
// conversion score computed from the recorded activity.
type clientDetail struct {
	User       userView          `json:"user"`
	Profile    clientProfileView `json:"profile"`
	Conversion int               `json:"conversion_score"`
}

func (server *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	var agentID *uuid.UUID
	switch raw := r.URL.Query().Get("assigned_to"); raw {
	case "":
	case "me":
		agentID = &currentUser(r).ID
	default:
		parsed, err := uuid.Parse(raw)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid assigned_to filter")
			return
		}
		agentID = &parsed
	}

	profiles, err := server.repo.GetClientProfiles(agentID, r.URL.Query().Get("status"))
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewClientProfiles(profiles), limit, offset))
}

func (server *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	user, err := server.repo.GetUser(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}
	profile, err := server.repo.GetClientProfile(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}

	interests, err := server.repo.GetInterests(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}
	interactions, err := server.repo.GetInteractions(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, clientDetail{
		User:       viewUser(user),
		Profile:    viewClientProfile(profile),
		Conversion: matching.ConversionScore(profile, len(interests), len(interactions), time.Now()),
	})
}

func (server *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	user, err := server.repo.GetUser(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if user.Role != domain.RoleClient {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	server.updateClientProfile(w, r, currentUser(r), user)
}

func (server *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	interactions, err := server.repo.GetInteractions(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewInteractions(interactions), limit, offset))
}

func (server *Server) handleCreateInteraction(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	var payload struct {
		Kind        string     `json:"kind"`
		Subject     string     `json:"subject"`
		Notes       string     `json:"notes"`
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if payload.Kind == "" {
		fail(w, http.StatusUnprocessableEntity, "kind is required")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	interaction := &domain.Interaction{
		ID:          id,
		ClientID:    clientID,
		AgentID:     currentUser(r).ID,
		Kind:        payload.Kind,
		Subject:     payload.Subject,
		Notes:       payload.Notes,
		ScheduledAt: payload.ScheduledAt,
		CreatedAt:   now,
	}
	if err := server.repo.InsertInteraction(interaction); err != nil {
		failFrom(w, err)
		return
	}

	if err := server.repo.TouchLastContact(clientID, now); err != nil {
		log.Printf("warning: touching last contact for %s: %v", clientID, err)
	}

	respond(w, http.StatusCreated, viewInteraction(interaction))
}

func (server *Server) handleCompleteInteraction(w http.ResponseWriter, r *http.Request) {
	interactionID, err := pathID(r, "interactionID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid interaction id")
		return
	}

	if err := server.repo.CompleteInteraction(interactionID, time.Now().UTC().Truncate(time.Millisecond)); err != nil {
		failFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	notes, err := server.repo.GetClientNotes(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewNotes(notes), limit, offset))
}

func (server *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	var payload struct {
		Body      string `json:"body"`
		Important bool   `json:"important"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if strings.TrimSpace(payload.Body) == "" {
		fail(w, http.StatusUnprocessableEntity, "body is required")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}

	note := &domain.ClientNote{
		ID:        id,
		ClientID:  clientID,
		AuthorID:  currentUser(r).ID,
		Body:      payload.Body,
		Important: payload.Important,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := server.repo.InsertClientNote(note); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewNotes([]*domain.ClientNote{note})[0])
}

func (server *Server) handleListInterests(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	interests, err := server.repo.GetInterests(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewInterests(interests), limit, offset))
}

func (server *Server) handleCreateInterest(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	var payload struct {
		PropertyID uuid.UUID `json:"property_id"`
		Level      string    `json:"level"`
		Note       string    `json:"note"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	switch payload.Level {
	case "":
		payload.Level = "medium"
	case "low", "medium", "high":
	default:
		fail(w, http.StatusUnprocessableEntity, "level must be low, medium, or high")
		return
	}

	if _, err := server.repo.GetProperty(payload.PropertyID); err != nil {
		failFrom(w, err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}

	interest := &domain.Interest{
		ID:         id,
		ClientID:   clientID,
		PropertyID: payload.PropertyID,
		Level:      payload.Level,
		Note:       payload.Note,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := server.repo.RecordInterest(interest); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewInterests([]*domain.Interest{interest})[0])
}

// handleClientMatches scores the published listings against the client's
// search profile.
func (server *Server) handleClientMatches(w http.ResponseWriter, r *http.Request) {
	clientID, err := pathID(r, "clientID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client id")
		return
	}

	profile, err := server.repo.GetClientProfile(clientID)
	if err != nil {
		failFrom(w, err)
		return
	}

	agencyID, err := scopeAgency(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agency_id filter")
		return
	}
	properties, err := server.repo.GetPublishedProperties(agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	matches := matching.MatchProperties(profile, properties, queryInt(r, "min_score"), queryInt(r, "limit"))
	respond(w, http.StatusOK, viewMatches(matches))
}
