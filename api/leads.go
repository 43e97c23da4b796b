package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/matching"
)

func (server *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	var assignedTo *uuid.UUID
	switch raw := r.URL.Query().Get("assigned_to"); raw {
	case "":
	case "me":
		assignedTo = &currentUser(r).ID
	default:
		parsed, err := uuid.Parse(raw)
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid assigned_to filter")
			return
		}
		assignedTo = &parsed
	}

	leads, err := server.repo.GetLeads(r.URL.Query().Get("status"), assignedTo)
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewLeads(leads), limit, offset))
}

func (server *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AgencyID     *uuid.UUID `json:"agency_id"`
		Source       string     `json:"source"`
		FirstName    string     `json:"first_name"`
		LastName     string     `json:"last_name"`
		Email        string     `json:"email"`
		Phone        string     `json:"phone"`
		Message      string     `json:"message"`
		Budget       *float64   `json:"budget"`
		PropertyType string     `json:"property_type"`
		Locations    []string   `json:"locations"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if strings.TrimSpace(payload.Email) == "" && strings.TrimSpace(payload.Phone) == "" {
		fail(w, http.StatusUnprocessableEntity, "an email or a phone number is required")
		return
	}

	viewer := currentUser(r)
	var agencyID uuid.UUID
	switch {
	case viewer.Role == domain.RoleAdmin && payload.AgencyID != nil:
		agencyID = *payload.AgencyID
	case viewer.AgencyID != nil:
		agencyID = *viewer.AgencyID
	default:
		fail(w, http.StatusUnprocessableEntity, "an agency is required to create a lead")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	lead := &domain.Lead{
		ID:           id,
		AgencyID:     agencyID,
		Source:       payload.Source,
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Email:        strings.ToLower(strings.TrimSpace(payload.Email)),
		Phone:        strings.TrimSpace(payload.Phone),
		Message:      payload.Message,
		Budget:       payload.Budget,
		PropertyType: payload.PropertyType,
		Locations:    payload.Locations,
		Status:       domain.LeadStatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if lead.Source == "" {
		lead.Source = "manual"
	}
	lead.Score = matching.ScoreLead(lead)

	if err := server.repo.InsertLead(lead); err != nil {
		failFrom(w, err)
		return
	}

	if server.engine != nil {
		server.engine.LeadCreated(lead)
	}

	respond(w, http.StatusCreated, viewLead(lead))
}

func (server *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	leadID, err := pathID(r, "leadID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	lead, err := server.repo.GetLead(leadID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewLead(lead))
}

func (server *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	leadID, err := pathID(r, "leadID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	var payload struct {
		Source       *string  `json:"source"`
		FirstName    *string  `json:"first_name"`
		LastName     *string  `json:"last_name"`
		Email        *string  `json:"email"`
		Phone        *string  `json:"phone"`
		Message      *string  `json:"message"`
		Budget       *float64 `json:"budget"`
		PropertyType *string  `json:"property_type"`
		Locations    []string `json:"locations"`
		Status       *string  `json:"status"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if payload.Status != nil {
		switch *payload.Status {
		case domain.LeadStatusNew, domain.LeadStatusContacted, domain.LeadStatusQualified, domain.LeadStatusLost:
		default:
			fail(w, http.StatusUnprocessableEntity, "status must be new, contacted, qualified, or lost")
			return
		}
	}

	lead, err := server.repo.GetLead(leadID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if lead.Status == domain.LeadStatusConverted {
		fail(w, http.StatusUnprocessableEntity, "converted leads are read-only")
		return
	}

	if payload.Source != nil {
		lead.Source = *payload.Source
	}
	if payload.FirstName != nil {
		lead.FirstName = *payload.FirstName
	}
	if payload.LastName != nil {
		lead.LastName = *payload.LastName
	}
	if payload.Email != nil {
		lead.Email = strings.ToLower(strings.TrimSpace(*payload.Email))
	}
	if payload.Phone != nil {
		lead.Phone = strings.TrimSpace(*payload.Phone)
	}
	if payload.Message != nil {
		lead.Message = *payload.Message
	}
	if payload.Budget != nil {
		lead.Budget = payload.Budget
	}
	if payload.PropertyType != nil {
		lead.PropertyType = *payload.PropertyType
	}
	if payload.Locations != nil {
		lead.Locations = payload.Locations
	}
	if payload.Status != nil {
		lead.Status = *payload.Status
	}
	lead.Score = matching.ScoreLead(lead)
	lead.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := server.repo.UpdateLead(lead); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewLead(lead))
}

func (server *Server) handleAssignLead(w http.ResponseWriter, r *http.Request) {
	leadID, err := pathID(r, "leadID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	var payload struct {
		AgentID uuid.UUID `json:"agent_id"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if payload.AgentID == uuid.Nil {
		fail(w, http.StatusUnprocessableEntity, "agent_id is required")
		return
	}

	if err := server.matcher.Assign(leadID, payload.AgentID); err != nil {
		failFrom(w, err)
		return
	}

	lead, err := server.repo.GetLead(leadID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if server.engine != nil {
		if agent, err := server.repo.GetUser(payload.AgentID); err == nil {
			server.engine.LeadAssigned(lead, agent)
		}
	}

	respond(w, http.StatusOK, viewLead(lead))
}

// handleConvertLead turns a lead into a client account with a pre-filled
// search profile.
func (server *Server) handleConvertLead(w http.ResponseWriter, r *http.Request) {
	leadID, err := pathID(r, "leadID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	user, err := server.matcher.Convert(leadID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if server.engine != nil {
		if lead, err := server.repo.GetLead(leadID); err == nil {
			server.engine.LeadConverted(lead, user)
		}
	}

	respond(w, http.StatusCreated, viewUser(user))
}

// handleLeadScore recomputes the qualification score without persisting it.
func (server *Server) handleLeadScore(w http.ResponseWriter, r *http.Request) {
	leadID, err := pathID(r, "leadID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid lead id")
		return
	}

	lead, err := server.repo.GetLead(leadID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]int{"score": matching.ScoreLead(lead)})
}
