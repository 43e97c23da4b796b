package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func (server *Server) handleListAgencies(w http.ResponseWriter, r *http.Request) {
	agencies, err := server.repo.GetAgencies()
	if err != nil {
		failFrom(w, err)
		return
	}

	views := make([]agencyView, 0, len(agencies))
	for _, agency := range agencies {
		views = append(views, viewAgency(agency))
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(views, limit, offset))
}

func (server *Server) handleCreateAgency(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name          string          `json:"name"`
		Slug          string          `json:"slug"`
		Plan          string          `json:"plan"`
		MaxAgents     int             `json:"max_agents"`
		MaxProperties int             `json:"max_properties"`
		MaxClients    int             `json:"max_clients"`
		Features      map[string]bool `json:"features"`
		Email         string          `json:"email"`
		Phone         string          `json:"phone"`
		Address       string          `json:"address"`
		City          string          `json:"city"`
		TrialEndsAt   *time.Time      `json:"trial_ends_at"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	payload.Slug = strings.ToLower(strings.TrimSpace(payload.Slug))
	if strings.TrimSpace(payload.Name) == "" || payload.Slug == "" {
		fail(w, http.StatusUnprocessableEntity, "name and slug are required")
		return
	}

	if payload.Plan == "" {
		payload.Plan = domain.PlanTrial
	}
	if payload.MaxAgents <= 0 {
		payload.MaxAgents = domain.DefaultMaxAgents
	}
	if payload.MaxProperties <= 0 {
		payload.MaxProperties = domain.DefaultMaxProperties
	}
	if payload.MaxClients <= 0 {
		payload.MaxClients = domain.DefaultMaxClients
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	agency := &domain.Agency{
		ID:            id,
		Name:          payload.Name,
		Slug:          payload.Slug,
		Plan:          payload.Plan,
		MaxAgents:     payload.MaxAgents,
		MaxProperties: payload.MaxProperties,
		MaxClients:    payload.MaxClients,
		Features:      payload.Features,
		Email:         payload.Email,
		Phone:         payload.Phone,
		Address:       payload.Address,
		City:          payload.City,
		Active:        true,
		TrialEndsAt:   payload.TrialEndsAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := server.repo.InsertAgency(agency); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewAgency(agency))
}

func (server *Server) handleGetAgency(w http.ResponseWriter, r *http.Request) {
	agencyID, err := pathID(r, "agencyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agency id")
		return
	}

	agency, err := server.repo.GetAgency(agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewAgency(agency))
}

func (server *Server) handleUpdateAgency(w http.ResponseWriter, r *http.Request) {
	agencyID, err := pathID(r, "agencyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agency id")
		return
	}

	var payload struct {
		Name          *string         `json:"name"`
		Plan          *string         `json:"plan"`
		MaxAgents     *int            `json:"max_agents"`
		MaxProperties *int            `json:"max_properties"`
		MaxClients    *int            `json:"max_clients"`
		Features      map[string]bool `json:"features"`
		Email         *string         `json:"email"`
		Phone         *string         `json:"phone"`
		Address       *string         `json:"address"`
		City          *string         `json:"city"`
		Active        *bool           `json:"active"`
		TrialEndsAt   *time.Time      `json:"trial_ends_at"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	agency, err := server.repo.GetAgency(agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if payload.Name != nil {
		agency.Name = *payload.Name
	}
	if payload.Plan != nil {
		agency.Plan = *payload.Plan
	}
	if payload.MaxAgents != nil {
		agency.MaxAgents = *payload.MaxAgents
	}
	if payload.MaxProperties != nil {
		agency.MaxProperties = *payload.MaxProperties
	}
	if payload.MaxClients != nil {
		agency.MaxClients = *payload.MaxClients
	}
	if payload.Features != nil {
		agency.Features = payload.Features
	}
	if payload.Email != nil {
		agency.Email = *payload.Email
	}
	if payload.Phone != nil {
		agency.Phone = *payload.Phone
	}
	if payload.Address != nil {
		agency.Address = *payload.Address
	}
	if payload.City != nil {
		agency.City = *payload.City
	}
	if payload.Active != nil {
		agency.Active = *payload.Active
	}
	if payload.TrialEndsAt != nil {
		agency.TrialEndsAt = payload.TrialEndsAt
	}
	agency.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := server.repo.UpdateAgency(agency); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewAgency(agency))
}

// handleAgencyUsage answers the agency's current headcounts next to its plan
// quotas.
func (server *Server) handleAgencyUsage(w http.ResponseWriter, r *http.Request) {
	agencyID, err := pathID(r, "agencyID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agency id")
		return
	}

	agency, err := server.repo.GetAgency(agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}
	agents, properties, clients, err := server.repo.CountAgencyUsage(agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, map[string]int{
		"agents":         agents,
		"max_agents":     agency.MaxAgents,
		"properties":     properties,
		"max_properties": agency.MaxProperties,
		"clients":        clients,
		"max_clients":    agency.MaxClients,
	})
}
