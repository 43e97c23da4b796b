package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func (server *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	agencyID, err := queryUUID(r, "agency_id")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := server.repo.GetUsers(r.URL.Query().Get("role"), agencyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewUsers(users), limit, offset))
}

// handleBackfillProfiles creates the profile rows accounts are missing for
// their role. Agents without an agency are skipped since their profile
// cannot be attached anywhere.
func (server *Server) handleBackfillProfiles(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	agents, err := server.repo.GetUsersWithoutProfile(domain.RoleAgent)
	if err != nil {
		failFrom(w, err)
		return
	}
	createdAgents := 0
	for _, agent := range agents {
		if agent.AgencyID == nil {
			log.Printf("warning: agent %s has no agency, skipping profile backfill", agent.ID)
			continue
		}
		profile := &domain.AgentProfile{
			UserID:    agent.ID,
			AgencyID:  *agent.AgencyID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := server.repo.InsertAgentProfile(profile); err != nil {
			failFrom(w, err)
			return
		}
		createdAgents++
	}

	clients, err := server.repo.GetUsersWithoutProfile(domain.RoleClient)
	if err != nil {
		failFrom(w, err)
		return
	}
	createdClients := 0
	for _, client := range clients {
		profile := &domain.ClientProfile{
			UserID:    client.ID,
			Status:    domain.ClientStatusProspect,
			Priority:  domain.PriorityMedium,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := server.repo.InsertClientProfile(profile); err != nil {
			failFrom(w, err)
			return
		}
		createdClients++
	}

	respond(w, http.StatusOK, map[string]int{"agents": createdAgents, "clients": createdClients})
}

func (server *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	viewer := currentUser(r)
	if viewer.Role == domain.RoleClient && viewer.ID != userID {
		fail(w, http.StatusForbidden, "insufficient role")
		return
	}

	user, err := server.repo.GetUser(userID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewUser(user))
}

func (server *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	viewer := currentUser(r)
	if viewer.ID != userID && viewer.Role != domain.RoleAdmin {
		fail(w, http.StatusForbidden, "insufficient role")
		return
	}

	var payload struct {
		FirstName *string    `json:"first_name"`
		LastName  *string    `json:"last_name"`
		Phone     *string    `json:"phone"`
		Active    *bool      `json:"active"`
		AgencyID  *uuid.UUID `json:"agency_id"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if (payload.Active != nil || payload.AgencyID != nil) && viewer.Role != domain.RoleAdmin {
		fail(w, http.StatusForbidden, "activation and agency are managed by administrators")
		return
	}

	user, err := server.repo.GetUser(userID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if payload.FirstName != nil {
		user.FirstName = *payload.FirstName
	}
	if payload.LastName != nil {
		user.LastName = *payload.LastName
	}
	if payload.Phone != nil {
		user.Phone = *payload.Phone
	}
	if payload.Active != nil {
		user.Active = *payload.Active
	}
	if payload.AgencyID != nil {
		user.AgencyID = payload.AgencyID
	}
	user.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := server.repo.UpdateUser(user); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewUser(user))
}

// handleGetProfile answers the role-specific profile of the user: the agent
// profile for agents, the search profile for clients.
func (server *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	viewer := currentUser(r)
	if viewer.Role == domain.RoleClient && viewer.ID != userID {
		fail(w, http.StatusForbidden, "insufficient role")
		return
	}

	user, err := server.repo.GetUser(userID)
	if err != nil {
		failFrom(w, err)
		return
	}

	switch user.Role {
	case domain.RoleAgent:
		profile, err := server.repo.GetAgentProfile(userID)
		if err != nil {
			failFrom(w, err)
			return
		}
		respond(w, http.StatusOK, viewAgentProfile(profile))
	case domain.RoleClient:
		profile, err := server.repo.GetClientProfile(userID)
		if err != nil {
			failFrom(w, err)
			return
		}
		respond(w, http.StatusOK, viewClientProfile(profile))
	default:
		fail(w, http.StatusNotFound, "not found")
	}
}

func (server *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	viewer := currentUser(r)
	if viewer.Role == domain.RoleClient && viewer.ID != userID {
		fail(w, http.StatusForbidden, "insufficient role")
		return
	}

	user, err := server.repo.GetUser(userID)
	if err != nil {
		failFrom(w, err)
		return
	}

	switch user.Role {
	case domain.RoleAgent:
		server.updateAgentProfile(w, r, viewer, user)
	case domain.RoleClient:
		server.updateClientProfile(w, r, viewer, user)
	default:
		fail(w, http.StatusNotFound, "not found")
	}
}

func (server *Server) updateAgentProfile(w http.ResponseWriter, r *http.Request, viewer, target *domain.User) {
	var payload struct {
		Bio            *string  `json:"bio"`
		Specialties    []string `json:"specialties"`
		Sectors        []string `json:"sectors"`
		CommissionRate *float64 `json:"commission_rate"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if payload.CommissionRate != nil && viewer.Role != domain.RoleAdmin {
		fail(w, http.StatusForbidden, "commission rates are managed by administrators")
		return
	}

	profile, err := server.repo.GetAgentProfile(target.ID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if payload.Bio != nil {
		profile.Bio = *payload.Bio
	}
	if payload.Specialties != nil {
		profile.Specialties = payload.Specialties
	}
	if payload.Sectors != nil {
		profile.Sectors = payload.Sectors
	}
	if payload.CommissionRate != nil {
		profile.CommissionRate = payload.CommissionRate
	}
	profile.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := server.repo.UpdateAgentProfile(profile); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewAgentProfile(profile))
}

func (server *Server) updateClientProfile(w http.ResponseWriter, r *http.Request, viewer, target *domain.User) {
	var payload struct {
		Status        *string    `json:"status"`
		Priority      *string    `json:"priority"`
		AssignedAgent *uuid.UUID `json:"assigned_agent"`
		BudgetMin     *float64   `json:"budget_min"`
		BudgetMax     *float64   `json:"budget_max"`
		PropertyType  *string    `json:"property_type"`
		Locations     []string   `json:"locations"`
		Bedrooms      *int       `json:"bedrooms"`
		SurfaceMin    *float64   `json:"surface_min"`
		Features      []string   `json:"features"`
		Financing     *string    `json:"financing"`
		Notes         *string    `json:"notes"`
		Tags          []string   `json:"tags"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if viewer.Role == domain.RoleClient &&
		(payload.Status != nil || payload.Priority != nil || payload.AssignedAgent != nil) {
		fail(w, http.StatusForbidden, "status, priority, and assignment are managed by the agency")
		return
	}

	profile, err := server.repo.GetClientProfile(target.ID)
	if err != nil {
		failFrom(w, err)
		return
	}

	if payload.Status != nil {
		profile.Status = *payload.Status
	}
	if payload.Priority != nil {
		profile.Priority = *payload.Priority
	}
	if payload.AssignedAgent != nil {
		profile.AssignedAgent = payload.AssignedAgent
	}
	if payload.BudgetMin != nil {
		profile.BudgetMin = payload.BudgetMin
	}
	if payload.BudgetMax != nil {
		profile.BudgetMax = payload.BudgetMax
	}
	if payload.PropertyType != nil {
		profile.PropertyType = *payload.PropertyType
	}
	if payload.Locations != nil {
		profile.Locations = payload.Locations
	}
	if payload.Bedrooms != nil {
		profile.Bedrooms = payload.Bedrooms
	}
	if payload.SurfaceMin != nil {
		profile.SurfaceMin = payload.SurfaceMin
	}
	if payload.Features != nil {
		profile.Features = payload.Features
	}
	if payload.Financing != nil {
		profile.Financing = *payload.Financing
	}
	if payload.Notes != nil {
		profile.Notes = *payload.Notes
	}
	if payload.Tags != nil {
		profile.Tags = payload.Tags
	}
	profile.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := server.repo.UpdateClientProfile(profile); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewClientProfile(profile))
}
