package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DIGIT-HABs/back/domain"
)

func (server *Server) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	viewer := currentUser(r)

	var agentID *uuid.UUID
	if viewer.Role == domain.RoleAdmin {
		parsed, err := queryUUID(r, "agent_id")
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid agent_id filter")
			return
		}
		agentID = parsed
	} else {
		agentID = &viewer.ID
	}

	commissions, err := server.repo.GetCommissions(agentID, r.URL.Query().Get("status"))
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewCommissions(commissions), limit, offset))
}

func (server *Server) handleCreateCommission(w http.ResponseWriter, r *http.Request) {
	if server.payer == nil {
		fail(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	var payload struct {
		AgentID    *uuid.UUID       `json:"agent_id"`
		PropertyID uuid.UUID        `json:"property_id"`
		Kind       string           `json:"kind"`
		BaseAmount decimal.Decimal  `json:"base_amount"`
		Rate       *decimal.Decimal `json:"rate"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	switch payload.Kind {
	case domain.TransactionSale, domain.TransactionRental:
	default:
		fail(w, http.StatusUnprocessableEntity, "kind must be sale or rental")
		return
	}
	if !payload.BaseAmount.IsPositive() {
		fail(w, http.StatusUnprocessableEntity, "base_amount must be positive")
		return
	}

	viewer := currentUser(r)
	agentID := viewer.ID
	if payload.AgentID != nil {
		if viewer.Role != domain.RoleAdmin && *payload.AgentID != viewer.ID {
			fail(w, http.StatusForbidden, "agents may only declare their own commissions")
			return
		}
		agentID = *payload.AgentID
	}

	property, err := server.repo.GetProperty(payload.PropertyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	commission, err := server.payer.CreateCommission(property.AgencyID, agentID, property.ID, payload.Kind, payload.BaseAmount, payload.Rate)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewCommission(commission))
}

func (server *Server) handleGetCommission(w http.ResponseWriter, r *http.Request) {
	commissionID, err := pathID(r, "commissionID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid commission id")
		return
	}

	commission, err := server.repo.GetCommission(commissionID)
	if err != nil {
		failFrom(w, err)
		return
	}

	viewer := currentUser(r)
	if viewer.Role != domain.RoleAdmin && commission.AgentID != viewer.ID {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	respond(w, http.StatusOK, viewCommission(commission))
}

func (server *Server) handleApproveCommission(w http.ResponseWriter, r *http.Request) {
	if server.payer == nil {
		fail(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	commissionID, err := pathID(r, "commissionID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid commission id")
		return
	}

	commission, err := server.payer.ApproveCommission(commissionID, currentUser(r).ID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewCommission(commission))
}

// handlePayCommission opens the Stripe payout intent for an approved
// commission. The webhook marks it paid once the transfer settles.
func (server *Server) handlePayCommission(w http.ResponseWriter, r *http.Request) {
	if server.payer == nil {
		fail(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	commissionID, err := pathID(r, "commissionID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid commission id")
		return
	}

	intent, err := server.payer.CreateCommissionPayout(commissionID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewIntent(intent))
}

func (server *Server) handleCancelCommission(w http.ResponseWriter, r *http.Request) {
	if server.payer == nil {
		fail(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	commissionID, err := pathID(r, "commissionID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid commission id")
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}

	commission, err := server.payer.CancelCommission(commissionID, payload.Reason)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewCommission(commission))
}

// handleCommissionSummary totals commission amounts by status: the agent's
// own for agents, a whole agency over a period for admins.
func (server *Server) handleCommissionSummary(w http.ResponseWriter, r *http.Request) {
	if server.payer == nil {
		fail(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	viewer := currentUser(r)
	if viewer.Role != domain.RoleAdmin {
		totals, err := server.payer.AgentSummary(viewer.ID)
		if err != nil {
			failFrom(w, err)
			return
		}
		respond(w, http.StatusOK, totals)
		return
	}

	agencyID, err := queryUUID(r, "agency_id")
	if err != nil || agencyID == nil {
		fail(w, http.StatusBadRequest, "an agency_id parameter is required")
		return
	}

	to, err := queryTime(r, "to")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}

	totals, err := server.payer.AgencySummary(*agencyID, from, to)
	if err != nil {
		failFrom(w, err)
		return
	}
	respond(w, http.StatusOK, totals)
}
