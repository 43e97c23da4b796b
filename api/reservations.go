package api

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DIGIT-HABs/back/domain"
)

// reservationDateLayout renders visit times in notification texts.
const reservationDateLayout = "02/01/2006 à 15:04"

// canSee reports whether the viewer participates in the reservation.
func canSee(viewer *domain.User, reservation *domain.Reservation) bool {
	if viewer.Role == domain.RoleAdmin {
		return true
	}
	return reservation.ClientID == viewer.ID || reservation.AgentID == viewer.ID
}

func (server *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	propertyID, err := queryUUID(r, "property_id")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid property_id filter")
		return
	}
	clientID, err := queryUUID(r, "client_id")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid client_id filter")
		return
	}

	viewer := currentUser(r)
	if viewer.Role == domain.RoleClient {
		clientID = &viewer.ID
	}

	reservations, err := server.repo.GetReservations(propertyID, clientID, r.URL.Query().Get("status"))
	if err != nil {
		failFrom(w, err)
		return
	}

	limit, offset := pageParams(r)
	respond(w, http.StatusOK, paginate(viewReservations(reservations), limit, offset))
}

func (server *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PropertyID   uuid.UUID        `json:"property_id"`
		ClientID     *uuid.UUID       `json:"client_id"`
		AgentID      *uuid.UUID       `json:"agent_id"`
		Kind         string           `json:"kind"`
		ScheduledAt  time.Time        `json:"scheduled_at"`
		Minutes      int              `json:"minutes"`
		Participants int              `json:"participants"`
		Deposit      *decimal.Decimal `json:"deposit"`
		Notes        string           `json:"notes"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if payload.ScheduledAt.IsZero() {
		fail(w, http.StatusUnprocessableEntity, "scheduled_at is required")
		return
	}
	switch payload.Kind {
	case "":
		payload.Kind = domain.ReservationVisit
	case domain.ReservationVisit, domain.ReservationPurchase, domain.ReservationRent:
	default:
		fail(w, http.StatusUnprocessableEntity, "kind must be visit, purchase, or rent")
		return
	}

	property, err := server.repo.GetProperty(payload.PropertyID)
	if err != nil {
		failFrom(w, err)
		return
	}

	viewer := currentUser(r)
	clientID := viewer.ID
	if payload.ClientID != nil {
		if viewer.Role == domain.RoleClient && *payload.ClientID != viewer.ID {
			fail(w, http.StatusForbidden, "clients may only book for themselves")
			return
		}
		clientID = *payload.ClientID
	}

	var agentID uuid.UUID
	switch {
	case payload.AgentID != nil:
		agentID = *payload.AgentID
	case property.AgentID != nil:
		agentID = *property.AgentID
	case viewer.Role == domain.RoleAgent:
		agentID = viewer.ID
	default:
		fail(w, http.StatusUnprocessableEntity, "the listing has no agent to host the visit")
		return
	}

	minutes := payload.Minutes
	if minutes <= 0 {
		minutes = domain.DefaultReservationMinutes
	}
	participants := payload.Participants
	if participants <= 0 {
		participants = 1
	}
	if participants > domain.MaxReservationParticipants {
		participants = domain.MaxReservationParticipants
	}

	conflicted, err := server.scheduler.HasCriticalConflict(payload.PropertyID, payload.ScheduledAt, minutes)
	if err != nil {
		failFrom(w, err)
		return
	}
	if conflicted {
		fail(w, http.StatusUnprocessableEntity, "the requested slot conflicts with a confirmed reservation")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	reservation := &domain.Reservation{
		ID:           id,
		PropertyID:   payload.PropertyID,
		ClientID:     clientID,
		AgentID:      agentID,
		Kind:         payload.Kind,
		Status:       domain.ReservationPending,
		ScheduledAt:  payload.ScheduledAt,
		Minutes:      minutes,
		Participants: participants,
		Deposit:      payload.Deposit,
		Notes:        payload.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := server.repo.InsertReservation(reservation); err != nil {
		failFrom(w, err)
		return
	}

	server.notifyReservation(agentID, reservation, "reservation.created", "Nouvelle réservation",
		"Demande de visite du bien "+property.Reference+" le "+reservation.ScheduledAt.Format(reservationDateLayout)+".")

	respond(w, http.StatusCreated, viewReservation(reservation))
}

// notifyReservation sends an in-app notification about a reservation,
// logging instead of failing when delivery breaks.
func (server *Server) notifyReservation(recipientID uuid.UUID, reservation *domain.Reservation, kind, title, message string) {
	data := map[string]any{
		"reservation_id": reservation.ID.String(),
		"property_id":    reservation.PropertyID.String(),
	}
	if _, err := server.notifier.Create(recipientID, kind, title, message, data, nil); err != nil {
		log.Printf("warning: notifying %s about reservation %s: %v", recipientID, reservation.ID, err)
	}
}

func (server *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	reservationID, err := pathID(r, "reservationID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	reservation, err := server.repo.GetReservation(reservationID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if !canSee(currentUser(r), reservation) {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	respond(w, http.StatusOK, viewReservation(reservation))
}

func (server *Server) handleConfirmReservation(w http.ResponseWriter, r *http.Request) {
	reservationID, err := pathID(r, "reservationID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	reservation, err := server.repo.GetReservation(reservationID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if reservation.Status != domain.ReservationPending {
		fail(w, http.StatusUnprocessableEntity, "only pending reservations can be confirmed")
		return
	}

	reservation.Status = domain.ReservationConfirmed
	reservation.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := server.repo.UpdateReservation(reservation); err != nil {
		failFrom(w, err)
		return
	}

	if server.engine != nil {
		server.engine.ReservationConfirmed(reservation)
	}
	server.notifyReservation(reservation.ClientID, reservation, "reservation.confirmed", "Réservation confirmée",
		"Votre visite du "+reservation.ScheduledAt.Format(reservationDateLayout)+" est confirmée.")

	respond(w, http.StatusOK, viewReservation(reservation))
}

func (server *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	reservationID, err := pathID(r, "reservationID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	reservation, err := server.repo.GetReservation(reservationID)
	if err != nil {
		failFrom(w, err)
		return
	}

	viewer := currentUser(r)
	if !canSee(viewer, reservation) {
		fail(w, http.StatusNotFound, "not found")
		return
	}
	if reservation.Status != domain.ReservationPending && reservation.Status != domain.ReservationConfirmed {
		fail(w, http.StatusUnprocessableEntity, "only pending or confirmed reservations can be cancelled")
		return
	}

	reservation.Status = domain.ReservationCancelled
	reservation.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := server.repo.UpdateReservation(reservation); err != nil {
		failFrom(w, err)
		return
	}

	// Tell the side that did not cancel.
	recipientID := reservation.AgentID
	if viewer.ID == reservation.AgentID {
		recipientID = reservation.ClientID
	}
	server.notifyReservation(recipientID, reservation, "reservation.cancelled", "Réservation annulée",
		"La visite du "+reservation.ScheduledAt.Format(reservationDateLayout)+" a été annulée.")

	respond(w, http.StatusOK, viewReservation(reservation))
}

// handleCreateDeposit opens the Stripe intent for the reservation's deposit.
func (server *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	if server.payer == nil {
		fail(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}

	reservationID, err := pathID(r, "reservationID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	reservation, err := server.repo.GetReservation(reservationID)
	if err != nil {
		failFrom(w, err)
		return
	}
	if !canSee(currentUser(r), reservation) {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	intent, err := server.payer.CreateDeposit(reservationID)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewIntent(intent))
}
