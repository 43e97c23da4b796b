package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/schedule"
)

// agentParam resolves the agent a calendar request concerns: admins may name
// any agent with ?agent_id=, agents are pinned to themselves.
func agentParam(r *http.Request) (uuid.UUID, error) {
	viewer := currentUser(r)
	if viewer.Role != domain.RoleAdmin {
		return viewer.ID, nil
	}

	if parsed, err := queryUUID(r, "agent_id"); err != nil {
		return uuid.Nil, err
	} else if parsed != nil {
		return *parsed, nil
	}
	return viewer.ID, nil
}

func (server *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentParam(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agent_id filter")
		return
	}

	from, err := queryTime(r, "from")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if from.IsZero() {
		from = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if to.IsZero() {
		to = from.AddDate(0, 0, 7)
	}

	appointments, err := server.repo.GetAgentAppointments(agentID, from, to)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewAppointments(appointments))
}

func (server *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AgentID    *uuid.UUID `json:"agent_id"`
		ClientID   *uuid.UUID `json:"client_id"`
		PropertyID *uuid.UUID `json:"property_id"`
		Kind       string     `json:"kind"`
		StartsAt   time.Time  `json:"starts_at"`
		EndsAt     time.Time  `json:"ends_at"`
		Location   string     `json:"location"`
		Latitude   *float64   `json:"latitude"`
		Longitude  *float64   `json:"longitude"`
		Notes      string     `json:"notes"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if payload.StartsAt.IsZero() || payload.EndsAt.IsZero() || !payload.EndsAt.After(payload.StartsAt) {
		fail(w, http.StatusUnprocessableEntity, "starts_at must precede ends_at")
		return
	}
	if payload.Kind == "" {
		payload.Kind = domain.AppointmentVisit
	}

	viewer := currentUser(r)
	agentID := viewer.ID
	if payload.AgentID != nil && viewer.Role == domain.RoleAdmin {
		agentID = *payload.AgentID
	}

	existing, err := server.repo.GetAgentAppointments(agentID, payload.StartsAt, payload.EndsAt)
	if err != nil {
		failFrom(w, err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		failFrom(w, err)
		return
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	appointment := &domain.Appointment{
		ID:         id,
		AgentID:    agentID,
		ClientID:   payload.ClientID,
		PropertyID: payload.PropertyID,
		Kind:       payload.Kind,
		Status:     domain.AppointmentScheduled,
		StartsAt:   payload.StartsAt,
		EndsAt:     payload.EndsAt,
		Location:   payload.Location,
		Latitude:   payload.Latitude,
		Longitude:  payload.Longitude,
		Notes:      payload.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, other := range existing {
		if other.Status == domain.AppointmentCancelled {
			continue
		}
		if appointment.Overlaps(other) {
			fail(w, http.StatusUnprocessableEntity, "the slot overlaps an existing appointment")
			return
		}
	}

	if err := server.repo.InsertAppointment(appointment); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusCreated, viewAppointment(appointment))
}

func (server *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := pathID(r, "appointmentID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	appointment, err := server.repo.GetAppointment(appointmentID)
	if err != nil {
		failFrom(w, err)
		return
	}

	viewer := currentUser(r)
	if viewer.Role != domain.RoleAdmin && appointment.AgentID != viewer.ID {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	respond(w, http.StatusOK, viewAppointment(appointment))
}

func (server *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := pathID(r, "appointmentID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var payload struct {
		Kind      *string    `json:"kind"`
		Status    *string    `json:"status"`
		StartsAt  *time.Time `json:"starts_at"`
		EndsAt    *time.Time `json:"ends_at"`
		Location  *string    `json:"location"`
		Latitude  *float64   `json:"latitude"`
		Longitude *float64   `json:"longitude"`
		Notes     *string    `json:"notes"`
	}
	if err := decode(r, &payload); err != nil {
		badBody(w, err)
		return
	}
	if payload.Status != nil {
		switch *payload.Status {
		case domain.AppointmentScheduled, domain.AppointmentCompleted, domain.AppointmentCancelled, domain.AppointmentNoShow:
		default:
			fail(w, http.StatusUnprocessableEntity, "status must be scheduled, completed, cancelled, or no_show")
			return
		}
	}

	appointment, err := server.repo.GetAppointment(appointmentID)
	if err != nil {
		failFrom(w, err)
		return
	}

	viewer := currentUser(r)
	if viewer.Role != domain.RoleAdmin && appointment.AgentID != viewer.ID {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	if payload.Kind != nil {
		appointment.Kind = *payload.Kind
	}
	if payload.Status != nil {
		appointment.Status = *payload.Status
	}
	if payload.StartsAt != nil {
		appointment.StartsAt = *payload.StartsAt
	}
	if payload.EndsAt != nil {
		appointment.EndsAt = *payload.EndsAt
	}
	if !appointment.EndsAt.After(appointment.StartsAt) {
		fail(w, http.StatusUnprocessableEntity, "starts_at must precede ends_at")
		return
	}
	if payload.Location != nil {
		appointment.Location = *payload.Location
	}
	if payload.Latitude != nil {
		appointment.Latitude = payload.Latitude
	}
	if payload.Longitude != nil {
		appointment.Longitude = payload.Longitude
	}
	if payload.Notes != nil {
		appointment.Notes = *payload.Notes
	}
	appointment.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if err := server.repo.UpdateAppointment(appointment); err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, viewAppointment(appointment))
}

func (server *Server) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := pathID(r, "appointmentID")
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	appointment, err := server.repo.GetAppointment(appointmentID)
	if err != nil {
		failFrom(w, err)
		return
	}

	viewer := currentUser(r)
	if viewer.Role != domain.RoleAdmin && appointment.AgentID != viewer.ID {
		fail(w, http.StatusNotFound, "not found")
		return
	}

	if err := server.repo.DeleteAppointment(appointmentID); err != nil {
		failFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSlots answers the free visit slots of an agent's working day.
func (server *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentParam(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agent_id filter")
		return
	}

	day, err := queryTime(r, "day")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if day.IsZero() {
		day = time.Now().UTC()
	}

	slots, err := server.scheduler.FindAvailableSlots(agentID, day)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, slots)
}

// handleConflicts dry-runs a reservation through the conflict rules without
// saving anything.
func (server *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentParam(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agent_id filter")
		return
	}
	propertyID, err := queryUUID(r, "property_id")
	if err != nil || propertyID == nil {
		fail(w, http.StatusBadRequest, "a property_id parameter is required")
		return
	}
	scheduledAt, err := queryTime(r, "scheduled_at")
	if err != nil || scheduledAt.IsZero() {
		fail(w, http.StatusBadRequest, "a scheduled_at parameter is required")
		return
	}

	probe := &domain.Reservation{
		PropertyID:  *propertyID,
		AgentID:     agentID,
		ScheduledAt: scheduledAt,
		Minutes:     queryInt(r, "minutes"),
	}
	conflicts, err := server.scheduler.Conflicts(probe)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, conflicts)
}

// handleRoute orders an agent's day of visits into a shortest-path tour.
func (server *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentParam(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agent_id filter")
		return
	}

	day, err := queryTime(r, "day")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if day.IsZero() {
		day = time.Now().UTC()
	}

	latitude, err := strconv.ParseFloat(r.URL.Query().Get("start_lat"), 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "a start_lat parameter is required")
		return
	}
	longitude, err := strconv.ParseFloat(r.URL.Query().Get("start_lng"), 64)
	if err != nil {
		fail(w, http.StatusBadRequest, "a start_lng parameter is required")
		return
	}

	route, err := server.scheduler.PlanRoute(agentID, day, latitude, longitude)
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, route)
}

// handleBestMatch scores upcoming slots against a client's visit preference.
func (server *Server) handleBestMatch(w http.ResponseWriter, r *http.Request) {
	agentID, err := agentParam(r)
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid agent_id filter")
		return
	}

	day, err := queryTime(r, "day")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if day.IsZero() {
		day = time.Now().UTC()
	}

	preference := schedule.Preference{
		Day:       day,
		TimeOfDay: r.URL.Query().Get("time_of_day"),
		Minutes:   queryInt(r, "minutes"),
	}
	slots, err := server.scheduler.BestMatch(agentID, preference, time.Now().UTC())
	if err != nil {
		failFrom(w, err)
		return
	}

	respond(w, http.StatusOK, slots)
}
