package domain

import (
	"time"

	"github.com/google/uuid"
)

// Appointment kinds on an agent's calendar.
const (
	AppointmentVisit     = "visit"
	AppointmentMeeting   = "meeting"
	AppointmentSigning   = "signing"
	AppointmentValuation = "valuation"
)

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentNoShow    = "no_show"
)

// AppointmentRepository defines the interface for managing calendar
// appointments.
type AppointmentRepository interface {
	// InsertAppointment saves a new appointment.
	InsertAppointment(appointment *Appointment) error
	// GetAppointment retrieves an appointment by ID.
	GetAppointment(id uuid.UUID) (*Appointment, error)
	// GetAgentAppointments retrieves an agent's appointments overlapping the
	// window, ordered by start time.
	GetAgentAppointments(agentID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// GetPropertyAppointments retrieves the appointments booked on a property
	// overlapping the window.
	GetPropertyAppointments(propertyID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// UpdateAppointment updates an appointment's time, status, and notes.
	UpdateAppointment(appointment *Appointment) error
	// DeleteAppointment removes an appointment.
	DeleteAppointment(id uuid.UUID) error
}

// Appointment is an entry on an agent's calendar. Visits carry the property
// and its coordinates so day routes can be planned.
type Appointment struct {
	ID         uuid.UUID
	AgentID    uuid.UUID
	ClientID   *uuid.UUID // The client attending, nil for internal meetings.
	PropertyID *uuid.UUID // The property visited, nil for office meetings.
	Kind       string     // One of the Appointment* kind constants.
	Status     string     // One of the Appointment* status constants.
	StartsAt   time.Time
	EndsAt     time.Time
	Location   string   // Human-readable meeting place.
	Latitude   *float64 // Coordinates for route planning, nil when unknown.
	Longitude  *float64
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Overlaps reports whether two appointments overlap in time.
func (a *Appointment) Overlaps(other *Appointment) bool {
	return a.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(a.EndsAt)
}
