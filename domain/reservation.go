package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reservation kinds: a booked visit, or a property hold pending a purchase or
// rental file.
const (
	ReservationVisit    = "visit"
	ReservationPurchase = "purchase"
	ReservationRent     = "rent"
)

// Reservation statuses. Pending reservations expire automatically 24 hours
// after their scheduled time if never confirmed.
const (
	ReservationPending   = "pending"
	ReservationConfirmed = "confirmed"
	ReservationCompleted = "completed"
	ReservationCancelled = "cancelled"
	ReservationExpired   = "expired"
)

// Reservation limits.
const (
	DefaultReservationMinutes  = 60
	MaxReservationParticipants = 10
	ReservationExpiryDelay     = 24 * time.Hour
	ReservationReminderBefore  = 24 * time.Hour
)

// ReservationRepository defines the interface for managing reservations.
type ReservationRepository interface {
	// InsertReservation saves a new reservation.
	InsertReservation(reservation *Reservation) error
	// GetReservation retrieves a reservation by ID.
	GetReservation(id uuid.UUID) (*Reservation, error)
	// GetReservations retrieves reservations filtered by property, client,
	// and status. Nil or empty filters are ignored.
	GetReservations(propertyID, clientID *uuid.UUID, status string) ([]*Reservation, error)
	// GetPropertyReservations retrieves the active reservations on a property
	// overlapping the window, for slot search.
	GetPropertyReservations(propertyID uuid.UUID, from, to time.Time) ([]*Reservation, error)
	// GetAgentReservations retrieves the active reservations of an agent
	// overlapping the window, for slot search and route planning.
	GetAgentReservations(agentID uuid.UUID, from, to time.Time) ([]*Reservation, error)
	// UpdateReservation persists status transitions and detail changes.
	UpdateReservation(reservation *Reservation) error
	// ExpirePending marks pending reservations whose scheduled time is older
	// than the cutoff as expired, returning how many rows changed.
	ExpirePending(cutoff time.Time) (int, error)
	// GetDueReminders retrieves confirmed reservations scheduled within the
	// window whose reminder has not been sent.
	GetDueReminders(from, to time.Time) ([]*Reservation, error)
	// MarkReminderSent flags the reservation's reminder as sent.
	MarkReminderSent(id uuid.UUID) error
}

// Reservation books a time slot on a property for a client: a visit, or a
// hold while a purchase or rental file is assembled. A deposit may secure it.
type Reservation struct {
	ID           uuid.UUID
	PropertyID   uuid.UUID
	ClientID     uuid.UUID
	AgentID      uuid.UUID
	Kind         string // One of the Reservation* kind constants.
	Status       string // One of the Reservation* status constants.
	ScheduledAt  time.Time
	Minutes      int              // Slot duration, DefaultReservationMinutes when unset.
	Participants int              // Number of attendees, capped at MaxReservationParticipants.
	Deposit      *decimal.Decimal // Deposit amount in euros, nil when none required.
	Notes        string
	ReminderSent bool // Set once the 24-hour reminder went out.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EndsAt returns the end of the reserved slot.
func (r *Reservation) EndsAt() time.Time {
	minutes := r.Minutes
	if minutes <= 0 {
		minutes = DefaultReservationMinutes
	}
	return r.ScheduledAt.Add(time.Duration(minutes) * time.Minute)
}
