package domain

import (
	"time"

	"github.com/google/uuid"
)

// Statuses of a client profile within the pipeline.
const (
	ClientStatusProspect = "prospect"
	ClientStatusClient   = "client"
	ClientStatusInactive = "inactive"
)

// Priorities used to order an agent's follow-up work.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Interaction kinds recorded against a client.
const (
	InteractionCall    = "call"
	InteractionEmail   = "email"
	InteractionMeeting = "meeting"
	InteractionVisit   = "visit"
	InteractionMessage = "message"
)

// ClientRepository defines the interface for managing client profiles and the
// activity recorded against them (interests, interactions, notes).
type ClientRepository interface {
	// InsertClientProfile saves a new client profile.
	// It returns ErrNoProfileForUser from GetClientProfile when missing.
	InsertClientProfile(profile *ClientProfile) error
	// GetClientProfile retrieves the client profile for a user ID.
	// It returns ErrNoProfileForUser when the row is missing.
	GetClientProfile(userID uuid.UUID) (*ClientProfile, error)
	// GetClientProfiles retrieves client profiles filtered by assigned agent
	// and status. Nil agent or empty status means no filter on that column.
	GetClientProfiles(agentID *uuid.UUID, status string) ([]*ClientProfile, error)
	// UpdateClientProfile updates a client profile.
	UpdateClientProfile(profile *ClientProfile) error
	// TouchLastContact stamps the time of the latest contact with the client.
	TouchLastContact(userID uuid.UUID, at time.Time) error

	// RecordInterest links a client to a property with an interest level.
	// Recording again for the same pair updates the level and note.
	RecordInterest(interest *Interest) error
	// GetInterests retrieves a client's recorded interests, newest first.
	GetInterests(clientID uuid.UUID) ([]*Interest, error)

	// InsertInteraction records an interaction with a client.
	InsertInteraction(interaction *Interaction) error
	// GetInteractions retrieves a client's interactions, newest first.
	GetInteractions(clientID uuid.UUID) ([]*Interaction, error)
	// CompleteInteraction marks a scheduled interaction as completed.
	CompleteInteraction(id uuid.UUID, at time.Time) error

	// InsertClientNote saves a note on a client.
	InsertClientNote(note *ClientNote) error
	// GetClientNotes retrieves a client's notes, newest first.
	GetClientNotes(clientID uuid.UUID) ([]*ClientNote, error)
}

// ClientProfile holds the search criteria and pipeline state of a user with
// RoleClient. The matching engine reads the criteria to propose listings.
type ClientProfile struct {
	UserID        uuid.UUID  // The user this profile belongs to.
	AssignedAgent *uuid.UUID // The agent managing the client. Nil until assignment.
	Status        string     // One of the ClientStatus* constants.
	Priority      string     // One of the Priority* constants.
	BudgetMin     *float64   // Lower budget bound in euros, nil when open.
	BudgetMax     *float64   // Upper budget bound in euros, nil when open.
	PropertyType  string     // Sought property type, empty when undecided.
	Locations     []string   // Preferred cities or sectors.
	Bedrooms      *int       // Minimum bedrooms sought.
	SurfaceMin    *float64   // Minimum surface in square meters.
	Features      []string   // Must-have amenities matched against listings.
	Financing     string     // Financing status (e.g. "approved", "pending", "cash", "none").
	Notes         string     // Free-form agent notes.
	Tags          []string   // Labels for segmenting (e.g. "investor", "first-buyer").
	LastContactAt *time.Time // Time of the latest recorded contact.
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Interest links a client to a property they showed interest in.
type Interest struct {
	ID         uuid.UUID
	ClientID   uuid.UUID
	PropertyID uuid.UUID
	Level      string // "low", "medium", or "high".
	Note       string
	CreatedAt  time.Time
}

// Interaction is a recorded touchpoint between an agent and a client.
type Interaction struct {
	ID          uuid.UUID
	ClientID    uuid.UUID
	AgentID     uuid.UUID
	Kind        string // One of the Interaction* constants.
	Subject     string
	Notes       string
	Completed   bool
	ScheduledAt *time.Time // Planned time for upcoming interactions.
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// ClientNote is a free-form note an agent leaves on a client file. Important
// notes are surfaced first in reports.
type ClientNote struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	AuthorID  uuid.UUID
	Body      string
	Important bool
	CreatedAt time.Time
}
