package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle statuses of a lead. A lead enters as "new" and leaves the funnel
// either "converted" (a client account was created from it) or "lost".
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusConverted = "converted"
	LeadStatusLost      = "lost"
)

// LeadRepository defines the interface for managing leads.
type LeadRepository interface {
	// InsertLead saves a new lead.
	InsertLead(lead *Lead) error
	// GetLead retrieves a lead by ID.
	GetLead(id uuid.UUID) (*Lead, error)
	// GetLeads retrieves leads filtered by status and assigned agent.
	// Empty status or nil agent means no filter on that column. Results are
	// ordered by score descending, then newest first.
	GetLeads(status string, assignedTo *uuid.UUID) ([]*Lead, error)
	// GetUnassignedLeads retrieves open leads with no assigned agent, ordered
	// by score descending, then oldest first.
	GetUnassignedLeads(agencyID uuid.UUID) ([]*Lead, error)
	// UpdateLead updates a lead's contact details, score, and status.
	UpdateLead(lead *Lead) error
	// AssignLead sets the assigned agent and moves a "new" lead to "contacted".
	AssignLead(id, agentID uuid.UUID) error
	// MarkConverted stamps the lead as converted and links the created user.
	MarkConverted(id, userID uuid.UUID) error
	// CountOpenLeads returns the number of open leads (new, contacted,
	// qualified) assigned to an agent. Used to balance auto-assignment.
	CountOpenLeads(agentID uuid.UUID) (int, error)
}

// Lead represents an unqualified inbound contact: someone who filled a form,
// called, or was imported from a portal. Conversion turns a lead into a user
// account with a client profile.
type Lead struct {
	ID           uuid.UUID  // Unique identifier for the lead.
	AgencyID     uuid.UUID  // The agency the lead belongs to.
	Source       string     // Acquisition source (e.g. "website", "seloger", "phone", "referral").
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Message      string     // Free-form message left by the contact.
	Budget       *float64   // Stated budget in euros, nil when unknown.
	PropertyType string     // Sought property type, empty when unknown.
	Locations    []string   // Sought locations.
	Score        int        // Qualification score, 0 to 100.
	Status       string     // One of the LeadStatus* constants.
	AssignedTo   *uuid.UUID // The agent working the lead. Nil until assignment.
	ConvertedTo  *uuid.UUID // The user created on conversion. Nil until converted.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsOpen reports whether the lead is still in the active funnel.
func (l *Lead) IsOpen() bool {
	switch l.Status {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified:
		return true
	}
	return false
}
