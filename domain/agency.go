package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription plans available to agencies. The plan decides quotas and the
// feature map; trial agencies get the basic quotas with an expiry.
const (
	PlanTrial      = "trial"
	PlanBasic      = "basic"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"
)

// Default quotas applied when an agency is created without explicit limits.
const (
	DefaultMaxAgents     = 5
	DefaultMaxProperties = 100
	DefaultMaxClients    = 500
)

// AgencyRepository defines the interface for managing agencies.
type AgencyRepository interface {
	// InsertAgency saves a new agency. The slug must be unique.
	InsertAgency(agency *Agency) error
	// GetAgency retrieves an agency by ID.
	GetAgency(id uuid.UUID) (*Agency, error)
	// GetAgencyBySlug retrieves an agency by slug.
	GetAgencyBySlug(slug string) (*Agency, error)
	// GetAgencies retrieves all agencies.
	GetAgencies() ([]*Agency, error)
	// UpdateAgency updates an agency's details, plan, quotas, and features.
	UpdateAgency(agency *Agency) error
	// CountAgencyUsage returns the current number of agents, properties, and
	// clients attached to the agency, for quota checks.
	CountAgencyUsage(id uuid.UUID) (agents, properties, clients int, err error)
}

// Agency represents a real-estate agency subscribed to the platform. Agents
// and their listings are scoped to an agency; quotas cap what the plan allows.
type Agency struct {
	ID            uuid.UUID       // Unique identifier for the agency.
	Name          string          // Display name.
	Slug          string          // URL-safe unique identifier.
	Plan          string          // One of the Plan* constants.
	MaxAgents     int             // Quota: agent accounts.
	MaxProperties int             // Quota: active property listings.
	MaxClients    int             // Quota: managed client profiles.
	Features      map[string]bool // Feature flags decided by the plan (e.g. "automations", "sms").
	Email         string          // Contact email published on feeds.
	Phone         string          // Contact phone published on feeds.
	Address       string
	City          string
	Active        bool // Inactive agencies keep their data but lose API access.
	TrialEndsAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasFeature reports whether the agency's plan enables a feature flag.
func (a *Agency) HasFeature(name string) bool {
	return a.Features[name]
}
