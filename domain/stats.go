package domain

import (
	"time"

	"github.com/google/uuid"
)

// StatsRepository defines the interface for retrieving aggregate figures used
// by the reporting endpoints.
type StatsRepository interface {
	// CountProperties returns the total number of property listings.
	CountProperties() (int, error)
	// CountClients returns the total number of client profiles.
	CountClients() (int, error)
	// CountOpenLeadsTotal returns the number of leads still in the funnel.
	CountOpenLeadsTotal() (int, error)
	// CountUpcomingReservations returns the number of confirmed reservations
	// scheduled after the given time.
	CountUpcomingReservations(after time.Time) (int, error)
	// AgentActivity aggregates an agent's activity over a window.
	AgentActivity(agentID uuid.UUID, from, to time.Time) (*AgentActivity, error)
	// AgencyAgentIDs returns the user IDs of an agency's active agents.
	AgencyAgentIDs(agencyID uuid.UUID) ([]uuid.UUID, error)
}

// AgentActivity is the raw aggregate a performance report is built from.
type AgentActivity struct {
	AgentID               uuid.UUID
	TotalInteractions     int
	CompletedInteractions int
	ClientsManaged        int
	LeadsAssigned         int
	LeadsConverted        int
	InterestsGenerated    int
}
