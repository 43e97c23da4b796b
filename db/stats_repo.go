package db

import (
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.StatsRepository = (*Repository)(nil)

// CountProperties returns the total number of property listings.
func (repo *Repository) CountProperties() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM properties`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting property count: %w", err)
	}

	return count, nil
}

// CountClients returns the total number of client profiles.
func (repo *Repository) CountClients() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM client_profiles`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting client count: %w", err)
	}

	return count, nil
}

// CountOpenLeadsTotal returns the number of leads still in the funnel.
func (repo *Repository) CountOpenLeadsTotal() (int, error) {
	var count int
	query := `SELECT COUNT(*)
              FROM leads
              WHERE status IN ('new', 'contacted', 'qualified')`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting open lead count: %w", err)
	}

	return count, nil
}

// CountUpcomingReservations returns the number of confirmed reservations
// scheduled after the given time.
func (repo *Repository) CountUpcomingReservations(after time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*)
              FROM reservations
              WHERE status = 'confirmed' AND scheduled_at > ?`

	err := repo.dbConn.Get(&count, repo.dbConn.Rebind(query), after)
	if err != nil {
		return 0, fmt.Errorf("getting upcoming reservation count: %w", err)
	}

	return count, nil
}

// AgentActivity aggregates an agent's activity over a window. Interactions,
// lead movement, and generated interests are windowed on their creation
// time, the managed client count is a snapshot.
func (repo *Repository) AgentActivity(agentID uuid.UUID, from, to time.Time) (*domain.AgentActivity, error) {
	var activity struct {
		TotalInteractions     int `db:"total_interactions"`
		CompletedInteractions int `db:"completed_interactions"`
		ClientsManaged        int `db:"clients_managed"`
		LeadsAssigned         int `db:"leads_assigned"`
		LeadsConverted        int `db:"leads_converted"`
		InterestsGenerated    int `db:"interests_generated"`
	}

	query := `SELECT
	            (SELECT COUNT(*) FROM interactions
	               WHERE agent_id = ? AND created_at >= ? AND created_at < ?) AS total_interactions,
	            (SELECT COUNT(*) FROM interactions
	               WHERE agent_id = ? AND completed = TRUE AND created_at >= ? AND created_at < ?) AS completed_interactions,
	            (SELECT COUNT(*) FROM client_profiles
	               WHERE assigned_agent = ?) AS clients_managed,
	            (SELECT COUNT(*) FROM leads
	               WHERE assigned_to = ? AND created_at >= ? AND created_at < ?) AS leads_assigned,
	            (SELECT COUNT(*) FROM leads
	               WHERE assigned_to = ? AND status = 'converted' AND updated_at >= ? AND updated_at < ?) AS leads_converted,
	            (SELECT COUNT(*) FROM interests
	               JOIN client_profiles ON client_profiles.user_id = interests.client_id
	               WHERE client_profiles.assigned_agent = ? AND interests.created_at >= ? AND interests.created_at < ?) AS interests_generated`

	err := repo.dbConn.Get(&activity, repo.dbConn.Rebind(query),
		agentID, from, to,
		agentID, from, to,
		agentID,
		agentID, from, to,
		agentID, from, to,
		agentID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating activity for agent %s: %w", agentID, err)
	}

	return &domain.AgentActivity{
		AgentID:               agentID,
		TotalInteractions:     activity.TotalInteractions,
		CompletedInteractions: activity.CompletedInteractions,
		ClientsManaged:        activity.ClientsManaged,
		LeadsAssigned:         activity.LeadsAssigned,
		LeadsConverted:        activity.LeadsConverted,
		InterestsGenerated:    activity.InterestsGenerated,
	}, nil
}

// AgencyAgentIDs returns the user IDs of an agency's active agents.
func (repo *Repository) AgencyAgentIDs(agencyID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `SELECT id FROM users
              WHERE agency_id = ? AND role = 'agent' AND active = TRUE
              ORDER BY created_at ASC`

	err := repo.dbConn.Select(&ids, repo.dbConn.Rebind(query), agencyID)
	if err != nil {
		return nil, fmt.Errorf("getting agent ids for agency %s: %w", agencyID, err)
	}

	return ids, nil
}
