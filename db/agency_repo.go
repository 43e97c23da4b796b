package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.AgencyRepository = (*Repository)(nil)

// dbAgency represents an agency as stored in the database. Feature flags are
// stored as a JSON object through the BoolMap type.
type dbAgency struct {
	ID            uuid.UUID    `db:"id"`
	Name          string       `db:"name"`
	Slug          string       `db:"slug"`
	Plan          string       `db:"plan"`
	MaxAgents     int          `db:"max_agents"`
	MaxProperties int          `db:"max_properties"`
	MaxClients    int          `db:"max_clients"`
	Features      BoolMap      `db:"features"`
	Email         string       `db:"email"`
	Phone         string       `db:"phone"`
	Address       string       `db:"address"`
	City          string       `db:"city"`
	Active        bool         `db:"active"`
	TrialEndsAt   sql.NullTime `db:"trial_ends_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// fromDomainAgency converts a domain.Agency into a dbAgency.
func fromDomainAgency(agency *domain.Agency) *dbAgency {
	dbAgency := &dbAgency{
		ID:            agency.ID,
		Name:          agency.Name,
		Slug:          agency.Slug,
		Plan:          agency.Plan,
		MaxAgents:     agency.MaxAgents,
		MaxProperties: agency.MaxProperties,
		MaxClients:    agency.MaxClients,
		Features:      BoolMap(agency.Features),
		Email:         agency.Email,
		Phone:         agency.Phone,
		Address:       agency.Address,
		City:          agency.City,
		Active:        agency.Active,
		CreatedAt:     agency.CreatedAt,
		UpdatedAt:     agency.UpdatedAt,
	}

	if agency.TrialEndsAt != nil {
		dbAgency.TrialEndsAt = sql.NullTime{Time: *agency.TrialEndsAt, Valid: true}
	}

	return dbAgency
}

// toDomainAgency converts a dbAgency into a domain.Agency.
func toDomainAgency(dbAgency *dbAgency) *domain.Agency {
	agency := &domain.Agency{
		ID:            dbAgency.ID,
		Name:          dbAgency.Name,
		Slug:          dbAgency.Slug,
		Plan:          dbAgency.Plan,
		MaxAgents:     dbAgency.MaxAgents,
		MaxProperties: dbAgency.MaxProperties,
		MaxClients:    dbAgency.MaxClients,
		Features:      map[string]bool(dbAgency.Features),
		Email:         dbAgency.Email,
		Phone:         dbAgency.Phone,
		Address:       dbAgency.Address,
		City:          dbAgency.City,
		Active:        dbAgency.Active,
		CreatedAt:     dbAgency.CreatedAt,
		UpdatedAt:     dbAgency.UpdatedAt,
	}

	if dbAgency.TrialEndsAt.Valid {
		ends := dbAgency.TrialEndsAt.Time
		agency.TrialEndsAt = &ends
	}

	return agency
}

// InsertAgency saves a new agency.
func (repo *Repository) InsertAgency(agency *domain.Agency) error {
	dbAgency := fromDomainAgency(agency)
	query := `INSERT INTO agencies (id, name, slug, plan, max_agents, max_properties, max_clients, features, email, phone, address, city, active, trial_ends_at, created_at, updated_at)
	          VALUES (:id, :name, :slug, :plan, :max_agents, :max_properties, :max_clients, :features, :email, :phone, :address, :city, :active, :trial_ends_at, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbAgency)
	if err != nil {
		return fmt.Errorf("inserting agency %s : %w", agency.Slug, err)
	}
	return nil
}

// GetAgency retrieves an agency by ID.
func (repo *Repository) GetAgency(id uuid.UUID) (*domain.Agency, error) {
	var dbAgency dbAgency
	query := `SELECT * FROM agencies WHERE id = ?`

	err := repo.dbConn.Get(&dbAgency, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting agency %s : %w", id, err)
	}

	return toDomainAgency(&dbAgency), nil
}

// GetAgencyBySlug retrieves an agency by slug.
func (repo *Repository) GetAgencyBySlug(slug string) (*domain.Agency, error) {
	var dbAgency dbAgency
	query := `SELECT * FROM agencies WHERE slug = ?`

	err := repo.dbConn.Get(&dbAgency, repo.dbConn.Rebind(query), slug)
	if err != nil {
		return nil, fmt.Errorf("getting agency %s : %w", slug, err)
	}

	return toDomainAgency(&dbAgency), nil
}

// GetAgencies retrieves all agencies.
func (repo *Repository) GetAgencies() ([]*domain.Agency, error) {
	var dbAgencies []*dbAgency
	query := `SELECT * FROM agencies ORDER BY name ASC`

	err := repo.dbConn.Select(&dbAgencies, query)
	if err != nil {
		return nil, fmt.Errorf("fetching all agencies : %w", err)
	}

	domainAgencies := make([]*domain.Agency, len(dbAgencies))
	for i, dbAgency := range dbAgencies {
		domainAgencies[i] = toDomainAgency(dbAgency)
	}
	return domainAgencies, nil
}

// UpdateAgency updates an agency's details, plan, quotas, and features.
func (repo *Repository) UpdateAgency(agency *domain.Agency) error {
	dbAgency := fromDomainAgency(agency)
	query := `UPDATE agencies SET
	            name = :name,
	            plan = :plan,
	            max_agents = :max_agents,
	            max_properties = :max_properties,
	            max_clients = :max_clients,
	            features = :features,
	            email = :email,
	            phone = :phone,
	            address = :address,
	            city = :city,
	            active = :active,
	            trial_ends_at = :trial_ends_at,
	            updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, dbAgency)
	if err != nil {
		return fmt.Errorf("updating agency %s : %w", agency.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for agency %s : %w", agency.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no agency found with id %s to update", agency.ID)
	}
	return nil
}

// CountAgencyUsage returns the current number of active agents, non-archived
// properties, and client profiles attached to the agency. The quotas on the
// agency's plan are checked against these counts.
func (repo *Repository) CountAgencyUsage(id uuid.UUID) (agents, properties, clients int, err error) {
	var usage struct {
		Agents     int `db:"agents"`
		Properties int `db:"properties"`
		Clients    int `db:"clients"`
	}

	query := `SELECT
	            (SELECT COUNT(*) FROM users WHERE agency_id = ? AND role = 'agent' AND active = TRUE) AS agents,
	            (SELECT COUNT(*) FROM properties WHERE agency_id = ? AND status != 'archived') AS properties,
	            (SELECT COUNT(*) FROM client_profiles
	               JOIN users ON users.id = client_profiles.user_id
	               WHERE users.agency_id = ?) AS clients`

	err = repo.dbConn.Get(&usage, repo.dbConn.Rebind(query), id, id, id)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("counting usage for agency %s : %w", id, err)
	}

	return usage.Agents, usage.Properties, usage.Clients, nil
}
