package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.LeadRepository = (*Repository)(nil)

// dbLead represents an incoming lead as stored in the database.
type dbLead struct {
	ID           uuid.UUID       `db:"id"`
	AgencyID     uuid.UUID       `db:"agency_id"`
	Source       string          `db:"source"`
	FirstName    string          `db:"first_name"`
	LastName     string          `db:"last_name"`
	Email        string          `db:"email"`
	Phone        string          `db:"phone"`
	Message      string          `db:"message"`
	Budget       sql.NullFloat64 `db:"budget"`
	PropertyType string          `db:"property_type"`
	Locations    StringList      `db:"locations"`
	Score        int             `db:"score"`
	Status       string          `db:"status"`
	AssignedTo   uuid.NullUUID   `db:"assigned_to"`
	ConvertedTo  uuid.NullUUID   `db:"converted_to"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// fromDomainLead converts a domain.Lead into a dbLead.
func fromDomainLead(lead *domain.Lead) *dbLead {
	dbLead := &dbLead{
		ID:           lead.ID,
		AgencyID:     lead.AgencyID,
		Source:       lead.Source,
		FirstName:    lead.FirstName,
		LastName:     lead.LastName,
		Email:        lead.Email,
		Phone:        lead.Phone,
		Message:      lead.Message,
		PropertyType: lead.PropertyType,
		Locations:    StringList(lead.Locations),
		Score:        lead.Score,
		Status:       lead.Status,
		CreatedAt:    lead.CreatedAt,
		UpdatedAt:    lead.UpdatedAt,
	}

	if lead.Budget != nil {
		dbLead.Budget = sql.NullFloat64{Float64: *lead.Budget, Valid: true}
	}

	if lead.AssignedTo != nil {
		dbLead.AssignedTo = uuid.NullUUID{UUID: *lead.AssignedTo, Valid: true}
	}

	if lead.ConvertedTo != nil {
		dbLead.ConvertedTo = uuid.NullUUID{UUID: *lead.ConvertedTo, Valid: true}
	}

	return dbLead
}

// toDomainLead converts a dbLead into a domain.Lead.
func toDomainLead(dbLead *dbLead) *domain.Lead {
	lead := &domain.Lead{
		ID:           dbLead.ID,
		AgencyID:     dbLead.AgencyID,
		Source:       dbLead.Source,
		FirstName:    dbLead.FirstName,
		LastName:     dbLead.LastName,
		Email:        dbLead.Email,
		Phone:        dbLead.Phone,
		Message:      dbLead.Message,
		PropertyType: dbLead.PropertyType,
		Locations:    []string(dbLead.Locations),
		Score:        dbLead.Score,
		Status:       dbLead.Status,
		CreatedAt:    dbLead.CreatedAt,
		UpdatedAt:    dbLead.UpdatedAt,
	}

	if dbLead.Budget.Valid {
		budget := dbLead.Budget.Float64
		lead.Budget = &budget
	}

	if dbLead.AssignedTo.Valid {
		id := dbLead.AssignedTo.UUID
		lead.AssignedTo = &id
	}

	if dbLead.ConvertedTo.Valid {
		id := dbLead.ConvertedTo.UUID
		lead.ConvertedTo = &id
	}

	return lead
}

// InsertLead saves a new lead.
func (repo *Repository) InsertLead(lead *domain.Lead) error {
	dbLead := fromDomainLead(lead)
	query := `INSERT INTO leads (id, agency_id, source, first_name, last_name, email, phone, message, budget, property_type, locations, score, status, assigned_to, converted_to, created_at, updated_at)
	          VALUES (:id, :agency_id, :source, :first_name, :last_name, :email, :phone, :message, :budget, :property_type, :locations, :score, :status, :assigned_to, :converted_to, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbLead)
	if err != nil {
		return fmt.Errorf("inserting lead %s : %w", lead.ID, err)
	}
	return nil
}

// GetLead retrieves a lead by ID.
func (repo *Repository) GetLead(id uuid.UUID) (*domain.Lead, error) {
	var dbLead dbLead
	query := `SELECT * FROM leads WHERE id = ?`

	err := repo.dbConn.Get(&dbLead, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting lead %s : %w", id, err)
	}

	return toDomainLead(&dbLead), nil
}

// GetLeads retrieves leads filtered by status and assigned agent, ordered by
// score descending, then newest first.
func (repo *Repository) GetLeads(status string, assignedTo *uuid.UUID) ([]*domain.Lead, error) {
	query := `SELECT * FROM leads`

	var conditions []string
	var args []any
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}
	if assignedTo != nil {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, *assignedTo)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY score DESC, created_at DESC"

	var dbLeads []*dbLead
	err := repo.dbConn.Select(&dbLeads, repo.dbConn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching leads : %w", err)
	}

	domainLeads := make([]*domain.Lead, len(dbLeads))
	for i, dbLead := range dbLeads {
		domainLeads[i] = toDomainLead(dbLead)
	}
	return domainLeads, nil
}

// GetUnassignedLeads retrieves open leads with no assigned agent, ordered by
// score descending, then oldest first so high-value leads are picked up in
// arrival order.
func (repo *Repository) GetUnassignedLeads(agencyID uuid.UUID) ([]*domain.Lead, error) {
	query := `SELECT * FROM leads
	          WHERE agency_id = ? AND assigned_to IS NULL AND status IN ('new', 'contacted', 'qualified')
	          ORDER BY score DESC, created_at ASC`

	var dbLeads []*dbLead
	err := repo.dbConn.Select(&dbLeads, repo.dbConn.Rebind(query), agencyID)
	if err != nil {
		return nil, fmt.Errorf("fetching unassigned leads for agency %s : %w", agencyID, err)
	}

	domainLeads := make([]*domain.Lead, len(dbLeads))
	for i, dbLead := range dbLeads {
		domainLeads[i] = toDomainLead(dbLead)
	}
	return domainLeads, nil
}

// UpdateLead updates a lead's contact details, score, and status.
func (repo *Repository) UpdateLead(lead *domain.Lead) error {
	dbLead := fromDomainLead(lead)
	query := `UPDATE leads SET
	            source = :source,
	            first_name = :first_name,
	            last_name = :last_name,
	            email = :email,
	            phone = :phone,
	            message = :message,
	            budget = :budget,
	            property_type = :property_type,
	            locations = :locations,
	            score = :score,
	            status = :status,
	            updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, dbLead)
	if err != nil {
		return fmt.Errorf("updating lead %s : %w", lead.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for lead %s : %w", lead.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no lead found with id %s to update", lead.ID)
	}
	return nil
}

// AssignLead sets the assigned agent. A lead still in "new" moves to
// "contacted" so the funnel reflects that an agent now owns it.
func (repo *Repository) AssignLead(id, agentID uuid.UUID) error {
	query := `UPDATE leads SET
	            assigned_to = ?,
	            status = CASE WHEN status = 'new' THEN 'contacted' ELSE status END,
	            updated_at = CURRENT_TIMESTAMP
	          WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), agentID, id)
	if err != nil {
		return fmt.Errorf("assigning lead %s to %s : %w", id, agentID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for lead %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no lead found with id %s to assign", id)
	}
	return nil
}

// MarkConverted stamps the lead as converted and links the created user.
func (repo *Repository) MarkConverted(id, userID uuid.UUID) error {
	query := `UPDATE leads SET
	            status = 'converted',
	            converted_to = ?,
	            updated_at = CURRENT_TIMESTAMP
	          WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), userID, id)
	if err != nil {
		return fmt.Errorf("marking lead %s converted : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for lead %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no lead found with id %s to convert", id)
	}
	return nil
}

// CountOpenLeads returns the number of open leads assigned to an agent.
func (repo *Repository) CountOpenLeads(agentID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM leads
	          WHERE assigned_to = ? AND status IN ('new', 'contacted', 'qualified')`

	err := repo.dbConn.Get(&count, repo.dbConn.Rebind(query), agentID)
	if err != nil {
		return 0, fmt.Errorf("counting open leads for agent %s : %w", agentID, err)
	}

	return count, nil
}
