package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.ClientRepository = (*Repository)(nil)

// dbClientProfile represents a client profile as stored in the database.
// The search criteria columns are nullable since a fresh profile starts
// empty and gets refined over follow-up calls.
type dbClientProfile struct {
	UserID        uuid.UUID       `db:"user_id"`
	AssignedAgent uuid.NullUUID   `db:"assigned_agent"`
	Status        string          `db:"status"`
	Priority      string          `db:"priority"`
	BudgetMin     sql.NullFloat64 `db:"budget_min"`
	BudgetMax     sql.NullFloat64 `db:"budget_max"`
	PropertyType  string          `db:"property_type"`
	Locations     StringList      `db:"locations"`
	Bedrooms      sql.NullInt64   `db:"bedrooms"`
	SurfaceMin    sql.NullFloat64 `db:"surface_min"`
	Features      StringList      `db:"features"`
	Financing     string          `db:"financing"`
	Notes         string          `db:"notes"`
	Tags          StringList      `db:"tags"`
	LastContactAt sql.NullTime    `db:"last_contact_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// fromDomainClientProfile converts a domain.ClientProfile into a dbClientProfile.
func fromDomainClientProfile(profile *domain.ClientProfile) *dbClientProfile {
	dbProfile := &dbClientProfile{
		UserID:       profile.UserID,
		Status:       profile.Status,
		Priority:     profile.Priority,
		PropertyType: profile.PropertyType,
		Locations:    StringList(profile.Locations),
		Features:     StringList(profile.Features),
		Financing:    profile.Financing,
		Notes:        profile.Notes,
		Tags:         StringList(profile.Tags),
		CreatedAt:    profile.CreatedAt,
		UpdatedAt:    profile.UpdatedAt,
	}

	if profile.AssignedAgent != nil {
		dbProfile.AssignedAgent = uuid.NullUUID{UUID: *profile.AssignedAgent, Valid: true}
	}

	if profile.BudgetMin != nil {
		dbProfile.BudgetMin = sql.NullFloat64{Float64: *profile.BudgetMin, Valid: true}
	}

	if profile.BudgetMax != nil {
		dbProfile.BudgetMax = sql.NullFloat64{Float64: *profile.BudgetMax, Valid: true}
	}

	if profile.Bedrooms != nil {
		dbProfile.Bedrooms = sql.NullInt64{Int64: int64(*profile.Bedrooms), Valid: true}
	}

	if profile.SurfaceMin != nil {
		dbProfile.SurfaceMin = sql.NullFloat64{Float64: *profile.SurfaceMin, Valid: true}
	}

	if profile.LastContactAt != nil {
		dbProfile.LastContactAt = sql.NullTime{Time: *profile.LastContactAt, Valid: true}
	}

	return dbProfile
}

// toDomainClientProfile converts a dbClientProfile into a domain.ClientProfile.
func toDomainClientProfile(dbProfile *dbClientProfile) *domain.ClientProfile {
	profile := &domain.ClientProfile{
		UserID:       dbProfile.UserID,
		Status:       dbProfile.Status,
		Priority:     dbProfile.Priority,
		PropertyType: dbProfile.PropertyType,
		Locations:    []string(dbProfile.Locations),
		Features:     []string(dbProfile.Features),
		Financing:    dbProfile.Financing,
		Notes:        dbProfile.Notes,
		Tags:         []string(dbProfile.Tags),
		CreatedAt:    dbProfile.CreatedAt,
		UpdatedAt:    dbProfile.UpdatedAt,
	}

	if dbProfile.AssignedAgent.Valid {
		id := dbProfile.AssignedAgent.UUID
		profile.AssignedAgent = &id
	}

	if dbProfile.BudgetMin.Valid {
		budget := dbProfile.BudgetMin.Float64
		profile.BudgetMin = &budget
	}

	if dbProfile.BudgetMax.Valid {
		budget := dbProfile.BudgetMax.Float64
		profile.BudgetMax = &budget
	}

	if dbProfile.Bedrooms.Valid {
		bedrooms := int(dbProfile.Bedrooms.Int64)
		profile.Bedrooms = &bedrooms
	}

	if dbProfile.SurfaceMin.Valid {
		surface := dbProfile.SurfaceMin.Float64
		profile.SurfaceMin = &surface
	}

	if dbProfile.LastContactAt.Valid {
		contact := dbProfile.LastContactAt.Time
		profile.LastContactAt = &contact
	}

	return profile
}

// InsertClientProfile saves a new client profile.
func (repo *Repository) InsertClientProfile(profile *domain.ClientProfile) error {
	dbProfile := fromDomainClientProfile(profile)
	query := `INSERT INTO client_profiles (user_id, assigned_agent, status, priority, budget_min, budget_max, property_type, locations, bedrooms, surface_min, features, financing, notes, tags, last_contact_at, created_at, updated_at)
	          VALUES (:user_id, :assigned_agent, :status, :priority, :budget_min, :budget_max, :property_type, :locations, :bedrooms, :surface_min, :features, :financing, :notes, :tags, :last_contact_at, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbProfile)
	if err != nil {
		return fmt.Errorf("inserting client profile for %s : %w", profile.UserID, err)
	}
	return nil
}

// GetClientProfile retrieves the client profile for a user ID. It returns
// domain.ErrNoProfileForUser when the row is missing.
func (repo *Repository) GetClientProfile(userID uuid.UUID) (*domain.ClientProfile, error) {
	var dbProfile dbClientProfile
	query := `SELECT * FROM client_profiles WHERE user_id = ?`

	err := repo.dbConn.Get(&dbProfile, repo.dbConn.Rebind(query), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoProfileForUser
	}
	if err != nil {
		return nil, fmt.Errorf("getting client profile for %s : %w", userID, err)
	}

	return toDomainClientProfile(&dbProfile), nil
}

// GetClientProfiles retrieves client profiles filtered by assigned agent and
// status.
func (repo *Repository) GetClientProfiles(agentID *uuid.UUID, status string) ([]*domain.ClientProfile, error) {
	query := `SELECT * FROM client_profiles`

	var conditions []string
	var args []any
	if agentID != nil {
		conditions = append(conditions, "assigned_agent = ?")
		args = append(args, *agentID)
	}
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var dbProfiles []*dbClientProfile
	err := repo.dbConn.Select(&dbProfiles, repo.dbConn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching client profiles : %w", err)
	}

	domainProfiles := make([]*domain.ClientProfile, len(dbProfiles))
	for i, dbProfile := range dbProfiles {
		domainProfiles[i] = toDomainClientProfile(dbProfile)
	}
	return domainProfiles, nil
}

// UpdateClientProfile updates a client profile.
func (repo *Repository) UpdateClientProfile(profile *domain.ClientProfile) error {
	dbProfile := fromDomainClientProfile(profile)
	query := `UPDATE client_profiles SET
	            assigned_agent = :assigned_agent,
	            status = :status,
	            priority = :priority,
	            budget_min = :budget_min,
	            budget_max = :budget_max,
	            property_type = :property_type,
	            locations = :locations,
	            bedrooms = :bedrooms,
	            surface_min = :surface_min,
	            features = :features,
	            financing = :financing,
	            notes = :notes,
	            tags = :tags,
	            updated_at = :updated_at
	          WHERE user_id = :user_id`

	result, err := repo.dbConn.NamedExec(query, dbProfile)
	if err != nil {
		return fmt.Errorf("updating client profile for %s : %w", profile.UserID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for client profile %s : %w", profile.UserID, err)
	}

	if rowsAffected == 0 {
		return domain.ErrNoProfileForUser
	}
	return nil
}

// TouchLastContact stamps the time of the latest contact with the client.
func (repo *Repository) TouchLastContact(userID uuid.UUID, at time.Time) error {
	query := `UPDATE client_profiles SET last_contact_at = ? WHERE user_id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), at, userID)
	if err != nil {
		return fmt.Errorf("touching last contact for client %s : %w", userID, err)
	}
	return nil
}

// dbInterest represents a client-property interest link as stored in the database.
type dbInterest struct {
	ID         uuid.UUID `db:"id"`
	ClientID   uuid.UUID `db:"client_id"`
	PropertyID uuid.UUID `db:"property_id"`
	Level      string    `db:"level"`
	Note       string    `db:"note"`
	CreatedAt  time.Time `db:"created_at"`
}

// toDomainInterest converts a dbInterest into a domain.Interest.
func toDomainInterest(dbInterest *dbInterest) *domain.Interest {
	return &domain.Interest{
		ID:         dbInterest.ID,
		ClientID:   dbInterest.ClientID,
		PropertyID: dbInterest.PropertyID,
		Level:      dbInterest.Level,
		Note:       dbInterest.Note,
		CreatedAt:  dbInterest.CreatedAt,
	}
}

// RecordInterest links a client to a property with an interest level.
// Recording the same pair again updates the level and note.
func (repo *Repository) RecordInterest(interest *domain.Interest) error {
	dbInterest := &dbInterest{
		ID:         interest.ID,
		ClientID:   interest.ClientID,
		PropertyID: interest.PropertyID,
		Level:      interest.Level,
		Note:       interest.Note,
		CreatedAt:  interest.CreatedAt,
	}

	query := `INSERT INTO interests (id, client_id, property_id, level, note, created_at)
	          VALUES (:id, :client_id, :property_id, :level, :note, :created_at)
	          ON CONFLICT(client_id, property_id) DO UPDATE SET
	            level = excluded.level,
	            note = excluded.note`

	_, err := repo.dbConn.NamedExec(query, dbInterest)
	if err != nil {
		return fmt.Errorf("recording interest of %s in %s : %w", interest.ClientID, interest.PropertyID, err)
	}
	return nil
}

// GetInterests retrieves a client's recorded interests, newest first.
func (repo *Repository) GetInterests(clientID uuid.UUID) ([]*domain.Interest, error) {
	var dbInterests []*dbInterest
	query := `SELECT * FROM interests WHERE client_id = ? ORDER BY created_at DESC`

	err := repo.dbConn.Select(&dbInterests, repo.dbConn.Rebind(query), clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching interests for client %s : %w", clientID, err)
	}

	domainInterests := make([]*domain.Interest, len(dbInterests))
	for i, dbInterest := range dbInterests {
		domainInterests[i] = toDomainInterest(dbInterest)
	}
	return domainInterests, nil
}

// dbInteraction represents a recorded touchpoint as stored in the database.
type dbInteraction struct {
	ID          uuid.UUID    `db:"id"`
	ClientID    uuid.UUID    `db:"client_id"`
	AgentID     uuid.UUID    `db:"agent_id"`
	Kind        string       `db:"kind"`
	Subject     string       `db:"subject"`
	Notes       string       `db:"notes"`
	Completed   bool         `db:"completed"`
	ScheduledAt sql.NullTime `db:"scheduled_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

// fromDomainInteraction converts a domain.Interaction into a dbInteraction.
func fromDomainInteraction(interaction *domain.Interaction) *dbInteraction {
	dbInteraction := &dbInteraction{
		ID:        interaction.ID,
		ClientID:  interaction.ClientID,
		AgentID:   interaction.AgentID,
		Kind:      interaction.Kind,
		Subject:   interaction.Subject,
		Notes:     interaction.Notes,
		Completed: interaction.Completed,
		CreatedAt: interaction.CreatedAt,
	}

	if interaction.ScheduledAt != nil {
		dbInteraction.ScheduledAt = sql.NullTime{Time: *interaction.ScheduledAt, Valid: true}
	}

	if interaction.CompletedAt != nil {
		dbInteraction.CompletedAt = sql.NullTime{Time: *interaction.CompletedAt, Valid: true}
	}

	return dbInteraction
}

// toDomainInteraction converts a dbInteraction into a domain.Interaction.
func toDomainInteraction(dbInteraction *dbInteraction) *domain.Interaction {
	interaction := &domain.Interaction{
		ID:        dbInteraction.ID,
		ClientID:  dbInteraction.ClientID,
		AgentID:   dbInteraction.AgentID,
		Kind:      dbInteraction.Kind,
		Subject:   dbInteraction.Subject,
		Notes:     dbInteraction.Notes,
		Completed: dbInteraction.Completed,
		CreatedAt: dbInteraction.CreatedAt,
	}

	if dbInteraction.ScheduledAt.Valid {
		scheduled := dbInteraction.ScheduledAt.Time
		interaction.ScheduledAt = &scheduled
	}

	if dbInteraction.CompletedAt.Valid {
		completed := dbInteraction.CompletedAt.Time
		interaction.CompletedAt = &completed
	}

	return interaction
}

// InsertInteraction records an interaction with a client.
func (repo *Repository) InsertInteraction(interaction *domain.Interaction) error {
	dbInteraction := fromDomainInteraction(interaction)
	query := `INSERT INTO interactions (id, client_id, agent_id, kind, subject, notes, completed, scheduled_at, completed_at, created_at)
	          VALUES (:id, :client_id, :agent_id, :kind, :subject, :notes, :completed, :scheduled_at, :completed_at, :created_at)`

	_, err := repo.dbConn.NamedExec(query, dbInteraction)
	if err != nil {
		return fmt.Errorf("inserting interaction %s : %w", interaction.ID, err)
	}
	return nil
}

// GetInteractions retrieves a client's interactions, newest first.
func (repo *Repository) GetInteractions(clientID uuid.UUID) ([]*domain.Interaction, error) {
	var dbInteractions []*dbInteraction
	query := `SELECT * FROM interactions WHERE client_id = ? ORDER BY created_at DESC`

	err := repo.dbConn.Select(&dbInteractions, repo.dbConn.Rebind(query), clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching interactions for client %s : %w", clientID, err)
	}

	domainInteractions := make([]*domain.Interaction, len(dbInteractions))
	for i, dbInteraction := range dbInteractions {
		domainInteractions[i] = toDomainInteraction(dbInteraction)
	}
	return domainInteractions, nil
}

// CompleteInteraction marks a scheduled interaction as completed.
func (repo *Repository) CompleteInteraction(id uuid.UUID, at time.Time) error {
	query := `UPDATE interactions SET completed = TRUE, completed_at = ? WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), at, id)
	if err != nil {
		return fmt.Errorf("completing interaction %s : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for interaction %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no interaction found with id %s to complete", id)
	}
	return nil
}

// dbClientNote represents an agent note as stored in the database.
type dbClientNote struct {
	ID        uuid.UUID `db:"id"`
	ClientID  uuid.UUID `db:"client_id"`
	AuthorID  uuid.UUID `db:"author_id"`
	Body      string    `db:"body"`
	Important bool      `db:"important"`
	CreatedAt time.Time `db:"created_at"`
}

// toDomainClientNote converts a dbClientNote into a domain.ClientNote.
func toDomainClientNote(dbNote *dbClientNote) *domain.ClientNote {
	return &domain.ClientNote{
		ID:        dbNote.ID,
		ClientID:  dbNote.ClientID,
		AuthorID:  dbNote.AuthorID,
		Body:      dbNote.Body,
		Important: dbNote.Important,
		CreatedAt: dbNote.CreatedAt,
	}
}

// InsertClientNote saves a note on a client.
func (repo *Repository) InsertClientNote(note *domain.ClientNote) error {
	dbNote := &dbClientNote{
		ID:        note.ID,
		ClientID:  note.ClientID,
		AuthorID:  note.AuthorID,
		Body:      note.Body,
		Important: note.Important,
		CreatedAt: note.CreatedAt,
	}

	query := `INSERT INTO client_notes (id, client_id, author_id, body, important, created_at)
	          VALUES (:id, :client_id, :author_id, :body, :important, :created_at)`

	_, err := repo.dbConn.NamedExec(query, dbNote)
	if err != nil {
		return fmt.Errorf("inserting note %s : %w", note.ID, err)
	}
	return nil
}

// GetClientNotes retrieves a client's notes, newest first.
func (repo *Repository) GetClientNotes(clientID uuid.UUID) ([]*domain.ClientNote, error) {
	var dbNotes []*dbClientNote
	query := `SELECT * FROM client_notes WHERE client_id = ? ORDER BY created_at DESC`

	err := repo.dbConn.Select(&dbNotes, repo.dbConn.Rebind(query), clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching notes for client %s : %w", clientID, err)
	}

	domainNotes := make([]*domain.ClientNote, len(dbNotes))
	for i, dbNote := range dbNotes {
		domainNotes[i] = toDomainClientNote(dbNote)
	}
	return domainNotes, nil
}
