package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.AppointmentRepository = (*Repository)(nil)

// dbAppointment represents a calendar appointment as stored in the database.
type dbAppointment struct {
	ID         uuid.UUID       `db:"id"`
	AgentID    uuid.UUID       `db:"agent_id"`
	ClientID   uuid.NullUUID   `db:"client_id"`
	PropertyID uuid.NullUUID   `db:"property_id"`
	Kind       string          `db:"kind"`
	Status     string          `db:"status"`
	StartsAt   time.Time       `db:"starts_at"`
	EndsAt     time.Time       `db:"ends_at"`
	Location   string          `db:"location"`
	Latitude   sql.NullFloat64 `db:"latitude"`
	Longitude  sql.NullFloat64 `db:"longitude"`
	Notes      string          `db:"notes"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// fromDomainAppointment converts a domain.Appointment into a dbAppointment.
func fromDomainAppointment(appointment *domain.Appointment) *dbAppointment {
	dbAppointment := &dbAppointment{
		ID:        appointment.ID,
		AgentID:   appointment.AgentID,
		Kind:      appointment.Kind,
		Status:    appointment.Status,
		StartsAt:  appointment.StartsAt,
		EndsAt:    appointment.EndsAt,
		Location:  appointment.Location,
		Notes:     appointment.Notes,
		CreatedAt: appointment.CreatedAt,
		UpdatedAt: appointment.UpdatedAt,
	}

	if appointment.ClientID != nil {
		dbAppointment.ClientID = uuid.NullUUID{UUID: *appointment.ClientID, Valid: true}
	}

	if appointment.PropertyID != nil {
		dbAppointment.PropertyID = uuid.NullUUID{UUID: *appointment.PropertyID, Valid: true}
	}

	if appointment.Latitude != nil {
		dbAppointment.Latitude = sql.NullFloat64{Float64: *appointment.Latitude, Valid: true}
	}

	if appointment.Longitude != nil {
		dbAppointment.Longitude = sql.NullFloat64{Float64: *appointment.Longitude, Valid: true}
	}

	return dbAppointment
}

// toDomainAppointment converts a dbAppointment into a domain.Appointment.
func toDomainAppointment(dbAppointment *dbAppointment) *domain.Appointment {
	appointment := &domain.Appointment{
		ID:        dbAppointment.ID,
		AgentID:   dbAppointment.AgentID,
		Kind:      dbAppointment.Kind,
		Status:    dbAppointment.Status,
		StartsAt:  dbAppointment.StartsAt,
		EndsAt:    dbAppointment.EndsAt,
		Location:  dbAppointment.Location,
		Notes:     dbAppointment.Notes,
		CreatedAt: dbAppointment.CreatedAt,
		UpdatedAt: dbAppointment.UpdatedAt,
	}

	if dbAppointment.ClientID.Valid {
		id := dbAppointment.ClientID.UUID
		appointment.ClientID = &id
	}

	if dbAppointment.PropertyID.Valid {
		id := dbAppointment.PropertyID.UUID
		appointment.PropertyID = &id
	}

	if dbAppointment.Latitude.Valid {
		lat := dbAppointment.Latitude.Float64
		appointment.Latitude = &lat
	}

	if dbAppointment.Longitude.Valid {
		lng := dbAppointment.Longitude.Float64
		appointment.Longitude = &lng
	}

	return appointment
}

// InsertAppointment saves a new appointment.
func (repo *Repository) InsertAppointment(appointment *domain.Appointment) error {
	dbAppointment := fromDomainAppointment(appointment)
	query := `INSERT INTO appointments (id, agent_id, client_id, property_id, kind, status, starts_at, ends_at, location, latitude, longitude, notes, created_at, updated_at)
	          VALUES (:id, :agent_id, :client_id, :property_id, :kind, :status, :starts_at, :ends_at, :location, :latitude, :longitude, :notes, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbAppointment)
	if err != nil {
		return fmt.Errorf("inserting appointment %s : %w", appointment.ID, err)
	}
	return nil
}

// GetAppointment retrieves an appointment by ID.
func (repo *Repository) GetAppointment(id uuid.UUID) (*domain.Appointment, error) {
	var dbAppointment dbAppointment
	query := `SELECT * FROM appointments WHERE id = ?`

	err := repo.dbConn.Get(&dbAppointment, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting appointment %s : %w", id, err)
	}

	return toDomainAppointment(&dbAppointment), nil
}

// GetAgentAppointments retrieves an agent's appointments overlapping the
// window, ordered by start time.
func (repo *Repository) GetAgentAppointments(agentID uuid.UUID, from, to time.Time) ([]*domain.Appointment, error) {
	var dbAppointments []*dbAppointment
	query := `SELECT * FROM appointments
	          WHERE agent_id = ? AND starts_at < ? AND ends_at > ?
	          ORDER BY starts_at ASC`

	err := repo.dbConn.Select(&dbAppointments, repo.dbConn.Rebind(query), agentID, to, from)
	if err != nil {
		return nil, fmt.Errorf("fetching appointments for agent %s : %w", agentID, err)
	}

	domainAppointments := make([]*domain.Appointment, len(dbAppointments))
	for i, dbAppointment := range dbAppointments {
		domainAppointments[i] = toDomainAppointment(dbAppointment)
	}
	return domainAppointments, nil
}

// GetPropertyAppointments retrieves the appointments booked on a property
// overlapping the window.
func (repo *Repository) GetPropertyAppointments(propertyID uuid.UUID, from, to time.Time) ([]*domain.Appointment, error) {
	var dbAppointments []*dbAppointment
	query := `SELECT * FROM appointments
	          WHERE property_id = ? AND starts_at < ? AND ends_at > ?
	          ORDER BY starts_at ASC`

	err := repo.dbConn.Select(&dbAppointments, repo.dbConn.Rebind(query), propertyID, to, from)
	if err != nil {
		return nil, fmt.Errorf("fetching appointments for property %s : %w", propertyID, err)
	}

	domainAppointments := make([]*domain.Appointment, len(dbAppointments))
	for i, dbAppointment := range dbAppointments {
		domainAppointments[i] = toDomainAppointment(dbAppointment)
	}
	return domainAppointments, nil
}

// UpdateAppointment updates an appointment's time, status, and notes.
func (repo *Repository) UpdateAppointment(appointment *domain.Appointment) error {
	dbAppointment := fromDomainAppointment(appointment)
	query := `UPDATE appointments SET
	            kind = :kind,
	            status = :status,
	            starts_at = :starts_at,
	            ends_at = :ends_at,
	            location = :location,
	            latitude = :latitude,
	            longitude = :longitude,
	            notes = :notes,
	            updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, dbAppointment)
	if err != nil {
		return fmt.Errorf("updating appointment %s : %w", appointment.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for appointment %s : %w", appointment.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no appointment found with id %s to update", appointment.ID)
	}
	return nil
}

// DeleteAppointment removes an appointment.
func (repo *Repository) DeleteAppointment(id uuid.UUID) error {
	query := `DELETE FROM appointments WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("deleting appointment %s : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion rows affected for appointment %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no appointment found with id %s to delete", id)
	}
	return nil
}
