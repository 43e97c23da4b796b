package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ domain.ReservationRepository = (*Repository)(nil)

// dbReservation represents a visit reservation as stored in the database.
type dbReservation struct {
	ID           uuid.UUID           `db:"id"`
	PropertyID   uuid.UUID           `db:"property_id"`
	ClientID     uuid.UUID           `db:"client_id"`
	AgentID      uuid.UUID           `db:"agent_id"`
	Kind         string              `db:"kind"`
	Status       string              `db:"status"`
	ScheduledAt  time.Time           `db:"scheduled_at"`
	Minutes      int                 `db:"minutes"`
	Participants int                 `db:"participants"`
	Deposit      decimal.NullDecimal `db:"deposit"`
	Notes        string              `db:"notes"`
	ReminderSent bool                `db:"reminder_sent"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
}

// fromDomainReservation converts a domain.Reservation into a dbReservation.
func fromDomainReservation(reservation *domain.Reservation) *dbReservation {
	dbReservation := &dbReservation{
		ID:           reservation.ID,
		PropertyID:   reservation.PropertyID,
		ClientID:     reservation.ClientID,
		AgentID:      reservation.AgentID,
		Kind:         reservation.Kind,
		Status:       reservation.Status,
		ScheduledAt:  reservation.ScheduledAt,
		Minutes:      reservation.Minutes,
		Participants: reservation.Participants,
		Notes:        reservation.Notes,
		ReminderSent: reservation.ReminderSent,
		CreatedAt:    reservation.CreatedAt,
		UpdatedAt:    reservation.UpdatedAt,
	}

	if reservation.Deposit != nil {
		dbReservation.Deposit = decimal.NullDecimal{Decimal: *reservation.Deposit, Valid: true}
	}

	return dbReservation
}

// toDomainReservation converts a dbReservation into a domain.Reservation.
func toDomainReservation(dbReservation *dbReservation) *domain.Reservation {
	reservation := &domain.Reservation{
		ID:           dbReservation.ID,
		PropertyID:   dbReservation.PropertyID,
		ClientID:     dbReservation.ClientID,
		AgentID:      dbReservation.AgentID,
		Kind:         dbReservation.Kind,
		Status:       dbReservation.Status,
		ScheduledAt:  dbReservation.ScheduledAt,
		Minutes:      dbReservation.Minutes,
		Participants: dbReservation.Participants,
		Notes:        dbReservation.Notes,
		ReminderSent: dbReservation.ReminderSent,
		CreatedAt:    dbReservation.CreatedAt,
		UpdatedAt:    dbReservation.UpdatedAt,
	}

	if dbReservation.Deposit.Valid {
		deposit := dbReservation.Deposit.Decimal
		reservation.Deposit = &deposit
	}

	return reservation
}

// InsertReservation saves a new reservation.
func (repo *Repository) InsertReservation(reservation *domain.Reservation) error {
	dbReservation := fromDomainReservation(reservation)
	query := `INSERT INTO reservations (id, property_id, client_id, agent_id, kind, status, scheduled_at, minutes, participants, deposit, notes, reminder_sent, created_at, updated_at)
	          VALUES (:id, :property_id, :client_id, :agent_id, :kind, :status, :scheduled_at, :minutes, :participants, :deposit, :notes, :reminder_sent, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbReservation)
	if err != nil {
		return fmt.Errorf("inserting reservation %s : %w", reservation.ID, err)
	}
	return nil
}

// GetReservation retrieves a reservation by ID.
func (repo *Repository) GetReservation(id uuid.UUID) (*domain.Reservation, error) {
	var dbReservation dbReservation
	query := `SELECT * FROM reservations WHERE id = ?`

	err := repo.dbConn.Get(&dbReservation, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting reservation %s : %w", id, err)
	}

	return toDomainReservation(&dbReservation), nil
}

// GetReservations retrieves reservations filtered by property, client, and
// status, soonest first.
func (repo *Repository) GetReservations(propertyID, clientID *uuid.UUID, status string) ([]*domain.Reservation, error) {
	query := `SELECT * FROM reservations`

	var conditions []string
	var args []any
	if propertyID != nil {
		conditions = append(conditions, "property_id = ?")
		args = append(args, *propertyID)
	}
	if clientID != nil {
		conditions = append(conditions, "client_id = ?")
		args = append(args, *clientID)
	}
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scheduled_at ASC"

	var dbReservations []*dbReservation
	err := repo.dbConn.Select(&dbReservations, repo.dbConn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching reservations : %w", err)
	}

	domainReservations := make([]*domain.Reservation, len(dbReservations))
	for i, dbReservation := range dbReservations {
		domainReservations[i] = toDomainReservation(dbReservation)
	}
	return domainReservations, nil
}

// GetPropertyReservations retrieves the active reservations on a property
// overlapping the window. The end of a slot is derived from its duration, so
// the query over-fetches by a day and the precise overlap check happens here.
func (repo *Repository) GetPropertyReservations(propertyID uuid.UUID, from, to time.Time) ([]*domain.Reservation, error) {
	var dbReservations []*dbReservation
	query := `SELECT * FROM reservations
	          WHERE property_id = ? AND status IN ('pending', 'confirmed')
	            AND scheduled_at < ? AND scheduled_at > ?
	          ORDER BY scheduled_at ASC`

	err := repo.dbConn.Select(&dbReservations, repo.dbConn.Rebind(query), propertyID, to, from.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("fetching reservations for property %s : %w", propertyID, err)
	}

	var domainReservations []*domain.Reservation
	for _, dbReservation := range dbReservations {
		reservation := toDomainReservation(dbReservation)
		if reservation.EndsAt().After(from) {
			domainReservations = append(domainReservations, reservation)
		}
	}
	return domainReservations, nil
}

// GetAgentReservations retrieves the active reservations of an agent
// overlapping the window, with the same over-fetch as property lookups.
func (repo *Repository) GetAgentReservations(agentID uuid.UUID, from, to time.Time) ([]*domain.Reservation, error) {
	var dbReservations []*dbReservation
	query := `SELECT * FROM reservations
	          WHERE agent_id = ? AND status IN ('pending', 'confirmed')
	            AND scheduled_at < ? AND scheduled_at > ?
	          ORDER BY scheduled_at ASC`

	err := repo.dbConn.Select(&dbReservations, repo.dbConn.Rebind(query), agentID, to, from.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("fetching reservations for agent %s : %w", agentID, err)
	}

	var domainReservations []*domain.Reservation
	for _, dbReservation := range dbReservations {
		reservation := toDomainReservation(dbReservation)
		if reservation.EndsAt().After(from) {
			domainReservations = append(domainReservations, reservation)
		}
	}
	return domainReservations, nil
}

// UpdateReservation persists status transitions and detail changes.
func (repo *Repository) UpdateReservation(reservation *domain.Reservation) error {
	dbReservation := fromDomainReservation(reservation)
	query := `UPDATE reservations SET
	            kind = :kind,
	            status = :status,
	            scheduled_at = :scheduled_at,
	            minutes = :minutes,
	            participants = :participants,
	            deposit = :deposit,
	            notes = :notes,
	            reminder_sent = :reminder_sent,
	            updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, dbReservation)
	if err != nil {
		return fmt.Errorf("updating reservation %s : %w", reservation.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for reservation %s : %w", reservation.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no reservation found with id %s to update", reservation.ID)
	}
	return nil
}

// ExpirePending marks pending reservations whose scheduled time is older
// than the cutoff as expired, returning how many rows changed.
func (repo *Repository) ExpirePending(cutoff time.Time) (int, error) {
	query := `UPDATE reservations SET status = 'expired', updated_at = CURRENT_TIMESTAMP
	          WHERE status = 'pending' AND scheduled_at < ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), cutoff)
	if err != nil {
		return 0, fmt.Errorf("expiring pending reservations : %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking expired rows affected : %w", err)
	}

	return int(rowsAffected), nil
}

// GetDueReminders retrieves confirmed reservations scheduled within the
// window whose reminder has not been sent.
func (repo *Repository) GetDueReminders(from, to time.Time) ([]*domain.Reservation, error) {
	var dbReservations []*dbReservation
	query := `SELECT * FROM reservations
	          WHERE status = 'confirmed' AND reminder_sent = FALSE
	            AND scheduled_at >= ? AND scheduled_at < ?
	          ORDER BY scheduled_at ASC`

	err := repo.dbConn.Select(&dbReservations, repo.dbConn.Rebind(query), from, to)
	if err != nil {
		return nil, fmt.Errorf("fetching due reminders : %w", err)
	}

	domainReservations := make([]*domain.Reservation, len(dbReservations))
	for i, dbReservation := range dbReservations {
		domainReservations[i] = toDomainReservation(dbReservation)
	}
	return domainReservations, nil
}

// MarkReminderSent flags the reservation's reminder as sent.
func (repo *Repository) MarkReminderSent(id uuid.UUID) error {
	query := `UPDATE reservations SET reminder_sent = TRUE WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("marking reminder sent for reservation %s : %w", id, err)
	}
	return nil
}
