package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ domain.CommissionRepository = (*Repository)(nil)
var _ domain.PaymentRepository = (*Repository)(nil)

// dbCommission represents an agent commission as stored in the database.
// Monetary columns go through decimal.Decimal so amounts survive the
// round-trip without floating point drift.
type dbCommission struct {
	ID         uuid.UUID       `db:"id"`
	AgencyID   uuid.UUID       `db:"agency_id"`
	AgentID    uuid.UUID       `db:"agent_id"`
	PropertyID uuid.UUID       `db:"property_id"`
	Kind       string          `db:"kind"`
	BaseAmount decimal.Decimal `db:"base_amount"`
	Rate       decimal.Decimal `db:"rate"`
	Amount     decimal.Decimal `db:"amount"`
	Status     string          `db:"status"`
	Notes      string          `db:"notes"`
	ApprovedBy uuid.NullUUID   `db:"approved_by"`
	ApprovedAt sql.NullTime    `db:"approved_at"`
	PaidAt     sql.NullTime    `db:"paid_at"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// fromDomainCommission converts a domain.Commission into a dbCommission.
func fromDomainCommission(commission *domain.Commission) *dbCommission {
	dbCommission := &dbCommission{
		ID:         commission.ID,
		AgencyID:   commission.AgencyID,
		AgentID:    commission.AgentID,
		PropertyID: commission.PropertyID,
		Kind:       commission.Kind,
		BaseAmount: commission.BaseAmount,
		Rate:       commission.Rate,
		Amount:     commission.Amount,
		Status:     commission.Status,
		Notes:      commission.Notes,
		CreatedAt:  commission.CreatedAt,
		UpdatedAt:  commission.UpdatedAt,
	}

	if commission.ApprovedBy != nil {
		dbCommission.ApprovedBy = uuid.NullUUID{UUID: *commission.ApprovedBy, Valid: true}
	}

	if commission.ApprovedAt != nil {
		dbCommission.ApprovedAt = sql.NullTime{Time: *commission.ApprovedAt, Valid: true}
	}

	if commission.PaidAt != nil {
		dbCommission.PaidAt = sql.NullTime{Time: *commission.PaidAt, Valid: true}
	}

	return dbCommission
}

// toDomainCommission converts a dbCommission into a domain.Commission.
func toDomainCommission(dbCommission *dbCommission) *domain.Commission {
	commission := &domain.Commission{
		ID:         dbCommission.ID,
		AgencyID:   dbCommission.AgencyID,
		AgentID:    dbCommission.AgentID,
		PropertyID: dbCommission.PropertyID,
		Kind:       dbCommission.Kind,
		BaseAmount: dbCommission.BaseAmount,
		Rate:       dbCommission.Rate,
		Amount:     dbCommission.Amount,
		Status:     dbCommission.Status,
		Notes:      dbCommission.Notes,
		CreatedAt:  dbCommission.CreatedAt,
		UpdatedAt:  dbCommission.UpdatedAt,
	}

	if dbCommission.ApprovedBy.Valid {
		id := dbCommission.ApprovedBy.UUID
		commission.ApprovedBy = &id
	}

	if dbCommission.ApprovedAt.Valid {
		approved := dbCommission.ApprovedAt.Time
		commission.ApprovedAt = &approved
	}

	if dbCommission.PaidAt.Valid {
		paid := dbCommission.PaidAt.Time
		commission.PaidAt = &paid
	}

	return commission
}

// InsertCommission saves a new commission.
func (repo *Repository) InsertCommission(commission *domain.Commission) error {
	dbCommission := fromDomainCommission(commission)
	query := `INSERT INTO commissions (id, agency_id, agent_id, property_id, kind, base_amount, rate, amount, status, notes, approved_by, approved_at, paid_at, created_at, updated_at)
	          VALUES (:id, :agency_id, :agent_id, :property_id, :kind, :base_amount, :rate, :amount, :status, :notes, :approved_by, :approved_at, :paid_at, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbCommission)
	if err != nil {
		return fmt.Errorf("inserting commission %s : %w", commission.ID, err)
	}
	return nil
}

// GetCommission retrieves a commission by ID.
func (repo *Repository) GetCommission(id uuid.UUID) (*domain.Commission, error) {
	var dbCommission dbCommission
	query := `SELECT * FROM commissions WHERE id = ?`

	err := repo.dbConn.Get(&dbCommission, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting commission %s : %w", id, err)
	}

	return toDomainCommission(&dbCommission), nil
}

// GetCommissions retrieves commissions filtered by agent and status, newest
// first.
func (repo *Repository) GetCommissions(agentID *uuid.UUID, status string) ([]*domain.Commission, error) {
	query := `SELECT * FROM commissions`

	var conditions []string
	var args []any
	if agentID != nil {
		conditions = append(conditions, "agent_id = ?")
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

	var dbCommissions []*dbCommission
	err := repo.dbConn.Select(&dbCommissions, repo.dbConn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching commissions : %w", err)
	}

	domainCommissions := make([]*domain.Commission, len(dbCommissions))
	for i, dbCommission := range dbCommissions {
		domainCommissions[i] = toDomainCommission(dbCommission)
	}
	return domainCommissions, nil
}

// UpdateCommission persists status transitions and note changes.
func (repo *Repository) UpdateCommission(commission *domain.Commission) error {
	dbCommission := fromDomainCommission(commission)
	query := `UPDATE commissions SET
	            status = :status,
	            notes = :notes,
	            approved_by = :approved_by,
	            approved_at = :approved_at,
	            paid_at = :paid_at,
	            updated_at = :updated_at
	          WHERE id = :id`

	result, err := repo.dbConn.NamedExec(query, dbCommission)
	if err != nil {
		return fmt.Errorf("updating commission %s : %w", commission.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for commission %s : %w", commission.ID, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no commission found with id %s to update", commission.ID)
	}
	return nil
}

// SumCommissions totals commission amounts per status for an agency over a
// period.
func (repo *Repository) SumCommissions(agencyID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error) {
	var rows []struct {
		Status string          `db:"status"`
		Total  decimal.Decimal `db:"total"`
	}

	query := `SELECT status, SUM(amount) AS total FROM commissions
	          WHERE agency_id = ? AND created_at >= ? AND created_at < ?
	          GROUP BY status`

	err := repo.dbConn.Select(&rows, repo.dbConn.Rebind(query), agencyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("summing commissions for agency %s : %w", agencyID, err)
	}

	totals := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.Status] = row.Total
	}
	return totals, nil
}

// dbPayment represents a payment record as stored in the database.
type dbPayment struct {
	ID             uuid.UUID       `db:"id"`
	ReservationID  uuid.NullUUID   `db:"reservation_id"`
	CommissionID   uuid.NullUUID   `db:"commission_id"`
	IntentID       string          `db:"intent_id"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	ApplicationFee decimal.Decimal `db:"application_fee"`
	Status         string          `db:"status"`
	FailureReason  string          `db:"failure_reason"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// fromDomainPayment converts a domain.Payment into a dbPayment.
func fromDomainPayment(payment *domain.Payment) *dbPayment {
	dbPayment := &dbPayment{
		ID:             payment.ID,
		IntentID:       payment.IntentID,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		ApplicationFee: payment.ApplicationFee,
		Status:         payment.Status,
		FailureReason:  payment.FailureReason,
		CreatedAt:      payment.CreatedAt,
		UpdatedAt:      payment.UpdatedAt,
	}

	if payment.ReservationID != nil {
		dbPayment.ReservationID = uuid.NullUUID{UUID: *payment.ReservationID, Valid: true}
	}

	if payment.CommissionID != nil {
		dbPayment.CommissionID = uuid.NullUUID{UUID: *payment.CommissionID, Valid: true}
	}

	return dbPayment
}

// toDomainPayment converts a dbPayment into a domain.Payment.
func toDomainPayment(dbPayment *dbPayment) *domain.Payment {
	payment := &domain.Payment{
		ID:             dbPayment.ID,
		IntentID:       dbPayment.IntentID,
		Amount:         dbPayment.Amount,
		Currency:       dbPayment.Currency,
		ApplicationFee: dbPayment.ApplicationFee,
		Status:         dbPayment.Status,
		FailureReason:  dbPayment.FailureReason,
		CreatedAt:      dbPayment.CreatedAt,
		UpdatedAt:      dbPayment.UpdatedAt,
	}

	if dbPayment.ReservationID.Valid {
		id := dbPayment.ReservationID.UUID
		payment.ReservationID = &id
	}

	if dbPayment.CommissionID.Valid {
		id := dbPayment.CommissionID.UUID
		payment.CommissionID = &id
	}

	return payment
}

// InsertPayment saves a new payment record.
func (repo *Repository) InsertPayment(payment *domain.Payment) error {
	dbPayment := fromDomainPayment(payment)
	query := `INSERT INTO payments (id, reservation_id, commission_id, intent_id, amount, currency, application_fee, status, failure_reason, created_at, updated_at)
	          VALUES (:id, :reservation_id, :commission_id, :intent_id, :amount, :currency, :application_fee, :status, :failure_reason, :created_at, :updated_at)`

	_, err := repo.dbConn.NamedExec(query, dbPayment)
	if err != nil {
		return fmt.Errorf("inserting payment %s : %w", payment.IntentID, err)
	}
	return nil
}

// GetPayment retrieves a payment by ID.
func (repo *Repository) GetPayment(id uuid.UUID) (*domain.Payment, error) {
	var dbPayment dbPayment
	query := `SELECT * FROM payments WHERE id = ?`

	err := repo.dbConn.Get(&dbPayment, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("getting payment %s : %w", id, err)
	}

	return toDomainPayment(&dbPayment), nil
}

// GetPaymentByIntent retrieves a payment by its provider intent ID. Webhook
// events carry the intent ID, not our payment ID.
func (repo *Repository) GetPaymentByIntent(intentID string) (*domain.Payment, error) {
	var dbPayment dbPayment
	query := `SELECT * FROM payments WHERE intent_id = ?`

	err := repo.dbConn.Get(&dbPayment, repo.dbConn.Rebind(query), intentID)
	if err != nil {
		return nil, fmt.Errorf("getting payment for intent %s : %w", intentID, err)
	}

	return toDomainPayment(&dbPayment), nil
}

// UpdatePaymentStatus transitions a payment and records the failure reason
// when the provider reports one.
func (repo *Repository) UpdatePaymentStatus(id uuid.UUID, status, failureReason string) error {
	query := `UPDATE payments SET status = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), status, failureReason, id)
	if err != nil {
		return fmt.Errorf("updating payment %s status : %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for payment %s : %w", id, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no payment found with id %s to update", id)
	}
	return nil
}
