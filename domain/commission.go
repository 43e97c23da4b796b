package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Commission statuses. The chain is pending, approved, paid; cancellation is
// allowed from pending or approved.
const (
	CommissionPending   = "pending"
	CommissionApproved  = "approved"
	CommissionPaid      = "paid"
	CommissionCancelled = "cancelled"
)

// Transaction kinds a commission can be earned on.
const (
	TransactionSale   = "sale"
	TransactionRental = "rental"
)

// DefaultCommissionRate is the percentage applied when neither the agency nor
// the agent defines an override.
var DefaultCommissionRate = decimal.RequireFromString("3.00")

// CommissionRepository defines the interface for managing commissions.
type CommissionRepository interface {
	// InsertCommission saves a new commission.
	InsertCommission(commission *Commission) error
	// GetCommission retrieves a commission by ID.
	GetCommission(id uuid.UUID) (*Commission, error)
	// GetCommissions retrieves commissions filtered by agent and status.
	// Nil agent or empty status means no filter on that column.
	GetCommissions(agentID *uuid.UUID, status string) ([]*Commission, error)
	// UpdateCommission persists status transitions and note changes.
	UpdateCommission(commission *Commission) error
	// SumCommissions totals commission amounts per status for an agency over
	// a period.
	SumCommissions(agencyID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error)
}

// PaymentRepository defines the interface for payment records backing
// reservation deposits and commission payouts.
type PaymentRepository interface {
	// InsertPayment saves a new payment record.
	InsertPayment(payment *Payment) error
	// GetPayment retrieves a payment by ID.
	GetPayment(id uuid.UUID) (*Payment, error)
	// GetPaymentByIntent retrieves a payment by its provider intent ID.
	GetPaymentByIntent(intentID string) (*Payment, error)
	// UpdatePaymentStatus transitions a payment and records the failure
	// reason when the provider reports one.
	UpdatePaymentStatus(id uuid.UUID, status, failureReason string) error
}

// Commission represents an agent's commission on a closed transaction.
// The amount is always derived: base amount times rate divided by 100.
type Commission struct {
	ID          uuid.UUID       // Unique identifier for the commission.
	AgencyID    uuid.UUID       // Agency the commission is accounted under.
	AgentID     uuid.UUID       // Agent earning the commission.
	PropertyID  uuid.UUID       // Property the transaction closed on.
	Kind        string          // TransactionSale or TransactionRental.
	BaseAmount  decimal.Decimal // Transaction amount the rate applies to, in euros.
	Rate        decimal.Decimal // Commission percentage.
	Amount      decimal.Decimal // Computed commission, in euros.
	Status      string          // One of the Commission* constants.
	Notes       string          // Annotated on cancellation and payment failure.
	ApprovedBy  *uuid.UUID      // Admin who approved, nil while pending.
	ApprovedAt  *time.Time
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ComputeAmount derives the commission amount from the base amount and rate.
func (c *Commission) ComputeAmount() decimal.Decimal {
	return c.BaseAmount.Mul(c.Rate).Div(decimal.NewFromInt(100)).Round(2)
}

// Payment statuses follow the provider's intent lifecycle.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// Payment represents a Stripe payment intent created for a reservation
// deposit. The application fee is retained by the platform.
type Payment struct {
	ID             uuid.UUID       // Unique identifier for the payment.
	ReservationID  *uuid.UUID      // Reservation the deposit secures.
	CommissionID   *uuid.UUID      // Commission settled by this payment, if any.
	IntentID       string          // Stripe payment intent ID.
	Amount         decimal.Decimal // Charged amount in euros.
	Currency       string          // ISO currency code, "eur".
	ApplicationFee decimal.Decimal // Platform fee in euros.
	Status         string          // One of the Payment* constants.
	FailureReason  string          // Provider failure message, empty on success.
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
