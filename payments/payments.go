// Package payments moves money. Reservation deposits and commission payouts
// go through Stripe payment intents; the webhook settles the stored payment
// rows and feeds the commission lifecycle the rest of the way.
package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/DIGIT-HABs/back/domain"
)

// Currency is the only currency the platform charges in.
const Currency = "eur"

// FeeRate is the platform's application fee percentage, retained on every
// payment.
var FeeRate = decimal.RequireFromString("2.9")

var (
	// ErrNoDeposit is returned when a reservation carries no deposit to charge.
	ErrNoDeposit = errors.New("the reservation carries no deposit")
	// ErrNotApproved is returned when a payout targets a commission that is
	// not in the approved status.
	ErrNotApproved = errors.New("only approved commissions can be paid")
	// ErrNotRefundable is returned when a refund targets a payment that never
	// succeeded.
	ErrNotRefundable = errors.New("only succeeded payments can be refunded")
	// ErrInvalidTransition is returned when a commission status change is not
	// allowed from its current status.
	ErrInvalidTransition = errors.New("transition not allowed from the commission's status")
)

// Service creates Stripe payment intents and settles them from webhook
// events. It also owns the commission lifecycle those payments conclude.
type Service struct {
	api           *client.API
	payments      domain.PaymentRepository
	commissions   domain.CommissionRepository
	reservations  domain.ReservationRepository
	profiles      domain.ProfileRepository
	webhookSecret string
	now           func() time.Time

	// OnCommissionPaid, when set, is called after a commission settles as
	// paid. The server points it at the automation engine.
	OnCommissionPaid func(commission *domain.Commission)
}

// NewService creates a payment service. The API client comes from
// NewStripeClient in production wiring.
func NewService(api *client.API, payments domain.PaymentRepository, commissions domain.CommissionRepository, reservations domain.ReservationRepository, profiles domain.ProfileRepository, webhookSecret string) *Service {
	return &Service{
		api:           api,
		payments:      payments,
		commissions:   commissions,
		reservations:  reservations,
		profiles:      profiles,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// NewStripeClient creates a Stripe API client for the given secret key.
func NewStripeClient(secretKey string) *client.API {
	api := &client.API{}
	api.Init(secretKey, nil)
	return api
}

// Intent pairs a stored payment row with the client secret the frontend
// needs to collect the payment.
type Intent struct {
	Payment      *domain.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret"`
}

// CreateDeposit opens a payment intent for a reservation's deposit and
// records the pending payment row. The intent amount is in cents; the
// metadata ties the intent back to the reservation and client.
func (service *Service) CreateDeposit(reservationID uuid.UUID) (*Intent, error) {
	reservation, err := service.reservations.GetReservation(reservationID)
	if err != nil {
		return nil, fmt.Errorf("fetching reservation %s : %w", reservationID, err)
	}
	if reservation.Deposit == nil || !reservation.Deposit.IsPositive() {
		return nil, ErrNoDeposit
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(toCents(*reservation.Deposit)),
		Currency:    stripe.String(Currency),
		Description: stripe.String("Acompte de réservation"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("reservation_id", reservation.ID.String())
	params.AddMetadata("client_id", reservation.ClientID.String())
	params.AddMetadata("type", "reservation_payment")

	intent, err := service.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating payment intent : %w", err)
	}

	payment, err := service.recordPayment(intent.ID, *reservation.Deposit, &reservation.ID, nil)
	if err != nil {
		return nil, err
	}
	return &Intent{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// CreateCommissionPayout opens a payment intent settling an approved
// commission. The commission flips to paid when the intent succeeds.
func (service *Service) CreateCommissionPayout(commissionID uuid.UUID) (*Intent, error) {
	commission, err := service.commissions.GetCommission(commissionID)
	if err != nil {
		return nil, fmt.Errorf("fetching commission %s : %w", commissionID, err)
	}
	if commission.Status != domain.CommissionApproved {
		return nil, fmt.Errorf("commission %s is %s : %w", commissionID, commission.Status, ErrNotApproved)
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(toCents(commission.Amount)),
		Currency:    stripe.String(Currency),
		Description: stripe.String("Commission agent"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("commission_id", commission.ID.String())
	params.AddMetadata("agent_id", commission.AgentID.String())
	params.AddMetadata("type", "commission_payout")

	intent, err := service.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating payment intent : %w", err)
	}

	payment, err := service.recordPayment(intent.ID, commission.Amount, nil, &commission.ID)
	if err != nil {
		return nil, err
	}
	return &Intent{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

func (service *Service) recordPayment(intentID string, amount decimal.Decimal, reservationID, commissionID *uuid.UUID) (*domain.Payment, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating payment id : %w", err)
	}

	now := service.now().UTC().Truncate(time.Millisecond)
	payment := &domain.Payment{
		ID:             id,
		ReservationID:  reservationID,
		CommissionID:   commissionID,
		IntentID:       intentID,
		Amount:         amount,
		Currency:       Currency,
		ApplicationFee: ApplicationFee(amount),
		Status:         domain.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := service.payments.InsertPayment(payment); err != nil {
		return nil, fmt.Errorf("saving payment : %w", err)
	}
	return payment, nil
}

// Refund refunds a succeeded payment in full and marks the row refunded.
func (service *Service) Refund(paymentID uuid.UUID, reason string) error {
	payment, err := service.payments.GetPayment(paymentID)
	if err != nil {
		return fmt.Errorf("fetching payment %s : %w", paymentID, err)
	}
	if payment.Status != domain.PaymentSucceeded {
		return fmt.Errorf("payment %s is %s : %w", paymentID, payment.Status, ErrNotRefundable)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payment.IntentID),
		Amount:        stripe.Int64(toCents(payment.Amount)),
	}
	if reason != "" {
		params.Reason = stripe.String(string(stripe.RefundReasonRequestedByCustomer))
	}
	params.AddMetadata("type", "reservation_refund")

	if _, err := service.api.Refunds.New(params); err != nil {
		return fmt.Errorf("creating refund : %w", err)
	}

	if err := service.payments.UpdatePaymentStatus(payment.ID, domain.PaymentRefunded, ""); err != nil {
		return fmt.Errorf("marking payment %s refunded : %w", paymentID, err)
	}
	return nil
}

// HandleWebhook verifies and applies a Stripe event. Succeeded intents
// settle their payment row, confirm the pending reservation they secure, and
// flip the approved commission they pay out; failed intents record the
// provider's reason. Events for intents the platform never opened are
// ignored so replays and foreign events stay harmless.
func (service *Service) HandleWebhook(payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, service.webhookSecret)
	if err != nil {
		return fmt.Errorf("verifying webhook signature : %w", err)
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return fmt.Errorf("decoding payment intent : %w", err)
		}
		return service.confirmPayment(intent.ID)
	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return fmt.Errorf("decoding payment intent : %w", err)
		}
		reason := "paiement refusé"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			reason = intent.LastPaymentError.Msg
		}
		return service.failPayment(intent.ID, reason)
	}
	return nil
}

func (service *Service) confirmPayment(intentID string) error {
	payment, err := service.payments.GetPaymentByIntent(intentID)
	if err != nil {
		log.Printf("warning: no payment for intent %s: %v, ignoring event", intentID, err)
		return nil
	}

	if err := service.payments.UpdatePaymentStatus(payment.ID, domain.PaymentSucceeded, ""); err != nil {
		return fmt.Errorf("marking payment %s succeeded : %w", payment.ID, err)
	}

	if payment.ReservationID != nil {
		if err := service.confirmReservation(*payment.ReservationID); err != nil {
			return err
		}
	}
	if payment.CommissionID != nil {
		if err := service.markCommissionPaid(*payment.CommissionID); err != nil {
			if errors.Is(err, ErrNotApproved) {
				log.Printf("warning: %v, leaving the commission untouched", err)
				return nil
			}
			return err
		}
	}
	return nil
}

func (service *Service) failPayment(intentID, reason string) error {
	payment, err := service.payments.GetPaymentByIntent(intentID)
	if err != nil {
		log.Printf("warning: no payment for intent %s: %v, ignoring event", intentID, err)
		return nil
	}

	if err := service.payments.UpdatePaymentStatus(payment.ID, domain.PaymentFailed, reason); err != nil {
		return fmt.Errorf("marking payment %s failed : %w", payment.ID, err)
	}

	if payment.CommissionID != nil {
		commission, err := service.commissions.GetCommission(*payment.CommissionID)
		if err != nil {
			return fmt.Errorf("fetching commission %s : %w", *payment.CommissionID, err)
		}
		commission.Notes = appendNote(commission.Notes, "[Échec] "+reason)
		commission.UpdatedAt = service.now().UTC().Truncate(time.Millisecond)
		if err := service.commissions.UpdateCommission(commission); err != nil {
			return fmt.Errorf("annotating commission %s : %w", commission.ID, err)
		}
	}
	return nil
}

func (service *Service) confirmReservation(reservationID uuid.UUID) error {
	reservation, err := service.reservations.GetReservation(reservationID)
	if err != nil {
		return fmt.Errorf("fetching reservation %s : %w", reservationID, err)
	}
	if reservation.Status != domain.ReservationPending {
		return nil
	}

	reservation.Status = domain.ReservationConfirmed
	reservation.UpdatedAt = service.now().UTC().Truncate(time.Millisecond)
	if err := service.reservations.UpdateReservation(reservation); err != nil {
		return fmt.Errorf("confirming reservation %s : %w", reservationID, err)
	}
	return nil
}

// ApplicationFee computes the platform's cut of an amount, in euros.
func ApplicationFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(FeeRate).Div(decimal.NewFromInt(100)).Round(2)
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// appendNote adds an annotation to existing notes, keeping earlier entries
// separated by a blank line.
func appendNote(notes, entry string) string {
	if notes == "" {
		return entry
	}
	return notes + "\n\n" + entry
}
