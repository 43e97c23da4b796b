package payments

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/DIGIT-HABs/back/db"
	"github.com/DIGIT-HABs/back/domain"
)

const testWebhookSecret = "whsec_digithab_test"

// stripeStub answers payment intent and refund creations with canned
// responses, recording the form bodies the client sent.
type stripeStub struct {
	mu       sync.Mutex
	requests map[string][]url.Values
}

func newStripeStub() *stripeStub {
	return &stripeStub{requests: make(map[string][]url.Values)}
}

func (stub *stripeStub) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseForm(); err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	stub.mu.Lock()
	stub.requests[request.URL.Path] = append(stub.requests[request.URL.Path], request.PostForm)
	stub.mu.Unlock()

	writer.Header().Set("Content-Type", "application/json")
	switch request.URL.Path {
	case "/v1/payment_intents":
		fmt.Fprint(writer, `{"id":"pi_test_1","object":"payment_intent","status":"requires_payment_method","client_secret":"pi_test_1_secret_k3y"}`)
	case "/v1/refunds":
		fmt.Fprint(writer, `{"id":"re_test_1","object":"refund","status":"succeeded"}`)
	default:
		http.NotFound(writer, request)
	}
}

func (stub *stripeStub) sent(path string) []url.Values {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return stub.requests[path]
}

func setupTestService(t *testing.T, stub *stripeStub) (*Service, *db.Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("creating temp db file: %v", err)
	}

	dbConn, err := db.New(db.DialectSQLite, tempFile.Name())
	if err != nil {
		t.Fatalf("connecting to test db: %v", err)
	}
	repo := db.NewCRMRepo(dbConn)

	server := httptest.NewServer(stub)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(server.URL),
		HTTPClient:        server.Client(),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		MaxNetworkRetries: stripe.Int64(0),
	})
	api := &client.API{}
	api.Init("sk_test_digithab", &stripe.Backends{API: backend})

	service := NewService(api, repo, repo, repo, repo, testWebhookSecret)
	return service, repo, func() {
		server.Close()
		repo.Close()
	}
}

func seedAgency(t *testing.T, repo *db.Repository) *domain.Agency {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	agency := &domain.Agency{
		ID:            id,
		Name:          "Agence du Port",
		Slug:          "agence-du-port-" + id.String()[:8],
		Plan:          domain.PlanBasic,
		MaxAgents:     domain.DefaultMaxAgents,
		MaxProperties: domain.DefaultMaxProperties,
		MaxClients:    domain.DefaultMaxClients,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = repo.InsertAgency(agency)
	if err != nil {
		t.Fatalf("creating test agency : %v", err)
	}

	return agency
}

func seedUser(t *testing.T, repo *db.Repository, role string, agencyID uuid.UUID) *domain.User {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	user := &domain.User{
		ID:        id,
		Email:     id.String()[:13] + "@digit-hab.com",
		Username:  "user_" + id.String()[:13],
		FirstName: "Camille",
		LastName:  "Durand",
		Role:      role,
		AgencyID:  &agencyID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = repo.InsertUser(user)
	if err != nil {
		t.Fatalf("creating test user : %v", err)
	}

	return user
}

func seedProperty(t *testing.T, repo *db.Repository, agencyID uuid.UUID) *domain.Property {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	property := &domain.Property{
		ID:        id,
		AgencyID:  agencyID,
		Reference: "APT-" + id.String()[:8],
		Title:     "T3 quai de la Fosse",
		Type:      domain.PropertyTypeApartment,
		Status:    domain.PropertyStatusAvailable,
		Price:     decimal.RequireFromString("285000"),
		Surface:   72,
		Rooms:     3,
		City:      "Nantes",
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = repo.InsertProperty(property)
	if err != nil {
		t.Fatalf("creating test property : %v", err)
	}

	return property
}

func seedReservation(t *testing.T, repo *db.Repository, propertyID, clientID, agentID uuid.UUID, deposit *decimal.Decimal) *domain.Reservation {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	reservation := &domain.Reservation{
		ID:           id,
		PropertyID:   propertyID,
		ClientID:     clientID,
		AgentID:      agentID,
		Kind:         domain.ReservationPurchase,
		Status:       domain.ReservationPending,
		ScheduledAt:  now.Add(48 * time.Hour),
		Minutes:      domain.DefaultReservationMinutes,
		Participants: 2,
		Deposit:      deposit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = repo.InsertReservation(reservation)
	if err != nil {
		t.Fatalf("creating test reservation : %v", err)
	}

	return reservation
}

func seedCommission(t *testing.T, repo *db.Repository, agencyID, agentID, propertyID uuid.UUID, status string) *domain.Commission {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	commission := &domain.Commission{
		ID:         id,
		AgencyID:   agencyID,
		AgentID:    agentID,
		PropertyID: propertyID,
		Kind:       domain.TransactionSale,
		BaseAmount: decimal.RequireFromString("285000"),
		Rate:       domain.DefaultCommissionRate,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	commission.Amount = commission.ComputeAmount()
	if status == domain.CommissionApproved || status == domain.CommissionPaid {
		commission.ApprovedBy = &agentID
		commission.ApprovedAt = &now
	}

	err = repo.InsertCommission(commission)
	if err != nil {
		t.Fatalf("creating test commission : %v", err)
	}

	return commission
}

func signEvent(t *testing.T, payload []byte) string {
	t.Helper()

	timestamp := time.Now()
	signature := webhook.ComputeSignature(timestamp, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(signature))
}

func intentEvent(t *testing.T, eventType, intentID, failureMessage string) []byte {
	t.Helper()

	object := map[string]any{"id": intentID, "object": "payment_intent"}
	if failureMessage != "" {
		object["last_payment_error"] = map[string]any{"message": failureMessage}
	}
	payload, err := json.Marshal(map[string]any{
		"id":     "evt_test_1",
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("encoding event: %v", err)
	}
	return payload
}

func TestService_CreateDeposit(t *testing.T) {
	t.Run("should open an intent in cents and record the pending payment", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		buyer := seedUser(t, repo, domain.RoleClient, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		deposit := decimal.RequireFromString("1500.00")
		reservation := seedReservation(t, repo, property.ID, buyer.ID, agent.ID, &deposit)

		intent, err := service.CreateDeposit(reservation.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		calls := stub.sent("/v1/payment_intents")
		if len(calls) != 1 {
			t.Fatalf("\nwanted:\n1 intent call\ngot:\n%d", len(calls))
		}
		form := calls[0]
		if got := form.Get("amount"); got != "150000" {
			t.Errorf("\nwanted:\namount 150000\ngot:\n%s", got)
		}
		if got := form.Get("currency"); got != "eur" {
			t.Errorf("\nwanted:\ncurrency eur\ngot:\n%s", got)
		}
		if got := form.Get("automatic_payment_methods[enabled]"); got != "true" {
			t.Errorf("\nwanted:\nautomatic payment methods enabled\ngot:\n%q", got)
		}
		if got := form.Get("metadata[reservation_id]"); got != reservation.ID.String() {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", reservation.ID, got)
		}
		if got := form.Get("metadata[client_id]"); got != buyer.ID.String() {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", buyer.ID, got)
		}
		if got := form.Get("metadata[type]"); got != "reservation_payment" {
			t.Errorf("\nwanted:\nreservation_payment\ngot:\n%s", got)
		}

		if intent.ClientSecret != "pi_test_1_secret_k3y" {
			t.Errorf("\nwanted:\npi_test_1_secret_k3y\ngot:\n%s", intent.ClientSecret)
		}

		payment, err := repo.GetPaymentByIntent("pi_test_1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if payment.Status != domain.PaymentPending {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.PaymentPending, payment.Status)
		}
		if payment.ReservationID == nil || *payment.ReservationID != reservation.ID {
			t.Errorf("\nwanted:\nreservation %s\ngot:\n%v", reservation.ID, payment.ReservationID)
		}
		if !payment.Amount.Equal(deposit) {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", deposit, payment.Amount)
		}
		if !payment.ApplicationFee.Equal(decimal.RequireFromString("43.50")) {
			t.Errorf("\nwanted:\n43.50\ngot:\n%s", payment.ApplicationFee)
		}
	})

	t.Run("should refuse a reservation without a deposit", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		visitor := seedUser(t, repo, domain.RoleClient, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		reservation := seedReservation(t, repo, property.ID, visitor.ID, agent.ID, nil)

		_, err := service.CreateDeposit(reservation.ID)
		if !errors.Is(err, ErrNoDeposit) {
			t.Fatalf("\nwanted:\nErrNoDeposit\ngot:\n%v", err)
		}
		if len(stub.sent("/v1/payment_intents")) != 0 {
			t.Errorf("\nwanted:\nno intent call\ngot:\n%d", len(stub.sent("/v1/payment_intents")))
		}
	})
}

func TestService_CreateCommissionPayout(t *testing.T) {
	t.Run("should open an intent for an approved commission", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionApproved)

		intent, err := service.CreateCommissionPayout(commission.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		form := stub.sent("/v1/payment_intents")[0]
		if got := form.Get("amount"); got != "855000" {
			t.Errorf("\nwanted:\namount 855000\ngot:\n%s", got)
		}
		if got := form.Get("metadata[commission_id]"); got != commission.ID.String() {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", commission.ID, got)
		}
		if got := form.Get("metadata[agent_id]"); got != agent.ID.String() {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", agent.ID, got)
		}
		if got := form.Get("metadata[type]"); got != "commission_payout" {
			t.Errorf("\nwanted:\ncommission_payout\ngot:\n%s", got)
		}

		if intent.Payment.CommissionID == nil || *intent.Payment.CommissionID != commission.ID {
			t.Errorf("\nwanted:\ncommission %s\ngot:\n%v", commission.ID, intent.Payment.CommissionID)
		}
	})

	t.Run("should refuse a commission that is not approved", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionPending)

		_, err := service.CreateCommissionPayout(commission.ID)
		if !errors.Is(err, ErrNotApproved) {
			t.Fatalf("\nwanted:\nErrNotApproved\ngot:\n%v", err)
		}
	})
}

func TestService_HandleWebhook(t *testing.T) {
	t.Run("should settle the payment and confirm the reservation on success", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		buyer := seedUser(t, repo, domain.RoleClient, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		deposit := decimal.RequireFromString("1500.00")
		reservation := seedReservation(t, repo, property.ID, buyer.ID, agent.ID, &deposit)

		if _, err := service.CreateDeposit(reservation.ID); err != nil {
			t.Fatalf("creating deposit intent : %v", err)
		}

		payload := intentEvent(t, "payment_intent.succeeded", "pi_test_1", "")
		if err := service.HandleWebhook(payload, signEvent(t, payload)); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		payment, err := repo.GetPaymentByIntent("pi_test_1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if payment.Status != domain.PaymentSucceeded {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.PaymentSucceeded, payment.Status)
		}

		confirmed, err := repo.GetReservation(reservation.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if confirmed.Status != domain.ReservationConfirmed {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.ReservationConfirmed, confirmed.Status)
		}
	})

	t.Run("should flip the approved commission to paid", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionApproved)

		if _, err := service.CreateCommissionPayout(commission.ID); err != nil {
			t.Fatalf("creating payout intent : %v", err)
		}

		payload := intentEvent(t, "payment_intent.succeeded", "pi_test_1", "")
		if err := service.HandleWebhook(payload, signEvent(t, payload)); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		paid, err := repo.GetCommission(commission.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if paid.Status != domain.CommissionPaid {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.CommissionPaid, paid.Status)
		}
		if paid.PaidAt == nil {
			t.Error("\nwanted:\na paid timestamp\ngot:\nnil")
		}
	})

	t.Run("should record the provider reason on failure", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionApproved)

		if _, err := service.CreateCommissionPayout(commission.ID); err != nil {
			t.Fatalf("creating payout intent : %v", err)
		}

		payload := intentEvent(t, "payment_intent.payment_failed", "pi_test_1", "Votre carte a été refusée.")
		if err := service.HandleWebhook(payload, signEvent(t, payload)); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		payment, err := repo.GetPaymentByIntent("pi_test_1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if payment.Status != domain.PaymentFailed {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.PaymentFailed, payment.Status)
		}
		if payment.FailureReason != "Votre carte a été refusée." {
			t.Errorf("\nwanted:\nthe provider reason\ngot:\n%q", payment.FailureReason)
		}

		annotated, err := repo.GetCommission(commission.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if annotated.Notes != "[Échec] Votre carte a été refusée." {
			t.Errorf("\nwanted:\nthe failure note\ngot:\n%q", annotated.Notes)
		}
		if annotated.Status != domain.CommissionApproved {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.CommissionApproved, annotated.Status)
		}
	})

	t.Run("should reject a forged signature", func(t *testing.T) {
		stub := newStripeStub()
		service, _, teardown := setupTestService(t, stub)
		defer teardown()

		payload := intentEvent(t, "payment_intent.succeeded", "pi_test_1", "")
		header := fmt.Sprintf("t=%d,v1=%s", time.Now().Unix(), "deadbeef")

		if err := service.HandleWebhook(payload, header); err == nil {
			t.Fatal("\nwanted:\na signature error\ngot:\nnil")
		}
	})

	t.Run("should ignore events for intents it never opened", func(t *testing.T) {
		stub := newStripeStub()
		service, _, teardown := setupTestService(t, stub)
		defer teardown()

		payload := intentEvent(t, "payment_intent.succeeded", "pi_elsewhere", "")
		if err := service.HandleWebhook(payload, signEvent(t, payload)); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
	})
}

func TestService_Refund(t *testing.T) {
	t.Run("should refund a succeeded payment in full", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		buyer := seedUser(t, repo, domain.RoleClient, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		deposit := decimal.RequireFromString("1500.00")
		reservation := seedReservation(t, repo, property.ID, buyer.ID, agent.ID, &deposit)

		intent, err := service.CreateDeposit(reservation.ID)
		if err != nil {
			t.Fatalf("creating deposit intent : %v", err)
		}
		if err := repo.UpdatePaymentStatus(intent.Payment.ID, domain.PaymentSucceeded, ""); err != nil {
			t.Fatalf("settling test payment : %v", err)
		}

		if err := service.Refund(intent.Payment.ID, "Visite annulée"); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		form := stub.sent("/v1/refunds")[0]
		if got := form.Get("payment_intent"); got != "pi_test_1" {
			t.Errorf("\nwanted:\npi_test_1\ngot:\n%s", got)
		}
		if got := form.Get("amount"); got != "150000" {
			t.Errorf("\nwanted:\namount 150000\ngot:\n%s", got)
		}
		if got := form.Get("reason"); got != "requested_by_customer" {
			t.Errorf("\nwanted:\nrequested_by_customer\ngot:\n%s", got)
		}

		refunded, err := repo.GetPayment(intent.Payment.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if refunded.Status != domain.PaymentRefunded {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.PaymentRefunded, refunded.Status)
		}
	})

	t.Run("should refuse to refund a payment that never succeeded", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		buyer := seedUser(t, repo, domain.RoleClient, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		deposit := decimal.RequireFromString("1500.00")
		reservation := seedReservation(t, repo, property.ID, buyer.ID, agent.ID, &deposit)

		intent, err := service.CreateDeposit(reservation.ID)
		if err != nil {
			t.Fatalf("creating deposit intent : %v", err)
		}

		err = service.Refund(intent.Payment.ID, "")
		if !errors.Is(err, ErrNotRefundable) {
			t.Fatalf("\nwanted:\nErrNotRefundable\ngot:\n%v", err)
		}
	})
}
