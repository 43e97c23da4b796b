package payments

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DIGIT-HABs/back/db"
	"github.com/DIGIT-HABs/back/domain"
)

func seedAgentProfile(t *testing.T, repo *db.Repository, userID, agencyID uuid.UUID, rate *float64) {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	profile := &domain.AgentProfile{
		UserID:         userID,
		AgencyID:       agencyID,
		Bio:            "Quinze ans sur le marché nantais.",
		Specialties:    []string{"sale"},
		Sectors:        []string{"Nantes"},
		CommissionRate: rate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := repo.InsertAgentProfile(profile)
	if err != nil {
		t.Fatalf("creating test agent profile : %v", err)
	}
}

func ratePtr(value float64) *float64 {
	return &value
}

func TestService_CreateCommission(t *testing.T) {
	t.Run("should fall back to the default rate without a profile", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)

		commission, err := service.CreateCommission(agency.ID, agent.ID, property.ID, domain.TransactionSale, decimal.RequireFromString("285000"), nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !commission.Rate.Equal(domain.DefaultCommissionRate) {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.DefaultCommissionRate, commission.Rate)
		}
		if !commission.Amount.Equal(decimal.RequireFromString("8550")) {
			t.Errorf("\nwanted:\n8550\ngot:\n%s", commission.Amount)
		}
		if commission.Status != domain.CommissionPending {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.CommissionPending, commission.Status)
		}

		saved, err := repo.GetCommission(commission.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if !saved.Amount.Equal(commission.Amount) {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", commission.Amount, saved.Amount)
		}
	})

	t.Run("should use the agent's profile override", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		seedAgentProfile(t, repo, agent.ID, agency.ID, ratePtr(4.5))

		commission, err := service.CreateCommission(agency.ID, agent.ID, property.ID, domain.TransactionSale, decimal.RequireFromString("285000"), nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !commission.Rate.Equal(decimal.RequireFromString("4.5")) {
			t.Errorf("\nwanted:\n4.5\ngot:\n%s", commission.Rate)
		}
		if !commission.Amount.Equal(decimal.RequireFromString("12825")) {
			t.Errorf("\nwanted:\n12825\ngot:\n%s", commission.Amount)
		}
	})

	t.Run("should let an explicit rate beat the override", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		seedAgentProfile(t, repo, agent.ID, agency.ID, ratePtr(4.5))

		explicit := decimal.RequireFromString("2.5")
		commission, err := service.CreateCommission(agency.ID, agent.ID, property.ID, domain.TransactionSale, decimal.RequireFromString("285000"), &explicit)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !commission.Rate.Equal(explicit) {
			t.Errorf("\nwanted:\n2.5\ngot:\n%s", commission.Rate)
		}
		if !commission.Amount.Equal(decimal.RequireFromString("7125")) {
			t.Errorf("\nwanted:\n7125\ngot:\n%s", commission.Amount)
		}
	})

	t.Run("should ignore a profile without an override", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		seedAgentProfile(t, repo, agent.ID, agency.ID, nil)

		commission, err := service.CreateCommission(agency.ID, agent.ID, property.ID, domain.TransactionSale, decimal.RequireFromString("285000"), nil)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !commission.Rate.Equal(domain.DefaultCommissionRate) {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.DefaultCommissionRate, commission.Rate)
		}
	})
}

func TestService_ApproveCommission(t *testing.T) {
	t.Run("should stamp the approver and the time", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		admin := seedUser(t, repo, domain.RoleAdmin, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionPending)

		approved, err := service.ApproveCommission(commission.ID, admin.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if approved.Status != domain.CommissionApproved {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.CommissionApproved, approved.Status)
		}
		if approved.ApprovedBy == nil || *approved.ApprovedBy != admin.ID {
			t.Errorf("\nwanted:\napprover %s\ngot:\n%v", admin.ID, approved.ApprovedBy)
		}
		if approved.ApprovedAt == nil {
			t.Error("\nwanted:\nan approval timestamp\ngot:\nnil")
		}
	})

	t.Run("should refuse to approve twice", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		admin := seedUser(t, repo, domain.RoleAdmin, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionApproved)

		_, err := service.ApproveCommission(commission.ID, admin.ID)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("\nwanted:\nErrInvalidTransition\ngot:\n%v", err)
		}
	})
}

func TestService_CancelCommission(t *testing.T) {
	t.Run("should cancel an approved commission and note the reason", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionApproved)

		cancelled, err := service.CancelCommission(commission.ID, "Vente annulée par le client")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if cancelled.Status != domain.CommissionCancelled {
			t.Errorf("\nwanted:\n%s\ngot:\n%s", domain.CommissionCancelled, cancelled.Status)
		}
		if cancelled.Notes != "[Annulée] Vente annulée par le client" {
			t.Errorf("\nwanted:\nthe cancellation note\ngot:\n%q", cancelled.Notes)
		}
	})

	t.Run("should refuse to cancel a paid commission", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		commission := seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionPaid)

		_, err := service.CancelCommission(commission.ID, "Trop tard")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("\nwanted:\nErrInvalidTransition\ngot:\n%v", err)
		}
	})
}

func TestService_Summaries(t *testing.T) {
	t.Run("should total an agent's commissions by status", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		other := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionPending)
		seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionPaid)
		seedCommission(t, repo, agency.ID, other.ID, property.ID, domain.CommissionPending)

		totals, err := service.AgentSummary(agent.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(totals) != 2 {
			t.Fatalf("\nwanted:\n2 statuses\ngot:\n%d", len(totals))
		}
		if !totals[domain.CommissionPending].Equal(decimal.RequireFromString("8550")) {
			t.Errorf("\nwanted:\n8550 pending\ngot:\n%s", totals[domain.CommissionPending])
		}
		if !totals[domain.CommissionPaid].Equal(decimal.RequireFromString("8550")) {
			t.Errorf("\nwanted:\n8550 paid\ngot:\n%s", totals[domain.CommissionPaid])
		}
	})

	t.Run("should total an agency's commissions over a period", func(t *testing.T) {
		stub := newStripeStub()
		service, repo, teardown := setupTestService(t, stub)
		defer teardown()

		agency := seedAgency(t, repo)
		agent := seedUser(t, repo, domain.RoleAgent, agency.ID)
		property := seedProperty(t, repo, agency.ID)
		seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionPending)
		seedCommission(t, repo, agency.ID, agent.ID, property.ID, domain.CommissionApproved)

		now := time.Now().UTC()
		totals, err := service.AgencySummary(agency.ID, now.Add(-time.Hour), now.Add(time.Hour))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !totals[domain.CommissionPending].Equal(decimal.RequireFromString("8550")) {
			t.Errorf("\nwanted:\n8550 pending\ngot:\n%s", totals[domain.CommissionPending])
		}
		if !totals[domain.CommissionApproved].Equal(decimal.RequireFromString("8550")) {
			t.Errorf("\nwanted:\n8550 approved\ngot:\n%s", totals[domain.CommissionApproved])
		}
	})
}
