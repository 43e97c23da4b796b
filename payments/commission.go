package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DIGIT-HABs/back/domain"
)

// CreateCommission records an agent's commission on a concluded transaction.
// The rate resolves in order: the explicit rate, the agent's profile
// override, the platform default.
func (service *Service) CreateCommission(agencyID, agentID, propertyID uuid.UUID, kind string, baseAmount decimal.Decimal, rate *decimal.Decimal) (*domain.Commission, error) {
	resolved, err := service.resolveRate(agentID, rate)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating commission id : %w", err)
	}

	now := service.now().UTC().Truncate(time.Millisecond)
	commission := &domain.Commission{
		ID:         id,
		AgencyID:   agencyID,
		AgentID:    agentID,
		PropertyID: propertyID,
		Kind:       kind,
		BaseAmount: baseAmount,
		Rate:       resolved,
		Status:     domain.CommissionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	commission.Amount = commission.ComputeAmount()

	if err := service.commissions.InsertCommission(commission); err != nil {
		return nil, fmt.Errorf("saving commission : %w", err)
	}
	return commission, nil
}

func (service *Service) resolveRate(agentID uuid.UUID, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		return *override, nil
	}

	profile, err := service.profiles.GetAgentProfile(agentID)
	if err != nil {
		if errors.Is(err, domain.ErrNoProfileForUser) {
			return domain.DefaultCommissionRate, nil
		}
		return decimal.Decimal{}, fmt.Errorf("fetching agent profile : %w", err)
	}
	if profile.CommissionRate != nil {
		return decimal.NewFromFloat(*profile.CommissionRate), nil
	}
	return domain.DefaultCommissionRate, nil
}

// ApproveCommission moves a pending commission to approved, stamping who
// approved it and when.
func (service *Service) ApproveCommission(commissionID, approverID uuid.UUID) (*domain.Commission, error) {
	commission, err := service.commissions.GetCommission(commissionID)
	if err != nil {
		return nil, fmt.Errorf("fetching commission %s : %w", commissionID, err)
	}
	if commission.Status != domain.CommissionPending {
		return nil, fmt.Errorf("commission %s is %s : %w", commissionID, commission.Status, ErrInvalidTransition)
	}

	now := service.now().UTC().Truncate(time.Millisecond)
	commission.Status = domain.CommissionApproved
	commission.ApprovedBy = &approverID
	commission.ApprovedAt = &now
	commission.UpdatedAt = now

	if err := service.commissions.UpdateCommission(commission); err != nil {
		return nil, fmt.Errorf("approving commission %s : %w", commissionID, err)
	}
	return commission, nil
}

// CancelCommission cancels a pending or approved commission, annotating the
// reason in its notes.
func (service *Service) CancelCommission(commissionID uuid.UUID, reason string) (*domain.Commission, error) {
	commission, err := service.commissions.GetCommission(commissionID)
	if err != nil {
		return nil, fmt.Errorf("fetching commission %s : %w", commissionID, err)
	}
	if commission.Status != domain.CommissionPending && commission.Status != domain.CommissionApproved {
		return nil, fmt.Errorf("commission %s is %s : %w", commissionID, commission.Status, ErrInvalidTransition)
	}

	commission.Status = domain.CommissionCancelled
	if reason != "" {
		commission.Notes = appendNote(commission.Notes, "[Annulée] "+reason)
	}
	commission.UpdatedAt = service.now().UTC().Truncate(time.Millisecond)

	if err := service.commissions.UpdateCommission(commission); err != nil {
		return nil, fmt.Errorf("cancelling commission %s : %w", commissionID, err)
	}
	return commission, nil
}

func (service *Service) markCommissionPaid(commissionID uuid.UUID) error {
	commission, err := service.commissions.GetCommission(commissionID)
	if err != nil {
		return fmt.Errorf("fetching commission %s : %w", commissionID, err)
	}
	if commission.Status != domain.CommissionApproved {
		return fmt.Errorf("commission %s is %s : %w", commissionID, commission.Status, ErrNotApproved)
	}

	now := service.now().UTC().Truncate(time.Millisecond)
	commission.Status = domain.CommissionPaid
	commission.PaidAt = &now
	commission.UpdatedAt = now

	if err := service.commissions.UpdateCommission(commission); err != nil {
		return fmt.Errorf("marking commission %s paid : %w", commissionID, err)
	}
	if service.OnCommissionPaid != nil {
		service.OnCommissionPaid(commission)
	}
	return nil
}

// ListCommissions returns commissions, optionally narrowed to one agent or
// one status.
func (service *Service) ListCommissions(agentID *uuid.UUID, status string) ([]*domain.Commission, error) {
	commissions, err := service.commissions.GetCommissions(agentID, status)
	if err != nil {
		return nil, fmt.Errorf("listing commissions : %w", err)
	}
	return commissions, nil
}

// AgencySummary totals an agency's commission amounts by status over a
// period.
func (service *Service) AgencySummary(agencyID uuid.UUID, from, to time.Time) (map[string]decimal.Decimal, error) {
	totals, err := service.commissions.SumCommissions(agencyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("summing agency commissions : %w", err)
	}
	return totals, nil
}

// AgentSummary totals an agent's commission amounts by status.
func (service *Service) AgentSummary(agentID uuid.UUID) (map[string]decimal.Decimal, error) {
	commissions, err := service.commissions.GetCommissions(&agentID, "")
	if err != nil {
		return nil, fmt.Errorf("listing agent commissions : %w", err)
	}

	totals := make(map[string]decimal.Decimal)
	for _, commission := range commissions {
		totals[commission.Status] = totals[commission.Status].Add(commission.Amount)
	}
	return totals, nil
}
