package matching

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// ErrAlreadyConverted is returned when converting a lead that already has a
// client account.
var ErrAlreadyConverted = errors.New("lead is already converted")

// ErrLeadWithoutEmail is returned when converting a lead that never left an
// email address, since the account username derives from it.
var ErrLeadWithoutEmail = errors.New("lead has no email address")

// Notifier is the slice of the notification service assignment uses.
type Notifier interface {
	Create(recipientID uuid.UUID, kind, title, message string, data map[string]any, channels []string) (*domain.Notification, error)
}

// Service wires the matching heuristics to the stored leads, agents, and
// clients of an agency.
type Service struct {
	leads    domain.LeadRepository
	users    domain.UserRepository
	profiles domain.ProfileRepository
	clients  domain.ClientRepository
	stats    domain.StatsRepository
	notifier Notifier
}

// NewService creates a matching service. The notifier may be nil, in which
// case assignments happen silently.
func NewService(leads domain.LeadRepository, users domain.UserRepository, profiles domain.ProfileRepository, clients domain.ClientRepository, stats domain.StatsRepository, notifier Notifier) *Service {
	return &Service{
		leads:    leads,
		users:    users,
		profiles: profiles,
		clients:  clients,
		stats:    stats,
		notifier: notifier,
	}
}

// candidate is an agent considered for assignment, with its current open
// lead count and rating for tie-breaking.
type candidate struct {
	id     uuid.UUID
	open   int
	rating float64
}

// AutoAssign distributes an agency's unassigned open leads across its active
// agents, always handing the next lead to the agent with the fewest open
// leads. Ties go to the better rated agent. It returns how many leads were
// assigned.
func (s *Service) AutoAssign(agencyID uuid.UUID) (int, error) {
	agentIDs, err := s.stats.AgencyAgentIDs(agencyID)
	if err != nil {
		return 0, fmt.Errorf("listing agents of agency %s : %w", agencyID, err)
	}
	if len(agentIDs) == 0 {
		return 0, nil
	}

	candidates := make([]*candidate, 0, len(agentIDs))
	for _, agentID := range agentIDs {
		open, err := s.leads.CountOpenLeads(agentID)
		if err != nil {
			return 0, fmt.Errorf("counting open leads of agent %s : %w", agentID, err)
		}

		rating := 0.0
		profile, err := s.profiles.GetAgentProfile(agentID)
		if err != nil && !errors.Is(err, domain.ErrNoProfileForUser) {
			return 0, fmt.Errorf("getting profile of agent %s : %w", agentID, err)
		}
		if profile != nil {
			rating = profile.Rating
		}

		candidates = append(candidates, &candidate{id: agentID, open: open, rating: rating})
	}

	leads, err := s.leads.GetUnassignedLeads(agencyID)
	if err != nil {
		return 0, fmt.Errorf("listing unassigned leads of agency %s : %w", agencyID, err)
	}

	assigned := 0
	for _, lead := range leads {
		best := candidates[0]
		for _, candidate := range candidates[1:] {
			if candidate.open < best.open || (candidate.open == best.open && candidate.rating > best.rating) {
				best = candidate
			}
		}

		err := s.leads.AssignLead(lead.ID, best.id)
		if err != nil {
			return assigned, fmt.Errorf("assigning lead %s : %w", lead.ID, err)
		}
		best.open++
		assigned++

		s.notifyAssignment(best.id, lead)
	}

	return assigned, nil
}

// Assign hands one lead to a specific agent and notifies them.
func (s *Service) Assign(leadID, agentID uuid.UUID) error {
	agent, err := s.users.GetUser(agentID)
	if err != nil {
		return fmt.Errorf("getting agent %s : %w", agentID, err)
	}
	if agent.Role != domain.RoleAgent {
		return fmt.Errorf("user %s is not an agent", agentID)
	}

	err = s.leads.AssignLead(leadID, agentID)
	if err != nil {
		return fmt.Errorf("assigning lead %s : %w", leadID, err)
	}

	lead, err := s.leads.GetLead(leadID)
	if err != nil {
		return fmt.Errorf("getting lead %s : %w", leadID, err)
	}
	s.notifyAssignment(agentID, lead)

	return nil
}

func (s *Service) notifyAssignment(agentID uuid.UUID, lead *domain.Lead) {
	if s.notifier == nil {
		return
	}

	_, err := s.notifier.Create(agentID, "lead.assigned",
		"Nouveau lead attribué",
		fmt.Sprintf("%s %s vous a été attribué.", lead.FirstName, lead.LastName),
		map[string]any{"lead_id": lead.ID.String(), "score": lead.Score, "LeadName": lead.FirstName + " " + lead.LastName},
		nil)
	if err != nil {
		log.Printf("warning: notifying agent %s about lead %s: %v", agentID, lead.ID, err)
	}
}

// Convert creates a client account from a lead: a user whose username comes
// from the email local part, uniquified with a numeric suffix, and a client
// profile carrying over the lead's search criteria. The lead is then marked
// converted and linked to the account.
func (s *Service) Convert(leadID uuid.UUID) (*domain.User, error) {
	lead, err := s.leads.GetLead(leadID)
	if err != nil {
		return nil, fmt.Errorf("getting lead %s : %w", leadID, err)
	}

	if lead.Status == domain.LeadStatusConverted {
		return nil, ErrAlreadyConverted
	}
	if lead.Email == "" {
		return nil, ErrLeadWithoutEmail
	}

	username, err := s.uniqueUsername(strings.Split(lead.Email, "@")[0])
	if err != nil {
		return nil, err
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating user id : %w", err)
	}

	now := time.Now().UTC()
	agencyID := lead.AgencyID
	user := &domain.User{
		ID:        userID,
		Email:     lead.Email,
		Username:  username,
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Role:      domain.RoleClient,
		Phone:     lead.Phone,
		AgencyID:  &agencyID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.users.InsertUser(user)
	if err != nil {
		return nil, fmt.Errorf("creating account for lead %s : %w", leadID, err)
	}

	profile := &domain.ClientProfile{
		UserID:       user.ID,
		Status:       domain.ClientStatusClient,
		Priority:     domain.PriorityHigh,
		BudgetMax:    lead.Budget,
		PropertyType: lead.PropertyType,
		Locations:    lead.Locations,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.clients.InsertClientProfile(profile)
	if err != nil {
		return nil, fmt.Errorf("creating client profile for lead %s : %w", leadID, err)
	}

	err = s.leads.MarkConverted(lead.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("marking lead %s converted : %w", leadID, err)
	}

	return user, nil
}

// uniqueUsername appends _1, _2, ... to the base until the username is free.
func (s *Service) uniqueUsername(base string) (string, error) {
	username := base
	for counter := 1; ; counter++ {
		exists, err := s.users.UsernameExists(username)
		if err != nil {
			return "", fmt.Errorf("checking username %q : %w", username, err)
		}
		if !exists {
			return username, nil
		}
		username = fmt.Sprintf("%s_%d", base, counter)
	}
}
