// Package reporting builds the client, agent, and agency reports served by
// the API. Reports render as JSON structs and as CSV with the column labels
// the agencies' spreadsheets expect.
package reporting

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/matching"
)

// DefaultWindowDays is the report period used when the caller gives none.
const DefaultWindowDays = 30

// dateLayout is the day format used throughout the reports.
const dateLayout = "02/01/2006"

// History caps, matching what fits on an agent's screen.
const (
	maxReportInterests    = 10
	maxReportInteractions = 15
	maxReportNotes        = 10
)

// Service assembles reports from the repositories.
type Service struct {
	clients    domain.ClientRepository
	users      domain.UserRepository
	properties domain.PropertyRepository
	stats      domain.StatsRepository
	now        func() time.Time
}

// NewService creates a reporting service.
func NewService(clients domain.ClientRepository, users domain.UserRepository, properties domain.PropertyRepository, stats domain.StatsRepository) *Service {
	return &Service{
		clients:    clients,
		users:      users,
		properties: properties,
		stats:      stats,
		now:        time.Now,
	}
}

// ClientReport is a client's full file: identity, pipeline state, search
// criteria, and recent activity.
type ClientReport struct {
	Client      string            `json:"client"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	Status      string            `json:"status"`
	Priority    string            `json:"priority"`
	Budget      string            `json:"budget"`
	Conversion  string            `json:"conversion_score"`
	Registered  string            `json:"registered"`
	Tags        []string          `json:"tags,omitempty"`
	Preferences ClientPreferences `json:"preferences"`

	Interests    []ReportInterest    `json:"interests"`
	Interactions []ReportInteraction `json:"interactions"`
	Notes        []ReportNote        `json:"notes"`
}

// ClientPreferences is the search-criteria section of a client report.
type ClientPreferences struct {
	PropertyType string   `json:"property_type,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	Bedrooms     string   `json:"bedrooms,omitempty"`
	Surface      string   `json:"surface,omitempty"`
	Features     []string `json:"features,omitempty"`
	Financing    string   `json:"financing,omitempty"`
}

// ReportInterest is one recorded property interest.
type ReportInterest struct {
	Property string `json:"property"`
	Level    string `json:"level"`
	Date     string `json:"date"`
}

// ReportInteraction is one recorded touchpoint.
type ReportInteraction struct {
	Date      string `json:"date"`
	Kind      string `json:"kind"`
	Agent     string `json:"agent"`
	Completed bool   `json:"completed"`
}

// ReportNote is one internal note.
type ReportNote struct {
	Date      string `json:"date"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	Important bool   `json:"important"`
}

// ClientReport assembles a client's report: general information, conversion
// score, preferences, and the most recent interests, interactions, and notes.
func (service *Service) ClientReport(clientID uuid.UUID) (*ClientReport, error) {
	profile, err := service.clients.GetClientProfile(clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching client profile %s : %w", clientID, err)
	}
	user, err := service.users.GetUser(clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching client %s : %w", clientID, err)
	}

	interests, err := service.clients.GetInterests(clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching interests : %w", err)
	}
	interactions, err := service.clients.GetInteractions(clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching interactions : %w", err)
	}
	notes, err := service.clients.GetClientNotes(clientID)
	if err != nil {
		return nil, fmt.Errorf("fetching notes : %w", err)
	}

	score := matching.ConversionScore(profile, len(interests), len(interactions), service.now().UTC())

	report := &ClientReport{
		Client:      user.FullName(),
		Email:       user.Email,
		Phone:       user.Phone,
		Status:      profile.Status,
		Priority:    profile.Priority,
		Budget:      formatBudget(profile.BudgetMin, profile.BudgetMax),
		Conversion:  fmt.Sprintf("%.1f%%", float64(score)),
		Registered:  profile.CreatedAt.Format(dateLayout),
		Tags:        profile.Tags,
		Preferences: buildPreferences(profile),
	}

	names := map[uuid.UUID]string{}
	fullName := func(id uuid.UUID) (string, error) {
		if name, ok := names[id]; ok {
			return name, nil
		}
		person, err := service.users.GetUser(id)
		if err != nil {
			return "", fmt.Errorf("fetching user %s : %w", id, err)
		}
		names[id] = person.FullName()
		return names[id], nil
	}

	for _, interest := range capInterests(interests) {
		property, err := service.properties.GetProperty(interest.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("fetching property %s : %w", interest.PropertyID, err)
		}
		report.Interests = append(report.Interests, ReportInterest{
			Property: property.Title,
			Level:    interest.Level,
			Date:     interest.CreatedAt.Format(dateLayout),
		})
	}

	for _, interaction := range capInteractions(interactions) {
		agent, err := fullName(interaction.AgentID)
		if err != nil {
			return nil, err
		}
		date := interaction.CreatedAt
		if interaction.ScheduledAt != nil {
			date = *interaction.ScheduledAt
		}
		report.Interactions = append(report.Interactions, ReportInteraction{
			Date:      date.Format(dateLayout),
			Kind:      interaction.Kind,
			Agent:     agent,
			Completed: interaction.Completed,
		})
	}

	for _, note := range capNotes(notes) {
		author, err := fullName(note.AuthorID)
		if err != nil {
			return nil, err
		}
		report.Notes = append(report.Notes, ReportNote{
			Date:      note.CreatedAt.Format(dateLayout),
			Author:    author,
			Body:      note.Body,
			Important: note.Important,
		})
	}

	return report, nil
}

// AgentPerformance is an agent's activity over a period, with the derived
// rates already rendered.
type AgentPerformance struct {
	Agent                 string `json:"agent"`
	From                  string `json:"from"`
	To                    string `json:"to"`
	TotalInteractions     int    `json:"total_interactions"`
	CompletedInteractions int    `json:"completed_interactions"`
	CompletionRate        string `json:"completion_rate"`
	ClientsManaged        int    `json:"clients_managed"`
	LeadsAssigned         int    `json:"leads_assigned"`
	LeadsConverted        int    `json:"leads_converted"`
	ConversionRate        string `json:"conversion_rate"`
	InterestsGenerated    int    `json:"interests_generated"`
}

// AgentPerformance aggregates an agent's activity over the window. A zero
// from or to falls back to the last DefaultWindowDays days.
func (service *Service) AgentPerformance(agentID uuid.UUID, from, to time.Time) (*AgentPerformance, error) {
	from, to = service.window(from, to)

	agent, err := service.users.GetUser(agentID)
	if err != nil {
		return nil, fmt.Errorf("fetching agent %s : %w", agentID, err)
	}
	activity, err := service.stats.AgentActivity(agentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregating activity : %w", err)
	}

	return buildPerformance(agent.FullName(), from, to, activity), nil
}

// AgencyOverview is the per-agent performance of an agency's team plus the
// agency totals.
type AgencyOverview struct {
	From   string             `json:"from"`
	To     string             `json:"to"`
	Agents []AgentPerformance `json:"agents"`
	Totals AgencyTotals       `json:"totals"`
}

// AgencyTotals sums the team's activity.
type AgencyTotals struct {
	Interactions   int    `json:"interactions"`
	ClientsManaged int    `json:"clients_managed"`
	LeadsAssigned  int    `json:"leads_assigned"`
	LeadsConverted int    `json:"leads_converted"`
	ConversionRate string `json:"conversion_rate"`
}

// AgencyOverview aggregates every active agent of the agency over the
// window, plus team totals.
func (service *Service) AgencyOverview(agencyID uuid.UUID, from, to time.Time) (*AgencyOverview, error) {
	from, to = service.window(from, to)

	agentIDs, err := service.stats.AgencyAgentIDs(agencyID)
	if err != nil {
		return nil, fmt.Errorf("listing agency agents : %w", err)
	}

	overview := &AgencyOverview{
		From: from.Format(dateLayout),
		To:   to.Format(dateLayout),
	}
	for _, agentID := range agentIDs {
		agent, err := service.users.GetUser(agentID)
		if err != nil {
			return nil, fmt.Errorf("fetching agent %s : %w", agentID, err)
		}
		activity, err := service.stats.AgentActivity(agentID, from, to)
		if err != nil {
			return nil, fmt.Errorf("aggregating activity for %s : %w", agentID, err)
		}

		overview.Agents = append(overview.Agents, *buildPerformance(agent.FullName(), from, to, activity))
		overview.Totals.Interactions += activity.TotalInteractions
		overview.Totals.ClientsManaged += activity.ClientsManaged
		overview.Totals.LeadsAssigned += activity.LeadsAssigned
		overview.Totals.LeadsConverted += activity.LeadsConverted
	}
	overview.Totals.ConversionRate = rate(overview.Totals.LeadsConverted, overview.Totals.LeadsAssigned)

	return overview, nil
}

func (service *Service) window(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = service.now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -DefaultWindowDays)
	}
	return from, to
}

func buildPerformance(name string, from, to time.Time, activity *domain.AgentActivity) *AgentPerformance {
	return &AgentPerformance{
		Agent:                 name,
		From:                  from.Format(dateLayout),
		To:                    to.Format(dateLayout),
		TotalInteractions:     activity.TotalInteractions,
		CompletedInteractions: activity.CompletedInteractions,
		CompletionRate:        rate(activity.CompletedInteractions, activity.TotalInteractions),
		ClientsManaged:        activity.ClientsManaged,
		LeadsAssigned:         activity.LeadsAssigned,
		LeadsConverted:        activity.LeadsConverted,
		ConversionRate:        rate(activity.LeadsConverted, activity.LeadsAssigned),
		InterestsGenerated:    activity.InterestsGenerated,
	}
}

// rate renders part over whole as a percentage with one decimal, "0%" when
// there is nothing to divide by.
func rate(part, whole int) string {
	if whole == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(whole)*100)
}

// formatBudget renders the budget range, open bounds shown as the agencies
// are used to seeing them.
func formatBudget(min, max *float64) string {
	lower := "0"
	if min != nil {
		lower = strconv.FormatFloat(*min, 'f', -1, 64)
	}
	upper := "N/A"
	if max != nil {
		upper = strconv.FormatFloat(*max, 'f', -1, 64)
	}
	return fmt.Sprintf("%s€ - %s€", lower, upper)
}

func buildPreferences(profile *domain.ClientProfile) ClientPreferences {
	preferences := ClientPreferences{
		PropertyType: profile.PropertyType,
		Locations:    profile.Locations,
		Features:     profile.Features,
		Financing:    profile.Financing,
	}
	if profile.Bedrooms != nil {
		preferences.Bedrooms = strconv.Itoa(*profile.Bedrooms)
	}
	if profile.SurfaceMin != nil {
		preferences.Surface = strconv.FormatFloat(*profile.SurfaceMin, 'f', -1, 64) + " m²"
	}
	return preferences
}

func capInterests(interests []*domain.Interest) []*domain.Interest {
	if len(interests) > maxReportInterests {
		return interests[:maxReportInterests]
	}
	return interests
}

func capInteractions(interactions []*domain.Interaction) []*domain.Interaction {
	if len(interactions) > maxReportInteractions {
		return interactions[:maxReportInteractions]
	}
	return interactions
}

func capNotes(notes []*domain.ClientNote) []*domain.ClientNote {
	if len(notes) > maxReportNotes {
		return notes[:maxReportNotes]
	}
	return notes
}

// joinList renders a list the way the exports show one.
func joinList(values []string) string {
	return strings.Join(values, ", ")
}
