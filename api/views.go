package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/matching"
	"github.com/DIGIT-HABs/back/payments"
)

// The view types below are the JSON shapes endpoints answer with. Domain
// entities never serialize directly, so storage-only fields like password
// hashes and failure counters cannot leak into a response.

type userView struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	FullName  string     `json:"full_name"`
	Role      string     `json:"role"`
	Phone     string     `json:"phone"`
	AgencyID  *uuid.UUID `json:"agency_id"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

func viewUser(user *domain.User) userView {
	return userView{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		FullName:  user.FullName(),
		Role:      user.Role,
		Phone:     user.Phone,
		AgencyID:  user.AgencyID,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	}
}

func viewUsers(users []*domain.User) []userView {
	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, viewUser(user))
	}
	return views
}

type agencyView struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	Plan          string          `json:"plan"`
	MaxAgents     int             `json:"max_agents"`
	MaxProperties int             `json:"max_properties"`
	MaxClients    int             `json:"max_clients"`
	Features      map[string]bool `json:"features"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address"`
	City          string          `json:"city"`
	Active        bool            `json:"active"`
	TrialEndsAt   *time.Time      `json:"trial_ends_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

func viewAgency(agency *domain.Agency) agencyView {
	return agencyView{
		ID:            agency.ID,
		Name:          agency.Name,
		Slug:          agency.Slug,
		Plan:          agency.Plan,
		MaxAgents:     agency.MaxAgents,
		MaxProperties: agency.MaxProperties,
		MaxClients:    agency.MaxClients,
		Features:      agency.Features,
		Email:         agency.Email,
		Phone:         agency.Phone,
		Address:       agency.Address,
		City:          agency.City,
		Active:        agency.Active,
		TrialEndsAt:   agency.TrialEndsAt,
		CreatedAt:     agency.CreatedAt,
	}
}

type agentProfileView struct {
	UserID         uuid.UUID `json:"user_id"`
	AgencyID       uuid.UUID `json:"agency_id"`
	Bio            string    `json:"bio"`
	Specialties    []string  `json:"specialties"`
	Sectors        []string  `json:"sectors"`
	Rating         float64   `json:"rating"`
	TotalSales     int       `json:"total_sales"`
	CommissionRate *float64  `json:"commission_rate"`
}

func viewAgentProfile(profile *domain.AgentProfile) agentProfileView {
	return agentProfileView{
		UserID:         profile.UserID,
		AgencyID:       profile.AgencyID,
		Bio:            profile.Bio,
		Specialties:    profile.Specialties,
		Sectors:        profile.Sectors,
		Rating:         profile.Rating,
		TotalSales:     profile.TotalSales,
		CommissionRate: profile.CommissionRate,
	}
}

type clientProfileView struct {
	UserID        uuid.UUID  `json:"user_id"`
	AssignedAgent *uuid.UUID `json:"assigned_agent"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	BudgetMin     *float64   `json:"budget_min"`
	BudgetMax     *float64   `json:"budget_max"`
	PropertyType  string     `json:"property_type"`
	Locations     []string   `json:"locations"`
	Bedrooms      *int       `json:"bedrooms"`
	SurfaceMin    *float64   `json:"surface_min"`
	Features      []string   `json:"features"`
	Financing     string     `json:"financing"`
	Notes         string     `json:"notes"`
	Tags          []string   `json:"tags"`
	LastContactAt *time.Time `json:"last_contact_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func viewClientProfile(profile *domain.ClientProfile) clientProfileView {
	return clientProfileView{
		UserID:        profile.UserID,
		AssignedAgent: profile.AssignedAgent,
		Status:        profile.Status,
		Priority:      profile.Priority,
		BudgetMin:     profile.BudgetMin,
		BudgetMax:     profile.BudgetMax,
		PropertyType:  profile.PropertyType,
		Locations:     profile.Locations,
		Bedrooms:      profile.Bedrooms,
		SurfaceMin:    profile.SurfaceMin,
		Features:      profile.Features,
		Financing:     profile.Financing,
		Notes:         profile.Notes,
		Tags:          profile.Tags,
		LastContactAt: profile.LastContactAt,
		CreatedAt:     profile.CreatedAt,
	}
}

func viewClientProfiles(profiles []*domain.ClientProfile) []clientProfileView {
	views := make([]clientProfileView, 0, len(profiles))
	for _, profile := range profiles {
		views = append(views, viewClientProfile(profile))
	}
	return views
}

type leadView struct {
	ID           uuid.UUID  `json:"id"`
	AgencyID     uuid.UUID  `json:"agency_id"`
	Source       string     `json:"source"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	Message      string     `json:"message"`
	Budget       *float64   `json:"budget"`
	PropertyType string     `json:"property_type"`
	Locations    []string   `json:"locations"`
	Score        int        `json:"score"`
	Status       string     `json:"status"`
	AssignedTo   *uuid.UUID `json:"assigned_to"`
	ConvertedTo  *uuid.UUID `json:"converted_to"`
	CreatedAt    time.Time  `json:"created_at"`
}

func viewLead(lead *domain.Lead) leadView {
	return leadView{
		ID:           lead.ID,
		AgencyID:     lead.AgencyID,
		Source:       lead.Source,
		FirstName:    lead.FirstName,
		LastName:     lead.LastName,
		Email:        lead.Email,
		Phone:        lead.Phone,
		Message:      lead.Message,
		Budget:       lead.Budget,
		PropertyType: lead.PropertyType,
		Locations:    lead.Locations,
		Score:        lead.Score,
		Status:       lead.Status,
		AssignedTo:   lead.AssignedTo,
		ConvertedTo:  lead.ConvertedTo,
		CreatedAt:    lead.CreatedAt,
	}
}

func viewLeads(leads []*domain.Lead) []leadView {
	views := make([]leadView, 0, len(leads))
	for _, lead := range leads {
		views = append(views, viewLead(lead))
	}
	return views
}

type propertyView struct {
	ID           uuid.UUID       `json:"id"`
	AgencyID     uuid.UUID       `json:"agency_id"`
	AgentID      *uuid.UUID      `json:"agent_id"`
	Reference    string          `json:"reference"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Price        decimal.Decimal `json:"price"`
	PricePerSqm  decimal.Decimal `json:"price_per_sqm"`
	Surface      float64         `json:"surface"`
	Rooms        int             `json:"rooms"`
	Bedrooms     int             `json:"bedrooms"`
	Bathrooms    int             `json:"bathrooms"`
	Floor        *int            `json:"floor"`
	YearBuilt    *int            `json:"year_built"`
	EnergyRating string          `json:"energy_rating"`
	Features     []string        `json:"features"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	PostalCode   string          `json:"postal_code"`
	Latitude     *float64        `json:"latitude"`
	Longitude    *float64        `json:"longitude"`
	ViewCount    int             `json:"view_count"`
	InquiryCount int             `json:"inquiry_count"`
	PublishedAt  *time.Time      `json:"published_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

func viewProperty(property *domain.Property) propertyView {
	return propertyView{
		ID:           property.ID,
		AgencyID:     property.AgencyID,
		AgentID:      property.AgentID,
		Reference:    property.Reference,
		Title:        property.Title,
		Description:  property.Description,
		Type:         property.Type,
		Status:       property.Status,
		Price:        property.Price,
		PricePerSqm:  property.PricePerSqm(),
		Surface:      property.Surface,
		Rooms:        property.Rooms,
		Bedrooms:     property.Bedrooms,
		Bathrooms:    property.Bathrooms,
		Floor:        property.Floor,
		YearBuilt:    property.YearBuilt,
		EnergyRating: property.EnergyRating,
		Features:     property.Features,
		Address:      property.Address,
		City:         property.City,
		PostalCode:   property.PostalCode,
		Latitude:     property.Latitude,
		Longitude:    property.Longitude,
		ViewCount:    property.ViewCount,
		InquiryCount: property.InquiryCount,
		PublishedAt:  property.PublishedAt,
		CreatedAt:    property.CreatedAt,
	}
}

func viewProperties(properties []*domain.Property) []propertyView {
	views := make([]propertyView, 0, len(properties))
	for _, property := range properties {
		views = append(views, viewProperty(property))
	}
	return views
}

type mediaView struct {
	ID          uuid.UUID `json:"id"`
	PropertyID  uuid.UUID `json:"property_id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Position    int       `json:"position"`
}

func viewMedia(media *domain.PropertyMedia) mediaView {
	return mediaView{
		ID:          media.ID,
		PropertyID:  media.PropertyID,
		URL:         "/uploads/" + media.FileName,
		ContentType: media.ContentType,
		Size:        media.Size,
		Position:    media.Position,
	}
}

type matchView struct {
	Property  propertyView       `json:"property"`
	Score     int                `json:"score"`
	Breakdown matching.Breakdown `json:"breakdown"`
}

func viewMatches(matches []matching.Match) []matchView {
	views := make([]matchView, 0, len(matches))
	for _, match := range matches {
		views = append(views, matchView{
			Property:  viewProperty(match.Property),
			Score:     match.Score,
			Breakdown: match.Breakdown,
		})
	}
	return views
}

type reservationView struct {
	ID           uuid.UUID        `json:"id"`
	PropertyID   uuid.UUID        `json:"property_id"`
	ClientID     uuid.UUID        `json:"client_id"`
	AgentID      uuid.UUID        `json:"agent_id"`
	Kind         string           `json:"kind"`
	Status       string           `json:"status"`
	ScheduledAt  time.Time        `json:"scheduled_at"`
	EndsAt       time.Time        `json:"ends_at"`
	Minutes      int              `json:"minutes"`
	Participants int              `json:"participants"`
	Deposit      *decimal.Decimal `json:"deposit"`
	Notes        string           `json:"notes"`
	CreatedAt    time.Time        `json:"created_at"`
}

func viewReservation(reservation *domain.Reservation) reservationView {
	return reservationView{
		ID:           reservation.ID,
		PropertyID:   reservation.PropertyID,
		ClientID:     reservation.ClientID,
		AgentID:      reservation.AgentID,
		Kind:         reservation.Kind,
		Status:       reservation.Status,
		ScheduledAt:  reservation.ScheduledAt,
		EndsAt:       reservation.EndsAt(),
		Minutes:      reservation.Minutes,
		Participants: reservation.Participants,
		Deposit:      reservation.Deposit,
		Notes:        reservation.Notes,
		CreatedAt:    reservation.CreatedAt,
	}
}

func viewReservations(reservations []*domain.Reservation) []reservationView {
	views := make([]reservationView, 0, len(reservations))
	for _, reservation := range reservations {
		views = append(views, viewReservation(reservation))
	}
	return views
}

type appointmentView struct {
	ID         uuid.UUID  `json:"id"`
	AgentID    uuid.UUID  `json:"agent_id"`
	ClientID   *uuid.UUID `json:"client_id"`
	PropertyID *uuid.UUID `json:"property_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	StartsAt   time.Time  `json:"starts_at"`
	EndsAt     time.Time  `json:"ends_at"`
	Location   string     `json:"location"`
	Latitude   *float64   `json:"latitude"`
	Longitude  *float64   `json:"longitude"`
	Notes      string     `json:"notes"`
}

func viewAppointment(appointment *domain.Appointment) appointmentView {
	return appointmentView{
		ID:         appointment.ID,
		AgentID:    appointment.AgentID,
		ClientID:   appointment.ClientID,
		PropertyID: appointment.PropertyID,
		Kind:       appointment.Kind,
		Status:     appointment.Status,
		StartsAt:   appointment.StartsAt,
		EndsAt:     appointment.EndsAt,
		Location:   appointment.Location,
		Latitude:   appointment.Latitude,
		Longitude:  appointment.Longitude,
		Notes:      appointment.Notes,
	}
}

func viewAppointments(appointments []*domain.Appointment) []appointmentView {
	views := make([]appointmentView, 0, len(appointments))
	for _, appointment := range appointments {
		views = append(views, viewAppointment(appointment))
	}
	return views
}

type commissionView struct {
	ID         uuid.UUID       `json:"id"`
	AgencyID   uuid.UUID       `json:"agency_id"`
	AgentID    uuid.UUID       `json:"agent_id"`
	PropertyID uuid.UUID       `json:"property_id"`
	Kind       string          `json:"kind"`
	BaseAmount decimal.Decimal `json:"base_amount"`
	Rate       decimal.Decimal `json:"rate"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Notes      string          `json:"notes"`
	ApprovedBy *uuid.UUID      `json:"approved_by"`
	ApprovedAt *time.Time      `json:"approved_at"`
	PaidAt     *time.Time      `json:"paid_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

func viewCommission(commission *domain.Commission) commissionView {
	return commissionView{
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
		ApprovedBy: commission.ApprovedBy,
		ApprovedAt: commission.ApprovedAt,
		PaidAt:     commission.PaidAt,
		CreatedAt:  commission.CreatedAt,
	}
}

func viewCommissions(commissions []*domain.Commission) []commissionView {
	views := make([]commissionView, 0, len(commissions))
	for _, commission := range commissions {
		views = append(views, viewCommission(commission))
	}
	return views
}

type conversationView struct {
	ID            uuid.UUID   `json:"id"`
	Subject       string      `json:"subject"`
	PropertyID    *uuid.UUID  `json:"property_id"`
	Participants  []uuid.UUID `json:"participants"`
	LastMessage   string      `json:"last_message"`
	LastMessageAt *time.Time  `json:"last_message_at"`
	Unread        int         `json:"unread"`
	CreatedAt     time.Time   `json:"created_at"`
}

func viewConversation(conversation *domain.Conversation, unread int) conversationView {
	return conversationView{
		ID:            conversation.ID,
		Subject:       conversation.Subject,
		PropertyID:    conversation.PropertyID,
		Participants:  conversation.Participants,
		LastMessage:   conversation.LastMessage,
		LastMessageAt: conversation.LastMessageAt,
		Unread:        unread,
		CreatedAt:     conversation.CreatedAt,
	}
}

type messageView struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Body           string    `json:"body"`
	Edited         bool      `json:"edited"`
	Deleted        bool      `json:"deleted"`
	IsOwn          bool      `json:"is_own"`
	CreatedAt      time.Time `json:"created_at"`
}

func viewMessage(message *domain.Message, viewerID uuid.UUID) messageView {
	body := message.Body
	if message.Deleted {
		body = ""
	}

	return messageView{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Body:           body,
		Edited:         message.Edited,
		Deleted:        message.Deleted,
		IsOwn:          message.SenderID == viewerID,
		CreatedAt:      message.CreatedAt,
	}
}

type notificationView struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Channels  []string       `json:"channels"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

func viewNotification(notification *domain.Notification) notificationView {
	return notificationView{
		ID:        notification.ID,
		Kind:      notification.Kind,
		Title:     notification.Title,
		Message:   notification.Message,
		Data:      notification.Data,
		Channels:  notification.Channels,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt,
	}
}

type settingsView struct {
	EnabledChannels []string `json:"enabled_channels"`
	QuietHoursStart *int     `json:"quiet_hours_start"`
	QuietHoursEnd   *int     `json:"quiet_hours_end"`
}

func viewSettings(settings *domain.NotificationSettings) settingsView {
	return settingsView{
		EnabledChannels: settings.EnabledChannels,
		QuietHoursStart: settings.QuietHoursStart,
		QuietHoursEnd:   settings.QuietHoursEnd,
	}
}

type interestView struct {
	ID         uuid.UUID `json:"id"`
	ClientID   uuid.UUID `json:"client_id"`
	PropertyID uuid.UUID `json:"property_id"`
	Level      string    `json:"level"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

func viewInterests(interests []*domain.Interest) []interestView {
	views := make([]interestView, 0, len(interests))
	for _, interest := range interests {
		views = append(views, interestView{
			ID:         interest.ID,
			ClientID:   interest.ClientID,
			PropertyID: interest.PropertyID,
			Level:      interest.Level,
			Note:       interest.Note,
			CreatedAt:  interest.CreatedAt,
		})
	}
	return views
}

type interactionView struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	AgentID     uuid.UUID  `json:"agent_id"`
	Kind        string     `json:"kind"`
	Subject     string     `json:"subject"`
	Notes       string     `json:"notes"`
	Completed   bool       `json:"completed"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func viewInteraction(interaction *domain.Interaction) interactionView {
	return interactionView{
		ID:          interaction.ID,
		ClientID:    interaction.ClientID,
		AgentID:     interaction.AgentID,
		Kind:        interaction.Kind,
		Subject:     interaction.Subject,
		Notes:       interaction.Notes,
		Completed:   interaction.Completed,
		ScheduledAt: interaction.ScheduledAt,
		CompletedAt: interaction.CompletedAt,
		CreatedAt:   interaction.CreatedAt,
	}
}

func viewInteractions(interactions []*domain.Interaction) []interactionView {
	views := make([]interactionView, 0, len(interactions))
	for _, interaction := range interactions {
		views = append(views, viewInteraction(interaction))
	}
	return views
}

type noteView struct {
	ID        uuid.UUID `json:"id"`
	ClientID  uuid.UUID `json:"client_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	Important bool      `json:"important"`
	CreatedAt time.Time `json:"created_at"`
}

func viewNotes(notes []*domain.ClientNote) []noteView {
	views := make([]noteView, 0, len(notes))
	for _, note := range notes {
		views = append(views, noteView{
			ID:        note.ID,
			ClientID:  note.ClientID,
			AuthorID:  note.AuthorID,
			Body:      note.Body,
			Important: note.Important,
			CreatedAt: note.CreatedAt,
		})
	}
	return views
}

type intentView struct {
	PaymentID    uuid.UUID       `json:"payment_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	ClientSecret string          `json:"client_secret"`
}

func viewIntent(intent *payments.Intent) intentView {
	return intentView{
		PaymentID:    intent.Payment.ID,
		Amount:       intent.Payment.Amount,
		Currency:     intent.Payment.Currency,
		Status:       intent.Payment.Status,
		ClientSecret: intent.ClientSecret,
	}
}

type scriptView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Author      string    `json:"author"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	Loaded      bool      `json:"loaded"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func viewScript(script *domain.Script, loaded bool) scriptView {
	return scriptView{
		ID:          script.ID,
		Name:        script.Name,
		Author:      script.Author,
		Version:     script.Version,
		Description: script.Description,
		Enabled:     script.Enabled,
		Loaded:      loaded,
		UpdatedAt:   script.UpdatedAt,
	}
}
