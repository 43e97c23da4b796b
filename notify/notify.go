// Package notify fans user notifications out over delivery channels. The
// inbox row is persisted first, then each requested channel gets the rendered
// content, with every attempt recorded in a delivery log.
package notify

import (
	"bytes"
	"fmt"
	"log"
	"time"

	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// DefaultPageSize is the inbox page size when the caller gives none.
const DefaultPageSize = 20

// Content is the rendered payload a channel sends. Subject doubles as the
// push title; Body is channel-appropriate (HTML for email, plain elsewhere).
type Content struct {
	Subject string
	Body    string
}

// Channel delivers a notification over one transport, returning the
// provider's reference for the delivery log when it has one.
type Channel interface {
	Deliver(notification *domain.Notification, recipient *domain.User, content Content) (externalID string, err error)
}

// Service persists notifications and dispatches them. Channels register by
// name at wiring time; the in-app channel is always present since the inbox
// row itself is the delivery.
type Service struct {
	notifications domain.NotificationRepository
	users         domain.UserRepository
	channels      map[string]Channel
	now           func() time.Time
}

// NewService creates a notification service over the given repositories.
func NewService(notifications domain.NotificationRepository, users domain.UserRepository) *Service {
	return &Service{
		notifications: notifications,
		users:         users,
		channels:      map[string]Channel{domain.ChannelInApp: InAppChannel{}},
		now:           time.Now,
	}
}

// Register binds a delivery channel implementation to its name.
func (service *Service) Register(name string, channel Channel) {
	service.channels[name] = channel
}

// Create persists a notification for the recipient and dispatches it on the
// requested channels, DefaultChannels when none are given. The recipient's
// settings gate email, SMS, and push; quiet hours additionally hold email
// and SMS back. Delivery failures never fail the call, the inbox row stands
// either way.
func (service *Service) Create(recipientID uuid.UUID, kind, title, message string, data map[string]any, channels []string) (*domain.Notification, error) {
	recipient, err := service.users.GetUser(recipientID)
	if err != nil {
		return nil, fmt.Errorf("fetching recipient %s : %w", recipientID, err)
	}

	if len(channels) == 0 {
		channels = domain.DefaultChannels
	}
	channels, err = service.gateChannels(recipientID, channels)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("creating notification id : %w", err)
	}

	notification := &domain.Notification{
		ID:          id,
		RecipientID: recipientID,
		Kind:        kind,
		Title:       title,
		Message:     message,
		Data:        data,
		Channels:    channels,
		CreatedAt:   service.now().UTC().Truncate(time.Millisecond),
	}

	if err := service.notifications.InsertNotification(notification); err != nil {
		return nil, fmt.Errorf("saving notification : %w", err)
	}

	template, err := service.notifications.GetTemplate(kind)
	if err != nil {
		log.Printf("warning: loading %s template: %v, sending raw content", kind, err)
		template = nil
	}

	for _, name := range channels {
		channel, ok := service.channels[name]
		if !ok {
			log.Printf("warning: no %s channel registered, skipping delivery", name)
			continue
		}
		service.dispatch(channel, name, notification, recipient, template)
	}

	return notification, nil
}

// gateChannels applies the recipient's settings: websocket and in-app always
// pass, the rest must be enabled, and quiet hours hold back email and SMS.
func (service *Service) gateChannels(recipientID uuid.UUID, channels []string) ([]string, error) {
	settings, err := service.notifications.GetNotificationSettings(recipientID)
	if err != nil {
		return nil, fmt.Errorf("fetching notification settings : %w", err)
	}
	if settings == nil {
		return channels, nil
	}

	kept := make([]string, 0, len(channels))
	for _, channel := range channels {
		switch channel {
		case domain.ChannelWebsocket, domain.ChannelInApp:
			kept = append(kept, channel)
			continue
		case domain.ChannelEmail, domain.ChannelSMS:
			if settings.InQuietHours(service.now()) {
				continue
			}
		}
		if settings.ChannelEnabled(channel) {
			kept = append(kept, channel)
		}
	}
	return kept, nil
}

// dispatch renders the channel's content and attempts delivery up to
// MaxDeliveryAttempts times, logging every attempt.
func (service *Service) dispatch(channel Channel, name string, notification *domain.Notification, recipient *domain.User, template *domain.NotificationTemplate) {
	content := service.renderContent(name, notification, template)

	for attempt := 1; attempt <= domain.MaxDeliveryAttempts; attempt++ {
		externalID, err := channel.Deliver(notification, recipient, content)

		entry := &domain.DeliveryLog{
			NotificationID: notification.ID,
			Channel:        name,
			Attempt:        attempt,
			CreatedAt:      service.now().UTC().Truncate(time.Millisecond),
		}
		if logID, idErr := uuid.NewV7(); idErr == nil {
			entry.ID = logID
		}

		if err == nil {
			entry.Status = "sent"
			entry.ExternalID = externalID
		} else {
			entry.Status = "failed"
			entry.Error = err.Error()
		}

		if logErr := service.notifications.InsertDeliveryLog(entry); logErr != nil {
			log.Printf("warning: recording %s delivery for %s: %v", name, notification.ID, logErr)
		}

		if err == nil {
			return
		}
		log.Printf("warning: delivering %s on %s (attempt %d): %v", notification.ID, name, attempt, err)
	}
}

// renderContent resolves the channel's subject and body from the kind's
// template, falling back to the notification's own title and message when no
// template exists or rendering fails.
func (service *Service) renderContent(channel string, notification *domain.Notification, template *domain.NotificationTemplate) Content {
	content := Content{Subject: notification.Title, Body: notification.Message}
	if template == nil {
		if channel == domain.ChannelEmail {
			content.Body = FormatHTMLBody(notification.Message)
		}
		return content
	}

	switch channel {
	case domain.ChannelEmail:
		if rendered, err := renderText(template.EmailSubject, notification.Data); err == nil && rendered != "" {
			content.Subject = rendered
		}
		if rendered, err := renderHTML(template.EmailBody, notification.Data); err == nil && rendered != "" {
			content.Body = rendered
		} else {
			content.Body = FormatHTMLBody(notification.Message)
		}
	case domain.ChannelSMS:
		if rendered, err := renderText(template.SMSBody, notification.Data); err == nil && rendered != "" {
			content.Body = rendered
		}
	case domain.ChannelPush:
		if rendered, err := renderText(template.PushTitle, notification.Data); err == nil && rendered != "" {
			content.Subject = rendered
		}
		if rendered, err := renderText(template.PushBody, notification.Data); err == nil && rendered != "" {
			content.Body = rendered
		}
	}
	return content
}

// renderText executes a text template against the notification data. Missing
// keys fail the render so the caller falls back to the plain message.
func renderText(tmpl string, data map[string]any) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	parsed, err := texttemplate.New("notification").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template : %w", err)
	}
	var buffer bytes.Buffer
	if err := parsed.Execute(&buffer, data); err != nil {
		return "", fmt.Errorf("rendering template : %w", err)
	}
	return buffer.String(), nil
}

// renderHTML executes an HTML template against the notification data and
// formats the result for sending.
func renderHTML(tmpl string, data map[string]any) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	parsed, err := htmltemplate.New("notification").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parsing template : %w", err)
	}
	var buffer bytes.Buffer
	if err := parsed.Execute(&buffer, data); err != nil {
		return "", fmt.Errorf("rendering template : %w", err)
	}
	return FormatHTMLBody(buffer.String()), nil
}

// Inbox is one page of a user's notifications.
type Inbox struct {
	Total         int                    `json:"total"`
	Notifications []*domain.Notification `json:"notifications"`
	HasMore       bool                   `json:"has_more"`
}

// List pages through a user's notifications, newest first.
func (service *Service) List(userID uuid.UUID, limit, offset int, unreadOnly bool) (*Inbox, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	notifications, total, err := service.notifications.GetUserNotifications(userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("fetching notifications : %w", err)
	}

	return &Inbox{
		Total:         total,
		Notifications: notifications,
		HasMore:       offset+len(notifications) < total,
	}, nil
}

// MarkRead flags a notification as read by its recipient.
func (service *Service) MarkRead(id, userID uuid.UUID) error {
	return service.notifications.MarkNotificationRead(id, userID)
}

// Stats summarizes a user's notifications.
type Stats struct {
	Unread    int            `json:"unread"`
	ByKind    map[string]int `json:"by_kind"`
	ByChannel map[string]int `json:"by_channel"`
}

// UserStats aggregates a user's unread count and sent-delivery breakdowns.
func (service *Service) UserStats(userID uuid.UUID) (*Stats, error) {
	unread, err := service.notifications.CountUnreadNotifications(userID)
	if err != nil {
		return nil, fmt.Errorf("counting unread notifications : %w", err)
	}
	byKind, byChannel, err := service.notifications.NotificationStats(userID)
	if err != nil {
		return nil, fmt.Errorf("aggregating notification stats : %w", err)
	}
	return &Stats{Unread: unread, ByKind: byKind, ByChannel: byChannel}, nil
}

// Cleanup deletes read notifications older than the retention window along
// with their delivery logs, returning how many were removed.
func (service *Service) Cleanup() (int, error) {
	cutoff := service.now().UTC().Add(-domain.NotificationRetention)
	return service.notifications.DeleteReadNotificationsBefore(cutoff)
}
