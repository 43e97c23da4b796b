package domain

import (
	"time"

	"github.com/google/uuid"
)

// Delivery channels a notification can be dispatched on.
const (
	ChannelWebsocket = "websocket"
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelPush      = "push"
	ChannelInApp     = "in_app"
)

// DefaultChannels are used when a notification is created without explicit
// channels and the recipient has no settings row.
var DefaultChannels = []string{ChannelWebsocket, ChannelInApp}

// MaxDeliveryAttempts caps retries on a failing channel delivery.
const MaxDeliveryAttempts = 3

// NotificationRetention is how long read notifications and their delivery
// logs are kept before cleanup.
const NotificationRetention = 30 * 24 * time.Hour

// NotificationRepository defines the interface for notifications, per-user
// settings, templates, and delivery logs.
type NotificationRepository interface {
	// InsertNotification saves a new notification.
	InsertNotification(notification *Notification) error
	// GetNotification retrieves a notification by ID.
	GetNotification(id uuid.UUID) (*Notification, error)
	// GetUserNotifications retrieves a user's notifications, newest first,
	// with the total count for paging. unreadOnly restricts to unread rows.
	GetUserNotifications(userID uuid.UUID, limit, offset int, unreadOnly bool) ([]*Notification, int, error)
	// MarkNotificationRead flags a notification as read by its recipient.
	MarkNotificationRead(id, userID uuid.UUID) error
	// CountUnreadNotifications returns the unread count for a user.
	CountUnreadNotifications(userID uuid.UUID) (int, error)
	// DeleteReadNotificationsBefore removes read notifications older than the
	// cutoff together with their delivery logs, returning how many were
	// removed.
	DeleteReadNotificationsBefore(cutoff time.Time) (int, error)

	// GetNotificationSettings retrieves a user's settings, or nil when the
	// user never saved any.
	GetNotificationSettings(userID uuid.UUID) (*NotificationSettings, error)
	// UpsertNotificationSettings creates or replaces a user's settings.
	UpsertNotificationSettings(settings *NotificationSettings) error

	// GetTemplate retrieves the template for a notification kind, or nil
	// when the kind has no template.
	GetTemplate(kind string) (*NotificationTemplate, error)
	// UpsertTemplate creates or replaces the template for a kind.
	UpsertTemplate(template *NotificationTemplate) error

	// InsertDeliveryLog records a delivery attempt on a channel.
	InsertDeliveryLog(log *DeliveryLog) error
	// GetDeliveryLogs retrieves the delivery attempts for a notification.
	GetDeliveryLogs(notificationID uuid.UUID) ([]*DeliveryLog, error)
	// NotificationStats aggregates counts by kind and by channel for a user.
	NotificationStats(userID uuid.UUID) (byKind map[string]int, byChannel map[string]int, err error)
}

// Notification is an event addressed to a user, fanned out over one or more
// channels. The row itself is the in-app inbox entry.
type Notification struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	Kind        string         // Event kind (e.g. "lead.assigned", "reservation.reminder").
	Title       string
	Message     string
	Data        map[string]any // Structured payload forwarded to websocket clients.
	Channels    []string       // Channels the dispatch targeted.
	Read        bool
	CreatedAt   time.Time
}

// NotificationSettings gates channels per user. Quiet hours suppress email
// and SMS; websocket and in-app always deliver.
type NotificationSettings struct {
	UserID          uuid.UUID
	EnabledChannels []string
	QuietHoursStart *int // Hour of day, 0 to 23. Nil disables quiet hours.
	QuietHoursEnd   *int
	UpdatedAt       time.Time
}

// ChannelEnabled reports whether the user accepts deliveries on a channel.
func (s *NotificationSettings) ChannelEnabled(channel string) bool {
	for _, enabled := range s.EnabledChannels {
		if enabled == channel {
			return true
		}
	}
	return false
}

// InQuietHours reports whether the given time falls in the user's quiet
// window. Windows may wrap past midnight (e.g. 22 to 7).
func (s *NotificationSettings) InQuietHours(at time.Time) bool {
	if s.QuietHoursStart == nil || s.QuietHoursEnd == nil {
		return false
	}
	start, end := *s.QuietHoursStart, *s.QuietHoursEnd
	hour := at.Hour()
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// NotificationTemplate carries per-channel subject and body templates for a
// notification kind. Bodies are Go text templates rendered with the
// notification data.
type NotificationTemplate struct {
	Kind         string
	EmailSubject string
	EmailBody    string // HTML template.
	SMSBody      string
	PushTitle    string
	PushBody     string
	UpdatedAt    time.Time
}

// DeliveryLog records one delivery attempt of a notification on a channel.
type DeliveryLog struct {
	ID             uuid.UUID
	NotificationID uuid.UUID
	Channel        string
	Status         string // "sent" or "failed".
	Error          string // Provider error message when failed.
	ExternalID     string // Provider reference (e.g. Twilio message SID).
	Attempt        int    // 1-based attempt number.
	CreatedAt      time.Time
}
