package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Queue names. Weights decide how often the worker polls each queue, so core
// CRM upkeep wins over bulk work when the backlog grows.
const (
	QueueDefault    = "default"
	QueueCore       = "core"
	QueueAuth       = "auth"
	QueueProperties = "properties"
	QueueClients    = "clients"
)

// QueueWeights is the polling priority handed to the asynq server.
var QueueWeights = map[string]int{
	QueueCore:       3,
	QueueDefault:    2,
	QueueAuth:       2,
	QueueProperties: 1,
	QueueClients:    1,
}

// Task type names. Scheduled types are registered with the periodic
// scheduler, the others are enqueued on demand.
const (
	TypeExpireReservations = "reservations:expire"
	TypeVisitReminders     = "reservations:reminders"
	TypeCleanNotifications = "notifications:cleanup"
	TypeAutoAssignLeads    = "leads:auto_assign"
	TypePurgeExpiredTokens = "auth:purge_tokens"
	TypeGeocodeProperty    = "properties:geocode"
	TypeNotificationBatch  = "notifications:batch"
)

// GeocodePayload asks the worker to resolve a property's address into
// coordinates.
type GeocodePayload struct {
	PropertyID uuid.UUID `json:"property_id"`
}

// NewGeocodeTask builds the task that geocodes a single property.
func NewGeocodeTask(propertyID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(GeocodePayload{PropertyID: propertyID})
	if err != nil {
		return nil, fmt.Errorf("marshalling geocode payload : %w", err)
	}

	return asynq.NewTask(TypeGeocodeProperty, payload), nil
}

// NotificationBatchPayload fans one notification out to many recipients.
type NotificationBatchPayload struct {
	RecipientIDs []uuid.UUID    `json:"recipient_ids"`
	Kind         string         `json:"kind"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data,omitempty"`
	Channels     []string       `json:"channels,omitempty"`
}

// NewNotificationBatchTask builds the task that delivers a notification to a
// list of recipients.
func NewNotificationBatchTask(payload NotificationBatchPayload) (*asynq.Task, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshalling notification batch payload : %w", err)
	}

	return asynq.NewTask(TypeNotificationBatch, encoded), nil
}
