package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/notify"
)

var _ notify.Channel = (*WebsocketChannel)(nil)

// WebsocketChannel pushes notifications through the hub to the recipient's
// personal group, reaching every socket they have open on any instance.
type WebsocketChannel struct {
	hub *Hub
}

// NewWebsocketChannel creates the websocket delivery channel over the hub.
func NewWebsocketChannel(hub *Hub) *WebsocketChannel {
	return &WebsocketChannel{hub: hub}
}

// Deliver publishes the notification frame. Publishing is fire and forget;
// a recipient with no open socket simply hears nothing.
func (channel *WebsocketChannel) Deliver(notification *domain.Notification, recipient *domain.User, content notify.Content) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"type": "notification",
		"notification": map[string]any{
			"id":         notification.ID.String(),
			"kind":       notification.Kind,
			"title":      notification.Title,
			"message":    notification.Message,
			"data":       notification.Data,
			"created_at": notification.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("serializing notification %s : %w", notification.ID, err)
	}

	channel.hub.Publish(UserGroup(recipient.ID), payload)
	return "", nil
}
