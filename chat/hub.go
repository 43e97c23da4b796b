// Package chat carries real-time messaging between clients and agents. A hub
// fans frames out to named groups, one per conversation and one per user,
// bridging instances over redis pub/sub when configured. The consumer speaks
// the authenticated WebSocket protocol browsers connect with.
package chat

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ConversationGroup names the fan-out group of a conversation.
func ConversationGroup(conversationID uuid.UUID) string {
	return "chat_" + conversationID.String()
}

// UserGroup names a user's personal fan-out group, used for notification
// pushes to every socket they have open.
func UserGroup(userID uuid.UUID) string {
	return "user_" + userID.String()
}

// Subscriber receives group broadcasts. Deliver must not block; slow
// consumers drop frames rather than stall the group.
type Subscriber interface {
	Deliver(payload []byte)
}

// Hub tracks which subscribers belong to which groups and fans published
// frames out to them. With a redis client the hub also publishes to a pub/sub
// channel named after the group and relays what other instances publish, so a
// conversation spread over several servers still sees every frame.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}

	client *redis.Client
	pubsub *redis.PubSub
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. A nil client keeps fan-out in-process, which only
// works on a single instance; the hub says so once instead of failing.
func NewHub(client *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		groups: make(map[string]map[Subscriber]struct{}),
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}

	if client == nil {
		log.Printf("warning: no redis configured, chat and notification fan-out stays in-process")
		return hub
	}

	hub.pubsub = client.Subscribe(ctx)
	go hub.relay()
	return hub
}

// Join adds a subscriber to a group, subscribing the instance to the group's
// redis channel when it is the first local member.
func (hub *Hub) Join(group string, subscriber Subscriber) {
	hub.mu.Lock()
	members, ok := hub.groups[group]
	if !ok {
		members = make(map[Subscriber]struct{})
		hub.groups[group] = members
	}
	members[subscriber] = struct{}{}
	first := len(members) == 1
	hub.mu.Unlock()

	if first && hub.pubsub != nil {
		if err := hub.pubsub.Subscribe(hub.ctx, group); err != nil {
			log.Printf("warning: subscribing to %s: %v, group stays in-process", group, err)
		}
	}
}

// Leave removes a subscriber from a group, dropping the redis subscription
// when no local member remains.
func (hub *Hub) Leave(group string, subscriber Subscriber) {
	hub.mu.Lock()
	members := hub.groups[group]
	delete(members, subscriber)
	last := members != nil && len(members) == 0
	if last {
		delete(hub.groups, group)
	}
	hub.mu.Unlock()

	if last && hub.pubsub != nil {
		if err := hub.pubsub.Unsubscribe(hub.ctx, group); err != nil {
			log.Printf("warning: unsubscribing from %s: %v", group, err)
		}
	}
}

// Publish sends a frame to every member of a group. When bridged, the frame
// goes through redis so other instances deliver it too; local delivery then
// happens when the relay hears the publish back. A redis failure falls back
// to local delivery so the conversation keeps working on this instance.
func (hub *Hub) Publish(group string, payload []byte) {
	if hub.client != nil {
		if err := hub.client.Publish(hub.ctx, group, payload).Err(); err != nil {
			log.Printf("warning: publishing to %s over redis: %v, delivering locally", group, err)
			hub.deliverLocal(group, payload)
		}
		return
	}
	hub.deliverLocal(group, payload)
}

// relay feeds frames published by any instance, this one included, to the
// local members of the group.
func (hub *Hub) relay() {
	for message := range hub.pubsub.Channel() {
		hub.deliverLocal(message.Channel, []byte(message.Payload))
	}
}

func (hub *Hub) deliverLocal(group string, payload []byte) {
	hub.mu.RLock()
	members := make([]Subscriber, 0, len(hub.groups[group]))
	for member := range hub.groups[group] {
		members = append(members, member)
	}
	hub.mu.RUnlock()

	for _, member := range members {
		member.Deliver(payload)
	}
}

// Close stops the redis relay. Open sockets are owned by their sessions and
// close on their own.
func (hub *Hub) Close() error {
	hub.cancel()
	if hub.pubsub != nil {
		return hub.pubsub.Close()
	}
	return nil
}
