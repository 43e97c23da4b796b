package notify

import (
	"log"

	"github.com/DIGIT-HABs/back/domain"
)

// PushChannel logs deliveries instead of sending them. No push provider is
// contracted yet; keeping the channel registered means settings and delivery
// logs already exercise the full path.
type PushChannel struct{}

// Deliver logs the push and reports success.
func (PushChannel) Deliver(notification *domain.Notification, recipient *domain.User, content Content) (string, error) {
	log.Printf("push for %s: %s", recipient.Username, content.Subject)
	return "", nil
}

// InAppChannel is the inbox itself. Create already persisted the row, so
// delivering is a no-op success.
type InAppChannel struct{}

// Deliver reports success without side effects.
func (InAppChannel) Deliver(notification *domain.Notification, recipient *domain.User, content Content) (string, error) {
	return "", nil
}
