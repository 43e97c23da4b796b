package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/geocode"
)

// reminderLayout renders a reservation slot in the reminder notifications.
const reminderLayout = "02/01/2006 à 15:04"

// handleExpireReservations cancels pending reservations whose slot passed
// more than ReservationExpiryDelay ago without a confirmation.
func (runner *Runner) handleExpireReservations(ctx context.Context, task *asynq.Task) error {
	cutoff := time.Now().Add(-domain.ReservationExpiryDelay)

	expired, err := runner.store.ExpirePending(cutoff)
	if err != nil {
		return fmt.Errorf("expiring pending reservations : %w", err)
	}

	if expired > 0 {
		log.Printf("[*] expired %d stale reservations", expired)
	}

	return nil
}

// handleVisitReminders notifies both sides of every confirmed reservation
// coming up within ReservationReminderBefore, then flags each so the next
// sweep skips it.
func (runner *Runner) handleVisitReminders(ctx context.Context, task *asynq.Task) error {
	now := time.Now()

	due, err := runner.store.GetDueReminders(now, now.Add(domain.ReservationReminderBefore))
	if err != nil {
		return fmt.Errorf("listing due reminders : %w", err)
	}

	sent := 0
	for _, reservation := range due {
		runner.remind(reservation)

		err = runner.store.MarkReminderSent(reservation.ID)
		if err != nil {
			return fmt.Errorf("marking reminder sent for %s : %w", reservation.ID, err)
		}

		sent++
	}

	if sent > 0 {
		log.Printf("[*] sent %d visit reminders", sent)
	}

	return nil
}

// remind sends the reminder notification to the client and the agent. A
// failed delivery is logged rather than returned so the reservation is still
// flagged and never reminded twice.
func (runner *Runner) remind(reservation *domain.Reservation) {
	slot := reservation.ScheduledAt.Format(reminderLayout)
	data := map[string]any{
		"reservation_id": reservation.ID.String(),
		"property_id":    reservation.PropertyID.String(),
		"scheduled_at":   reservation.ScheduledAt.Format(time.RFC3339),
	}

	reference := ""
	if property, err := runner.store.GetProperty(reservation.PropertyID); err == nil {
		reference = property.Reference
		data["reference"] = reference
	}

	clientMessage := fmt.Sprintf("Votre visite est prévue le %s.", slot)
	agentMessage := fmt.Sprintf("Visite prévue le %s.", slot)
	if reference != "" {
		clientMessage = fmt.Sprintf("Votre visite du bien %s est prévue le %s.", reference, slot)
		agentMessage = fmt.Sprintf("Visite du bien %s prévue le %s.", reference, slot)
	}

	_, err := runner.notifier.Create(reservation.ClientID, "reservation.reminder",
		"Rappel de visite", clientMessage, data, nil)
	if err != nil {
		log.Printf("warning: reminding client %s about reservation %s: %v", reservation.ClientID, reservation.ID, err)
	}

	_, err = runner.notifier.Create(reservation.AgentID, "reservation.reminder",
		"Rappel de visite", agentMessage, data, nil)
	if err != nil {
		log.Printf("warning: reminding agent %s about reservation %s: %v", reservation.AgentID, reservation.ID, err)
	}
}

// handleCleanNotifications prunes read notifications past the retention
// window.
func (runner *Runner) handleCleanNotifications(ctx context.Context, task *asynq.Task) error {
	removed, err := runner.notifier.Cleanup()
	if err != nil {
		return fmt.Errorf("cleaning notifications : %w", err)
	}

	if removed > 0 {
		log.Printf("[*] removed %d old notifications", removed)
	}

	return nil
}

// handleAutoAssignLeads runs the round-robin assignment sweep for every
// agency. One failing agency does not block the others.
func (runner *Runner) handleAutoAssignLeads(ctx context.Context, task *asynq.Task) error {
	agencies, err := runner.store.GetAgencies()
	if err != nil {
		return fmt.Errorf("listing agencies : %w", err)
	}

	assigned := 0
	for _, agency := range agencies {
		count, err := runner.assigner.AutoAssign(agency.ID)
		if err != nil {
			log.Printf("warning: auto-assigning leads for agency %s: %v", agency.ID, err)
			continue
		}

		assigned += count
	}

	if assigned > 0 {
		log.Printf("[*] auto-assigned %d leads", assigned)
	}

	return nil
}

// handlePurgeExpiredTokens drops refresh tokens past their expiry.
func (runner *Runner) handlePurgeExpiredTokens(ctx context.Context, task *asynq.Task) error {
	purged, err := runner.store.DeleteExpiredTokens(time.Now())
	if err != nil {
		return fmt.Errorf("purging expired tokens : %w", err)
	}

	if purged > 0 {
		log.Printf("[*] purged %d expired tokens", purged)
	}

	return nil
}

// handleGeocodeProperty resolves the property's postal address into
// coordinates and stores them. Addresses the geocoder cannot place are
// logged and dropped, retrying would not change the answer.
func (runner *Runner) handleGeocodeProperty(ctx context.Context, task *asynq.Task) error {
	var payload GeocodePayload
	err := json.Unmarshal(task.Payload(), &payload)
	if err != nil {
		return fmt.Errorf("unmarshalling geocode payload : %w", err)
	}

	property, err := runner.store.GetProperty(payload.PropertyID)
	if err != nil {
		return fmt.Errorf("getting property %s : %w", payload.PropertyID, err)
	}

	address := postalAddress(property)
	if address == "" {
		log.Printf("[*] property %s has no address to geocode", property.ID)
		return nil
	}

	result, err := runner.geocoder.Search(ctx, address)
	if errors.Is(err, geocode.ErrNoResult) {
		log.Printf("[*] no coordinates found for %q", address)
		return nil
	}
	if err != nil {
		return fmt.Errorf("geocoding %q : %w", address, err)
	}

	property.Latitude = &result.Latitude
	property.Longitude = &result.Longitude

	err = runner.store.UpdateProperty(property)
	if err != nil {
		return fmt.Errorf("storing coordinates for %s : %w", property.ID, err)
	}

	log.Printf("[*] geocoded property %s to %.4f, %.4f", property.Reference, result.Latitude, result.Longitude)

	return nil
}

// handleNotificationBatch delivers one notification to every recipient in
// the payload. Per-recipient failures are logged so one bad recipient does
// not fail the whole batch.
func (runner *Runner) handleNotificationBatch(ctx context.Context, task *asynq.Task) error {
	var payload NotificationBatchPayload
	err := json.Unmarshal(task.Payload(), &payload)
	if err != nil {
		return fmt.Errorf("unmarshalling notification batch payload : %w", err)
	}

	delivered := 0
	for _, recipientID := range payload.RecipientIDs {
		_, err = runner.notifier.Create(recipientID, payload.Kind, payload.Title, payload.Message, payload.Data, payload.Channels)
		if err != nil {
			log.Printf("warning: notifying %s: %v", recipientID, err)
			continue
		}

		delivered++
	}

	log.Printf("[*] notification batch %q delivered to %d of %d recipients", payload.Kind, delivered, len(payload.RecipientIDs))

	return nil
}

// postalAddress flattens a property's location fields into one query string
// for the geocoder.
func postalAddress(property *domain.Property) string {
	street := strings.TrimSpace(property.Address)
	locality := strings.TrimSpace(strings.TrimSpace(property.PostalCode) + " " + strings.TrimSpace(property.City))

	switch {
	case street == "":
		return locality
	case locality == "":
		return street
	}

	return street + ", " + locality
}
