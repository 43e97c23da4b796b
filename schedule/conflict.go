package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// Conflict kinds.
const (
	ConflictTimeOverlap   = "time_overlap"
	ConflictDoubleBooking = "property_conflict"
)

// Conflict severities.
const (
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Conflict flags two reservations competing for the same agent or the same
// property.
type Conflict struct {
	Kind          string    `json:"kind"`
	Severity      string    `json:"severity"`
	ReservationID uuid.UUID `json:"reservation_id"`
	OtherID       uuid.UUID `json:"other_id"`
	Description   string    `json:"description"`
}

// Conflicts checks a reservation against the rest of the calendar. Another
// visit of the same agent overlapping in time is a high-severity conflict;
// the same property booked twice at once is critical. A reservation that
// does both raises both.
func (service *Service) Conflicts(reservation *domain.Reservation) ([]*Conflict, error) {
	dayStart := midnight(reservation.ScheduledAt)
	dayEnd := dayStart.AddDate(0, 0, 1)

	property, err := service.properties.GetProperty(reservation.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("fetching property %s : %w", reservation.PropertyID, err)
	}

	var conflicts []*Conflict

	agentVisits, err := service.reservations.GetAgentReservations(reservation.AgentID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("fetching agent calendar : %w", err)
	}
	for _, other := range agentVisits {
		if other.ID == reservation.ID || !overlaps(reservation, other) {
			continue
		}
		otherProperty, err := service.properties.GetProperty(other.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("fetching property %s : %w", other.PropertyID, err)
		}
		conflicts = append(conflicts, &Conflict{
			Kind:          ConflictTimeOverlap,
			Severity:      SeverityHigh,
			ReservationID: reservation.ID,
			OtherID:       other.ID,
			Description:   fmt.Sprintf("Chevauchement horaire entre %s et %s", property.Title, otherProperty.Title),
		})
	}

	propertyVisits, err := service.reservations.GetPropertyReservations(reservation.PropertyID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("fetching property calendar : %w", err)
	}
	for _, other := range propertyVisits {
		if other.ID == reservation.ID || !overlaps(reservation, other) {
			continue
		}
		conflicts = append(conflicts, &Conflict{
			Kind:          ConflictDoubleBooking,
			Severity:      SeverityCritical,
			ReservationID: reservation.ID,
			OtherID:       other.ID,
			Description:   fmt.Sprintf("Conflit de propriété : %s visitée simultanément", property.Title),
		})
	}

	return conflicts, nil
}

// overlaps reports whether two reservations share any time, buffers excluded.
func overlaps(a, b *domain.Reservation) bool {
	return a.ScheduledAt.Before(b.EndsAt()) && b.ScheduledAt.Before(a.EndsAt())
}

// HasCriticalConflict reports whether booking at the given time would double
// book the property, for validation before a reservation is accepted.
func (service *Service) HasCriticalConflict(propertyID uuid.UUID, scheduledAt time.Time, minutes int) (bool, error) {
	if minutes <= 0 {
		minutes = domain.DefaultReservationMinutes
	}
	end := scheduledAt.Add(time.Duration(minutes) * time.Minute)

	existing, err := service.reservations.GetPropertyReservations(propertyID, scheduledAt, end)
	if err != nil {
		return false, fmt.Errorf("fetching property calendar : %w", err)
	}
	for _, other := range existing {
		if scheduledAt.Before(other.EndsAt()) && other.ScheduledAt.Before(end) {
			return true, nil
		}
	}
	return false, nil
}
