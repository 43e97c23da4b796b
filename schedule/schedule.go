// Package schedule plans property visits over the reservation calendar: it
// exposes an agent's free slots, detects booking conflicts, orders a day of
// visits into a driving route, and searches a two-week window for the slots
// that best fit a client.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// Scheduling parameters.
const (
	// SlotMinutes is the default visit length.
	SlotMinutes = 60
	// GridStepMinutes is the granularity of the availability grid.
	GridStepMinutes = 30
	// BufferMinutes is the gap kept on both sides of a booked visit.
	BufferMinutes = 15
	// MaxVisitsPerDay caps how many visits one agent takes in a day.
	MaxVisitsPerDay = 8
	// MinBreakMinutes is the clear stretch an agent keeps in a day that
	// already carries two or more visits.
	MinBreakMinutes = 30
	// SearchHorizonDays is how far ahead FirstAvailable scans.
	SearchHorizonDays = 30
)

// ErrNoSlot is returned when no free slot exists within the search horizon.
var ErrNoSlot = errors.New("no available slot in the search window")

// Slot is a bookable window in an agent's day.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Service plans visits over the reservation calendar. Working hours come from
// the runtime configuration and apply agency-wide.
type Service struct {
	reservations domain.ReservationRepository
	properties   domain.PropertyRepository
	config       domain.ConfigRepository
}

// NewService creates a scheduling service.
func NewService(reservations domain.ReservationRepository, properties domain.PropertyRepository, config domain.ConfigRepository) *Service {
	return &Service{reservations: reservations, properties: properties, config: config}
}

// FindAvailableSlots returns the free slots of an agent on the given day, on
// a half-hour grid within working hours. Booked visits block their slot plus
// a buffer on each side, and a full day returns nothing.
func (service *Service) FindAvailableSlots(agentID uuid.UUID, day time.Time) ([]Slot, error) {
	return service.availableSlots(agentID, day, SlotMinutes)
}

// FirstAvailable returns the earliest free slot of an agent, scanning day by
// day from the given date up to the search horizon.
func (service *Service) FirstAvailable(agentID uuid.UUID, from time.Time) (*Slot, error) {
	day := from
	for i := 0; i < SearchHorizonDays; i++ {
		slots, err := service.availableSlots(agentID, day, SlotMinutes)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &slots[0], nil
		}
		day = day.AddDate(0, 0, 1)
	}
	return nil, ErrNoSlot
}

func (service *Service) availableSlots(agentID uuid.UUID, day time.Time, minutes int) ([]Slot, error) {
	if minutes <= 0 {
		minutes = SlotMinutes
	}

	workStart, workEnd, working, err := service.workingWindow(day)
	if err != nil {
		return nil, err
	}
	if !working {
		return nil, nil
	}

	dayStart := midnight(day)
	booked, err := service.reservations.GetAgentReservations(agentID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("fetching agent calendar : %w", err)
	}
	if len(booked) >= MaxVisitsPerDay {
		return nil, nil
	}

	var slots []Slot
	for start := workStart; !start.Add(time.Duration(minutes) * time.Minute).After(workEnd); start = start.Add(GridStepMinutes * time.Minute) {
		slot := Slot{Start: start, End: start.Add(time.Duration(minutes) * time.Minute)}
		if slotBlocked(slot, booked) {
			continue
		}
		if len(booked) >= 2 && !leavesBreak(slot, booked, workStart, workEnd) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// workingWindow resolves the agency working hours for the day. The third
// return is false on non-working days.
func (service *Service) workingWindow(day time.Time) (time.Time, time.Time, bool, error) {
	hours, err := service.config.GetWorkingHours()
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("fetching working hours : %w", err)
	}

	window, ok := hours[int(day.Weekday())]
	if !ok {
		return time.Time{}, time.Time{}, false, nil
	}

	startMinute, endMinute, err := parseWindow(window)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("parsing working hours %q : %w", window, err)
	}

	dayStart := midnight(day)
	return dayStart.Add(time.Duration(startMinute) * time.Minute),
		dayStart.Add(time.Duration(endMinute) * time.Minute), true, nil
}

// parseWindow parses a "HH:MM-HH:MM" range into minute offsets from midnight.
func parseWindow(window string) (int, int, error) {
	parts := strings.SplitN(window, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed range %q", window)
	}

	start, err := parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("range %q ends before it starts", window)
	}
	return start, end, nil
}

func parseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time %q out of range", value)
	}
	return hour*60 + minute, nil
}

// slotBlocked reports whether the slot runs into a booked visit or the buffer
// around one.
func slotBlocked(slot Slot, booked []*domain.Reservation) bool {
	for _, reservation := range booked {
		blockStart := reservation.ScheduledAt.Add(-BufferMinutes * time.Minute)
		blockEnd := reservation.EndsAt().Add(BufferMinutes * time.Minute)
		if slot.Start.Before(blockEnd) && blockStart.Before(slot.End) {
			return true
		}
	}
	return false
}

// leavesBreak reports whether booking the slot still leaves the agent a clear
// stretch of at least MinBreakMinutes inside the working window.
func leavesBreak(slot Slot, booked []*domain.Reservation, workStart, workEnd time.Time) bool {
	busy := make([]Slot, 0, len(booked)+1)
	for _, reservation := range booked {
		busy = append(busy, Slot{Start: reservation.ScheduledAt, End: reservation.EndsAt()})
	}
	busy = append(busy, slot)
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	longest := time.Duration(0)
	cursor := workStart
	for _, window := range busy {
		if window.Start.After(cursor) {
			if gap := window.Start.Sub(cursor); gap > longest {
				longest = gap
			}
		}
		if window.End.After(cursor) {
			cursor = window.End
		}
	}
	if workEnd.After(cursor) {
		if gap := workEnd.Sub(cursor); gap > longest {
			longest = gap
		}
	}
	return longest >= MinBreakMinutes*time.Minute
}

// midnight truncates a time to the start of its day.
func midnight(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
}
