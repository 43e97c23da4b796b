package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Best-match search parameters.
const (
	// BestMatchWindowDays is the width of the search window.
	BestMatchWindowDays = 14
	// BestMatchThreshold is the score below which a slot is not proposed.
	BestMatchThreshold = 0.5
	// BestMatchLimit is how many slots a search returns.
	BestMatchLimit = 3
)

// Time-of-day preferences for a visit.
const (
	PreferMorning   = "morning"
	PreferAfternoon = "afternoon"
	PreferEvening   = "evening"
	PreferAny       = "any"
)

// Preference captures when a client would like to visit.
type Preference struct {
	Day       time.Time // Preferred day.
	TimeOfDay string    // One of the Prefer* constants, PreferAny when empty.
	Minutes   int       // Desired duration, SlotMinutes when zero.
}

// ScoredSlot is a candidate visit slot with its match score and the factors
// behind it.
type ScoredSlot struct {
	Slot    Slot               `json:"slot"`
	Score   float64            `json:"score"`
	Factors map[string]float64 `json:"factors"`
}

// BestMatch searches the two weeks after the preferred day for the slots
// that best fit the client, balancing date proximity, time of day, and how
// loaded the agent already is. Only slots scoring above the threshold are
// returned, best first, at most BestMatchLimit of them.
func (service *Service) BestMatch(agentID uuid.UUID, preference Preference, from time.Time) ([]*ScoredSlot, error) {
	day := preference.Day
	if day.Before(from) {
		day = from
	}

	var candidates []*ScoredSlot
	for offset := 0; offset <= BestMatchWindowDays; offset++ {
		slots, err := service.availableSlots(agentID, day, preference.Minutes)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			dayStart := midnight(day)
			booked, err := service.reservations.GetAgentReservations(agentID, dayStart, dayStart.AddDate(0, 0, 1))
			if err != nil {
				return nil, fmt.Errorf("fetching agent calendar : %w", err)
			}

			dateFactor := 0.8
			if sameDay(day, preference.Day) {
				dateFactor = 1.0
			}
			loadFactor := 1.0 - float64(len(booked))/MaxVisitsPerDay

			for _, slot := range slots {
				timeFactor := timePreferenceFactor(slot.Start, preference.TimeOfDay)
				score := (dateFactor + timeFactor + loadFactor) / 3
				if score <= BestMatchThreshold {
					continue
				}
				candidates = append(candidates, &ScoredSlot{
					Slot:  slot,
					Score: score,
					Factors: map[string]float64{
						"date_preference": dateFactor,
						"time_preference": timeFactor,
						"agent_load":      loadFactor,
					},
				})
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > BestMatchLimit {
		candidates = candidates[:BestMatchLimit]
	}
	return candidates, nil
}

// timePreferenceFactor scores a slot's start against the client's preferred
// part of the day.
func timePreferenceFactor(start time.Time, preference string) float64 {
	switch preference {
	case PreferAny, "":
		return 1.0
	case PreferMorning:
		if start.Hour() >= 8 && start.Hour() < 12 {
			return 1.0
		}
	case PreferAfternoon:
		if start.Hour() >= 12 && start.Hour() < 17 {
			return 1.0
		}
	case PreferEvening:
		if start.Hour() >= 17 && start.Hour() < 20 {
			return 1.0
		}
	}
	return 0.3
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
