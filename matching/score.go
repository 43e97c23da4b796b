package matching

import (
	"time"

	"github.com/DIGIT-HABs/back/domain"
)

// sourceScores rates acquisition sources by how often they close. Unknown
// sources get a floor value.
var sourceScores = map[string]int{
	"referral":      15,
	"walk_in":       12,
	"open_house":    12,
	"website":       10,
	"phone":         8,
	"advertisement": 8,
	"seloger":       8,
	"leboncoin":     8,
	"social_media":  5,
}

// ScoreLead qualifies a lead from 0 to 100 based on how complete the contact
// is and how much intent its details signal.
func ScoreLead(lead *domain.Lead) int {
	score := 0

	switch {
	case lead.Email != "" && lead.Phone != "":
		score += 20
	case lead.Email != "" || lead.Phone != "":
		score += 10
	}

	if lead.Budget != nil {
		score += 20
	}
	if lead.PropertyType != "" {
		score += 15
	}
	if len(lead.Locations) > 0 {
		score += 15
	}
	if lead.Message != "" {
		score += 10
	}

	if sourceScore, ok := sourceScores[lead.Source]; ok {
		score += sourceScore
	} else {
		score += 5
	}

	if score > 100 {
		return 100
	}
	return score
}

// ConversionScore estimates how close a client is to transacting, from 0 to
// 100, using profile completeness, recorded engagement, and recency of
// contact.
func ConversionScore(profile *domain.ClientProfile, interests, interactions int, now time.Time) int {
	score := 0

	if viewed := interests * 2; viewed > 20 {
		score += 20
	} else {
		score += viewed
	}

	if inquiries := interactions * 3; inquiries > 30 {
		score += 30
	} else {
		score += inquiries
	}

	switch profile.Priority {
	case domain.PriorityMedium:
		score += 5
	case domain.PriorityHigh:
		score += 10
	}

	if profile.Status == domain.ClientStatusClient {
		score += 20
	}

	switch profile.Financing {
	case "approved":
		score += 20
	case "cash":
		score += 15
	case "pending":
		score += 10
	}

	if profile.LastContactAt != nil && now.Sub(*profile.LastContactAt) <= 30*24*time.Hour {
		score += 10
	}

	if score > 100 {
		return 100
	}
	return score
}
