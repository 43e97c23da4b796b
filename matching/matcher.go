// Package matching scores listings against client search criteria, qualifies
// leads, and balances lead assignment across an agency's agents.
package matching

import (
	"sort"
	"strings"

	"github.com/DIGIT-HABs/back/domain"
)

// Scoring weights per criterion. They sum to 100.
const (
	budgetWeight    = 25
	typeWeight      = 20
	locationWeight  = 20
	sizeWeight      = 15
	featuresWeight  = 10
	financingWeight = 10
)

// Matching defaults.
const (
	DefaultMinScore = 30
	DefaultLimit    = 10
)

// typeGroups lists the property types considered close enough to a sought
// type to earn partial credit.
var typeGroups = map[string][]string{
	domain.PropertyTypeApartment:  {domain.PropertyTypeStudio, domain.PropertyTypeLoft, domain.PropertyTypeDuplex, domain.PropertyTypeTriplex},
	domain.PropertyTypeStudio:     {domain.PropertyTypeApartment, domain.PropertyTypeLoft},
	domain.PropertyTypeLoft:       {domain.PropertyTypeApartment, domain.PropertyTypeStudio},
	domain.PropertyTypeDuplex:     {domain.PropertyTypeApartment, domain.PropertyTypeTriplex},
	domain.PropertyTypeTriplex:    {domain.PropertyTypeApartment, domain.PropertyTypeDuplex},
	domain.PropertyTypeCommercial: {domain.PropertyTypeOffice},
	domain.PropertyTypeOffice:     {domain.PropertyTypeCommercial},
	domain.PropertyTypeGarage:     {domain.PropertyTypeParking},
	domain.PropertyTypeParking:    {domain.PropertyTypeGarage},
}

// Match pairs a listing with its compatibility score for one client.
type Match struct {
	Property  *domain.Property
	Score     int
	Breakdown Breakdown
}

// Breakdown carries the per-criterion contributions to a match score.
type Breakdown struct {
	Budget    int `json:"budget"`
	Type      int `json:"property_type"`
	Location  int `json:"location"`
	Size      int `json:"size"`
	Features  int `json:"features"`
	Financing int `json:"financing"`
}

// Total sums the contributions, capped at 100.
func (b Breakdown) Total() int {
	total := b.Budget + b.Type + b.Location + b.Size + b.Features + b.Financing
	if total > 100 {
		return 100
	}
	return total
}

// MatchProperties scores the given listings against a client profile and
// returns those at or above minScore, best first, at most limit results.
// Listings that are not published are skipped.
func MatchProperties(profile *domain.ClientProfile, properties []*domain.Property, minScore, limit int) []Match {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var matches []Match
	for _, property := range properties {
		if property.Status != domain.PropertyStatusAvailable {
			continue
		}
		breakdown := ScoreProperty(profile, property)
		score := breakdown.Total()
		if score < minScore {
			continue
		}
		matches = append(matches, Match{Property: property, Score: score, Breakdown: breakdown})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ScoreProperty computes the per-criterion compatibility between a client
// profile and a listing.
func ScoreProperty(profile *domain.ClientProfile, property *domain.Property) Breakdown {
	return Breakdown{
		Budget:    budgetScore(profile, property),
		Type:      typeScore(profile, property),
		Location:  locationScore(profile, property),
		Size:      sizeScore(profile, property),
		Features:  featuresScore(profile, property),
		Financing: financingScore(profile),
	}
}

// budgetScore rates price fit, out of 25. With no stated budget the listing
// earns a neutral score. When only a maximum is known the preferred range
// starts at 70% of it. Prices up to 10% over budget keep partial credit.
func budgetScore(profile *domain.ClientProfile, property *domain.Property) int {
	if profile.BudgetMax == nil {
		return 15
	}

	maxBudget := *profile.BudgetMax
	price, _ := property.Price.Float64()

	if price <= maxBudget {
		minBudget := maxBudget * 0.7
		if profile.BudgetMin != nil {
			minBudget = *profile.BudgetMin
		}
		if price >= minBudget {
			return budgetWeight
		}
		return 15
	}

	if maxBudget > 0 && (price-maxBudget)/maxBudget <= 0.1 {
		return 5
	}
	return 0
}

// typeScore rates type fit, out of 20. Types in the same group as the sought
// one earn partial credit.
func typeScore(profile *domain.ClientProfile, property *domain.Property) int {
	if profile.PropertyType == "" {
		return 15
	}

	if property.Type == profile.PropertyType {
		return typeWeight
	}

	for _, near := range typeGroups[profile.PropertyType] {
		if property.Type == near {
			return 15
		}
	}
	return 5
}

// locationScore rates city fit, out of 20. An exact city match scores full
// city credit, a partial name match less, any other city a floor value.
func locationScore(profile *domain.ClientProfile, property *domain.Property) int {
	if len(profile.Locations) == 0 {
		return 10
	}

	city := strings.ToLower(property.City)
	score := 5
	for _, location := range profile.Locations {
		wanted := strings.ToLower(location)
		if wanted == city {
			score = 15
			break
		}
		if strings.Contains(city, wanted) {
			score = 10
		}
	}

	if score > locationWeight {
		return locationWeight
	}
	return score
}

// sizeScore rates bedrooms and surface against the stated minimums, out of
// 15. Listings below a minimum are penalized rather than excluded.
func sizeScore(profile *domain.ClientProfile, property *domain.Property) int {
	score := 0

	if profile.Bedrooms != nil && property.Bedrooms > 0 {
		if property.Bedrooms >= *profile.Bedrooms {
			score += 9
		} else {
			score -= 3
		}
	}

	if profile.SurfaceMin != nil && property.Surface > 0 {
		if property.Surface >= *profile.SurfaceMin {
			score += 6
		} else {
			score -= 2
		}
	}

	if score < 0 {
		return 0
	}
	return score
}

// featuresScore rates how many must-have amenities the listing covers, out
// of 10.
func featuresScore(profile *domain.ClientProfile, property *domain.Property) int {
	if len(profile.Features) == 0 {
		return 7
	}

	available := make(map[string]bool, len(property.Features))
	for _, feature := range property.Features {
		available[strings.ToLower(feature)] = true
	}

	matched := 0
	for _, wanted := range profile.Features {
		if available[strings.ToLower(wanted)] {
			matched++
		}
	}

	return matched * featuresWeight / len(profile.Features)
}

// financingScore rates how ready the client is to transact, out of 10.
func financingScore(profile *domain.ClientProfile) int {
	switch profile.Financing {
	case "approved":
		return financingWeight
	case "cash":
		return 9
	case "pending":
		return 7
	}
	return 4
}

// Explanation is the detailed account of one match, with follow-up
// recommendations for the agent.
type Explanation struct {
	Score           int       `json:"overall_score"`
	Breakdown       Breakdown `json:"breakdown"`
	Recommendations []string  `json:"recommendations"`
}

// Explain builds the scoring breakdown for one listing together with
// recommendations triggered by the weak criteria.
func Explain(profile *domain.ClientProfile, property *domain.Property) Explanation {
	breakdown := ScoreProperty(profile, property)
	explanation := Explanation{
		Score:     breakdown.Total(),
		Breakdown: breakdown,
	}

	if breakdown.Budget < 15 {
		explanation.Recommendations = append(explanation.Recommendations,
			"Considérez ajuster votre budget ou regarder des propriétés dans une zone différente.")
	}
	if breakdown.Type < 10 {
		explanation.Recommendations = append(explanation.Recommendations,
			"Vous pourriez être intéressé par des types de propriétés similaires.")
	}
	if breakdown.Location < 10 {
		explanation.Recommendations = append(explanation.Recommendations,
			"Découvrez cette zone, elle pourrait répondre à vos besoins.")
	}
	if breakdown.Size < 8 {
		explanation.Recommendations = append(explanation.Recommendations,
			"La superficie pourrait être adaptée selon vos besoins.")
	}

	return explanation
}
