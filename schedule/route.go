package schedule

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/DIGIT-HABs/back/geocode"
)

// TravelSpeedKmh is the assumed driving speed between visits.
const TravelSpeedKmh = 50.0

// Visit is one stop on a planned day route.
type Visit struct {
	Reservation   *domain.Reservation `json:"reservation"`
	PropertyTitle string              `json:"property_title"`
	Latitude      float64             `json:"latitude"`
	Longitude     float64             `json:"longitude"`
	DistanceKm    float64             `json:"distance_km"`
	TravelMinutes int                 `json:"travel_minutes"`
	ArrivalAt     time.Time           `json:"arrival_at"`
}

// Route is an agent's day of visits, ordered to shorten the drive.
type Route struct {
	Visits        []*Visit  `json:"visits"`
	TotalKm       float64   `json:"total_km"`
	TravelMinutes int       `json:"travel_minutes"`
	EndsAt        time.Time `json:"ends_at"`
}

// PlanRoute orders an agent's visits for the day by nearest neighbor from the
// start point and estimates arrival times from the driving distances. Visits
// on properties that were never geocoded are left out with a warning. A zero
// start point means the agency has no configured base and falls back to the
// geocoder's default.
func (service *Service) PlanRoute(agentID uuid.UUID, day time.Time, startLatitude, startLongitude float64) (*Route, error) {
	if startLatitude == 0 && startLongitude == 0 {
		startLatitude, startLongitude = geocode.FallbackLatitude, geocode.FallbackLongitude
	}

	dayStart := midnight(day)
	reservations, err := service.reservations.GetAgentReservations(agentID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("fetching agent calendar : %w", err)
	}

	var stops []*Visit
	for _, reservation := range reservations {
		property, err := service.properties.GetProperty(reservation.PropertyID)
		if err != nil {
			return nil, fmt.Errorf("fetching property %s : %w", reservation.PropertyID, err)
		}
		if !property.HasCoordinates() {
			log.Printf("warning: property %s has no coordinates, leaving it off the route", property.Reference)
			continue
		}
		stops = append(stops, &Visit{
			Reservation:   reservation,
			PropertyTitle: property.Title,
			Latitude:      *property.Latitude,
			Longitude:     *property.Longitude,
		})
	}

	route := &Route{}
	if len(stops) == 0 {
		return route, nil
	}

	// Nearest neighbor from the start point.
	currentLatitude, currentLongitude := startLatitude, startLongitude
	for len(stops) > 0 {
		nearest := 0
		nearestKm := geocode.Distance(currentLatitude, currentLongitude, stops[0].Latitude, stops[0].Longitude)
		for i := 1; i < len(stops); i++ {
			if km := geocode.Distance(currentLatitude, currentLongitude, stops[i].Latitude, stops[i].Longitude); km < nearestKm {
				nearest, nearestKm = i, km
			}
		}

		stop := stops[nearest]
		stops = append(stops[:nearest], stops[nearest+1:]...)

		stop.DistanceKm = nearestKm
		stop.TravelMinutes = travelMinutes(nearestKm)
		route.Visits = append(route.Visits, stop)
		route.TotalKm += nearestKm
		route.TravelMinutes += stop.TravelMinutes
		currentLatitude, currentLongitude = stop.Latitude, stop.Longitude
	}

	service.estimateArrivals(route, day)
	return route, nil
}

// estimateArrivals walks the ordered route from the start of the working day,
// adding each leg's driving time and the visit's duration.
func (service *Service) estimateArrivals(route *Route, day time.Time) {
	workStart, _, working, err := service.workingWindow(day)
	if err != nil {
		log.Printf("warning: resolving working hours: %v, starting the route at 09:00", err)
	}
	if err != nil || !working {
		workStart = midnight(day).Add(9 * time.Hour)
	}

	cursor := workStart
	for _, visit := range route.Visits {
		cursor = cursor.Add(time.Duration(visit.TravelMinutes) * time.Minute)
		visit.ArrivalAt = cursor

		minutes := visit.Reservation.Minutes
		if minutes <= 0 {
			minutes = domain.DefaultReservationMinutes
		}
		cursor = cursor.Add(time.Duration(minutes) * time.Minute)
	}
	route.EndsAt = cursor
}

// travelMinutes converts a driving distance to minutes at the assumed speed.
func travelMinutes(distanceKm float64) int {
	return int(distanceKm / TravelSpeedKmh * 60)
}
