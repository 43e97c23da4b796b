// Package geocode resolves street addresses to coordinates through the
// Nominatim search API and provides the distance math used by route planning.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// userAgent identifies the CRM to Nominatim, which rejects anonymous clients.
const userAgent = "digit_hab_crm/1.0"

const requestTimeout = 10 * time.Second

// Fallback coordinates, pointing at Paris. They are used whenever an address
// cannot be resolved so that property creation never blocks on the geocoder.
const (
	FallbackLatitude  = 48.8566
	FallbackLongitude = 2.3522
)

// ErrNoResult is returned when Nominatim finds nothing for an address.
var ErrNoResult = errors.New("no geocoding result")

// Result is a resolved address.
type Result struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Client queries Nominatim. Requests are throttled to one per second, which
// the public instance's usage policy requires.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a geocoding client against the given base URL, or the public
// Nominatim instance when empty.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// nominatimPlace mirrors one entry of a Nominatim search response. The API
// returns coordinates as strings.
type nominatimPlace struct {
	Latitude    string `json:"lat"`
	Longitude   string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search resolves an address to coordinates, returning ErrNoResult when
// Nominatim has no match for it.
func (client *Client) Search(ctx context.Context, address string) (*Result, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for geocoding slot : %w", err)
	}

	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building geocoding request : %w", err)
	}
	request.Header.Set("User-Agent", userAgent)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("querying nominatim : %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim returned status %d", response.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(response.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decoding nominatim response : %w", err)
	}
	if len(places) == 0 {
		return nil, ErrNoResult
	}

	latitude, err := strconv.ParseFloat(places[0].Latitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing latitude %q : %w", places[0].Latitude, err)
	}
	longitude, err := strconv.ParseFloat(places[0].Longitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing longitude %q : %w", places[0].Longitude, err)
	}

	return &Result{Latitude: latitude, Longitude: longitude, DisplayName: places[0].DisplayName}, nil
}

// Locate resolves an address like Search but never fails: empty results and
// transport errors fall back to the Paris coordinates with a warning log.
func (client *Client) Locate(ctx context.Context, address string) Result {
	result, err := client.Search(ctx, address)
	if err != nil {
		log.Printf("warning: geocoding %q: %v, using fallback coordinates", address, err)
		return Result{Latitude: FallbackLatitude, Longitude: FallbackLongitude}
	}
	return *result
}

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0

// Distance returns the great-circle distance in kilometers between two
// coordinates, by the haversine formula.
func Distance(latitude1, longitude1, latitude2, longitude2 float64) float64 {
	phi1 := latitude1 * math.Pi / 180
	phi2 := latitude2 * math.Pi / 180
	deltaPhi := (latitude2 - latitude1) * math.Pi / 180
	deltaLambda := (longitude2 - longitude1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
