package domain

// RouteRepository defines the interface for managing tenant routes, the rules
// the gateway uses to direct traffic by hostname.
// Hostnames are matched on the request's Host header; upstreams are base URLs.
type RouteRepository interface {
	// GetRoutes retrieves all configured tenant routes from the repository.
	GetRoutes() ([]*Route, error)

	// CreateOrUpdateRoute creates a new route or updates an existing one.
	// If a route for the given hostname already exists, its upstream value will be updated.
	CreateOrUpdateRoute(hostname string, upstream string) error

	// DeleteRoute removes the route associated with the specified hostname.
	// It returns an error if no route is configured for that hostname.
	DeleteRoute(hostname string) error
}

// Route represents a tenant routing rule.
// It maps a public hostname to the base URL of the application serving it.
// When a request's Host header matches the Route's Hostname, the gateway
// forwards it to the Upstream.
type Route struct {
	Hostname string // The public hostname to match on incoming requests.
	Upstream string // The base URL of the upstream application (e.g. "http://127.0.0.1:8000").
}
