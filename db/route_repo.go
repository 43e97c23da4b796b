package db

import (
	"errors"
	"fmt"

	"github.com/DIGIT-HABs/back/domain"
)

var _ domain.RouteRepository = (*Repository)(nil)

var (
	// ErrNoRouteForHostname is returned when a route is not found for a given hostname.
	ErrNoRouteForHostname = errors.New("hostname has no route configured")
)

// dbRoute represents a tenant route as stored in the database.
type dbRoute struct {
	Hostname string `db:"hostname"` // The public hostname to match on incoming requests.
	Upstream string `db:"upstream"` // The base URL of the upstream application.
}

// toDomainRoute converts a dbRoute to a domain.Route.
func toDomainRoute(dbRoute *dbRoute) *domain.Route {
	return &domain.Route{
		Hostname: dbRoute.Hostname,
		Upstream: dbRoute.Upstream,
	}
}

// GetRoutes retrieves all configured tenant routes from the database.
func (repo *Repository) GetRoutes() ([]*domain.Route, error) {
	var dbRoutes []*dbRoute
	query := `SELECT hostname, upstream FROM routes`

	err := repo.dbConn.Select(&dbRoutes, query)
	if err != nil {
		return nil, fmt.Errorf("retrieving routes: %w", err)
	}

	domainRoutes := make([]*domain.Route, len(dbRoutes))
	for i, dbRoute := range dbRoutes {
		domainRoutes[i] = toDomainRoute(dbRoute)
	}

	return domainRoutes, nil
}

// CreateOrUpdateRoute creates a new route or updates an existing one.
func (repo *Repository) CreateOrUpdateRoute(hostname string, upstream string) error {
	query := `INSERT INTO routes(hostname, upstream)
		      VALUES (?, ?)
		      ON CONFLICT(hostname) DO UPDATE SET upstream=excluded.upstream`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), hostname, upstream)
	if err != nil {
		return fmt.Errorf("creating or updating route for %s: %w", hostname, err)
	}

	return nil
}

// DeleteRoute removes the route associated with the specified hostname.
func (repo *Repository) DeleteRoute(hostname string) error {
	query := `DELETE FROM routes WHERE hostname = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), hostname)
	if err != nil {
		return fmt.Errorf("deleting route for %s: %w", hostname, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion rows affected for %s: %w", hostname, err)
	}

	if rowsAffected == 0 {
		return ErrNoRouteForHostname
	}

	return nil
}
