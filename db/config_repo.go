package db

import (
	"fmt"

	"github.com/DIGIT-HABs/back/domain"
)

var _ domain.ConfigRepository = (*Repository)(nil)

// GetWorkingHours implements the domain.ConfigRepository interface.
// It retrieves the agency-wide working hours from the 'app' table,
// stored as a JSON object keyed by weekday.
func (repo *Repository) GetWorkingHours() (map[int]string, error) {
	var hours IntMap
	query := `SELECT working_hours FROM app LIMIT 1`
	err := repo.dbConn.Get(&hours, query)

	if err != nil {
		return nil, fmt.Errorf("getting working hours: %w", err)
	}

	return map[int]string(hours), nil
}

// SetWorkingHours implements the domain.ConfigRepository interface.
// It replaces the working hours stored in the 'app' table.
func (repo *Repository) SetWorkingHours(hours map[int]string) error {
	query := `UPDATE app SET working_hours = ?`
	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), IntMap(hours))

	if err != nil {
		return fmt.Errorf("updating working hours: %w", err)
	}

	return nil
}

// GetFeedPortals implements the domain.ConfigRepository interface.
// It retrieves the portal names the XML feed is generated for,
// which are stored as a JSON string array.
func (repo *Repository) GetFeedPortals() ([]string, error) {
	var portals StringList
	query := `SELECT feed_portals FROM app LIMIT 1`
	err := repo.dbConn.Get(&portals, query)

	if err != nil {
		return nil, fmt.Errorf("getting feed portals: %w", err)
	}

	return []string(portals), nil
}

// SetFeedPortals implements the domain.ConfigRepository interface.
// It updates the 'feed_portals' column in the 'app' table.
func (repo *Repository) SetFeedPortals(portals []string) error {
	query := `UPDATE app SET feed_portals = ?`
	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), StringList(portals))

	if err != nil {
		return fmt.Errorf("failed to update feed portals: %w", err)
	}

	return nil
}
