package domain

// ConfigRepository defines the interface for managing application-level configuration settings.
// It provides methods to interact with persistent configuration data that administrators
// adjust at runtime, as opposed to the deployment configuration file.
type ConfigRepository interface {
	// GetWorkingHours retrieves the agency-wide working hours, as a map of
	// weekday (0 = Sunday) to "HH:MM-HH:MM" ranges. Days absent from the map
	// are non-working days.
	GetWorkingHours() (map[int]string, error)

	// SetWorkingHours replaces the agency-wide working hours.
	SetWorkingHours(hours map[int]string) error

	// GetFeedPortals retrieves the list of portal names the XML feed is
	// generated for. An empty list disables the feed.
	GetFeedPortals() ([]string, error)

	// SetFeedPortals updates the list of portal names the XML feed is
	// generated for.
	SetFeedPortals(portals []string) error
}
