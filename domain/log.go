package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogRepository defines the interface for managing application activity logs.
// It provides methods for persisting and retrieving log entries.
type LogRepository interface {
	// InsertLog saves a new log entry to the repository.
	InsertLog(log *Log) error
	// GetLogs retrieves all log entries from the repository.
	GetLogs() ([]*Log, error)
	// GetEntityLogs retrieves the log entries recorded against one entity.
	GetEntityLogs(entityKind string, entityID uuid.UUID) ([]*Log, error)
}

// Log represents a single activity log entry, containing information about an event that occurred in the application.
type Log struct {
	ID         uuid.UUID      // Unique identifier for the log entry.
	Timestamp  time.Time      // The time at which the log entry was created.
	Level      string         // The severity level of the log (e.g., DEBUG, INFO, WARN, ERROR, FATAL).
	Message    string         // The main content of the log message.
	Context    map[string]any // A map of additional key-value data for structured logging.
	ActorID    *uuid.UUID     // An optional ID of the user who triggered the event.
	EntityKind string         // The kind of entity the event concerns (e.g. "lead", "property"), empty when none.
	EntityID   *uuid.UUID     // An optional ID of the entity the event concerns.
	ScriptID   *uuid.UUID     // An optional ID of the automation script that wrote the entry.
}
