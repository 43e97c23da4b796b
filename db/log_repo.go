package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.LogRepository = (*Repository)(nil)

// dbLog represents a log entry as stored in the database.
type dbLog struct {
	ID         uuid.UUID      `db:"id"`          // Unique identifier for the log entry.
	Timestamp  time.Time      `db:"timestamp"`   // The time at which the log entry was created.
	Level      string         `db:"level"`       // The severity level of the log.
	Message    string         `db:"message"`     // The main content of the log message.
	Context    Metadata       `db:"context"`     // A map of additional key-value data for structured logging.
	ActorID    sql.NullString `db:"actor_id"`    // An optional ID of the user who triggered the event.
	EntityKind string         `db:"entity_kind"` // The kind of entity the event concerns, empty when none.
	EntityID   sql.NullString `db:"entity_id"`   // An optional ID of the entity the event concerns.
	ScriptID   sql.NullString `db:"script_id"`   // An optional ID of the automation script that wrote the entry.
}

// toDomainLog converts a dbLog to a domain.Log.
func toDomainLog(dbLog *dbLog) *domain.Log {
	log := &domain.Log{
		ID:         dbLog.ID,
		Timestamp:  dbLog.Timestamp,
		Level:      dbLog.Level,
		Message:    dbLog.Message,
		Context:    map[string]any(dbLog.Context),
		EntityKind: dbLog.EntityKind,
	}

	if dbLog.ActorID.Valid {
		if id, err := uuid.Parse(dbLog.ActorID.String); err == nil {
			log.ActorID = &id
		}
	}

	if dbLog.EntityID.Valid {
		if id, err := uuid.Parse(dbLog.EntityID.String); err == nil {
			log.EntityID = &id
		}
	}

	if dbLog.ScriptID.Valid {
		if id, err := uuid.Parse(dbLog.ScriptID.String); err == nil {
			log.ScriptID = &id
		}
	}

	return log
}

// fromDomainLog converts a domain.Log to a dbLog.
func fromDomainLog(log *domain.Log) *dbLog {
	dbLog := &dbLog{
		ID:         log.ID,
		Timestamp:  log.Timestamp,
		Level:      log.Level,
		Message:    log.Message,
		Context:    Metadata(log.Context),
		EntityKind: log.EntityKind,
	}

	if log.ActorID != nil {
		dbLog.ActorID = sql.NullString{String: log.ActorID.String(), Valid: true}
	}

	if log.EntityID != nil {
		dbLog.EntityID = sql.NullString{String: log.EntityID.String(), Valid: true}
	}

	if log.ScriptID != nil {
		dbLog.ScriptID = sql.NullString{String: log.ScriptID.String(), Valid: true}
	}

	return dbLog
}

// InsertLog saves a new log entry to the database.
func (repo *Repository) InsertLog(log *domain.Log) error {
	dbLog := fromDomainLog(log)
	query := `INSERT INTO logs (id, level, timestamp, message, context, actor_id, entity_kind, entity_id, script_id)
	          VALUES (:id, :level, :timestamp, :message, :context, :actor_id, :entity_kind, :entity_id, :script_id)`

	_, err := repo.dbConn.NamedExec(query, dbLog)
	if err != nil {
		return fmt.Errorf("inserting log %s: %w", log.ID, err)
	}

	return err
}

// GetLogs retrieves all log entries from the database.
func (repo *Repository) GetLogs() ([]*domain.Log, error) {
	var dbLogs []*dbLog
	query := `SELECT * FROM logs`

	err := repo.dbConn.Select(&dbLogs, query)
	if err != nil {
		return nil, fmt.Errorf("fetching all logs: %w", err)
	}

	domainLogs := make([]*domain.Log, len(dbLogs))
	for i, dbLog := range dbLogs {
		domainLogs[i] = toDomainLog(dbLog)
	}

	return domainLogs, nil
}

// GetEntityLogs retrieves the log entries recorded against one entity,
// newest first.
func (repo *Repository) GetEntityLogs(entityKind string, entityID uuid.UUID) ([]*domain.Log, error) {
	var dbLogs []*dbLog
	query := `SELECT * FROM logs WHERE entity_kind = ? AND entity_id = ? ORDER BY timestamp DESC`

	err := repo.dbConn.Select(&dbLogs, repo.dbConn.Rebind(query), entityKind, entityID)
	if err != nil {
		return nil, fmt.Errorf("fetching logs for %s %s: %w", entityKind, entityID, err)
	}

	domainLogs := make([]*domain.Log, len(dbLogs))
	for i, dbLog := range dbLogs {
		domainLogs[i] = toDomainLog(dbLog)
	}

	return domainLogs, nil
}
