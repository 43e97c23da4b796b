package db

import (
	"fmt"
	"time"

	"github.com/DIGIT-HABs/back/domain"
	"github.com/google/uuid"
)

var _ domain.ScriptRepository = (*Repository)(nil)

// dbScript represents the structure of an automation script as stored in the
// database. It uses the Metadata type for its settings field to handle JSON
// serialization.
type dbScript struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	SourceURL   string    `db:"source_url"`
	Author      string    `db:"author"`
	Version     string    `db:"version"`
	LuaContent  string    `db:"lua_content"`
	Enabled     bool      `db:"enabled"`
	Description string    `db:"description"`
	Settings    Metadata  `db:"settings"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// toDomainScript converts a dbScript struct to its domain.Script representation.
func toDomainScript(dbScript *dbScript) *domain.Script {
	return &domain.Script{
		ID:          dbScript.ID,
		Name:        dbScript.Name,
		SourceURL:   dbScript.SourceURL,
		Author:      dbScript.Author,
		Version:     dbScript.Version,
		LuaContent:  dbScript.LuaContent,
		Enabled:     dbScript.Enabled,
		Description: dbScript.Description,
		Settings:    map[string]any(dbScript.Settings),
		UpdatedAt:   dbScript.UpdatedAt,
	}
}

// GetScripts implements the domain.ScriptRepository interface.
// It retrieves all scripts from the database and converts them to domain.Script objects.
func (repo *Repository) GetScripts() ([]*domain.Script, error) {
	var dbScripts []*dbScript
	query := `SELECT * FROM scripts ORDER BY name ASC`

	err := repo.dbConn.Select(&dbScripts, query)
	if err != nil {
		return nil, fmt.Errorf("fetching all scripts: %w", err)
	}

	domainScripts := make([]*domain.Script, len(dbScripts))

	for i, dbScript := range dbScripts {
		domainScripts[i] = toDomainScript(dbScript)
	}
	return domainScripts, nil
}

// GetScriptByName implements the domain.ScriptRepository interface.
// It retrieves a single script by its name and converts it to a domain.Script object.
func (repo *Repository) GetScriptByName(name string) (*domain.Script, error) {
	var dbScript dbScript
	query := `SELECT * FROM scripts WHERE name = ?`

	err := repo.dbConn.Get(&dbScript, repo.dbConn.Rebind(query), name)
	if err != nil {
		return nil, fmt.Errorf("fetching script %s: %w", name, err)
	}

	return toDomainScript(&dbScript), nil
}

// GetScriptLuaCodeByName implements the domain.ScriptRepository interface.
// It retrieves the Lua source code of a script by its name.
func (repo *Repository) GetScriptLuaCodeByName(name string) (string, error) {
	var code string
	query := `SELECT lua_content FROM scripts WHERE name = ?`

	err := repo.dbConn.Get(&code, repo.dbConn.Rebind(query), name)
	if err != nil {
		return "", fmt.Errorf("getting script %s code: %v", name, err)
	}

	return code, nil
}

// UpdateScriptLuaCodeByName implements the domain.ScriptRepository interface.
// It updates the Lua source code of an existing script identified by its name.
func (repo *Repository) UpdateScriptLuaCodeByName(name string, code string) error {
	query := `UPDATE scripts SET lua_content = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), code, name)

	if err != nil {
		return fmt.Errorf("updating script %s code: %v", name, err)
	}

	return nil
}

// SetScriptEnabledByName implements the domain.ScriptRepository interface.
// It enables or disables a script by its name.
func (repo *Repository) SetScriptEnabledByName(name string, enabled bool) error {
	query := `UPDATE scripts SET enabled = ? WHERE name = ?`

	result, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), enabled, name)
	if err != nil {
		return fmt.Errorf("updating script %s enabled flag: %w", name, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for script %s: %w", name, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("no script found with name %s", name)
	}

	return nil
}

// UpsertScript implements the domain.ScriptRepository interface.
// It inserts a new script or refreshes the source, author, version, and
// description of an existing one. The enabled flag and settings of an
// existing script are preserved.
func (repo *Repository) UpsertScript(script *domain.Script) error {
	dbScript := &dbScript{
		ID:          script.ID,
		Name:        script.Name,
		SourceURL:   script.SourceURL,
		Author:      script.Author,
		Version:     script.Version,
		LuaContent:  script.LuaContent,
		Enabled:     script.Enabled,
		Description: script.Description,
		Settings:    Metadata(script.Settings),
		UpdatedAt:   script.UpdatedAt,
	}

	query := `INSERT INTO scripts (id, name, source_url, author, version, lua_content, enabled, description, settings, updated_at)
	          VALUES (:id, :name, :source_url, :author, :version, :lua_content, :enabled, :description, :settings, :updated_at)
	          ON CONFLICT(name) DO UPDATE SET
	            source_url = excluded.source_url,
	            author = excluded.author,
	            version = excluded.version,
	            lua_content = excluded.lua_content,
	            description = excluded.description,
	            updated_at = excluded.updated_at`

	_, err := repo.dbConn.NamedExec(query, dbScript)
	if err != nil {
		return fmt.Errorf("upserting script %s: %w", script.Name, err)
	}

	return nil
}

// GetScriptSettingsByUUID implements the domain.ScriptRepository interface.
// It retrieves the settings of a script by its UUID.
func (repo *Repository) GetScriptSettingsByUUID(id uuid.UUID) (map[string]any, error) {
	var settings Metadata
	query := `SELECT settings FROM scripts WHERE id = ?`

	err := repo.dbConn.Get(&settings, repo.dbConn.Rebind(query), id)
	if err != nil {
		return nil, fmt.Errorf("fetching script %s settings: %w", id, err)
	}

	return map[string]any(settings), nil
}

// SetScriptSettingsByUUID implements the domain.ScriptRepository interface.
// It updates the settings of an existing script identified by its UUID.
func (repo *Repository) SetScriptSettingsByUUID(id uuid.UUID, settings map[string]any) error {
	dbSettings := Metadata(settings)
	query := `UPDATE scripts SET settings = ? WHERE id = ?`

	_, err := repo.dbConn.Exec(repo.dbConn.Rebind(query), dbSettings, id)
	if err != nil {
		return fmt.Errorf("updating settings for script %s: %w", id, err)
	}

	return nil
}
