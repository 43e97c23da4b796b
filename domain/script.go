package domain

import (
	"time"

	"github.com/google/uuid"
)

// Hooks automation scripts can implement. The dispatcher calls the matching
// Lua function on every enabled script that defines it.
const (
	HookLeadCreated          = "on_lead_created"
	HookLeadAssigned         = "on_lead_assigned"
	HookLeadConverted        = "on_lead_converted"
	HookPropertyPublished    = "on_property_published"
	HookReservationConfirmed = "on_reservation_confirmed"
	HookCommissionPaid       = "on_commission_paid"
)

// ScriptRepository defines the interface for managing Lua automation scripts.
// It provides methods for retrieving, updating, and managing script source code and settings.
type ScriptRepository interface {
	// GetScripts retrieves all automation scripts in the project.
	GetScripts() ([]*Script, error)

	// GetScriptByName retrieves a single script by its unique name.
	// It returns an error if no script with the specified name is found.
	GetScriptByName(name string) (*Script, error)

	// GetScriptLuaCodeByName retrieves the Lua source code for a specific script by its name.
	// It returns an error if the script is not found.
	GetScriptLuaCodeByName(name string) (string, error)

	// UpdateScriptLuaCodeByName updates the Lua source code for a specific script identified by its name.
	// It returns an error if the script is not found.
	UpdateScriptLuaCodeByName(name string, code string) error

	// SetScriptEnabledByName enables or disables a script by its name.
	SetScriptEnabledByName(name string, enabled bool) error

	// UpsertScript inserts a script or, when the name already exists,
	// refreshes its source, author, version, and description.
	UpsertScript(script *Script) error

	// GetScriptSettingsByUUID retrieves the settings for a specific script using its UUID.
	// Script settings are returned as a map[string]any, allowing for flexible configuration.
	GetScriptSettingsByUUID(id uuid.UUID) (map[string]any, error)

	// SetScriptSettingsByUUID sets the settings for a specific script using its UUID.
	// Script settings are provided as a map[string]any.
	SetScriptSettingsByUUID(id uuid.UUID, settings map[string]any) error
}

// Script represents the domain model for a Lua-based automation in the CRM.
// This struct holds all necessary information for the runtime to execute the automation,
// including its source code, metadata, and user-configurable settings.
type Script struct {
	ID          uuid.UUID      // Unique identifier for the script.
	Name        string         // The unique name of the script.
	SourceURL   string         // The URL of the script's source code repository.
	Author      string         // The name of the script's author or creator.
	Version     string         // Version string from the registry manifest.
	LuaContent  string         // The Lua source code of the script.
	Enabled     bool           // A flag indicating whether the script is currently active.
	Description string         // A brief description of the script's behavior.
	Settings    map[string]any // A map of user-defined settings for the script.
	UpdatedAt   time.Time      // The timestamp of the last update to the script.
}
