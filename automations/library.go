package automations

import (
	"fmt"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/core"
	"github.com/DIGIT-HABs/back/domain"
)

// CRMReader is the read-only slice of the data layer exposed to scripts.
type CRMReader interface {
	GetProperty(id uuid.UUID) (*domain.Property, error)
	GetLead(id uuid.UUID) (*domain.Lead, error)
	GetClientProfile(userID uuid.UUID) (*domain.ClientProfile, error)
	GetUser(id uuid.UUID) (*domain.User, error)
	CountProperties() (int, error)
	CountClients() (int, error)
	CountOpenLeadsTotal() (int, error)
}

// CRMService is the surface of the server that automation scripts may call.
// The server itself implements it; tests substitute a mock.
type CRMService interface {
	WriteLog(level string, message string, options ...func(log *domain.Log) error) error
	Notify(recipientID uuid.UUID, title string, message string, data map[string]any) error
	GetScriptRepo() (domain.ScriptRepository, error)
	GetCRMReader() (CRMReader, error)
}

// registerDigithabLibrary registers the `digithab` global library and its
// sub-libraries into the Lua state. This is the main entry point for exposing
// the CRM's functionality to automation scripts.
func registerDigithabLibrary(l *lua.State, service CRMService) {
	funcs := []lua.RegistryFunction{
		// log writes a message to the server's activity log.
		//
		// @param level string The log level (e.g., "INFO", "WARN", "ERROR").
		// @param message string The message to log.
		{Name: "log", Function: func(l *lua.State) int {
			level := lua.CheckString(l, 2)
			message := lua.CheckString(l, 3)

			if scriptID := getScriptID(l); scriptID != uuid.Nil {
				err := service.WriteLog(level, message, core.LogWithScriptID(scriptID))
				if err != nil {
					lua.Errorf(l, fmt.Sprintf("writing log : %s", err.Error()))
					return 0
				}
			} else {
				err := service.WriteLog(level, message)
				if err != nil {
					lua.Errorf(l, fmt.Sprintf("writing log : %s", err.Error()))
					return 0
				}
			}
			return 0
		}},
		// notify sends a notification to a user over their preferred channels.
		//
		// @param user_id string The UUID of the recipient.
		// @param title string The notification title.
		// @param message string The notification body.
		// @param data table (optional) Extra payload attached to the notification.
		{Name: "notify", Function: func(l *lua.State) int {
			recipient := lua.CheckString(l, 2)
			title := lua.CheckString(l, 3)
			message := lua.CheckString(l, 4)

			recipientID, err := uuid.Parse(recipient)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			var data map[string]any
			if l.Top() >= 5 {
				data = asMap(goValue(l, 5))
			}

			if err := service.Notify(recipientID, title, message, data); err != nil {
				lua.Errorf(l, fmt.Sprintf("sending notification : %s", err.Error()))
				return 0
			}
			return 0
		}},
	}

	lua.NewLibrary(l, funcs)
	l.SetGlobal("digithab")

	registerSettingsLibrary(l, service)
	registerCRMLibrary(l, service)
	registerCryptoLibrary(l)
	registerEncodingLibrary(l)
	registerUtilsLibrary(l)
}

func registerCRMLibrary(l *lua.State, service CRMService) {
	l.Global("digithab")

	if l.IsNil(-1) {
		l.Pop(1)
		return
	}

	lua.NewLibrary(l, crmLibrary(service))

	l.SetField(-2, "crm")

	l.Pop(1)
}

// crmLibrary returns the list of Lua functions for read-only CRM lookups.
// These functions are available under the `digithab.crm` table in scripts.
func crmLibrary(service CRMService) []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// get_property retrieves a property listing by its UUID.
		//
		// @param id string The UUID of the property.
		// @return Property The property object, or nil when not found.
		{Name: "get_property", Function: func(l *lua.State) int {
			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			reader, err := service.GetCRMReader()
			if err != nil {
				lua.Errorf(l, "getting crm reader: %s", err.Error())
				return 0
			}

			property, err := reader.GetProperty(id)
			if err != nil {
				l.PushNil()
				return 1
			}

			l.PushUserData(property)
			lua.SetMetaTableNamed(l, "property")
			return 1
		}},
		// get_lead retrieves a lead by its UUID.
		//
		// @param id string The UUID of the lead.
		// @return Lead The lead object, or nil when not found.
		{Name: "get_lead", Function: func(l *lua.State) int {
			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			reader, err := service.GetCRMReader()
			if err != nil {
				lua.Errorf(l, "getting crm reader: %s", err.Error())
				return 0
			}

			lead, err := reader.GetLead(id)
			if err != nil {
				l.PushNil()
				return 1
			}

			l.PushUserData(lead)
			lua.SetMetaTableNamed(l, "lead")
			return 1
		}},
		// get_client retrieves a client profile by the owning user's UUID.
		//
		// @param user_id string The UUID of the client's user account.
		// @return Client The client profile object, or nil when not found.
		{Name: "get_client", Function: func(l *lua.State) int {
			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			reader, err := service.GetCRMReader()
			if err != nil {
				lua.Errorf(l, "getting crm reader: %s", err.Error())
				return 0
			}

			client, err := reader.GetClientProfile(id)
			if err != nil {
				l.PushNil()
				return 1
			}

			l.PushUserData(client)
			lua.SetMetaTableNamed(l, "client")
			return 1
		}},
		// get_user retrieves a user account by its UUID.
		//
		// @param id string The UUID of the user.
		// @return User The user object, or nil when not found.
		{Name: "get_user", Function: func(l *lua.State) int {
			idString := lua.CheckString(l, 2)
			id, err := uuid.Parse(idString)
			if err != nil {
				lua.ArgumentError(l, 2, "invalid UUID")
				return 0
			}

			reader, err := service.GetCRMReader()
			if err != nil {
				lua.Errorf(l, "getting crm reader: %s", err.Error())
				return 0
			}

			user, err := reader.GetUser(id)
			if err != nil {
				l.PushNil()
				return 1
			}

			l.PushUserData(user)
			lua.SetMetaTableNamed(l, "user")
			return 1
		}},
		// counts returns headline totals for the agency's funnel.
		//
		// @return table A table with `properties`, `clients`, and `open_leads`.
		{Name: "counts", Function: func(l *lua.State) int {
			reader, err := service.GetCRMReader()
			if err != nil {
				lua.Errorf(l, "getting crm reader: %s", err.Error())
				return 0
			}

			properties, err := reader.CountProperties()
			if err != nil {
				lua.Errorf(l, "counting properties: %s", err.Error())
				return 0
			}
			clients, err := reader.CountClients()
			if err != nil {
				lua.Errorf(l, "counting clients: %s", err.Error())
				return 0
			}
			openLeads, err := reader.CountOpenLeadsTotal()
			if err != nil {
				lua.Errorf(l, "counting open leads: %s", err.Error())
				return 0
			}

			util.DeepPush(l, map[string]any{
				"properties": properties,
				"clients":    clients,
				"open_leads": openLeads,
			})
			return 1
		}},
	}
}

func registerUtilsLibrary(l *lua.State) {
	l.Global("digithab")

	if l.IsNil(-1) {
		l.Pop(1)
		return
	}

	lua.NewLibrary(l, utilsLibrary())

	l.SetField(-2, "utils")
	l.Pop(1)
}

// utilsLibrary returns a list of small utility functions available under the
// `digithab.utils` table in scripts.
func utilsLibrary() []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// uuid generates a new UUIDv7 and returns it as a string.
		//
		// @return string The new UUID.
		{Name: "uuid", Function: func(l *lua.State) int {
			id, err := uuid.NewV7()
			if err != nil {
				lua.Errorf(l, "generating uuid: %s", err.Error())
				return 0
			}
			l.PushString(id.String())
			return 1
		}},
		// timestamp returns the current time as a Unix timestamp in milliseconds.
		//
		// @return number The current timestamp.
		{Name: "timestamp", Function: func(l *lua.State) int {
			l.PushNumber(float64(time.Now().UnixMilli()))
			return 1
		}},
		// sleep pauses the execution for a given number of milliseconds.
		//
		// @param milliseconds int The number of milliseconds to sleep.
		// @param limit int (optional) The maximum number of milliseconds to sleep.
		{Name: "sleep", Function: func(l *lua.State) int {
			milliseconds := lua.CheckInteger(l, 2)
			limit := lua.OptInteger(l, 3, 60000)

			if milliseconds < limit {
				time.Sleep(time.Duration(milliseconds) * time.Millisecond)
			}
			return 0
		}},
	}
}
