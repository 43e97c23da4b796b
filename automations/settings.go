package automations

import (
	"fmt"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/google/uuid"
)

func registerSettingsLibrary(l *lua.State, service CRMService) {
	l.Global("digithab")

	if l.IsNil(-1) {
		l.Pop(1)
		return
	}

	lua.NewLibrary(l, settingsLibrary(service))

	l.SetField(-2, "settings")

	l.Pop(1)
}

// settingsLibrary returns a list of Lua functions for managing the per-script
// persisted settings. These functions are available under the
// `digithab.settings` table in scripts.
func settingsLibrary(service CRMService) []lua.RegistryFunction {
	return []lua.RegistryFunction{
		// get returns the settings for the current script.
		//
		// @return table The script's settings as a Lua table.
		{Name: "get", Function: func(l *lua.State) int {
			repo, err := service.GetScriptRepo()
			if err != nil {
				lua.Errorf(l, "getting script repo: %s", err.Error())
				return 0
			}

			scriptID := getScriptID(l)
			if scriptID == uuid.Nil {
				lua.Errorf(l, "script ID is nil")
				return 0
			}

			settings, err := repo.GetScriptSettingsByUUID(scriptID)
			if err != nil {
				lua.Errorf(l, "getting script %s settings: %s", scriptID, err.Error())
				return 0
			}

			util.DeepPush(l, settings)
			return 1
		}},
		// set replaces the settings for the current script.
		//
		// @param settings table The new settings for the script.
		// @return boolean True if the settings were updated successfully.
		{Name: "set", Function: func(l *lua.State) int {
			// util.PullTable cannot handle mixed keys
			val := goValue(l, 2)

			// empty tables in lua are cast as []any, need to convert this to map
			settingsMap := asMap(val)
			if settingsMap == nil {
				lua.Errorf(l,
					fmt.Sprintf("getting table(map) got: %T", val),
				)
				return 0
			}

			repo, err := service.GetScriptRepo()
			if err != nil {
				lua.Errorf(l, "getting script repo: %s", err.Error())
				return 0
			}

			scriptID := getScriptID(l)
			if scriptID == uuid.Nil {
				lua.Errorf(l, "script ID is nil")
				return 0
			}

			err = repo.SetScriptSettingsByUUID(scriptID, settingsMap)
			if err != nil {
				lua.Errorf(l, "updating settings for script %s: %s", scriptID.String(), err.Error())
				return 0
			}

			l.PushBoolean(true)
			return 1
		}},
	}
}
