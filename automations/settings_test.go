package automations

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func TestSettingsLibrary(t *testing.T) {
	tests := []struct {
		name          string
		luaCode       string
		setupRepo     func() *mockScriptRepo
		validatorFunc func(t *testing.T, scriptID uuid.UUID, repo *mockScriptRepo, got any)
	}{
		{
			name: "settings:get should return empty table by default",
			luaCode: `
				return digithab.settings:get()
			`,
			setupRepo: func() *mockScriptRepo {
				return &mockScriptRepo{settingsStore: make(map[uuid.UUID]map[string]any)}
			},
			validatorFunc: func(t *testing.T, scriptID uuid.UUID, repo *mockScriptRepo, got any) {
				m := asMap(got)
				if m == nil {
					t.Fatalf("\nwanted:\nmap[string]any\ngot:\n%T", got)
				}
				if len(m) != 0 {
					t.Errorf("\nwanted:\nempty map\ngot:\n%v", m)
				}
			},
		},
		{
			name: "settings:set should update repository",
			luaCode: `
				local ok = digithab.settings:set({enabled = true, count = 123, list = {1,2,3}, sub = {digithab = true}})
				return ok
			`,
			setupRepo: func() *mockScriptRepo {
				return &mockScriptRepo{settingsStore: make(map[uuid.UUID]map[string]any)}
			},
			validatorFunc: func(t *testing.T, scriptID uuid.UUID, repo *mockScriptRepo, got any) {
				ok, isBool := got.(bool)
				if !isBool || !ok {
					t.Errorf("\nwanted:\ntrue\ngot:\n%v", got)
				}

				if len(repo.settingsStore[scriptID]) == 0 {
					t.Fatal("\nwanted:\nrepository update\ngot:\nno update")
				}

				want := map[string]any{
					"enabled": true,
					"count":   123.0,
					"list":    []any{1.0, 2.0, 3.0},
					"sub":     map[string]any{"digithab": true},
				}
				if !reflect.DeepEqual(want, repo.settingsStore[scriptID]) {
					t.Errorf("\nwanted:\n%#v\ngot:\n%#v", want, repo.settingsStore[scriptID])
				}
			},
		},
		{
			name: "settings:set and settings:get roundtrip should return the correct settings under the scriptID",
			luaCode: `
				digithab.settings:set({enabled = true, count = 123, list = {1,2,3}, sub = {digithab = true}})
				return digithab.settings:get()
			`,
			setupRepo: func() *mockScriptRepo {
				return &mockScriptRepo{settingsStore: make(map[uuid.UUID]map[string]any)}
			},
			validatorFunc: func(t *testing.T, scriptID uuid.UUID, repo *mockScriptRepo, got any) {
				m := asMap(got)

				if m == nil {
					t.Fatalf("\nwanted:\nmap[string]any\ngot:\n%T", got)
				}

				want := map[uuid.UUID]map[string]any{
					scriptID: {
						"enabled": true,
						"count":   123.0,
						"list":    []any{1.0, 2.0, 3.0},
						"sub":     map[string]any{"digithab": true},
					},
				}
				if !reflect.DeepEqual(want, repo.settingsStore) {
					t.Errorf("\nwanted:\n%#v\ngot:\n%#v", want, repo.settingsStore)
				}
			},
		},
		{
			name: "settings:set should error on invalid input types",
			luaCode: `
				local ok, res = pcall(digithab.settings.set, digithab.settings, "not a table")
				if ok then
					return "expected error"
				end
				return res
			`,
			setupRepo: func() *mockScriptRepo {
				return &mockScriptRepo{settingsStore: make(map[uuid.UUID]map[string]any)}
			},
			validatorFunc: func(t *testing.T, scriptID uuid.UUID, repo *mockScriptRepo, got any) {
				errStr, ok := got.(string)
				if !ok {
					t.Fatalf("\nwanted:\nstring error\ngot:\n%T", got)
				}
				if !strings.Contains(errStr, "getting table(map) got") {
					t.Errorf("\nwanted:\nerror containing 'getting table(map)'\ngot:\n%s", errStr)
				}
			},
		},
		{
			name: "settings:get should error if repo fails",
			luaCode: `
				local ok, res = pcall(digithab.settings.get, digithab.settings)
				if ok then
					return "expected error"
				end
				return res
			`,
			setupRepo: nil,
			validatorFunc: func(t *testing.T, scriptID uuid.UUID, repo *mockScriptRepo, got any) {
				errStr, ok := got.(string)
				if !ok {
					t.Fatalf("\nwanted:\nstring error\ngot:\n%T", got)
				}
				if !strings.Contains(errStr, "forced error") {
					t.Errorf("\nwanted:\nerror containing 'forced error'\ngot:\n%s", errStr)
				}
			},
		},
		{
			name: "settings:set should error if repo write fails",
			luaCode: `
				local ok, res = pcall(digithab.settings.set, digithab.settings, {enabled = true})
				if ok then
					return "expected error"
				end
				return res
			`,
			setupRepo: func() *mockScriptRepo {
				return &mockScriptRepo{
					settingsStore: make(map[uuid.UUID]map[string]any),
					forceSetError: true,
				}
			},
			validatorFunc: func(t *testing.T, scriptID uuid.UUID, repo *mockScriptRepo, got any) {
				errStr, ok := got.(string)
				if !ok {
					t.Fatalf("\nwanted:\nstring error\ngot:\n%T", got)
				}
				if !strings.Contains(errStr, "forced set error") {
					t.Errorf("\nwanted:\nerror containing 'forced set error'\ngot:\n%s", errStr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runtime, mockService := setupTestScript(t, "")

			var repo *mockScriptRepo
			if tt.setupRepo != nil {
				repo = tt.setupRepo()
				mockService.GetScriptRepoFunc = func() (domain.ScriptRepository, error) {
					return repo, nil
				}
			} else {
				mockService.GetScriptRepoFunc = func() (domain.ScriptRepository, error) {
					return nil, errors.New("forced error")
				}
			}

			err := runtime.ExecuteLua(tt.luaCode)
			if err != nil {
				t.Fatalf("executing lua code %s : %v", tt.luaCode, err)
			}

			got := goValue(runtime.LuaState, -1)

			if tt.validatorFunc != nil {
				tt.validatorFunc(t, runtime.Data.ID, repo, got)
			}
		})
	}
}
