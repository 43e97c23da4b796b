package db

import (
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func testScript(t *testing.T, repo *Repository, name string) *domain.Script {
	t.Helper()

	id, err := uuid.NewV7()
	if err != nil {
		t.Fatalf("creating uuid: %v", err)
	}

	script := &domain.Script{
		ID:          id,
		Name:        name,
		SourceURL:   "https://github.com/DIGIT-HABs/crm-automations/blob/main/" + name + ".lua",
		Author:      "DIGIT-HABs",
		Version:     "1.0.0",
		LuaContent:  "function on_lead_created(lead)\nend\n",
		Description: "Test automation",
	}

	err = repo.UpsertScript(script)
	if err != nil {
		t.Fatalf("creating test script : %v", err)
	}

	return script
}

func TestScriptRepo_GetScriptByName(t *testing.T) {
	t.Run("should return an error when there isn't any script with the given name", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		_, err := repo.GetScriptByName("missing-automation")

		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
		if !strings.Contains(err.Error(), "no rows") {
			t.Fatalf("\nwanted:\na no rows error\ngot:\n%v", err)
		}
	})

	t.Run("should return the script with the given name", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		want := testScript(t, repo, "lead-scorer")

		got, err := repo.GetScriptByName("lead-scorer")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.ID != want.ID {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.ID, got.ID)
		}
		if got.LuaContent != want.LuaContent {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", want.LuaContent, got.LuaContent)
		}
	})
}

func TestScriptRepo_UpdateScriptLuaCodeByName(t *testing.T) {
	t.Run("should persist the new lua code", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testScript(t, repo, "lead-scorer")

		want := "function on_lead_created(lead)\n  lead.score = lead.score + 5\nend\n"

		err := repo.UpdateScriptLuaCodeByName("lead-scorer", want)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetScriptLuaCodeByName("lead-scorer")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got != want {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", want, got)
		}
	})
}

func TestScriptRepo_SetScriptEnabledByName(t *testing.T) {
	t.Run("should enable a script", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testScript(t, repo, "lead-scorer")

		err := repo.SetScriptEnabledByName("lead-scorer", true)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetScriptByName("lead-scorer")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !got.Enabled {
			t.Fatalf("\nwanted:\ntrue\ngot:\nfalse")
		}
	})

	t.Run("should return an error when the script doesn't exist", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.SetScriptEnabledByName("missing-automation", true)

		if err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
	})
}

func TestScriptRepo_UpsertScript(t *testing.T) {
	t.Run("should preserve the enabled flag and settings on reinstall", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		script := testScript(t, repo, "lead-scorer")

		err := repo.SetScriptEnabledByName("lead-scorer", true)
		if err != nil {
			t.Fatalf("enabling script : %v", err)
		}

		wantSettings := map[string]any{"bonus": float64(5)}
		err = repo.SetScriptSettingsByUUID(script.ID, wantSettings)
		if err != nil {
			t.Fatalf("saving settings : %v", err)
		}

		script.Version = "1.1.0"
		script.LuaContent = "function on_lead_created(lead)\n  lead.score = lead.score + 1\nend\n"
		err = repo.UpsertScript(script)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetScriptByName("lead-scorer")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.Version != "1.1.0" {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", "1.1.0", got.Version)
		}
		if !got.Enabled {
			t.Fatalf("\nwanted:\ntrue\ngot:\nfalse")
		}
		if !reflect.DeepEqual(got.Settings, wantSettings) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantSettings, got.Settings)
		}
	})
}

func TestScriptRepo_ScriptSettings(t *testing.T) {
	t.Run("should round-trip script settings", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		script := testScript(t, repo, "lead-scorer")

		want := map[string]any{
			"bonus":    float64(5),
			"notify":   true,
			"channels": []any{"email", "websocket"},
		}

		err := repo.SetScriptSettingsByUUID(script.ID, want)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetScriptSettingsByUUID(script.ID)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !reflect.DeepEqual(got, want) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want, got)
		}
	})
}
