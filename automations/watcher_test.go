package automations

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

func setupTestWatcher(t *testing.T, repo *mockScriptRepo) (*Watcher, *Engine, string, *mockCRMService) {
	t.Helper()

	dir := t.TempDir()

	mockService := &mockCRMService{
		GetScriptRepoFunc: func() (domain.ScriptRepository, error) { return repo, nil },
	}
	engine := NewEngine(mockService)

	watcher, err := NewWatcher(engine, dir)
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	t.Cleanup(func() { watcher.watcher.Close() })

	return watcher, engine, dir, mockService
}

func writeScriptFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing script file: %v", err)
	}
	return path
}

func TestWatcher_Sync(t *testing.T) {
	t.Run("should import new files as disabled scripts", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, engine, dir, _ := setupTestWatcher(t, repo)

		writeScriptFile(t, dir, "welcome-lead.lua", `print("hello")`)

		if err := watcher.Sync(); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(repo.upserted) != 1 {
			t.Fatalf("\nwanted:\n1 upsert\ngot:\n%d", len(repo.upserted))
		}
		if repo.upserted[0].Name != "welcome-lead" {
			t.Errorf("\nwanted:\nwelcome-lead\ngot:\n%s", repo.upserted[0].Name)
		}
		if repo.upserted[0].Enabled {
			t.Errorf("\nwanted:\ndisabled\ngot:\nenabled")
		}

		if _, ok := engine.Get("welcome-lead"); ok {
			t.Errorf("\nwanted:\nnot loaded while disabled\ngot:\nloaded")
		}
	})

	t.Run("should reload enabled scripts with the file content", func(t *testing.T) {
		storedID, err := uuid.NewV7()
		if err != nil {
			t.Fatalf("generating uuid : %v", err)
		}
		repo := &mockScriptRepo{
			scripts: []*domain.Script{{
				ID:         storedID,
				Name:       "greeter",
				LuaContent: `greeting = "old"`,
				Enabled:    true,
			}},
		}
		watcher, engine, dir, _ := setupTestWatcher(t, repo)

		writeScriptFile(t, dir, "greeter.lua", `greeting = "new"`)

		if err := watcher.Sync(); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		runtime, ok := engine.Get("greeter")
		if !ok {
			t.Fatalf("\nwanted:\nloaded runtime\ngot:\nnot found")
		}
		if runtime.Data.LuaContent != `greeting = "new"` {
			t.Errorf("\nwanted:\nfile content\ngot:\n%s", runtime.Data.LuaContent)
		}

		got, err := runtime.GetGlobalString("greeting")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got != "new" {
			t.Errorf("\nwanted:\nnew\ngot:\n%s", got)
		}

		// The upsert must not replace the stored identity.
		if runtime.Data.ID != storedID {
			t.Errorf("\nwanted:\n%v\ngot:\n%v", storedID, runtime.Data.ID)
		}
	})

	t.Run("should ignore non-lua files and directories", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, _, dir, _ := setupTestWatcher(t, repo)

		writeScriptFile(t, dir, "notes.txt", "not a script")
		if err := os.Mkdir(filepath.Join(dir, "archive.lua"), 0o755); err != nil {
			t.Fatalf("creating directory: %v", err)
		}

		if err := watcher.Sync(); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(repo.upserted) != 0 {
			t.Errorf("\nwanted:\nno upserts\ngot:\n%d", len(repo.upserted))
		}
	})

	t.Run("should return error when the scripts directory is missing", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, _, dir, _ := setupTestWatcher(t, repo)
		watcher.dir = filepath.Join(dir, "missing")

		err := watcher.Sync()
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
		if !strings.Contains(err.Error(), "reading scripts dir") {
			t.Errorf("\nwanted:\nerror containing 'reading scripts dir'\ngot:\n%v", err)
		}
	})

	t.Run("should log and keep going when a file fails to import", func(t *testing.T) {
		repo := &mockScriptRepo{
			scripts: []*domain.Script{{
				Name:       "broken",
				LuaContent: "",
				Enabled:    true,
			}},
		}
		watcher, engine, dir, mockService := setupTestWatcher(t, repo)

		var logged []string
		mockService.WriteLogFunc = func(level string, message string, options ...func(log *domain.Log) error) error {
			logged = append(logged, level+" "+message)
			return nil
		}

		writeScriptFile(t, dir, "broken.lua", `invalid syntax`)
		writeScriptFile(t, dir, "healthy.lua", `print("up")`)

		if err := watcher.Sync(); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		found := false
		for _, entry := range logged {
			if strings.Contains(entry, "WARN") && strings.Contains(entry, "syncing script file broken.lua") {
				found = true
			}
		}
		if !found {
			t.Errorf("\nwanted:\na WARN log for broken.lua\ngot:\n%v", logged)
		}

		// The healthy file still lands in the repository.
		if _, err := repo.GetScriptByName("healthy"); err != nil {
			t.Errorf("\nwanted:\nhealthy stored\ngot:\n%v", err)
		}
		if _, ok := engine.Get("broken"); ok {
			t.Errorf("\nwanted:\nbroken not loaded\ngot:\nloaded")
		}
	})
}

func TestWatcher_HandleEvent(t *testing.T) {
	t.Run("write events should queue lua files for reload", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, _, dir, _ := setupTestWatcher(t, repo)

		pending := make(map[string]time.Time)
		path := filepath.Join(dir, "welcome-lead.lua")

		watcher.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}, pending)
		if _, ok := pending[path]; !ok {
			t.Errorf("\nwanted:\npending entry for %s\ngot:\nnone", path)
		}

		watcher.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write}, pending)
		if len(pending) != 1 {
			t.Errorf("\nwanted:\n1 pending entry\ngot:\n%d", len(pending))
		}
	})

	t.Run("remove events should unload the script and clear pending", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, engine, dir, _ := setupTestWatcher(t, repo)

		if err := engine.Load(testScript(t, "greeter", "")); err != nil {
			t.Fatalf("loading script: %v", err)
		}

		path := filepath.Join(dir, "greeter.lua")
		pending := map[string]time.Time{path: time.Now()}

		watcher.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove}, pending)

		if len(pending) != 0 {
			t.Errorf("\nwanted:\nno pending entries\ngot:\n%d", len(pending))
		}
		if _, ok := engine.Get("greeter"); ok {
			t.Errorf("\nwanted:\nunloaded\ngot:\nloaded")
		}
	})
}

func TestWatcher_StartStop(t *testing.T) {
	t.Run("should start and stop cleanly", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, _, _, _ := setupTestWatcher(t, repo)

		if err := watcher.Start(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		watcher.Stop()
	})

	t.Run("should create the scripts directory when missing", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, _, dir, _ := setupTestWatcher(t, repo)
		watcher.dir = filepath.Join(dir, "scripts")

		if err := watcher.Start(context.Background()); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer watcher.Stop()

		info, err := os.Stat(watcher.dir)
		if err != nil {
			t.Fatalf("\nwanted:\ndirectory\ngot:\n%v", err)
		}
		if !info.IsDir() {
			t.Errorf("\nwanted:\ndirectory\ngot:\nfile")
		}
	})

	t.Run("stop before start should be a no-op", func(t *testing.T) {
		repo := &mockScriptRepo{}
		watcher, _, _, _ := setupTestWatcher(t, repo)

		watcher.Stop()
	})
}
