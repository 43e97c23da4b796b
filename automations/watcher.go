package automations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// debounceWindow is how long the watcher waits after the last write before
// reloading a script. Editors tend to fire several events per save.
const debounceWindow = 300 * time.Millisecond

// Watcher mirrors the .lua files of the scripts directory into the script
// repository and hot-reloads enabled scripts when their file changes. The
// repository stays authoritative for the enabled flag and settings; the
// files only carry source code.
type Watcher struct {
	engine  *Engine
	dir     string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher builds a watcher for the given scripts directory.
func NewWatcher(engine *Engine, dir string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher : %w", err)
	}

	return &Watcher{
		engine:  engine,
		dir:     dir,
		watcher: watcher,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Sync imports every .lua file currently in the scripts directory. A file
// that fails to import is logged and skipped.
func (watcher *Watcher) Sync() error {
	entries, err := os.ReadDir(watcher.dir)
	if err != nil {
		return fmt.Errorf("reading scripts dir : %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		if err := watcher.syncFile(filepath.Join(watcher.dir, entry.Name())); err != nil {
			watcher.engine.service.WriteLog("WARN",
				fmt.Sprintf("syncing script file %s: %v", entry.Name(), err))
		}
	}
	return nil
}

// Start begins watching the scripts directory. It creates the directory when
// missing and is non-blocking; events are handled in a goroutine until the
// context is cancelled or Stop is called.
func (watcher *Watcher) Start(ctx context.Context) error {
	watcher.mu.Lock()
	if watcher.running {
		watcher.mu.Unlock()
		return nil
	}
	watcher.running = true
	watcher.mu.Unlock()

	if err := os.MkdirAll(watcher.dir, 0o755); err != nil {
		return fmt.Errorf("creating scripts dir : %w", err)
	}
	if err := watcher.watcher.Add(watcher.dir); err != nil {
		return fmt.Errorf("watching %s : %w", watcher.dir, err)
	}

	go watcher.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (watcher *Watcher) Stop() {
	watcher.mu.Lock()
	if !watcher.running {
		watcher.mu.Unlock()
		return
	}
	watcher.running = false
	watcher.mu.Unlock()

	close(watcher.stopCh)
	<-watcher.doneCh

	if err := watcher.watcher.Close(); err != nil {
		watcher.engine.service.WriteLog("WARN",
			fmt.Sprintf("closing script watcher: %v", err))
	}
}

func (watcher *Watcher) run(ctx context.Context) {
	defer close(watcher.doneCh)

	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	pending := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return

		case <-watcher.stopCh:
			return

		case event, ok := <-watcher.watcher.Events:
			if !ok {
				return
			}
			watcher.handleEvent(event, pending)

		case err, ok := <-watcher.watcher.Errors:
			if !ok {
				return
			}
			watcher.engine.service.WriteLog("WARN",
				fmt.Sprintf("script watcher: %v", err))

		case <-ticker.C:
			now := time.Now()
			for path, stamp := range pending {
				if now.Sub(stamp) < debounceWindow {
					continue
				}
				delete(pending, path)
				if err := watcher.syncFile(path); err != nil {
					watcher.engine.service.WriteLog("WARN",
						fmt.Sprintf("reloading script file %s: %v", filepath.Base(path), err))
				}
			}
		}
	}
}

// handleEvent records writes for debounced reloading and unloads scripts
// whose file went away.
func (watcher *Watcher) handleEvent(event fsnotify.Event, pending map[string]time.Time) {
	if !strings.HasSuffix(event.Name, ".lua") {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		pending[event.Name] = time.Now()
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(pending, event.Name)
		watcher.engine.Unload(scriptNameFromPath(event.Name))
	}
}

// syncFile upserts a script file into the repository and reloads it when
// enabled. The upsert keeps the stored ID, enabled flag, and settings of an
// existing script, so a file edit never silently activates anything.
func (watcher *Watcher) syncFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s : %w", path, err)
	}

	name := scriptNameFromPath(path)

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating uuid : %w", err)
	}

	repo, err := watcher.engine.service.GetScriptRepo()
	if err != nil {
		return fmt.Errorf("getting script repo : %w", err)
	}

	err = repo.UpsertScript(&domain.Script{
		ID:         id,
		Name:       name,
		LuaContent: string(content),
		Settings:   map[string]any{},
		UpdatedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("upserting script %s : %w", name, err)
	}

	stored, err := repo.GetScriptByName(name)
	if err != nil {
		return fmt.Errorf("fetching stored script %s : %w", name, err)
	}

	if !stored.Enabled {
		watcher.engine.Unload(name)
		return nil
	}

	if err := watcher.engine.Load(stored); err != nil {
		return fmt.Errorf("loading script %s : %w", name, err)
	}
	return nil
}

func scriptNameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".lua")
}
