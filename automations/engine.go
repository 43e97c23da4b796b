package automations

import (
	"fmt"
	"sort"
	"sync"

	"github.com/DIGIT-HABs/back/core"
	"github.com/DIGIT-HABs/back/domain"
)

// Engine holds the runtimes of every loaded automation script and dispatches
// CRM events to them. One failing script never blocks the others; its error
// is written to the activity log and dispatch moves on.
type Engine struct {
	service CRMService

	mu       sync.RWMutex
	runtimes map[string]*Runtime
}

// NewEngine returns an engine with no scripts loaded.
func NewEngine(service CRMService) *Engine {
	return &Engine{
		service:  service,
		runtimes: make(map[string]*Runtime),
	}
}

// Load prepares a fresh runtime for the script and registers it under the
// script's name, replacing any previously loaded version.
func (engine *Engine) Load(script *domain.Script, options ...func(*Runtime) error) error {
	runtime := &Runtime{Data: script}
	if err := runtime.PrepareState(engine.service, options); err != nil {
		return fmt.Errorf("preparing script %s : %w", script.Name, err)
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()
	engine.runtimes[script.Name] = runtime
	return nil
}

// Unload removes a script's runtime from the engine. The dropped state is
// left to the garbage collector.
func (engine *Engine) Unload(name string) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	delete(engine.runtimes, name)
}

// Get returns the runtime registered under the given script name.
func (engine *Engine) Get(name string) (*Runtime, bool) {
	engine.mu.RLock()
	defer engine.mu.RUnlock()
	runtime, ok := engine.runtimes[name]
	return runtime, ok
}

// Names returns the names of the loaded scripts, sorted.
func (engine *Engine) Names() []string {
	engine.mu.RLock()
	defer engine.mu.RUnlock()

	names := make([]string, 0, len(engine.runtimes))
	for name := range engine.runtimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadEnabled loads every enabled script from the repository. A script that
// fails to load is logged and skipped so the rest still come up.
func (engine *Engine) LoadEnabled(options ...func(*Runtime) error) error {
	repo, err := engine.service.GetScriptRepo()
	if err != nil {
		return fmt.Errorf("getting script repo : %w", err)
	}

	scripts, err := repo.GetScripts()
	if err != nil {
		return fmt.Errorf("listing scripts : %w", err)
	}

	for _, script := range scripts {
		if !script.Enabled {
			continue
		}
		if err := engine.Load(script, options...); err != nil {
			engine.service.WriteLog("WARN",
				fmt.Sprintf("skipping automation %s: %v", script.Name, err),
				core.LogWithScriptID(script.ID))
		}
	}
	return nil
}

// Dispatch calls the hook on every loaded script that defines it. Hook
// errors are logged per script and do not stop the remaining scripts.
func (engine *Engine) Dispatch(hook string, args ...any) {
	engine.mu.RLock()
	snapshot := make([]*Runtime, 0, len(engine.runtimes))
	for _, runtime := range engine.runtimes {
		snapshot = append(snapshot, runtime)
	}
	engine.mu.RUnlock()

	for _, runtime := range snapshot {
		if err := runtime.CallHook(hook, args...); err != nil {
			engine.service.WriteLog("ERROR",
				fmt.Sprintf("automation %s failed on %s: %v", runtime.Data.Name, hook, err),
				core.LogWithScriptID(runtime.Data.ID))
		}
	}
}

// LeadCreated dispatches the hook fired when a new lead enters the funnel.
func (engine *Engine) LeadCreated(lead *domain.Lead) {
	engine.Dispatch(domain.HookLeadCreated, lead)
}

// LeadAssigned dispatches the hook fired when a lead is handed to an agent.
func (engine *Engine) LeadAssigned(lead *domain.Lead, agent *domain.User) {
	engine.Dispatch(domain.HookLeadAssigned, lead, agent)
}

// LeadConverted dispatches the hook fired when a lead becomes a client account.
func (engine *Engine) LeadConverted(lead *domain.Lead, client *domain.User) {
	engine.Dispatch(domain.HookLeadConverted, lead, client)
}

// PropertyPublished dispatches the hook fired when a listing first goes live.
func (engine *Engine) PropertyPublished(property *domain.Property) {
	engine.Dispatch(domain.HookPropertyPublished, property)
}

// ReservationConfirmed dispatches the hook fired when a reservation is confirmed.
func (engine *Engine) ReservationConfirmed(reservation *domain.Reservation) {
	engine.Dispatch(domain.HookReservationConfirmed, reservation)
}

// CommissionPaid dispatches the hook fired when a commission payout completes.
func (engine *Engine) CommissionPaid(commission *domain.Commission) {
	engine.Dispatch(domain.HookCommissionPaid, commission)
}
