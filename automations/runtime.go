package automations

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago/util"
	"github.com/google/uuid"

	"github.com/DIGIT-HABs/back/domain"
)

// scriptIDRegistryKey is the Lua registry slot holding the UUID of the script
// that owns the state. Library functions use it to attribute log entries and
// settings to the right script.
const scriptIDRegistryKey = "script_id"

// ScriptLog is a single line captured from a script's print output.
type ScriptLog struct {
	Time time.Time
	Text string
}

// Runtime wraps a single automation script and its sandboxed Lua state.
// Each script gets its own state so a misbehaving automation cannot touch
// the globals of another one.
type Runtime struct {
	// Data is the script being executed.
	Data *domain.Script
	// LuaState is the sandboxed interpreter state the script runs in.
	LuaState *lua.State
	// Logs collects everything the script printed, oldest first.
	Logs []ScriptLog
	// OnLog, when set, is called for each captured print line.
	OnLog func(log ScriptLog) error

	mu sync.Mutex
}

// ScriptWithLogHandler is a runtime option that registers a handler invoked
// for every line the script prints.
func ScriptWithLogHandler(handler func(log ScriptLog) error) func(*Runtime) error {
	return func(runtime *Runtime) error {
		if runtime.OnLog != nil {
			return errors.New("runtime already has a log handler")
		}
		runtime.OnLog = handler
		return nil
	}
}

// PrepareState creates the sandboxed Lua state for the runtime's script,
// registers the digithab library and the CRM types, and executes the script
// body so its hook functions become available as globals.
func (runtime *Runtime) PrepareState(service CRMService, options []func(*Runtime) error) error {
	if runtime.Data == nil {
		return errors.New("runtime has no script attached")
	}

	l := lua.NewState()
	lua.OpenLibraries(l)
	runtime.LuaState = l

	for _, option := range options {
		if err := option(runtime); err != nil {
			return fmt.Errorf("applying runtime option : %w", err)
		}
	}

	sandboxState(l)

	l.PushString(runtime.Data.ID.String())
	l.SetField(lua.RegistryIndex, scriptIDRegistryKey)

	registerDigithabLibrary(l, service)

	RegisterLeadType(runtime)
	RegisterPropertyType(runtime)
	RegisterClientType(runtime)
	RegisterReservationType(runtime)
	RegisterCommissionType(runtime)
	RegisterUserType(runtime)

	runtime.registerCustomPrint()

	if err := runtime.ExecuteLua(runtime.Data.LuaContent); err != nil {
		return fmt.Errorf("loading script %s : %w", runtime.Data.Name, err)
	}

	return nil
}

// sandboxState strips the globals that would let a script touch the host:
// filesystem access, code loading, and the debug interface. The math, string,
// table, and bit32 libraries stay available.
func sandboxState(l *lua.State) {
	restricted := []string{
		"os",
		"io",
		"dofile",
		"loadfile",
		"load",
		"loadstring",
		"require",
		"package",
		"debug",
		"collectgarbage",
	}

	for _, name := range restricted {
		l.PushNil()
		l.SetGlobal(name)
	}
}

// ExecuteLua runs a chunk of Lua code in the runtime's state. Any values the
// chunk returns are left on the stack.
func (runtime *Runtime) ExecuteLua(code string) error {
	if err := lua.DoString(runtime.LuaState, code); err != nil {
		return fmt.Errorf("executing lua : %w", err)
	}
	return nil
}

// CallHook invokes the global function named after the hook, passing the
// given arguments. A script that does not define the hook is a no-op.
func (runtime *Runtime) CallHook(hook string, args ...any) error {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	l := runtime.LuaState
	l.Global(hook)
	if !l.IsFunction(-1) {
		l.Pop(1)
		return nil
	}

	for _, arg := range args {
		pushValue(l, arg)
	}

	if err := l.ProtectedCall(len(args), 0, 0); err != nil {
		return fmt.Errorf("calling %s : %w", hook, err)
	}
	return nil
}

// CheckGlobalFlag reports whether the named global is a boolean set to true.
// Non-boolean globals are treated as false.
func (runtime *Runtime) CheckGlobalFlag(name string) bool {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	l := runtime.LuaState
	l.Global(name)
	defer l.Pop(1)

	if l.TypeOf(-1) != lua.TypeBoolean {
		return false
	}
	return l.ToBoolean(-1)
}

// GetGlobalString returns the named global when it is a string and errors
// otherwise.
func (runtime *Runtime) GetGlobalString(name string) (string, error) {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	l := runtime.LuaState
	l.Global(name)
	defer l.Pop(1)

	if l.TypeOf(-1) != lua.TypeString {
		return "", fmt.Errorf("global %s is not a string", name)
	}
	value, ok := l.ToString(-1)
	if !ok {
		return "", fmt.Errorf("converting global %s to string", name)
	}
	return value, nil
}

// CheckGlobalFunction reports whether the named global is a function.
func (runtime *Runtime) CheckGlobalFunction(name string) bool {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	l := runtime.LuaState
	l.Global(name)
	defer l.Pop(1)

	return l.IsFunction(-1)
}

// registerCustomPrint overrides the default Lua `print` function. The new
// function captures the output into the runtime's log, making it visible in
// the activity feed instead of the server's stdout.
func (runtime *Runtime) registerCustomPrint() {
	printFunc := func(l *lua.State) int {
		n := l.Top()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			text, ok := lua.ToStringMeta(l, i)
			if !ok {
				text = lua.TypeNameOf(l, i)
			}
			parts = append(parts, text)
		}

		entry := ScriptLog{Time: time.Now(), Text: strings.Join(parts, "\t")}
		runtime.Logs = append(runtime.Logs, entry)
		if runtime.OnLog != nil {
			if err := runtime.OnLog(entry); err != nil {
				log.Print(err)
			}
		}
		return 0
	}
	runtime.LuaState.Register("print", printFunc)
}

// pushValue pushes a Go value onto the Lua stack. CRM records cross over as
// typed userdata so scripts can use their getter methods; plain maps and
// slices become tables.
func pushValue(l *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushNumber(float64(v))
	case int64:
		l.PushNumber(float64(v))
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	case uuid.UUID:
		l.PushString(v.String())
	case *domain.Lead:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, "lead")
	case *domain.Property:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, "property")
	case *domain.ClientProfile:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, "client")
	case *domain.Reservation:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, "reservation")
	case *domain.Commission:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, "commission")
	case *domain.User:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, "user")
	case map[string]any:
		util.DeepPush(l, v)
	case []any:
		util.DeepPush(l, v)
	default:
		l.PushNil()
	}
}

// goValue converts the Lua value at the given stack index into its Go
// equivalent. Tables go through parseTable, userdata comes back as the
// wrapped Go value.
func goValue(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeNil:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return value
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeTable:
		return parseTable(l, index)
	case lua.TypeUserData:
		return l.ToUserData(index)
	default:
		return nil
	}
}

// parseTable converts the Lua table at the given stack index. Tables keyed
// with a plain 1..n sequence become a []any; anything else becomes a
// map[string]any with number keys stringified.
func parseTable(l *lua.State, index int) any {
	index = l.AbsIndex(index)

	entries := map[string]any{}
	array := []any{}
	arrayOnly := true

	l.PushNil()
	for l.Next(index) {
		value := goValue(l, -1)
		// ToString would mutate a number key in place and break Next, so
		// keys are routed through ToNumber instead.
		switch l.TypeOf(-2) {
		case lua.TypeNumber:
			key, _ := l.ToNumber(-2)
			entries[strconv.FormatFloat(key, 'f', -1, 64)] = value
			if key == float64(len(array)+1) {
				array = append(array, value)
			} else {
				arrayOnly = false
			}
		case lua.TypeString:
			key, _ := l.ToString(-2)
			entries[key] = value
			arrayOnly = false
		default:
			arrayOnly = false
		}
		l.Pop(1)
	}

	if arrayOnly {
		return array
	}
	return entries
}

// asMap casts a value produced by goValue to a map. Empty Lua tables come
// back as []any, so an empty slice counts as an empty map. Everything else
// returns nil.
func asMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) == 0 {
			return map[string]any{}
		}
	}
	return nil
}

// getScriptID reads the owning script's UUID out of the Lua registry.
// It returns uuid.Nil when the state has no script registered.
func getScriptID(l *lua.State) uuid.UUID {
	l.Field(lua.RegistryIndex, scriptIDRegistryKey)
	raw, ok := l.ToString(-1)
	l.Pop(1)
	if !ok {
		return uuid.Nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
