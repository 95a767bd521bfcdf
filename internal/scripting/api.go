package scripting

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/ifitclient"
)

// defaultCommandTimeout bounds every equipment operation a script triggers,
// so a hung request/response exchange can't wedge a script forever.
const defaultCommandTimeout = 10 * time.Second

// API binds a connected ifitclient.Client's operations to a Lua console:
// read(...names), write(table), calibrate(), and enable(codesFile,
// maxAttempts) all become callable from scripts as fields of the global
// equipment table.
type API struct {
	client *ifitclient.Client
	Engine *Engine
	logger *logrus.Logger
}

// NewAPI returns an API with a fresh Lua engine wired to client.
func NewAPI(client *ifitclient.Client, logger *logrus.Logger) *API {
	if logger == nil {
		logger = logrus.New()
	}
	api := &API{
		client: client,
		logger: logger,
		Engine: NewEngine(logger),
	}
	api.register()
	return api
}

// safeGoFunction wraps fn with panic recovery: a bug in one script call
// can't crash the whole console.
func (api *API) safeGoFunction(name string, fn func(*lua.State) int) func(*lua.State) int {
	return func(L *lua.State) (n int) {
		defer func() {
			if r := recover(); r != nil {
				api.logger.WithField("panic", r).Errorf("scripting: %s panicked", name)
				api.logger.Debug(string(debug.Stack()))
				L.SetTop(0)
				L.PushNil()
				L.PushString(fmt.Sprintf("%s: internal error: %v", name, r))
				n = 2
			}
		}()
		return fn(L)
	}
}

func (api *API) pushGoFunction(L *lua.State, name string, fn func(*lua.State) int) {
	L.PushString(name)
	L.PushGoFunction(api.safeGoFunction(name, fn))
	L.SetTable(-3)
}

// register installs the global "equipment" table of bound functions into
// the engine's Lua state.
func (api *API) register() {
	api.Engine.DoWithState(func(L *lua.State) any {
		L.NewTable()

		api.pushGoFunction(L, "read", api.luaRead)
		api.pushGoFunction(L, "write", api.luaWrite)
		api.pushGoFunction(L, "calibrate", api.luaCalibrate)
		api.pushGoFunction(L, "enable", api.luaEnable)

		L.SetGlobal("equipment")
		return nil
	})
}

// luaRead implements equipment.read(name1, name2, ...) -> (table, nil) on
// success or (nil, error) on failure.
func (api *API) luaRead(L *lua.State) int {
	top := L.GetTop()
	names := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		if !L.IsString(i) {
			L.PushNil()
			L.PushString("read() expects characteristic name strings")
			return 2
		}
		names = append(names, L.ToString(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	values, err := api.client.ReadCharacteristics(ctx, names...)
	if err != nil {
		L.PushNil()
		L.PushString(fmt.Sprintf("read() failed: %v", err))
		return 2
	}

	L.NewTable()
	for name, value := range values {
		L.PushString(name)
		pushValue(L, value)
		L.SetTable(-3)
	}
	L.PushNil()
	return 2
}

// luaWrite implements equipment.write({name = value, ...}) -> (true, nil)
// on success or (nil, error) on failure.
func (api *API) luaWrite(L *lua.State) int {
	if !L.IsTable(1) {
		L.PushNil()
		L.PushString("write() expects a table argument")
		return 2
	}

	values := make(map[string]any)
	L.PushNil()
	for L.Next(1) != 0 {
		if L.IsString(-2) {
			name := L.ToString(-2)
			switch {
			case L.IsNumber(-1):
				values[name] = L.ToNumber(-1)
			case L.IsBoolean(-1):
				values[name] = L.ToBoolean(-1)
			case L.IsString(-1):
				values[name] = L.ToString(-1)
			}
		}
		L.Pop(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	if err := api.client.WriteCharacteristics(ctx, values); err != nil {
		L.PushNil()
		L.PushString(fmt.Sprintf("write() failed: %v", err))
		return 2
	}
	L.PushBoolean(true)
	L.PushNil()
	return 2
}

// luaCalibrate implements equipment.calibrate() -> (true, nil) or
// (nil, error).
func (api *API) luaCalibrate(L *lua.State) int {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	if err := api.client.Calibrate(ctx); err != nil {
		L.PushNil()
		L.PushString(fmt.Sprintf("calibrate() failed: %v", err))
		return 2
	}
	L.PushBoolean(true)
	L.PushNil()
	return 2
}

// luaEnable implements equipment.enable(codes_file, max_attempts) ->
// (code, model, nil) on success or (nil, nil, error) on failure, brute
// forcing the activation code from a codestore CSV file.
func (api *API) luaEnable(L *lua.State) int {
	if !L.IsString(1) {
		L.PushNil()
		L.PushNil()
		L.PushString("enable(codes_file, max_attempts) expects a file path string")
		return 3
	}
	codesFile := L.ToString(1)
	maxAttempts := 0
	if L.GetTop() >= 2 && L.IsNumber(2) {
		maxAttempts = L.ToInteger(2)
	}

	code, model, err := api.client.TryActivationCodes(context.Background(), codesFile, maxAttempts)
	if err != nil {
		L.PushNil()
		L.PushNil()
		L.PushString(fmt.Sprintf("enable() failed: %v", err))
		return 3
	}
	L.PushString(code)
	L.PushString(model)
	L.PushNil()
	return 3
}

// pushValue pushes a Go value of the shapes ReadCharacteristics can return
// onto the Lua stack.
func pushValue(L *lua.State, value any) {
	switch v := value.(type) {
	case float64:
		L.PushNumber(v)
	case uint64:
		L.PushNumber(float64(v))
	case uint32:
		L.PushNumber(float64(v))
	case bool:
		L.PushBoolean(v)
	case string:
		L.PushString(v)
	case fmt.Stringer:
		L.PushString(v.String())
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

// Close tears down the underlying Lua engine.
func (api *API) Close() {
	api.Engine.Close()
}
