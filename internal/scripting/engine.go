// Package scripting embeds a Lua console over a connected iFit equipment
// client, so a user can script reads, writes, calibration, and activation
// without touching Go.
package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
)

// OutputRecord is one line of captured Lua stdout/stderr.
type OutputRecord struct {
	Content   string
	Timestamp time.Time
	Source    string // "stdout" or "stderr"
}

// ScriptError describes a Lua load/execution failure.
type ScriptError struct {
	Type    string // "syntax", "runtime", "api"
	Message string
	Source  string
}

func (e *ScriptError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("scripting: %s error in %s: %s", e.Type, e.Source, e.Message)
	}
	return fmt.Sprintf("scripting: %s error: %s", e.Type, e.Message)
}

func (e *ScriptError) Is(target error) bool {
	var other *ScriptError
	if errors.As(target, &other) {
		return e.Type == other.Type
	}
	return false
}

// Engine is a Lua interpreter with full stdout/stderr capture, bound to one
// Go state at a time. Safe for concurrent use.
type Engine struct {
	state      *lua.State
	stateMutex sync.Mutex
	logger     *logrus.Logger
	scriptCode string
	outputChan *ringChannel[OutputRecord]
}

// NewEngine returns a fresh Engine with its Lua state already open.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		logger:     logger,
		outputChan: newRingChannel[OutputRecord](100),
	}
	e.Reset()
	return e
}

// DoWithState runs callback with the engine locked and its Lua state
// available, returning whatever callback returns (nil if the state is
// closed).
func (e *Engine) DoWithState(callback func(*lua.State) any) any {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	if e.state == nil {
		return nil
	}
	return callback(e.state)
}

func (e *Engine) registerPrintCapture() {
	e.state.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToBoolean(i)))
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}
		e.outputChan.ForceSend(OutputRecord{
			Content:   strings.Join(parts, "\t") + "\n",
			Timestamp: time.Now(),
			Source:    "stdout",
		})
		return 0
	})
	e.state.SetGlobal("print")
}

// OutputChannel streams captured print() output as it's produced.
func (e *Engine) OutputChannel() <-chan OutputRecord {
	return e.outputChan.C()
}

func (e *Engine) parseError(errType, source string) *ScriptError {
	if e.state.GetTop() == 0 {
		return &ScriptError{Type: errType, Message: "unknown Lua error", Source: source}
	}
	msg := "non-string error object"
	if e.state.IsString(-1) {
		msg = e.state.ToString(-1)
	}
	e.state.Pop(1)
	return &ScriptError{Type: errType, Message: msg, Source: source}
}

// LoadScript parses and validates script without running it.
func (e *Engine) LoadScript(script, name string) error {
	if script == "" {
		return &ScriptError{Type: "api", Message: "empty script", Source: name}
	}
	e.scriptCode = script

	var loadErr error
	e.DoWithState(func(L *lua.State) any {
		if status := L.LoadString(script); status != 0 {
			loadErr = e.parseError("syntax", name)
			L.Pop(1)
			return nil
		}
		L.Pop(1)
		return nil
	})
	return loadErr
}

// ExecuteScript runs script, or the last script loaded via LoadScript if
// script is empty.
func (e *Engine) ExecuteScript(script string) error {
	if script != "" {
		if err := e.LoadScript(script, "ad-hoc script"); err != nil {
			return err
		}
	}
	if e.scriptCode == "" {
		return &ScriptError{Type: "api", Message: "no script loaded"}
	}

	var execErr error
	e.DoWithState(func(L *lua.State) any {
		if err := L.DoString(e.scriptCode); err != nil {
			luaErr := e.parseError("runtime", "")
			e.outputChan.ForceSend(OutputRecord{
				Content:   fmt.Sprintf("Lua error: %s", luaErr.Message),
				Timestamp: time.Now(),
				Source:    "stderr",
			})
			execErr = fmt.Errorf("scripting: execution failed: %w", err)
		}
		return nil
	})
	return execErr
}

// Reset closes any existing Lua state and opens a fresh one with the
// standard libraries and print capture installed.
func (e *Engine) Reset() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
	}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.registerPrintCapture()
}

// Close tears down the Lua state. The engine is unusable afterward.
func (e *Engine) Close() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}

// SetGlobal sets a global Lua variable to a Go scalar value.
func (e *Engine) SetGlobal(name string, value any) error {
	res := e.DoWithState(func(L *lua.State) any {
		switch v := value.(type) {
		case string:
			L.PushString(v)
		case int:
			L.PushInteger(int64(v))
		case int64:
			L.PushInteger(v)
		case float64:
			L.PushNumber(v)
		case bool:
			L.PushBoolean(v)
		default:
			return fmt.Errorf("scripting: unsupported type for global %s", name)
		}
		L.SetGlobal(name)
		return nil
	})
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}
