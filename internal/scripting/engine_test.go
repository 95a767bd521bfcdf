package scripting

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewEngine(logger)
}

func TestEngine_ExecuteScript_CapturesPrint(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	require.NoError(t, e.ExecuteScript(`print("hello", 42, true)`))

	select {
	case record := <-e.OutputChannel():
		assert.Equal(t, "hello\t42\ttrue\n", record.Content)
		assert.Equal(t, "stdout", record.Source)
	case <-time.After(time.Second):
		t.Fatal("expected captured print output")
	}
}

func TestEngine_LoadScript_SyntaxError(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	err := e.LoadScript("this is not lua (((", "bad.lua")
	require.Error(t, err)
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "syntax", scriptErr.Type)
}

func TestEngine_ExecuteScript_RuntimeError(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	err := e.ExecuteScript(`error("boom")`)
	require.Error(t, err)
}

func TestEngine_ExecuteScript_NoScriptLoaded(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	err := e.ExecuteScript("")
	require.Error(t, err)
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "api", scriptErr.Type)
}

func TestEngine_SetGlobal(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	require.NoError(t, e.SetGlobal("target_speed", 6.5))
	require.NoError(t, e.ExecuteScript(`assert(target_speed == 6.5)`))
}

func TestEngine_Reset_ClearsGlobals(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	require.NoError(t, e.SetGlobal("marker", 1))
	e.Reset()
	err := e.ExecuteScript(`assert(marker == nil)`)
	assert.NoError(t, err)
}
