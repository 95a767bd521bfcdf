//go:build test

package main

import (
	"io"
	"os"

	"github.com/stretchr/testify/suite"
)

// CommandTestSuite is the base suite every cmd/ifit test suite embeds, the
// way cmd/blim's suites embed its own CommandTestSuite. Connection-dependent
// behavior (anything that needs a live transport.EquipmentLink) is left to
// the internal packages' own test suites; these suites cover the CLI-layer
// logic that doesn't need a BLE connection: flag wiring, args validation,
// and pure helper functions.
type CommandTestSuite struct {
	suite.Suite
}

// CaptureStdout executes fn while capturing stdout, returns captured output.
// Stdout is restored even if fn panics.
func (s *CommandTestSuite) CaptureStdout(fn func()) string {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err, "pipe creation MUST succeed")
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}
