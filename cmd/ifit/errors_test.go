//go:build test

package main

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/ifit-ble/internal/ifitclient"
	"github.com/srg/ifit-ble/internal/transport"
)

type ErrorsTestSuite struct {
	CommandTestSuite
}

func stripColor(s string) string {
	// color.RedString no-ops when stdout isn't a terminal (the common case
	// under `go test`), but strip ANSI codes defensively if color ever is
	// forced on via NO_COLOR handling changes.
	return regexp.MustCompile(`\x1b\[[0-9;]*m`).ReplaceAllString(s, "")
}

func (suite *ErrorsTestSuite) TestFormatUserError_ActivationError() {
	err := &ifitclient.ActivationError{Msg: "activation code rejected", Err: errors.New("underlying")}
	msg := stripColor(FormatUserError(err))
	suite.Assert().Contains(msg, "activation code rejected")
	suite.Assert().NotContains(msg, "underlying")
}

func (suite *ErrorsTestSuite) TestFormatUserError_NotConnected() {
	msg := stripColor(FormatUserError(fmt.Errorf("wrapped: %w", transport.ErrNotConnected)))
	suite.Assert().Contains(msg, "equipment is not connected")
}

func (suite *ErrorsTestSuite) TestFormatUserError_ConnectionLost() {
	msg := stripColor(FormatUserError(ErrConnectionLost))
	suite.Assert().Contains(msg, "connection to equipment was lost")
}

func (suite *ErrorsTestSuite) TestFormatUserError_Generic() {
	err := errors.New("something else went wrong")
	msg := stripColor(FormatUserError(err))
	suite.Assert().Contains(msg, "something else went wrong")
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
