//go:build test

package main

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type MainTestSuite struct {
	CommandTestSuite
}

func (suite *MainTestSuite) TestFormatVersion() {
	// GOAL: Verify formatVersion only adds a 'v' prefix when version starts
	// with a digit, leaving dev/pseudo-versions untouched.

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "numeric version gets v prefix", input: "1.2.3", expected: "v1.2.3"},
		{name: "already prefixed version is untouched", input: "v1.2.3", expected: "v1.2.3"},
		{name: "dev version is untouched", input: "dev", expected: "dev"},
		{name: "empty version is untouched", input: "", expected: ""},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.Assert().Equal(tt.expected, formatVersion(tt.input))
		})
	}
}

func (suite *MainTestSuite) TestRootCmd_SubcommandsRegistered() {
	// GOAL: Verify every CLI operation is wired into the root command.

	names := []string{"scan", "info", "read", "write", "watch", "calibrate", "intercept", "relay", "try-codes"}
	for _, name := range names {
		suite.Run(name, func() {
			found, _, err := rootCmd.Find([]string{name})
			suite.Assert().NoError(err)
			suite.Assert().Equal(name, found.Name())
		})
	}
}

func (suite *MainTestSuite) TestRootCmd_PersistentFlags() {
	suite.Assert().NotNil(rootCmd.PersistentFlags().Lookup("log-level"))
	suite.Assert().NotNil(rootCmd.PersistentFlags().Lookup("verbose"))
}

func TestMainSuite(t *testing.T) {
	suite.Run(t, new(MainTestSuite))
}
