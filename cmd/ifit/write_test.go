//go:build test

package main

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type WriteTestSuite struct {
	CommandTestSuite
}

func (suite *WriteTestSuite) TestParseWriteValue() {
	// GOAL: Verify CLI write values are parsed as the most specific type
	// WriteCharacteristics' converters can widen from.

	tests := []struct {
		name     string
		input    string
		expected any
	}{
		{name: "integer-looking value is a float64", input: "5", expected: float64(5)},
		{name: "decimal value is a float64", input: "5.5", expected: float64(5.5)},
		{name: "negative value is a float64", input: "-2.5", expected: float64(-2.5)},
		{name: "true is a bool", input: "true", expected: true},
		{name: "false is a bool", input: "false", expected: false},
		{name: "non-numeric non-bool falls back to string", input: "enabled", expected: "enabled"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.Assert().Equal(tt.expected, parseWriteValue(tt.input))
		})
	}
}

func (suite *WriteTestSuite) TestWriteCmd_Use() {
	suite.Assert().NotNil(writeCmd)
	suite.Assert().Equal("write <address> <name>=<value> [name=value...]", writeCmd.Use)
}

func (suite *WriteTestSuite) TestWriteCmd_Flags() {
	flag := writeCmd.Flags().Lookup("activation-code")
	suite.Assert().NotNil(flag, "activation-code flag MUST exist")
	suite.Assert().Equal("", flag.DefValue)
}

func (suite *WriteTestSuite) TestWriteCmd_ArgsValidation() {
	validator := writeCmd.Args
	suite.Require().NotNil(validator)

	tests := []struct {
		name      string
		args      []string
		shouldErr bool
	}{
		{name: "address and one assignment", args: []string{"AA:BB:CC:DD:EE:FF", "Kph=5.0"}, shouldErr: false},
		{name: "address and multiple assignments", args: []string{"AA:BB:CC:DD:EE:FF", "Kph=5.0", "InclinePercent=2.5"}, shouldErr: false},
		{name: "only address", args: []string{"AA:BB:CC:DD:EE:FF"}, shouldErr: true},
		{name: "no arguments", args: []string{}, shouldErr: true},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			err := validator(writeCmd, tt.args)
			if tt.shouldErr {
				suite.Assert().Error(err)
			} else {
				suite.Assert().NoError(err)
			}
		})
	}
}

func TestWriteSuite(t *testing.T) {
	suite.Run(t, new(WriteTestSuite))
}
