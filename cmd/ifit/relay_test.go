//go:build test

package main

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type RelayTestSuite struct {
	CommandTestSuite
}

func (suite *RelayTestSuite) TestRelayCmd_ArgsValidation() {
	validator := relayCmd.Args
	suite.Require().NotNil(validator)

	suite.Assert().NoError(validator(relayCmd, []string{"AA:BB:CC:DD:EE:FF"}))
	suite.Assert().Error(validator(relayCmd, []string{}))
	suite.Assert().Error(validator(relayCmd, []string{"AA:BB:CC:DD:EE:FF", "extra"}))
}

func (suite *RelayTestSuite) TestRelayCmd_Flags() {
	suite.Assert().NotNil(relayCmd.Flags().Lookup("activation-code"))
	suite.Assert().NotNil(relayCmd.Flags().Lookup("name"))
	suite.Assert().NotNil(relayCmd.Flags().Lookup("interval"))
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelayTestSuite))
}
