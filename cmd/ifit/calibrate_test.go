//go:build test

package main

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type CalibrateTestSuite struct {
	CommandTestSuite
}

func (suite *CalibrateTestSuite) TestCalibrateCmd_ArgsValidation() {
	validator := calibrateCmd.Args
	suite.Require().NotNil(validator)

	suite.Assert().NoError(validator(calibrateCmd, []string{"AA:BB:CC:DD:EE:FF"}))
	suite.Assert().Error(validator(calibrateCmd, []string{}))
	suite.Assert().Error(validator(calibrateCmd, []string{"AA:BB:CC:DD:EE:FF", "extra"}))
}

func (suite *CalibrateTestSuite) TestCalibrateCmd_Flags() {
	suite.Assert().NotNil(calibrateCmd.Flags().Lookup("activation-code"))
}

func TestCalibrateSuite(t *testing.T) {
	suite.Run(t, new(CalibrateTestSuite))
}
