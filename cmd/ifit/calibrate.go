package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/pkg/config"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <address>",
	Short: "Trigger equipment calibration",
	Args:  cobra.ExactArgs(1),
	RunE:  runCalibrate,
}

var calibrateActivationCode string

func init() {
	calibrateCmd.Flags().StringVar(&calibrateActivationCode, "activation-code", "", "8-byte hex activation code (required)")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	address := args[0]
	ctx := context.Background()

	opts := config.NewConnectOptions()
	opts.Address = address
	opts.ActivationCode = calibrateActivationCode

	client, teardown, err := connectClient(ctx, address, opts, logger)
	if err != nil {
		return err
	}
	defer teardown()

	calCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.Calibrate(calCtx); err != nil {
		return err
	}
	fmt.Println("calibration started")
	return nil
}
