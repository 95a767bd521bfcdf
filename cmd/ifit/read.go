package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/pkg/config"
)

var readCmd = &cobra.Command{
	Use:   "read <address> <name> [name...]",
	Short: "Read one or more characteristics by name",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRead,
}

var readActivationCode string

func init() {
	readCmd.Flags().StringVar(&readActivationCode, "activation-code", "", "8-byte hex activation code (monitor-only if omitted)")
}

func runRead(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	address, names := args[0], args[1:]
	ctx := context.Background()

	opts := config.NewConnectOptions()
	opts.Address = address
	opts.ActivationCode = readActivationCode

	client, teardown, err := connectClient(ctx, address, opts, logger)
	if err != nil {
		return err
	}
	defer teardown()

	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	values, err := client.ReadCharacteristics(readCtx, names...)
	if err != nil {
		return err
	}

	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-20s %v\n", name, values[name])
	}
	return nil
}
