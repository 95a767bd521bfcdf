package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/pkg/config"
)

var infoCmd = &cobra.Command{
	Use:   "info [address]",
	Short: "Connect to equipment and print its capabilities and current values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInfo,
}

var infoActivationCode string

func init() {
	infoCmd.Flags().StringVar(&infoActivationCode, "activation-code", "", "8-byte hex activation code (monitor-only if omitted)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	var address string
	if len(args) == 1 {
		address = args[0]
	}

	ctx := context.Background()
	address, err = resolveAddress(ctx, address, "", 10*time.Second, logger)
	if err != nil {
		return err
	}

	opts := config.NewConnectOptions()
	opts.Address = address
	opts.ActivationCode = infoActivationCode

	client, teardown, err := connectClient(ctx, address, opts, logger)
	if err != nil {
		return err
	}
	defer teardown()

	info := client.EquipmentInformation()
	fmt.Printf("equipment:   %v\n", info.Equipment)
	if info.HasSerialNumber {
		fmt.Printf("serial:      %s\n", info.SerialNumber)
	}
	if info.HasFirmwareVersion {
		fmt.Printf("firmware:    %s\n", info.FirmwareVersion)
	}
	if info.HasReferenceNumber {
		fmt.Printf("reference:   %d\n", info.ReferenceNumber)
	}

	pair := info.Characteristics.Oldest()
	var names []string
	for pair != nil {
		names = append(names, pair.Value.Name)
		pair = pair.Next()
	}
	fmt.Printf("characteristics (%d): %v\n", len(names), names)

	values, err := client.ReadCurrentValues(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to read current values: %v\n", err)
		return nil
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("current values:")
	for _, k := range keys {
		fmt.Printf("  %-20s %v\n", k, values[k])
	}
	return nil
}
