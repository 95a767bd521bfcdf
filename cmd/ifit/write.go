package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/pkg/config"
)

var writeCmd = &cobra.Command{
	Use:   "write <address> <name>=<value> [name=value...]",
	Short: "Write one or more characteristics",
	Long: `Writes characteristic values to connected equipment.

Examples:
  ifit write AA:BB:CC:DD:EE:FF Kph=5.0
  ifit write AA:BB:CC:DD:EE:FF Kph=5.0 Incline=2.5`,
	Args: cobra.MinimumNArgs(2),
	RunE: runWrite,
}

var writeActivationCode string

func init() {
	writeCmd.Flags().StringVar(&writeActivationCode, "activation-code", "", "8-byte hex activation code (required to write)")
}

func runWrite(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	address := args[0]
	values := make(map[string]any, len(args)-1)
	for _, pair := range args[1:] {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("ifit: invalid assignment %q, expected name=value", pair)
		}
		values[name] = parseWriteValue(raw)
	}

	ctx := context.Background()

	opts := config.NewConnectOptions()
	opts.Address = address
	opts.ActivationCode = writeActivationCode

	client, teardown, err := connectClient(ctx, address, opts, logger)
	if err != nil {
		return err
	}
	defer teardown()

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WriteCharacteristics(writeCtx, values); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

// parseWriteValue converts a raw CLI value into the float64/bool/string
// shape WriteCharacteristics' converters expect, preferring the most
// specific type that parses.
func parseWriteValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
