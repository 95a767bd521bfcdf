package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/pkg/config"
)

var watchCmd = &cobra.Command{
	Use:   "watch <address>",
	Short: "Continuously poll and print equipment values",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var (
	watchInterval       time.Duration
	watchActivationCode string
)

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 5*time.Second, "Poll interval")
	watchCmd.Flags().StringVar(&watchActivationCode, "activation-code", "", "8-byte hex activation code (monitor-only if omitted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	address := args[0]
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := config.NewConnectOptions()
	opts.Address = address
	opts.ActivationCode = watchActivationCode

	client, teardown, err := connectClient(ctx, address, opts, logger)
	if err != nil {
		return err
	}
	defer teardown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Fprintf(os.Stderr, "watching %s every %s, Ctrl+C to stop...\n", address, watchInterval)
	client.StartWatch(watchInterval, func(values map[string]any) {
		printValues(values)
	})
	defer client.StopWatch()

	<-sigCh
	fmt.Fprintln(os.Stderr, "\nstopping watch...")
	return nil
}

func printValues(values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("--- %s ---\n", time.Now().Format(time.RFC3339))
	for _, k := range keys {
		fmt.Printf("  %-20s %v\n", k, values[k])
	}
}
