package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/internal/ftms"
	"github.com/srg/ifit-ble/internal/ifitclient"
	"github.com/srg/ifit-ble/internal/transport"
	"github.com/srg/ifit-ble/internal/transport/goble"
	"github.com/srg/ifit-ble/pkg/config"
)

var relayCmd = &cobra.Command{
	Use:   "relay <address>",
	Short: "Relay equipment data as a standard Bluetooth Fitness Machine Service",
	Long: `Connects to one piece of iFit equipment and advertises a standard
Bluetooth Fitness Machine Service (FTMS) in its place, so any FTMS-compatible
app can treat it as a generic smart treadmill.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelay,
}

var (
	relayActivationCode string
	relayName           string
	relayInterval       time.Duration
)

func init() {
	relayCmd.Flags().StringVar(&relayActivationCode, "activation-code", "", "8-byte hex activation code (required to relay control writes)")
	relayCmd.Flags().StringVar(&relayName, "name", "", "Advertised FTMS name (default \"iFit FTMS\")")
	relayCmd.Flags().DurationVar(&relayInterval, "interval", 0, "Treadmill data update interval (default 1s)")
}

func runRelay(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	address := args[0]
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nstopping relay...")
		cancel()
	}()

	connectOpts := config.NewConnectOptions()
	connectOpts.ActivationCode = relayActivationCode

	central := goble.NewCentral(logger)
	link, err := central.Connect(ctx, address, transport.ConnectOptions{ConnectTimeout: connectOpts.ConnectTimeout})
	if err != nil {
		return fmt.Errorf("ifit: connecting to %s: %w", address, err)
	}

	clientOpts := connectOpts.ClientOptions()
	clientOpts.Logger = logger
	client := ifitclient.New(link, clientOpts)

	ftmsCfg := config.NewFtmsConfig()
	if relayName != "" {
		ftmsCfg.Name = relayName
	}
	if relayInterval > 0 {
		ftmsCfg.UpdateInterval = relayInterval
	}

	relay := ftms.New(client, ftmsCfg.RelayConfig(), ftmsCfg.RelayRanges(), logger)

	fmt.Fprintf(os.Stderr, "relaying %s as FTMS %q...\n", address, ftmsCfg.Name)
	return relay.Run(ctx)
}
