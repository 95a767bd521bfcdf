package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/internal/interceptor"
	"github.com/srg/ifit-ble/internal/transport"
	"github.com/srg/ifit-ble/internal/transport/goble"
)

var interceptCmd = &cobra.Command{
	Use:   "intercept",
	Short: "Capture an activation code from the vendor app",
	Long: `Scans for a piece of iFit equipment, connects to it, and stands up a
decoy BLE peripheral impersonating it. When the vendor's iFit app connects
to the decoy and sends its ENABLE command, the activation code it used is
captured and printed.`,
	RunE: runIntercept,
}

var (
	interceptCode           string
	interceptScanTimeout    time.Duration
	interceptCaptureTimeout time.Duration
	interceptNameSuffix     string
)

func init() {
	interceptCmd.Flags().StringVar(&interceptCode, "code", "", "Only scan for equipment displaying this 4-hex-digit code")
	interceptCmd.Flags().DurationVar(&interceptScanTimeout, "scan-timeout", 10*time.Second, "How long to scan for the target equipment")
	interceptCmd.Flags().DurationVar(&interceptCaptureTimeout, "capture-timeout", 60*time.Second, "How long to wait for the app to send ENABLE")
	interceptCmd.Flags().StringVar(&interceptNameSuffix, "name-suffix", " (ifit)", "Suffix appended to the decoy's advertised name")
}

func runIntercept(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ncancelling interception...")
		cancel()
	}()

	central := goble.NewCentral(logger)
	peripheralFactory := func() transport.Peripheral { return goble.NewPeripheral(logger) }

	opts := interceptor.DiscoverOptions{
		Code:            interceptCode,
		ScanTimeout:     interceptScanTimeout,
		CaptureTimeout:  interceptCaptureTimeout,
		LocalNameSuffix: interceptNameSuffix,
	}

	fmt.Fprintln(os.Stderr, "scanning for target equipment...")
	code, err := interceptor.Discover(ctx, central, peripheralFactory, opts, logger)
	if err != nil {
		return err
	}

	fmt.Printf("captured activation code: %s\n", code)
	return nil
}
