package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/ifit-ble/internal/discovery"
	"github.com/srg/ifit-ble/internal/transport/goble"
	"github.com/srg/ifit-ble/pkg/config"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for iFit equipment",
	Long: `Scans for Bluetooth Low Energy advertisements carrying an iFit display
code and prints each piece of equipment discovered.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanCode     string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (0 uses the default of 10s)")
	scanCmd.Flags().StringVarP(&scanCode, "code", "c", "", "Only match equipment displaying this 4-hex-digit code")
}

func runScan(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	opts := config.NewScanOptions()
	opts.Code = scanCode
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ncancelling scan...")
		cancel()
	}()

	central := goble.NewCentral(logger)
	scanner := discovery.NewScanner(central, logger)

	fmt.Fprintf(os.Stderr, "scanning for %s...\n", opts.Duration)
	devices, err := scanner.Scan(ctx, opts.DiscoveryOptions(), func(phase string) {
		logger.WithField("phase", phase).Debug("scan progress")
	})
	if err != nil {
		return err
	}

	return displayDevices(devices)
}

func displayDevices(devices []discovery.IFitDevice) error {
	if len(devices) == 0 {
		fmt.Println("no iFit equipment discovered")
		return nil
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("NAME\tADDRESS\tCODE"))
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Address, d.Code)
	}
	return w.Flush()
}
