package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds a 'v' prefix if version starts with a digit.
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

var rootCmd = &cobra.Command{
	Use:   "ifit",
	Short: "iFit treadmill BLE toolkit",
	Long: `A command-line toolkit for iFit-branded treadmills over Bluetooth Low Energy:

- Scan for and connect to iFit equipment
- Read and write equipment characteristics
- Watch live values and calibrate
- Intercept the vendor app's activation handshake
- Relay equipment data as a standard Bluetooth Fitness Machine Service
- Brute-force activation codes from a candidate catalog

The custom iFit application protocol is handled entirely by this tool; no
vendor app is required for read/write/watch/calibrate.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(calibrateCmd)
	rootCmd.AddCommand(interceptCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(tryCodesCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging (equivalent to --log-level debug)")

	rootCmd.Flags().BoolP("version", "V", false, "Show version information")
}
