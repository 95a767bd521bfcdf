package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/ifit-ble/pkg/codestore"
	"github.com/srg/ifit-ble/pkg/config"
)

var tryCodesCmd = &cobra.Command{
	Use:   "try-codes [address]",
	Short: "Brute-force an equipment's activation code",
	Long: `Tries activation codes against connected equipment until one is
accepted, either from a candidate-code CSV catalog (--codes) or a single
code entered interactively (--prompt).

If address is omitted, scans for the first matching piece of equipment.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTryCodes,
}

var (
	tryCodesFile        string
	tryCodesPrompt      bool
	tryCodesMaxAttempts int
	tryCodesBLECode     string
	tryCodesSavePath    string
)

func init() {
	tryCodesCmd.Flags().StringVar(&tryCodesFile, "codes", "", "Candidate activation-code CSV catalog (code,model)")
	tryCodesCmd.Flags().BoolVar(&tryCodesPrompt, "prompt", false, "Read a single activation code interactively instead of a catalog")
	tryCodesCmd.Flags().IntVar(&tryCodesMaxAttempts, "max-attempts", 0, "Stop after this many candidates (0 tries them all)")
	tryCodesCmd.Flags().StringVar(&tryCodesBLECode, "code", "", "Only scan for equipment displaying this 4-hex-digit code")
	tryCodesCmd.Flags().StringVar(&tryCodesSavePath, "save", "", "Append the winning (ble_code, address, activation_code) to this codestore CSV")
}

func runTryCodes(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if tryCodesFile == "" && !tryCodesPrompt {
		return fmt.Errorf("ifit: one of --codes or --prompt is required")
	}

	var address string
	if len(args) == 1 {
		address = args[0]
	}

	ctx := context.Background()
	address, err = resolveAddress(ctx, address, tryCodesBLECode, 10*time.Second, logger)
	if err != nil {
		return err
	}

	// Connect monitor-only: no activation code yet, since that's exactly
	// what this command is trying to find.
	opts := config.NewConnectOptions()
	opts.Address = address

	client, teardown, err := connectClient(ctx, address, opts, logger)
	if err != nil {
		return err
	}
	defer teardown()

	codesFile := tryCodesFile
	if tryCodesPrompt {
		code, err := promptActivationCode()
		if err != nil {
			return err
		}
		tmp, err := writeSingleCandidateFile(code)
		if err != nil {
			return err
		}
		defer os.Remove(tmp)
		codesFile = tmp
	}

	code, model, err := client.TryActivationCodes(ctx, codesFile, tryCodesMaxAttempts)
	if err != nil {
		return err
	}
	fmt.Printf("activated with code %s (model %s)\n", code, model)

	if tryCodesSavePath != "" {
		store, err := codestore.Open(tryCodesSavePath, logger)
		if err != nil {
			return err
		}
		if err := store.Append(codestore.Entry{
			BLECode:        tryCodesBLECode,
			Address:        address,
			ActivationCode: code,
		}); err != nil {
			return err
		}
		fmt.Printf("saved to %s\n", tryCodesSavePath)
	}
	return nil
}

// promptActivationCode reads a single activation code from the terminal
// without echoing it, the way a password prompt would.
func promptActivationCode() (string, error) {
	fmt.Fprint(os.Stderr, "activation code (hex): ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("ifit: reading activation code: %w", err)
	}
	code := strings.TrimSpace(string(raw))
	if code == "" {
		return "", fmt.Errorf("ifit: no activation code entered")
	}
	return code, nil
}

// writeSingleCandidateFile writes a one-row candidate-code CSV so the
// interactively entered code can flow through the same TryActivationCodes
// path the catalog-driven mode uses.
func writeSingleCandidateFile(code string) (string, error) {
	f, err := os.CreateTemp("", "ifit-activation-code-*.csv")
	if err != nil {
		return "", fmt.Errorf("ifit: creating temporary candidate file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s,manual\n", code); err != nil {
		return "", fmt.Errorf("ifit: writing temporary candidate file: %w", err)
	}
	return f.Name(), nil
}
