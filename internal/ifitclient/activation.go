package ifitclient

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/srg/ifit-ble/internal/protocol"
	"github.com/srg/ifit-ble/pkg/codestore"
)

// enableEquipment sends the ENABLE command with the configured activation
// code so subsequent reads/writes are accepted.
func (c *Client) enableEquipment(ctx context.Context) error {
	if c.activationCode == "" {
		return errors.New("ifitclient: activation code is required")
	}
	payload, err := hex.DecodeString(c.activationCode)
	if err != nil {
		return fmt.Errorf("ifitclient: invalid activation code %q: %w", c.activationCode, err)
	}

	_, response, err := c.sendCommand(ctx, protocol.CmdEnable, payload)
	switch {
	case errors.Is(err, ErrTimeout):
		return &ActivationError{Msg: "device did not respond to activation code, it may be incorrect for this device", Err: err}
	case err != nil && strings.Contains(err.Error(), "response code not OK"):
		return &ActivationError{Msg: "device rejected the activation code", Err: err}
	case err != nil:
		return err
	}
	c.logger.WithField("response", hex.EncodeToString(response)).Debug("enable response")
	return nil
}

// trySingleCode switches the client to code and verifies it by enabling the
// equipment and confirming a read of MaxIncline/MinIncline completes within
// probeTimeout.
func (c *Client) trySingleCode(ctx context.Context, code string, probeTimeout time.Duration) bool {
	c.activationCode = code
	if err := c.enableEquipment(ctx); err != nil {
		c.logger.WithError(err).Debug("code verification failed")
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if _, err := c.ReadCharacteristics(probeCtx, "MaxIncline", "MinIncline"); err != nil {
		c.logger.WithError(err).Debug("code verification failed")
		return false
	}
	return true
}

// TryActivationCodes tries each candidate code from codesFile (a two-column
// code,model CSV catalog, see pkg/codestore) in order until one activates
// the equipment, up to maxAttempts codes (0 means try them all). On success
// the client is left enabled with the winning code and it is returned
// alongside the associated equipment model name.
func (c *Client) TryActivationCodes(ctx context.Context, codesFile string, maxAttempts int) (code string, model string, err error) {
	candidates, err := codestore.LoadCandidateCodes(codesFile)
	if err != nil {
		return "", "", err
	}
	if len(candidates) == 0 {
		return "", "", fmt.Errorf("ifitclient: no activation codes found in %s", codesFile)
	}
	if maxAttempts > 0 && maxAttempts < len(candidates) {
		candidates = candidates[:maxAttempts]
	}

	for i, candidate := range candidates {
		c.logger.WithFields(map[string]any{
			"attempt": i + 1,
			"total":   len(candidates),
			"model":   candidate.Model,
		}).Info("trying activation code")

		if c.trySingleCode(ctx, candidate.Code, 2*time.Second) {
			c.logger.WithField("model", candidate.Model).Info("activation successful")
			return candidate.Code, candidate.Model, nil
		}
	}

	c.activationCode = ""
	return "", "", fmt.Errorf("ifitclient: failed to activate equipment, tried %d codes with no success: %w", len(candidates), ErrNoMatchingCode)
}
