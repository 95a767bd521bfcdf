package main

import (
	"errors"

	"github.com/fatih/color"

	"github.com/srg/ifit-ble/internal/ifitclient"
	"github.com/srg/ifit-ble/internal/transport"
)

// ErrConnectionLost indicates the BLE connection was unexpectedly lost
// during an operation, distinct from transport.ErrNotConnected (an attempt
// to use a link that was never connected).
var ErrConnectionLost = errors.New("connection lost")

// FormatUserError renders err the way a user should see it: the vendor
// equipment/activation errors get a one-line, unwrapped summary; everything
// else prints as-is. The message is colored red for terminal output.
func FormatUserError(err error) string {
	msg := err.Error()

	var activationErr *ifitclient.ActivationError
	switch {
	case errors.As(err, &activationErr):
		msg = activationErr.Msg
	case errors.Is(err, transport.ErrNotConnected):
		msg = "equipment is not connected"
	case errors.Is(err, ErrConnectionLost):
		msg = "connection to equipment was lost"
	}

	return color.RedString(msg)
}
