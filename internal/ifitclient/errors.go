package ifitclient

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned by sendRequest when no response finishes
// assembling within the configured response timeout.
var ErrTimeout = errors.New("ifitclient: response timed out")

// ErrInvalidArgument is returned when a caller names a characteristic (by
// name or id) that isn't in the protocol catalog.
var ErrInvalidArgument = errors.New("ifitclient: invalid argument")

// ErrNoMatchingCode is returned by TryActivationCodes when every candidate
// in the catalog was tried and none activated the equipment.
var ErrNoMatchingCode = errors.New("ifitclient: no matching activation code")

// ActivationError is raised when an activation code is rejected or the
// device doesn't respond to it.
type ActivationError struct {
	Msg string
	Err error
}

func (e *ActivationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ifitclient: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("ifitclient: %s", e.Msg)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// ErrNotInitialized is returned by operations that need equipment
// information that hasn't been populated yet (Connect hasn't run, or
// failed).
type notInitializedError struct{}

func (notInitializedError) Error() string {
	return "ifitclient: equipment information not available, call Connect first"
}

var ErrNotInitialized error = notInitializedError{}
