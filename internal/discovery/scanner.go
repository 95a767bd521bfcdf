package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/eventbus"
	"github.com/srg/ifit-ble/internal/transport"
)

// EventType marks whether a DeviceEvent is a newly seen device or an
// update to one already seen this scan.
type EventType int

const (
	EventNew EventType = iota
	EventUpdated
)

// DeviceEvent is emitted for every relevant advertisement observed.
type DeviceEvent struct {
	Type   EventType
	Device IFitDevice
}

// ProgressCallback is invoked as the scan moves between phases.
type ProgressCallback func(phase string)

// ScanOptions configures a discovery scan.
type ScanOptions struct {
	Duration time.Duration
	// Code restricts matches to equipment displaying this exact 4-hex-digit
	// code; empty matches any equipment advertising an iFit display code.
	Code string
}

// DefaultScanOptions returns the discovery defaults: a ten second window
// matching any iFit-advertising equipment.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{Duration: 10 * time.Second}
}

// Scanner discovers iFit equipment over BLE, filtering advertisements by
// their embedded display code.
type Scanner struct {
	central Central
	devices *hashmap.Map[string, IFitDevice]
	events  *eventbus.RingChannel[DeviceEvent]
	logger  *logrus.Logger
}

// Central is the subset of transport.Central a Scanner needs.
type Central interface {
	Scan(ctx context.Context, allowDup bool, handler func(transport.Advertisement)) error
}

// NewScanner returns a Scanner that drives scanning through central.
func NewScanner(central Central, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		central: central,
		devices: hashmap.New[string, IFitDevice](),
		events:  eventbus.NewRingChannel[DeviceEvent](100),
		logger:  logger,
	}
}

// Events returns a read-only channel of discovery events, overwriting the
// oldest buffered event if a consumer falls behind.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// Scan runs BLE discovery for opts.Duration (or until ctx is canceled),
// returning every matching device observed.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions, progress ProgressCallback) ([]IFitDevice, error) {
	if opts.Duration == 0 {
		opts.Duration = DefaultScanOptions().Duration
	}
	if progress == nil {
		progress = func(string) {}
	}

	var suffix []byte
	if opts.Code != "" {
		var err error
		suffix, err = codeSuffix(opts.Code)
		if err != nil {
			return nil, err
		}
	}

	s.devices = hashmap.New[string, IFitDevice]()

	scanCtx := ctx
	var cancel context.CancelFunc
	if opts.Duration > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	progress("Scanning")
	s.logger.WithField("duration", opts.Duration).Info("scanning for iFit equipment")

	err := s.central.Scan(scanCtx, true, func(adv transport.Advertisement) {
		s.handleAdvertisement(adv, suffix)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("discovery: scan failed: %w", err)
	}

	progress("Processing results")

	devices := make([]IFitDevice, 0, s.devices.Len())
	s.devices.Range(func(_ string, d IFitDevice) bool {
		devices = append(devices, d)
		return true
	})
	return devices, nil
}

func (s *Scanner) handleAdvertisement(adv transport.Advertisement, suffix []byte) {
	manufData := adv.ManufacturerData()
	code, ok := extractDisplayedCode(manufData)
	if !ok {
		return
	}
	if suffix != nil && !matchesCode(manufData, suffix) {
		return
	}

	address := adv.Addr()
	device := IFitDevice{
		Address:          address,
		Name:             adv.LocalName(),
		ManufacturerData: manufData,
		Code:             code,
	}

	_, existed := s.devices.Get(address)
	s.devices.Set(address, device)

	event := DeviceEvent{Device: device}
	if existed {
		event.Type = EventUpdated
	} else {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"address": address,
			"code":    code,
		}).Info("discovered iFit equipment")
	}
	s.events.ForceSend(event)
}

// FindDevice scans for the whole timeout window for equipment displaying
// code (any iFit equipment if code is empty) and returns one of the matches.
// It does not stop at the first match, and which device is returned when
// several match is not defined.
func FindDevice(ctx context.Context, central Central, code string, timeout time.Duration, logger *logrus.Logger) (IFitDevice, error) {
	scanner := NewScanner(central, logger)
	devices, err := scanner.Scan(ctx, ScanOptions{Duration: timeout, Code: code}, nil)
	if err != nil {
		return IFitDevice{}, err
	}
	if len(devices) == 0 {
		return IFitDevice{}, fmt.Errorf("discovery: no iFit equipment found displaying code %q within %s", code, timeout)
	}
	return devices[0], nil
}
