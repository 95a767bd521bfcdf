package interceptor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/discovery"
	"github.com/srg/ifit-ble/internal/transport"
)

// DiscoverOptions configures a Discover call.
type DiscoverOptions struct {
	// Code restricts the target equipment to one displaying this exact
	// 4-hex-digit code; empty accepts any iFit-advertising equipment.
	Code string
	// ScanTimeout bounds how long to look for the target equipment.
	ScanTimeout time.Duration
	// CaptureTimeout bounds how long to wait for the app to send ENABLE
	// once the decoy peripheral is advertising.
	CaptureTimeout time.Duration
	// LocalNameSuffix is appended to the discovered device's own name when
	// advertising the decoy peripheral, so the app can tell them apart.
	LocalNameSuffix string
}

// DefaultDiscoverOptions mirrors the reference discovery flow's defaults: a
// ten second scan and a sixty second capture window.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		ScanTimeout:    10 * time.Second,
		CaptureTimeout: 60 * time.Second,
	}
}

// Discover finds a real piece of iFit equipment, connects to it as central,
// stands up a decoy peripheral impersonating it, and waits for the
// manufacturer's app to connect and send its activation code. It returns the
// captured code once observed, or an error if scanning, connecting, or
// capture times out.
func Discover(ctx context.Context, central transport.Central, peripheralFactory func() transport.Peripheral, opts DiscoverOptions, logger *logrus.Logger) (string, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ScanTimeout == 0 {
		defaults := DefaultDiscoverOptions()
		opts.ScanTimeout = defaults.ScanTimeout
		opts.CaptureTimeout = defaults.CaptureTimeout
	}

	device, err := discovery.FindDevice(ctx, central, opts.Code, opts.ScanTimeout, logger)
	if err != nil {
		return "", err
	}

	link, err := central.Connect(ctx, device.Address, transport.ConnectOptions{})
	if err != nil {
		return "", fmt.Errorf("interceptor: connecting to %s: %w", device.Address, err)
	}
	defer link.Disconnect()

	peripheral := peripheralFactory()
	proxy := New(peripheral, link, logger)

	runCtx, cancel := context.WithTimeout(ctx, opts.CaptureTimeout)
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- proxy.Run(runCtx, Config{
			LocalName:        device.Name + opts.LocalNameSuffix,
			ManufacturerData: device.ManufacturerData,
		})
	}()

	select {
	case code := <-proxy.Code():
		cancel()
		peripheral.Stop()
		<-runErrCh
		return code, nil
	case err := <-runErrCh:
		if err != nil {
			return "", fmt.Errorf("interceptor: advertising failed: %w", err)
		}
		return "", fmt.Errorf("interceptor: stopped before capturing an activation code")
	case <-runCtx.Done():
		peripheral.Stop()
		<-runErrCh
		return "", fmt.Errorf("interceptor: timed out waiting for activation code after %s", opts.CaptureTimeout)
	}
}
