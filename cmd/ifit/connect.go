package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/discovery"
	"github.com/srg/ifit-ble/internal/ifitclient"
	"github.com/srg/ifit-ble/internal/transport"
	"github.com/srg/ifit-ble/internal/transport/goble"
	"github.com/srg/ifit-ble/pkg/config"
)

// resolveAddress returns address unchanged if set, otherwise scans for the
// first piece of iFit equipment advertising code (or any iFit equipment if
// code is empty) and returns its address.
func resolveAddress(ctx context.Context, address, code string, scanTimeout time.Duration, logger *logrus.Logger) (string, error) {
	if address != "" {
		return address, nil
	}
	central := goble.NewCentral(logger)
	device, err := discovery.FindDevice(ctx, central, code, scanTimeout, logger)
	if err != nil {
		return "", fmt.Errorf("ifit: %w", err)
	}
	return device.Address, nil
}

// connectClient dials address and returns a ready ifitclient.Client. The
// caller must call the returned teardown func (which disconnects the
// client) when done.
func connectClient(ctx context.Context, address string, opts config.ConnectOptions, logger *logrus.Logger) (*ifitclient.Client, func(), error) {
	central := goble.NewCentral(logger)

	connectCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	link, err := central.Connect(connectCtx, address, transport.ConnectOptions{ConnectTimeout: opts.ConnectTimeout})
	if err != nil {
		return nil, nil, fmt.Errorf("ifit: connecting to %s: %w", address, err)
	}

	clientOpts := opts.ClientOptions()
	clientOpts.Logger = logger
	client := ifitclient.New(link, clientOpts)

	if err := client.Connect(ctx); err != nil {
		link.Disconnect()
		return nil, nil, fmt.Errorf("ifit: initializing equipment: %w", err)
	}

	teardown := func() {
		client.Disconnect()
	}
	return client, teardown, nil
}
