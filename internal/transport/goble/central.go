// Package goble adapts the github.com/go-ble/ble library to the
// internal/transport interfaces, on both the central (equipment client) and
// peripheral (interceptor, FTMS relay) sides.
package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/groutine"
	"github.com/srg/ifit-ble/internal/protocol"
	"github.com/srg/ifit-ble/internal/transport"
)

const (
	// defaultWriteChunkSize matches the ATT_MTU-safe chunk size the
	// protocol frames its messages into, so a single EquipmentLink.WriteTX
	// call never needs to split further.
	defaultWriteChunkSize = 20
	defaultConnectTimeout = 30 * time.Second
)

// DeviceFactory creates the platform ble.Device; overridable in tests.
var DeviceFactory = ble.NewDevice

// advertisement adapts a ble.Advertisement to transport.Advertisement.
type advertisement struct {
	adv ble.Advertisement
}

func (a advertisement) LocalName() string        { return a.adv.LocalName() }
func (a advertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a advertisement) RSSI() int                { return a.adv.RSSI() }
func (a advertisement) Addr() string             { return a.adv.Addr().String() }
func (a advertisement) Connectable() bool        { return a.adv.Connectable() }

// Central is the github.com/go-ble/ble-backed transport.Central.
type Central struct {
	logger *logrus.Logger
}

// NewCentral returns a Central that logs through logger (or a default
// logrus.Logger if nil).
func NewCentral(logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger}
}

func (c *Central) Scan(ctx context.Context, allowDup bool, handler func(transport.Advertisement)) error {
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("transport/goble: create scanning device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	return ble.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(advertisement{adv: adv})
	}, nil)
}

func (c *Central) Connect(ctx context.Context, address string, opts transport.ConnectOptions) (transport.EquipmentLink, error) {
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("transport/goble: create device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.WithField("address", address).Debug("dialing equipment")
	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("transport/goble: dial %s: %w", address, err)
	}

	// The device may still be settling its GATT table right after the
	// connection comes up; give it a moment before discovering services.
	select {
	case <-time.After(600 * time.Millisecond):
	case <-connCtx.Done():
		_ = client.CancelConnection()
		return nil, connCtx.Err()
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("transport/goble: discover profile: %w", err)
	}

	var txChar, rxChar *ble.Characteristic
	for _, svc := range profile.Services {
		for _, ch := range svc.Characteristics {
			uuid := protocol.NormalizeUUID(ch.UUID.String())
			switch uuid {
			case protocol.TXUUID:
				txChar = ch
			case protocol.RXUUID:
				rxChar = ch
			}
		}
	}
	if txChar == nil || rxChar == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("transport/goble: iFit service not found on %s", address)
	}

	link := &equipmentLink{
		address: address,
		client:  client,
		tx:      txChar,
		rx:      rxChar,
		logger:  c.logger,
	}
	link.monitorDisconnect(ctx)
	return link, nil
}

// equipmentLink is an established connection scoped to the TX/RX
// characteristics the protocol needs.
type equipmentLink struct {
	address     string
	client      ble.Client
	tx          *ble.Characteristic
	rx          *ble.Characteristic
	logger      *logrus.Logger
	writeMutex  sync.Mutex
	connMutex   sync.RWMutex
	connected   bool
	subscribed  bool
}

func (l *equipmentLink) monitorDisconnect(ctx context.Context) {
	l.connMutex.Lock()
	l.connected = true
	l.connMutex.Unlock()

	if disconnecting, ok := l.client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-equipment-monitor", func(_ context.Context) {
			select {
			case <-disconnecting.Disconnected():
				l.connMutex.Lock()
				l.connected = false
				l.connMutex.Unlock()
			case <-ctx.Done():
			}
		})
	}
}

func (l *equipmentLink) WriteTX(ctx context.Context, data []byte, withResponse bool) error {
	l.connMutex.RLock()
	if !l.connected {
		l.connMutex.RUnlock()
		return transport.ErrNotConnected
	}
	client := l.client
	tx := l.tx
	l.connMutex.RUnlock()

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	for len(data) > 0 {
		n := len(data)
		if n > defaultWriteChunkSize {
			n = defaultWriteChunkSize
		}
		if err := client.WriteCharacteristic(tx, data[:n], !withResponse); err != nil {
			return transport.NormalizeError(err)
		}
		data = data[n:]
	}
	return nil
}

func (l *equipmentLink) SubscribeRX(callback func([]byte)) error {
	l.connMutex.Lock()
	defer l.connMutex.Unlock()
	if !l.connected {
		return transport.ErrNotConnected
	}
	if l.subscribed {
		if err := l.client.Unsubscribe(l.rx, false); err != nil {
			l.logger.WithError(err).Debug("unsubscribe before resubscribe failed")
		}
	}
	if err := l.client.Subscribe(l.rx, false, func(data []byte) {
		callback(data)
	}); err != nil {
		return fmt.Errorf("transport/goble: subscribe RX: %w", err)
	}
	l.subscribed = true
	return nil
}

func (l *equipmentLink) Disconnect() error {
	l.connMutex.Lock()
	if !l.connected {
		l.connMutex.Unlock()
		return nil
	}
	client := l.client
	l.connected = false
	l.connMutex.Unlock()

	return client.CancelConnection()
}

func (l *equipmentLink) IsConnected() bool {
	l.connMutex.RLock()
	defer l.connMutex.RUnlock()
	return l.connected
}

func (l *equipmentLink) Address() string {
	return l.address
}
