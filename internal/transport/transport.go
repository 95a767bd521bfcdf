// Package transport abstracts the two BLE roles the toolkit needs: a
// central that connects outward to a piece of equipment, and a peripheral
// that advertises and accepts connections from the iFit app in its place.
// Both roles talk exclusively in terms of the iFit TX/RX characteristics;
// nothing here is generic GATT plumbing.
package transport

import (
	"context"
	"time"
)

// Advertisement is a single BLE advertising report observed while scanning.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	RSSI() int
	Addr() string
	Connectable() bool
}

// Central discovers and connects to iFit-capable equipment.
type Central interface {
	// Scan invokes handler for every advertisement observed until ctx is
	// canceled or an unrecoverable scanning error occurs.
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error

	// Connect dials the device at address and resolves its TX/RX
	// characteristics, returning a ready-to-use EquipmentLink.
	Connect(ctx context.Context, address string, opts ConnectOptions) (EquipmentLink, error)
}

// ConnectOptions configures a Central.Connect call.
type ConnectOptions struct {
	ConnectTimeout time.Duration
}

// EquipmentLink is an established connection to one piece of equipment,
// scoped to the TX (write) and RX (notify) characteristics the protocol
// needs.
type EquipmentLink interface {
	// WriteTX sends one BLE chunk to the equipment's TX characteristic.
	// withResponse controls whether the write blocks for a GATT
	// acknowledgement, matching the no-response writes the protocol uses
	// for framed request chunks.
	WriteTX(ctx context.Context, data []byte, withResponse bool) error

	// SubscribeRX registers callback to receive every notification from the
	// equipment's RX characteristic. Only one subscription is supported at
	// a time; a second call replaces the first.
	SubscribeRX(callback func([]byte)) error

	Disconnect() error
	IsConnected() bool
	Address() string
}

// Peripheral emulates an iFit-capable piece of equipment: it advertises,
// accepts a single connection from the real iFit app, and exposes TX/RX
// characteristics the app writes to and subscribes on.
type Peripheral interface {
	// Advertise starts GATT server and advertising with the given local
	// name and manufacturer data, and blocks serving requests until ctx is
	// canceled.
	Advertise(ctx context.Context, opts AdvertiseOptions) error

	// HandleTXWrite registers the callback invoked whenever the connected
	// central (the iFit app) writes to the TX characteristic.
	HandleTXWrite(handler func(data []byte))

	// NotifyRX pushes a value out on the RX characteristic to the
	// connected central, if any.
	NotifyRX(data []byte) error

	Stop() error
}

// AdvertiseOptions configures a Peripheral.Advertise call.
type AdvertiseOptions struct {
	LocalName        string
	ManufacturerData []byte
}
