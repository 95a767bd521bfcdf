package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/protocol"
	"github.com/srg/ifit-ble/internal/transport"
)

// Peripheral emulates an iFit-capable treadmill: it advertises the same
// service/characteristics a real one exposes and lets the interceptor and
// FTMS relay drive them from the other side.
type Peripheral struct {
	logger *logrus.Logger

	mu          sync.RWMutex
	rxChar      *ble.Characteristic
	notifyState chan []byte
	writeCB     func(data []byte)
}

// NewPeripheral returns a Peripheral that logs through logger (or a default
// logrus.Logger if nil).
func NewPeripheral(logger *logrus.Logger) *Peripheral {
	if logger == nil {
		logger = logrus.New()
	}
	return &Peripheral{logger: logger, notifyState: make(chan []byte, 16)}
}

func (p *Peripheral) HandleTXWrite(handler func(data []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeCB = handler
}

func (p *Peripheral) NotifyRX(data []byte) error {
	p.mu.RLock()
	ch := p.notifyState
	p.mu.RUnlock()
	select {
	case ch <- data:
		return nil
	default:
		return fmt.Errorf("transport/goble: RX notify channel full")
	}
}

// Advertise registers the iFit service and advertises opts.LocalName with
// the service UUID until ctx is canceled. opts.ManufacturerData is not
// included in the advertisement.
func (p *Peripheral) Advertise(ctx context.Context, opts transport.AdvertiseOptions) error {
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("transport/goble: create peripheral device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	service := ble.NewService(ble.MustParse(protocol.ServiceUUID))

	txChar := ble.NewCharacteristic(ble.MustParse(protocol.TXUUID))
	// req.Data() carries the app's write bytes, which feed the
	// interceptor's frame reassembler or the client's write path.
	txChar.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		p.mu.RLock()
		cb := p.writeCB
		p.mu.RUnlock()
		if cb != nil {
			cb(req.Data())
		}
	}))

	rxChar := ble.NewCharacteristic(ble.MustParse(protocol.RXUUID))
	rxChar.HandleNotify(ble.NotifyHandlerFunc(func(ctx ble.Context, n ble.Notifier) {
		for {
			select {
			case data := <-p.notifyState:
				if _, err := n.Write(data); err != nil {
					return
				}
			case <-n.Context().Done():
				return
			}
		}
	}))

	service.AddCharacteristic(txChar)
	service.AddCharacteristic(rxChar)

	p.mu.Lock()
	p.rxChar = rxChar
	p.mu.Unlock()

	if err := ble.AddService(service); err != nil {
		return fmt.Errorf("transport/goble: add iFit service: %w", err)
	}

	p.logger.WithField("name", opts.LocalName).Info("advertising as equipment")
	return ble.AdvertiseNameAndServices(ctx, opts.LocalName, service.UUID)
}

func (p *Peripheral) Stop() error {
	dev, err := DeviceFactory()
	if err != nil {
		return nil
	}
	if stopper, ok := dev.(interface{ Stop() error }); ok {
		return stopper.Stop()
	}
	return nil
}
