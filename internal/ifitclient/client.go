// Package ifitclient implements the application-level client for a single
// piece of connected iFit equipment: initialization, the request/response
// exchange, characteristic reads/writes, and background watch polling.
package ifitclient

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/ifit-ble/internal/protocol"
	"github.com/srg/ifit-ble/internal/transport"
)

// Options configures a Client.
type Options struct {
	// ActivationCode is an 8-byte hex string. Without it the client runs
	// monitor-only: reads work, but ENABLE is never sent so writes and
	// equipment-initiated commands are rejected.
	ActivationCode string

	// ResponseTimeout bounds how long a request waits for its response to
	// finish assembling from notifications.
	ResponseTimeout time.Duration

	Logger *logrus.Logger
}

// DefaultOptions returns client defaults: monitor-only, a ten second
// response timeout.
func DefaultOptions() Options {
	return Options{ResponseTimeout: 10 * time.Second}
}

// pendingResponse tracks the in-flight response being assembled from
// notification chunks, and the channel its eventual outcome is delivered on.
type pendingResponse struct {
	upcomingMessages int
	buffer           []byte
	result           chan responseResult
}

type responseResult struct {
	data []byte
	err  error
}

// Client is a BLE client for one piece of iFit equipment, implementing the
// application protocol in internal/protocol.
type Client struct {
	link            transport.EquipmentLink
	activationCode  string
	responseTimeout time.Duration
	logger          *logrus.Logger

	// requestMu serializes the request/response exchange: only one request
	// may be in flight at a time, mirroring the single asyncio lock the
	// reference client holds for the same reason.
	requestMu sync.Mutex

	stateMu sync.Mutex
	pending *pendingResponse

	infoMu        sync.RWMutex
	equipmentInfo *protocol.EquipmentInformation
	currentValues map[string]any

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

// New returns a Client bound to an already-connected equipment link.
func New(link transport.EquipmentLink, opts Options) *Client {
	if opts.ResponseTimeout == 0 {
		opts.ResponseTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Client{
		link:            link,
		activationCode:  opts.ActivationCode,
		responseTimeout: opts.ResponseTimeout,
		logger:          opts.Logger,
	}
}

// EquipmentInformation returns the cached equipment metadata populated
// during Connect, or nil if Connect hasn't run yet.
func (c *Client) EquipmentInformation() *protocol.EquipmentInformation {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.equipmentInfo
}

// CurrentValues returns the most recent values cached by the watch loop, or
// nil if watching hasn't produced a reading yet.
func (c *Client) CurrentValues() map[string]any {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.currentValues
}

func (c *Client) setCurrentValues(values map[string]any) {
	c.infoMu.Lock()
	c.currentValues = values
	c.infoMu.Unlock()
}

// Connect subscribes to equipment notifications and runs the initialization
// sequence: EQUIPMENT_INFORMATION first, then the core and metadata command
// configs, then a batch read of min/max values, then ENABLE if an
// activation code was provided.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.link.SubscribeRX(c.handleNotify); err != nil {
		return err
	}

	// The device may still be reconfiguring its GATT table immediately
	// after connecting; give it a moment before talking to it.
	select {
	case <-time.After(600 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.initializeEquipment(ctx)
}

// Disconnect stops watch polling and tears down the link.
func (c *Client) Disconnect() error {
	c.StopWatch()
	return c.link.Disconnect()
}

func (c *Client) requireEquipmentInfo() (*protocol.EquipmentInformation, error) {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	if c.equipmentInfo == nil {
		return nil, ErrNotInitialized
	}
	return c.equipmentInfo, nil
}
