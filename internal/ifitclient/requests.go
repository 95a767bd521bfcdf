package ifitclient

import (
	"context"
	"fmt"
	"time"

	"github.com/srg/ifit-ble/internal/protocol"
)

// writeThrottle is the pause between successive BLE chunk writes, matching
// the reference client's throttle to avoid overwhelming the device.
const writeThrottle = 200 * time.Millisecond

// sendRequest writes a framed request as a sequence of BLE chunks and
// blocks until its response has been fully reassembled from notifications,
// or responseTimeout elapses.
func (c *Client) sendRequest(ctx context.Context, request []byte) ([]byte, error) {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	pending := &pendingResponse{
		upcomingMessages: -1,
		result:           make(chan responseResult, 1),
	}
	c.stateMu.Lock()
	c.pending = pending
	c.stateMu.Unlock()
	defer func() {
		c.stateMu.Lock()
		if c.pending == pending {
			c.pending = nil
		}
		c.stateMu.Unlock()
	}()

	for _, message := range protocol.BuildWriteMessages(request) {
		if err := c.link.WriteTX(ctx, message, false); err != nil {
			return nil, fmt.Errorf("ifitclient: write failed: %w", err)
		}
		select {
		case <-time.After(writeThrottle):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	timeout := time.NewTimer(c.responseTimeout)
	defer timeout.Stop()

	select {
	case res := <-pending.result:
		return res.data, res.err
	case <-timeout.C:
		return nil, fmt.Errorf("%w after %s", ErrTimeout, c.responseTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleNotify reassembles a response from the equipment's RX notifications
// into the pending request's buffer, delivering the result once the EOF
// chunk arrives and its checksum validates.
func (c *Client) handleNotify(data []byte) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	pending := c.pending
	if pending == nil {
		return
	}

	index, err := protocol.DetermineMessageIndex(data)
	if err != nil {
		c.deliver(pending, responseResult{err: err})
		return
	}

	if index == protocol.ChunkHeader {
		upcoming, buffer, err := protocol.GetHeaderFromResponse(data)
		if err != nil {
			c.deliver(pending, responseResult{err: err})
			return
		}
		pending.upcomingMessages = upcoming
		pending.buffer = buffer
		return
	}

	if pending.buffer == nil {
		c.deliver(pending, responseResult{err: fmt.Errorf("ifitclient: response buffer not initialized")})
		return
	}

	if err := protocol.FillResponse(pending.buffer, pending.upcomingMessages, data); err != nil {
		c.deliver(pending, responseResult{err: err})
		return
	}

	if index != protocol.ChunkEOF {
		return
	}

	response := pending.buffer
	if err := protocol.ValidateChecksum(response); err != nil {
		c.deliver(pending, responseResult{err: err})
		return
	}
	c.deliver(pending, responseResult{data: response})
}

// deliver sends a result to a pending request exactly once and retires it,
// so a stray late notification can't be mistaken for a second response.
func (c *Client) deliver(pending *pendingResponse, result responseResult) {
	if c.pending == pending {
		c.pending = nil
	}
	select {
	case pending.result <- result:
	default:
	}
}
