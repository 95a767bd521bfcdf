package ifitclient

import (
	"context"
	"time"

	"github.com/srg/ifit-ble/internal/groutine"
)

// WatchCallback receives each successful watch poll's values.
type WatchCallback func(values map[string]any)

// StartWatch begins polling ReadCurrentValues every interval in the
// background, caching the result (see CurrentValues) and invoking callback
// if set. Polling doubles as a keepalive against BLE connection timeouts.
// A second call while a watch is already running is a no-op.
func (c *Client) StartWatch(interval time.Duration, callback WatchCallback) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	if c.watchCancel != nil {
		c.logger.Warn("watch already running")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.watchCancel = cancel
	c.watchDone = done

	groutine.Go(ctx, "ifit-watch", func(ctx context.Context) {
		defer close(done)
		c.logger.WithField("interval", interval).Info("watch started")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if !c.link.IsConnected() {
				c.logger.Warn("watch stopped: client disconnected")
				return
			}

			values, err := c.ReadCurrentValues(ctx)
			if err != nil {
				c.logger.WithError(err).Error("watch poll failed")
			} else {
				c.setCurrentValues(values)
				if callback != nil {
					callback(values)
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	})
}

// StopWatch cancels the background watch loop and waits for it to exit.
func (c *Client) StopWatch() {
	c.watchMu.Lock()
	cancel := c.watchCancel
	done := c.watchDone
	c.watchCancel = nil
	c.watchDone = nil
	c.watchMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("watch stopped")
}
