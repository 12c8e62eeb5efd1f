package conn

import (
	"context"
	"time"
)

// Start launches the periodic health-check scheduler and the network event
// loop. Both run until Stop.
func (c *Coordinator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go c.schedulerLoop(ctx)
	go c.networkLoop(ctx)
}

// Stop cancels the scheduler, all outstanding probes and the network loop,
// then awaits bounded termination.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}

	c.probeMu.Lock()
	for id, handle := range c.inflight {
		handle.cancel()
		delete(c.inflight, id)
	}
	c.probeMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownTimeout):
		c.log.Warn("shutdown timed out waiting for background tasks")
	}

	c.stateBus.Close()
	c.serversBus.Close()
}

// schedulerLoop re-checks the current server every tick while the device is
// network-connected, and re-probes any server whose status is older than the
// freshness window.
func (c *Coordinator) schedulerLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.observer.Snapshot().Connected {
				continue
			}
			c.tick(ctx)
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) {
	c.transition.Lock()
	_ = c.checkCurrentLocked(ctx, false)
	c.transition.Unlock()

	_ = c.CheckForBetterServer(ctx)
	c.refreshStale(ctx)
}

// refreshStale launches one probe task per stale server. Overlap with a
// still-running probe for the same server is resolved by cancel-and-replace
// inside probeAndRecord.
func (c *Coordinator) refreshStale(ctx context.Context) {
	all, err := c.repo.All(ctx)
	if err != nil {
		c.log.Warn("failed to load servers for staleness scan", "error", err)
		return
	}

	cutoff := time.Now().Add(-c.cfg.FreshnessWindow)
	for _, s := range all {
		if s.LastStatusCheck.After(cutoff) {
			continue
		}
		server := s
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.probeAndRecord(ctx, server, false)
		}()
	}
}

// networkLoop reacts to connectivity changes. A reconnect triggers an
// immediate re-check of the current server instead of waiting for the next
// scheduled tick; the reaction runs as its own task, never on the observer's
// notification path.
func (c *Coordinator) networkLoop(ctx context.Context) {
	defer c.wg.Done()

	events, cancel := c.observer.Subscribe()
	defer cancel()

	prev := c.observer.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-events:
			if !ok {
				return
			}
			if state.Connected && !prev.Connected {
				c.log.Info("network reconnected, re-checking current server", "type", string(state.Type))
				c.wg.Add(1)
				go func() {
					defer c.wg.Done()
					c.transition.Lock()
					defer c.transition.Unlock()
					_ = c.checkCurrentLocked(ctx, true)
				}()
			}
			if !state.Connected {
				c.log.Info("network lost, health checks paused")
			}
			prev = state
		}
	}
}
