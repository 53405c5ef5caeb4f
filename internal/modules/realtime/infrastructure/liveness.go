package infrastructure

import (
	"context"
	"log/slog"
	"time"
)

// LivenessMonitor pings every connection once per interval and evicts the
// ones that did not answer the previous ping. A silent connection is gone
// after at most two intervals.
type LivenessMonitor struct {
	registry     *ConnectionRegistry
	interval     time.Duration
	probeTimeout time.Duration
	evict        func(*Connection)
	now          func() time.Time
}

func NewLivenessMonitor(registry *ConnectionRegistry, interval, probeTimeout time.Duration, evict func(*Connection)) *LivenessMonitor {
	return &LivenessMonitor{
		registry:     registry,
		interval:     interval,
		probeTimeout: probeTimeout,
		evict:        evict,
		now:          time.Now,
	}
}

func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep runs one liveness round. Probes are sent from their own goroutines
// so a slow transport never holds up the sweep.
func (m *LivenessMonitor) Sweep() {
	deadline := m.now().Add(m.probeTimeout)
	m.registry.ForEach(func(c *Connection) {
		if !c.alive.Swap(false) {
			slog.Info("websocket connection evicted", slog.String("connectionId", c.id), slog.Time("lastPing", c.LastPing()))
			m.evict(c)
			return
		}
		go func() {
			if err := c.ping(deadline); err != nil {
				slog.Debug("websocket ping failed", slog.String("connectionId", c.id), slog.Any("error", err))
			}
		}()
	})
}
