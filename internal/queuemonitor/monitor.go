// Package queuemonitor tracks ingress/egress rates and derives QueueHealth,
// including edge-triggered backpressure signaling.
package queuemonitor

import (
	"sync"
	"time"

	"github.com/arach/transcribe-dispatch/internal/events"
	"github.com/arach/transcribe-dispatch/internal/logging"
	"github.com/arach/transcribe-dispatch/internal/protocol"
)

var logger = logging.ForService("queuemonitor")

const (
	// DefaultHighDepth is the depth above which backpressure engages
	// regardless of rate pressure.
	DefaultHighDepth = 1000
	// DefaultHighPressure is the ingress/egress ratio above which
	// backpressure engages.
	DefaultHighPressure = 0.9
)

type windowCounter struct {
	count       uint64
	windowStart time.Time
}

// Config configures backpressure thresholds and the rate-averaging window.
type Config struct {
	WindowSize   time.Duration
	HighDepth    int
	HighPressure float64
}

// QueueMonitor maintains sliding ingress/egress counters and the derived
// QueueHealth snapshot. All state is guarded by a single RW lock; writes are
// brief, per the concurrency model.
type QueueMonitor struct {
	mu     sync.RWMutex
	health protocol.QueueHealth
	cfg    Config

	ingress windowCounter
	egress  windowCounter

	clock func() time.Time
}

// New constructs a QueueMonitor. Zero-value Config fields fall back to
// package defaults.
func New(cfg Config) *QueueMonitor {
	if cfg.HighDepth <= 0 {
		cfg.HighDepth = DefaultHighDepth
	}
	if cfg.HighPressure <= 0 {
		cfg.HighPressure = DefaultHighPressure
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10 * time.Second
	}

	now := time.Now()
	return &QueueMonitor{
		cfg:     cfg,
		ingress: windowCounter{windowStart: now},
		egress:  windowCounter{windowStart: now},
		clock:   time.Now,
		health: protocol.QueueHealth{
			LastUpdated: now,
		},
	}
}

// RecordIngress increments the ingress counter and refreshes rates.
func (m *QueueMonitor) RecordIngress() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingress.count++
	m.refreshRatesLocked()
}

// RecordEgress increments the egress counter and refreshes rates.
func (m *QueueMonitor) RecordEgress() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.egress.count++
	m.refreshRatesLocked()
}

// UpdateWorkers sets the active worker count.
func (m *QueueMonitor) UpdateWorkers(active int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health.ActiveWorkers = active
	m.health.LastUpdated = m.clock()
}

// UpdateDepth sets the depth estimate and recomputes backpressure.
// Transitions into or out of backpressure are logged once, edge-triggered.
func (m *QueueMonitor) UpdateDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.health.DepthEstimate = depth
	wasBackpressure := m.health.HasBackpressure
	m.health.HasBackpressure = depth > m.cfg.HighDepth || m.pressureLocked() > m.cfg.HighPressure
	m.health.LastUpdated = m.clock()

	if m.health.HasBackpressure && !wasBackpressure {
		logger.Warn("queue entering backpressure", "depth", depth, "pressure", m.pressureLocked())
		events.GetEventBus().TryPublish(events.New(events.KindQueueHealth, "queuemonitor", m.health, "backpressure engaged"))
	} else if !m.health.HasBackpressure && wasBackpressure {
		logger.Info("queue backpressure resolved")
		events.GetEventBus().TryPublish(events.New(events.KindQueueHealth, "queuemonitor", m.health, "backpressure resolved"))
	}
}

// Health returns a snapshot of the current QueueHealth.
func (m *QueueMonitor) Health() protocol.QueueHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// pressureLocked returns ingress/egress ratio, or 1.0 if ingress is flowing
// into a stalled consumer, or 0.0 if the queue is idle. Caller holds the lock.
func (m *QueueMonitor) pressureLocked() float64 {
	if m.health.EgressRate == 0 {
		if m.health.IngressRate > 0 {
			return 1.0
		}
		return 0.0
	}
	return m.health.IngressRate / m.health.EgressRate
}

// refreshRatesLocked recomputes ingress/egress rates and rolls the sliding
// window when it has elapsed. Caller holds the lock.
func (m *QueueMonitor) refreshRatesLocked() {
	now := m.clock()

	m.health.IngressRate = rate(m.ingress, now)
	m.health.EgressRate = rate(m.egress, now)
	m.health.LastUpdated = now

	if now.Sub(m.ingress.windowStart) > m.cfg.WindowSize {
		m.ingress = windowCounter{windowStart: now}
	}
	if now.Sub(m.egress.windowStart) > m.cfg.WindowSize {
		m.egress = windowCounter{windowStart: now}
	}
}

func rate(c windowCounter, now time.Time) float64 {
	elapsed := now.Sub(c.windowStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.count) / elapsed
}

// EstimateVolatileDepth adds (ingress_rate - egress_rate) * elapsed to the
// current depth estimate, for backends that cannot observe depth directly
// (the wire backend), clamped at zero.
func (m *QueueMonitor) EstimateVolatileDepth(elapsed time.Duration) int {
	m.mu.RLock()
	diff := m.health.IngressRate - m.health.EgressRate
	current := m.health.DepthEstimate
	m.mu.RUnlock()

	estimate := current + int(diff*elapsed.Seconds())
	if estimate < 0 {
		estimate = 0
	}
	return estimate
}
