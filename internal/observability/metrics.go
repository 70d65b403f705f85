// Package observability exposes Prometheus metrics for the dispatch layer:
// queue depth/rates and worker lifecycle counters.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics bundles the gauges and counters the queue monitor,
// control-plane monitor, and supervisor record against.
type DispatchMetrics struct {
	queueDepth           prometheus.Gauge
	queueIngressRate     prometheus.Gauge
	queueEgressRate      prometheus.Gauge
	queueBackpressure    prometheus.Gauge
	activeWorkers        prometheus.Gauge
	workerRestartsTotal  *prometheus.CounterVec
	workerMessagesTotal  *prometheus.CounterVec
	controlPlaneErrTotal prometheus.Counter
}

// NewDispatchMetrics registers the dispatch layer's metrics against registry.
func NewDispatchMetrics(registry *prometheus.Registry) (*DispatchMetrics, error) {
	m := &DispatchMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "queue",
			Name:      "depth_estimate",
			Help:      "Current estimated queue depth.",
		}),
		queueIngressRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "queue",
			Name:      "ingress_rate",
			Help:      "Messages entering the queue per second.",
		}),
		queueEgressRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "queue",
			Name:      "egress_rate",
			Help:      "Messages leaving the queue per second.",
		}),
		queueBackpressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "queue",
			Name:      "backpressure",
			Help:      "1 when the queue is under backpressure, 0 otherwise.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "worker",
			Name:      "active",
			Help:      "Number of worker processes currently running.",
		}),
		workerRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Worker process restarts, labeled by worker slot.",
		}, []string{"worker_id"}),
		workerMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "worker",
			Name:      "messages_total",
			Help:      "Messages processed per worker, labeled by outcome.",
		}, []string{"worker_id", "status"}),
		controlPlaneErrTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transcribe_dispatch",
			Subsystem: "control_plane",
			Name:      "errors_total",
			Help:      "Worker-reported errors received by the control plane.",
		}),
	}

	collectors := []prometheus.Collector{
		m.queueDepth, m.queueIngressRate, m.queueEgressRate, m.queueBackpressure,
		m.activeWorkers, m.workerRestartsTotal, m.workerMessagesTotal, m.controlPlaneErrTotal,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordQueueHealth updates the queue gauges from a snapshot.
func (m *DispatchMetrics) RecordQueueHealth(depth int, ingressRate, egressRate float64, backpressure bool, activeWorkers int) {
	m.queueDepth.Set(float64(depth))
	m.queueIngressRate.Set(ingressRate)
	m.queueEgressRate.Set(egressRate)
	if backpressure {
		m.queueBackpressure.Set(1)
	} else {
		m.queueBackpressure.Set(0)
	}
	m.activeWorkers.Set(float64(activeWorkers))
}

// RecordWorkerRestart increments the restart counter for a worker slot.
func (m *DispatchMetrics) RecordWorkerRestart(workerID string) {
	m.workerRestartsTotal.WithLabelValues(workerID).Inc()
}

// RecordWorkerMessage increments the per-worker message counter for status
// ("completed" or "failed").
func (m *DispatchMetrics) RecordWorkerMessage(workerID, status string) {
	m.workerMessagesTotal.WithLabelValues(workerID, status).Inc()
}

// RecordControlPlaneError increments the control-plane error counter.
func (m *DispatchMetrics) RecordControlPlaneError() {
	m.controlPlaneErrTotal.Inc()
}
