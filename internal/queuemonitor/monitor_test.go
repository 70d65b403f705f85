package queuemonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackpressureEngagesAboveHighDepth(t *testing.T) {
	m := New(Config{HighDepth: 2, HighPressure: 100})

	m.UpdateDepth(1)
	assert.False(t, m.Health().HasBackpressure)

	m.UpdateDepth(3)
	assert.True(t, m.Health().HasBackpressure)
}

func TestBackpressureResolvesWhenDepthDrops(t *testing.T) {
	m := New(Config{HighDepth: 2, HighPressure: 100})

	m.UpdateDepth(3)
	require := assert.New(t)
	require.True(m.Health().HasBackpressure)

	m.UpdateDepth(1)
	require.False(m.Health().HasBackpressure)
}

func TestIsHealthyRequiresNoBackpressureAndActiveWorkers(t *testing.T) {
	m := New(Config{})
	assert.False(t, m.Health().IsHealthy()) // no active workers yet

	m.UpdateWorkers(2)
	assert.True(t, m.Health().IsHealthy())

	m.UpdateDepth(DefaultHighDepth + 1)
	assert.False(t, m.Health().IsHealthy())
}

func TestRecordIngressEgressProducesRates(t *testing.T) {
	m := New(Config{WindowSize: time.Hour})

	for i := 0; i < 5; i++ {
		m.RecordIngress()
	}
	m.RecordEgress()

	h := m.Health()
	assert.Positive(t, h.IngressRate)
	assert.Positive(t, h.EgressRate)
	assert.Greater(t, h.IngressRate, h.EgressRate)
}

func TestEstimateVolatileDepthClampsAtZero(t *testing.T) {
	m := New(Config{})
	m.UpdateDepth(0)
	// No ingress recorded, so ingress/egress rates are both zero; estimate
	// should never go negative.
	estimate := m.EstimateVolatileDepth(10 * time.Second)
	assert.GreaterOrEqual(t, estimate, 0)
}
