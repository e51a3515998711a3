// Package metrics holds the Prometheus collectors of the realtime layer.
// All helper methods are safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pulsechat"

type Metrics struct {
	ConnectionsActive prometheus.Gauge
	FramesReceived    *prometheus.CounterVec
	FanoutDeliveries  *prometheus.CounterVec
	RetentionRuns     *prometheus.CounterVec
	RetentionDeleted  *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Participants with a live bound connection.",
		}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound websocket frames by type.",
		}, []string{"type"}),
		FanoutDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Frames pushed to live participants by kind.",
		}, []string{"kind"}),
		RetentionRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_runs_total",
			Help:      "Retention passes by pass and outcome.",
		}, []string{"pass", "outcome"}),
		RetentionDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Records evicted by retention.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Set(float64(n))
}

func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	m.FramesReceived.WithLabelValues(frameType).Inc()
}

func (m *Metrics) Delivered(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FanoutDeliveries.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) RetentionRun(pass, outcome string) {
	if m == nil {
		return
	}
	m.RetentionRuns.WithLabelValues(pass, outcome).Inc()
}

func (m *Metrics) RetentionEvicted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionDeleted.WithLabelValues(kind).Add(float64(n))
}
