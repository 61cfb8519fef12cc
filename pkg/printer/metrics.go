// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// Metrics are the engine's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	frames      *prometheus.CounterVec
	commands    *prometheus.CounterVec
	reconnects  prometheus.Counter
	linkState   prometheus.Gauge
	subscribers prometheus.Gauge
	deliveries  prometheus.Counter
	dropped     prometheus.Counter
}

// NewMetrics registers the engine collectors with reg. A nil registerer
// disables metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinstat",
			Name:      "frames_total",
			Help:      "Inbound device frames by decoded kind",
		}, []string{"kind"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinstat",
			Name:      "commands_total",
			Help:      "Command outcomes by command",
		}, []string{"command", "outcome"}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resinstat",
			Name:      "reconnect_attempts_total",
			Help:      "Device link reconnect attempts",
		}),
		linkState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resinstat",
			Name:      "link_state",
			Help:      "Device link state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resinstat",
			Name:      "subscribers",
			Help:      "Active state subscribers",
		}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resinstat",
			Name:      "deliveries_total",
			Help:      "Snapshots handed to subscribers",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resinstat",
			Name:      "deliveries_replaced_total",
			Help:      "Undelivered snapshots replaced by a newer one",
		}),
	}
}

func (m *Metrics) frame(kind sdcp.Kind) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) command(cmd int, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(sdcp.CommandName(cmd), outcome).Inc()
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) link(s LinkState) {
	if m == nil {
		return
	}
	m.linkState.Set(float64(s))
}

func (m *Metrics) subscriberCount(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) delivered(replaced bool) {
	if m == nil {
		return
	}
	m.deliveries.Inc()
	if replaced {
		m.dropped.Inc()
	}
}
