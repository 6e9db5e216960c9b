// Package metrics holds the Prometheus counters an operator can wire
// into the orchestrator's output. The core layer0 package never
// imports this package or registers anything itself — only the demo
// binary (cmd/mirage-sim) does, keeping a statistics endpoint an
// external collaborator rather than part of Layer 0 proper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ocx/mirage-layer0/internal/layer0"
)

// Metrics holds all Prometheus metrics for Layer 0.
type Metrics struct {
	LaneTotal        *prometheus.CounterVec
	ProtoTotal       *prometheus.CounterVec
	EscalationsTotal prometheus.Counter
	TagsTotal        *prometheus.CounterVec
	ProcessDuration  prometheus.Histogram
	BreakerState     *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		LaneTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirage_layer0_lane_total",
				Help: "Total payloads routed to each response lane",
			},
			[]string{"lane"},
		),
		ProtoTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirage_layer0_proto_total",
				Help: "Total payloads by protocol guess",
			},
			[]string{"proto"},
		),
		EscalationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirage_layer0_escalations_total",
				Help: "Total payloads escalated to higher layers",
			},
		),
		TagsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirage_layer0_tags_total",
				Help: "Total tag occurrences, one increment per set bit",
			},
			[]string{"tag"},
		),
		ProcessDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mirage_layer0_process_duration_seconds",
				Help:    "Duration of a single Process call",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mirage_layer0_breaker_state",
				Help: "1 if the breaker is currently in this state, else 0",
			},
			[]string{"state"},
		),
	}
}

var tagNames = []struct {
	bit  layer0.TagSet
	name string
}{
	{layer0.TagProbableNoise, "probable_noise"},
	{layer0.TagRepeatedProbe, "repeated_probe"},
	{layer0.TagExploitHint, "exploit_hint"},
	{layer0.TagBursty, "bursty"},
	{layer0.TagOddCadence, "odd_cadence"},
	{layer0.TagProtoUnknown, "proto_unknown"},
}

// Observe records one Layer0Output and the wall time its Process call
// took.
func (m *Metrics) Observe(out layer0.Layer0Output, duration float64) {
	m.LaneTotal.WithLabelValues(out.ResponseProfile.String()).Inc()
	m.ProtoTotal.WithLabelValues(out.ProtoGuess.String()).Inc()
	if out.Escalate {
		m.EscalationsTotal.Inc()
	}
	for _, t := range tagNames {
		if out.Tags.Has(t.bit) {
			m.TagsTotal.WithLabelValues(t.name).Inc()
		}
	}
	m.ProcessDuration.Observe(duration)
}

// SetBreakerState records the breaker's current state as a one-hot
// gauge set: the active state reads 1, the other two read 0.
func (m *Metrics) SetBreakerState(current string) {
	for _, s := range []string{"Closed", "Open", "HalfOpen"} {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.BreakerState.WithLabelValues(s).Set(v)
	}
}
