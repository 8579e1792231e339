package poller

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the pollers.
type Metrics struct {
	pollsTotal     *prometheus.CounterVec
	pollDuration   *prometheus.HistogramVec
	pollErrors     *prometheus.CounterVec
	inFlight       *prometheus.GaugeVec
	itemsReported  *prometheus.GaugeVec
	itemsRendered  *prometheus.CounterVec
	renderFailures *prometheus.CounterVec
	state          *prometheus.GaugeVec
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics returns the process-wide metrics collector.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			pollsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dq_polls_total",
					Help: "Total number of status polls by outcome",
				},
				[]string{"variant", "outcome"},
			),
			pollDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "dq_poll_duration_seconds",
					Help:    "Status poll duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"variant"},
			),
			pollErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dq_poll_errors_total",
					Help: "Total number of failed status polls by error class",
				},
				[]string{"variant", "class"},
			),
			inFlight: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dq_polls_in_flight",
					Help: "Status requests currently in flight",
				},
				[]string{"variant"},
			),
			itemsReported: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dq_items_reported",
					Help: "Item count reported by the latest successful poll",
				},
				[]string{"variant"},
			),
			itemsRendered: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dq_items_rendered_total",
					Help: "Total number of items rendered into pages",
				},
				[]string{"variant"},
			),
			renderFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "dq_render_failures_total",
					Help: "Total number of items that could not be rendered",
				},
				[]string{"variant"},
			),
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "dq_poller_state",
					Help: "Poller state (0 idle, 1 polling, 2 rendering, 3 done, 4 stopped)",
				},
				[]string{"variant"},
			),
		}
	})
	return metricsInst
}

// RecordPoll records a finished status request.
func (m *Metrics) RecordPoll(variant, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(variant, outcome).Inc()
	m.pollDuration.WithLabelValues(variant).Observe(duration.Seconds())
}

// RecordError records a failed poll.
func (m *Metrics) RecordError(variant, class string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(variant, class).Inc()
}

// AddInFlight adjusts the in-flight gauge.
func (m *Metrics) AddInFlight(variant string, delta float64) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(variant).Add(delta)
}

// SetItemsReported updates the reported item count.
func (m *Metrics) SetItemsReported(variant string, n int) {
	if m == nil {
		return
	}
	m.itemsReported.WithLabelValues(variant).Set(float64(n))
}

// RecordRender records one rendered item.
func (m *Metrics) RecordRender(variant string, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.itemsRendered.WithLabelValues(variant).Inc()
	} else {
		m.renderFailures.WithLabelValues(variant).Inc()
	}
}

// SetState updates the state gauge.
func (m *Metrics) SetState(variant string, s State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(variant).Set(float64(s))
}
