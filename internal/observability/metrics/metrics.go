package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PortalMetrics exposes counters/histograms for the portal and its backend calls.
type PortalMetrics struct {
	backendTotal   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	staleTotal     *prometheus.CounterVec
	actionsTotal   *prometheus.CounterVec
	boards         prometheus.Gauge
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		backendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total requests to the clinic backend",
		}, []string{"operation", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "physio",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Latency of clinic backend requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		staleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "portal",
			Name:      "stale_responses_total",
			Help:      "List responses discarded because a newer fetch was issued",
		}, []string{"list"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physio",
			Subsystem: "portal",
			Name:      "actions_total",
			Help:      "User actions by outcome",
		}, []string{"action", "outcome"}),
		boards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "physio",
			Subsystem: "portal",
			Name:      "view_states",
			Help:      "Sessions with in-memory view state",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backendTotal, m.backendLatency, m.staleTotal, m.actionsTotal, m.boards)
	return m
}

// ObserveBackendRequest records one backend call. Status 0 means the
// request never got a response.
func (m *PortalMetrics) ObserveBackendRequest(operation string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.backendTotal.WithLabelValues(operation, label).Inc()
	m.backendLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *PortalMetrics) ObserveStaleResponse(list string) {
	if m == nil {
		return
	}
	m.staleTotal.WithLabelValues(list).Inc()
}

// ObserveAction counts a user action as "ok", "invalid" or "failed".
func (m *PortalMetrics) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *PortalMetrics) SetViewStates(n int) {
	if m == nil {
		return
	}
	m.boards.Set(float64(n))
}
