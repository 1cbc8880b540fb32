package observability

import (
	"time"

	"commission-observer/src/models"

	"github.com/prometheus/client_golang/prometheus"
)

// PromMetrics records request, refresh and report metrics. It satisfies
// interfaces.IRequestObserver.
type PromMetrics struct {
	inFlight        prometheus.Gauge
	requests        *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	refreshes       *prometheus.CounterVec
	refreshLatency  prometheus.Histogram
	drops           prometheus.Counter
	sessionState    prometheus.Gauge
	totalCommission prometheus.Gauge
	activeSites     prometheus.Gauge
	lastRefresh     prometheus.Gauge
}

// NewPromMetrics registers every collector on reg, or on the default
// registerer when reg is nil.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PromMetrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commission_requests_in_flight",
			Help: "Requests waiting for their correlated reply.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commission_requests_total",
			Help: "Platform requests by outcome.",
		}, []string{"outcome"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commission_request_duration_seconds",
			Help:    "Time from request registration to its outcome.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commission_refresh_total",
			Help: "Dashboard refreshes by result.",
		}, []string{"result"}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commission_refresh_duration_seconds",
			Help:    "End-to-end duration of a dashboard refresh.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commission_connection_drops_total",
			Help: "Live sessions that lost their connection.",
		}),
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commission_session_state",
			Help: "Current session state (0 idle .. 4 authorized, 5 closed).",
		}),
		totalCommission: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commission_total",
			Help: "Total commission in the latest report.",
		}),
		activeSites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commission_active_sites",
			Help: "Active sites in the latest report.",
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "commission_last_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh.",
		}),
	}

	reg.MustRegister(
		m.inFlight, m.requests, m.requestLatency,
		m.refreshes, m.refreshLatency, m.drops,
		m.sessionState, m.totalCommission, m.activeSites, m.lastRefresh,
	)
	return m
}

// -----------------------------------------------------------------------------
// IRequestObserver
// -----------------------------------------------------------------------------

func (m *PromMetrics) RequestStarted() {
	m.inFlight.Inc()
}

func (m *PromMetrics) RequestFinished(outcome string, elapsed time.Duration) {
	m.inFlight.Dec()
	m.requests.WithLabelValues(outcome).Inc()
	m.requestLatency.Observe(elapsed.Seconds())
}

func (m *PromMetrics) RefreshFinished(err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.lastRefresh.SetToCurrentTime()
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshLatency.Observe(elapsed.Seconds())
}

func (m *PromMetrics) ConnectionDropped() {
	m.drops.Inc()
}

// -----------------------------------------------------------------------------

func (m *PromMetrics) SetSessionState(state models.SessionState) {
	m.sessionState.Set(float64(state))
}

func (m *PromMetrics) ObserveReport(report *models.MCommissionReport) {
	if report == nil {
		return
	}
	m.totalCommission.Set(report.TotalCommission)
	m.activeSites.Set(float64(report.ActiveSites))
}
