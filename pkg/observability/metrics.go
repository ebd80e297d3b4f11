package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Update intake metrics
	UpdatesTotal        *prometheus.CounterVec
	UpdateDuration      *prometheus.HistogramVec
	UpdatesDropped      *prometheus.CounterVec

	// Command metrics
	CommandsTotal       *prometheus.CounterVec
	CallbacksTotal      *prometheus.CounterVec

	// Permission metrics
	PermissionChecks    *prometheus.CounterVec
	PermissionCacheHits prometheus.Counter

	// Store metrics
	StoreWritesTotal    *prometheus.CounterVec
	StoreWriteDuration  prometheus.Histogram

	// Approval metrics
	ApprovalsTotal      *prometheus.CounterVec

	// Purge metrics
	PurgeProbesTotal    prometheus.Counter
	PurgeDeletedTotal   prometheus.Counter
	PurgeFailedTotal    prometheus.Counter

	// Outbound API metrics
	APICallsTotal       *prometheus.CounterVec
	APICallDuration     *prometheus.HistogramVec

	// Business gauges
	PrincipalsTotal     prometheus.Gauge
	PendingRequests     prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_updates_total",
				Help: "Total number of inbound updates processed",
			},
			[]string{"kind", "outcome"},
		),
		UpdateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chitragupt_update_duration_seconds",
				Help:    "Update handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		UpdatesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_updates_dropped_total",
				Help: "Updates dropped before dispatch",
			},
			[]string{"reason"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_commands_total",
				Help: "Total commands dispatched",
			},
			[]string{"command", "outcome"},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_callbacks_total",
				Help: "Total callback-query button presses handled",
			},
			[]string{"kind", "outcome"},
		),
		PermissionChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_permission_checks_total",
				Help: "Permission checks evaluated",
			},
			[]string{"action", "granted"},
		),
		PermissionCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chitragupt_permission_cache_hits_total",
				Help: "Permission checks answered from the LRU cache",
			},
		),
		StoreWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_store_writes_total",
				Help: "Persisted document writes",
			},
			[]string{"document", "status"},
		),
		StoreWriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chitragupt_store_write_duration_seconds",
				Help:    "Atomic document write duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ApprovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_approvals_total",
				Help: "Approval workflow decisions",
			},
			[]string{"decision"},
		),
		PurgeProbesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chitragupt_purge_probes_total",
				Help: "Boundary-search probes issued by the purge planner",
			},
		),
		PurgeDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chitragupt_purge_deleted_total",
				Help: "Messages deleted by the purge planner",
			},
		),
		PurgeFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chitragupt_purge_failed_total",
				Help: "Messages the purge planner failed to delete",
			},
		),
		APICallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chitragupt_api_calls_total",
				Help: "Outbound Bot API calls",
			},
			[]string{"method", "status"},
		),
		APICallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chitragupt_api_call_duration_seconds",
				Help:    "Outbound Bot API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		PrincipalsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chitragupt_principals_total",
				Help: "Principals currently in the user registry",
			},
		),
		PendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chitragupt_pending_requests",
				Help: "Approval requests currently pending",
			},
		),
	}

	registry.MustRegister(
		m.UpdatesTotal,
		m.UpdateDuration,
		m.UpdatesDropped,
		m.CommandsTotal,
		m.CallbacksTotal,
		m.PermissionChecks,
		m.PermissionCacheHits,
		m.StoreWritesTotal,
		m.StoreWriteDuration,
		m.ApprovalsTotal,
		m.PurgeProbesTotal,
		m.PurgeDeletedTotal,
		m.PurgeFailedTotal,
		m.APICallsTotal,
		m.APICallDuration,
		m.PrincipalsTotal,
		m.PendingRequests,
	)

	return m
}

// ObserveAPICall records one outbound Bot API call
func (m *Metrics) ObserveAPICall(method string, statusCode int, duration time.Duration) {
	m.APICallsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	m.APICallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObservePermissionCheck records one permission evaluation
func (m *Metrics) ObservePermissionCheck(action string, granted bool) {
	m.PermissionChecks.WithLabelValues(action, strconv.FormatBool(granted)).Inc()
}

// ObserveStoreWrite records one persisted document write
func (m *Metrics) ObserveStoreWrite(document string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreWritesTotal.WithLabelValues(document, status).Inc()
	m.StoreWriteDuration.Observe(duration.Seconds())
}
