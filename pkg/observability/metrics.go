package observability

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthDecisionsTotal *prometheus.CounterVec
	RoleLookupsTotal   *prometheus.CounterVec
	RoleLookupDuration prometheus.Histogram

	// Identity provider metrics
	IdentityCallsTotal   *prometheus.CounterVec
	IdentityCallDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	StoriesTotal          prometheus.Gauge
	RoleAssignmentsTotal  prometheus.Gauge
	OrphanedAccountsSwept prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubbleup_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bubbleup_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubbleup_auth_decisions_total",
				Help: "Authorization decisions by outcome",
			},
			[]string{"outcome"}, // allow, unauthenticated, forbidden, bad_request, error
		),
		RoleLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubbleup_role_lookups_total",
				Help: "Role store lookups by result",
			},
			[]string{"result"}, // exact, wildcard, none, error
		),
		RoleLookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bubbleup_role_lookup_duration_seconds",
				Help:    "Role store lookup duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		IdentityCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubbleup_identity_calls_total",
				Help: "Calls to the external identity provider",
			},
			[]string{"operation", "status"},
		),
		IdentityCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bubbleup_identity_call_duration_seconds",
				Help:    "Identity provider call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bubbleup_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bubbleup_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		StoriesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bubbleup_stories_total",
				Help: "Total number of stories",
			},
		),
		RoleAssignmentsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bubbleup_role_assignments_total",
				Help: "Total number of role assignments",
			},
		),
		OrphanedAccountsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bubbleup_orphaned_accounts_swept_total",
				Help: "Accounts deleted by the orphaned-account reconciler",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthDecisionsTotal,
		m.RoleLookupsTotal,
		m.RoleLookupDuration,
		m.IdentityCallsTotal,
		m.IdentityCallDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.StoriesTotal,
		m.RoleAssignmentsTotal,
		m.OrphanedAccountsSwept,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDBStats records connection pool gauges from db.Stats()
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}
