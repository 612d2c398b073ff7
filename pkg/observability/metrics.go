package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDeniedTotal *prometheus.CounterVec
	LoginsTotal      *prometheus.CounterVec

	// Permission sync metrics
	PermissionSyncsTotal    *prometheus.CounterVec
	TokenInvalidationsTotal prometheus.Counter

	// Billing metrics
	PlanChangesTotal     *prometheus.CounterVec
	SubscriptionsExpired prometheus.Counter
	WebhookEventsTotal   *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen prometheus.Gauge
	DBConnectionsIdle prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contractguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractguard_authz_denied_total",
				Help: "Requests rejected by the permission gate",
			},
			[]string{"permission"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractguard_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"status"},
		),
		PermissionSyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractguard_permission_syncs_total",
				Help: "System role permission updates by invalidation outcome",
			},
			[]string{"status"},
		),
		TokenInvalidationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contractguard_token_invalidations_total",
				Help: "Users whose token version was bumped",
			},
		),
		PlanChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractguard_plan_changes_total",
				Help: "Subscription plan changes by target plan",
			},
			[]string{"plan"},
		),
		SubscriptionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contractguard_subscriptions_expired_total",
				Help: "Subscriptions marked expired by the scheduler",
			},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractguard_billing_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"type", "status"},
		),
		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contractguard_db_connections_open",
				Help: "Open database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "contractguard_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDeniedTotal,
		m.LoginsTotal,
		m.PermissionSyncsTotal,
		m.TokenInvalidationsTotal,
		m.PlanChangesTotal,
		m.SubscriptionsExpired,
		m.WebhookEventsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsIdle,
	)

	return m
}

// NewNopMetrics returns metrics registered on a throwaway registry, for tests
// and callers that do not export metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests. Routes are labelled by their
// mux path template so that ids do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
