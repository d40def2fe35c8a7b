// Package metrics exposes Prometheus counters for token issuance and
// verification.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	tokensIssued    *prometheus.CounterVec
	grantFailures   *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	revocations     prometheus.Counter
	provisioned     *prometheus.CounterVec
	housekeeping    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the idsrv collectors plus the Go runtime and process
// collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idsrv",
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued, by grant type.",
		}, []string{"grant_type"}),
		grantFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idsrv",
			Name:      "grant_failures_total",
			Help:      "Rejected token requests, by grant type and OAuth2 error code.",
		}, []string{"grant_type", "error"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idsrv",
			Name:      "token_verifications_total",
			Help:      "Bearer token verifications, by resulting state.",
		}, []string{"result"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "idsrv",
			Name:      "tokens_revoked_total",
			Help:      "Tokens revoked through the revocation endpoint.",
		}),
		provisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idsrv",
			Name:      "provision_results_total",
			Help:      "Seeding outcomes, by kind and result.",
		}, []string{"kind", "result"}),
		housekeeping: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "idsrv",
			Name:      "housekeeping_deleted_total",
			Help:      "Expired rows removed by housekeeping, by table.",
		}, []string{"table"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "idsrv",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensIssued,
		m.grantFailures,
		m.verifications,
		m.revocations,
		m.provisioned,
		m.housekeeping,
		m.requestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// All recorders are safe on a nil *Metrics so callers need no guards.

func (m *Metrics) TokenIssued(grantType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(grantType).Inc()
}

func (m *Metrics) GrantFailed(grantType, code string) {
	if m == nil {
		return
	}
	m.grantFailures.WithLabelValues(grantType, code).Inc()
}

func (m *Metrics) TokenVerified(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenRevoked() {
	if m == nil {
		return
	}
	m.revocations.Inc()
}

func (m *Metrics) Provisioned(kind, result string) {
	if m == nil {
		return
	}
	m.provisioned.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) HousekeepingDeleted(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.housekeeping.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}
