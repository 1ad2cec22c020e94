package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shopauth"

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeMFARequired = "mfa_required"
	OutcomeLocked      = "locked"
	OutcomeDenied      = "denied"
	OutcomeRevoked     = "revoked"
	OutcomeRateLimited = "rate_limited"
)

type Metrics struct {
	logins           *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	tokenRejections  *prometheus.CounterVec
	permissionCache  *prometheus.CounterVec
	auditDropped     prometheus.Counter
	authenticateTime prometheus.Histogram
}

// New registers the collectors on reg. A nil reg gives working but
// unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		tokenRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_rejections_total",
			Help:      "Rejected tokens by reason.",
		}, []string{"reason"}),
		permissionCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_cache_total",
			Help:      "Permission cache lookups by result.",
		}, []string{"result"}),
		auditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_dropped_total",
			Help:      "Audit events dropped due to dispatcher backpressure.",
		}),
		authenticateTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "authenticate_duration_seconds",
			Help:      "Access token verification latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}

func (m *Metrics) Login(method, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TokenRejected(reason string) {
	if m == nil {
		return
	}
	m.tokenRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) PermissionCacheHit() {
	if m == nil {
		return
	}
	m.permissionCache.WithLabelValues("hit").Inc()
}

func (m *Metrics) PermissionCacheMiss() {
	if m == nil {
		return
	}
	m.permissionCache.WithLabelValues("miss").Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

func (m *Metrics) ObserveAuthenticate(start time.Time) {
	if m == nil {
		return
	}
	m.authenticateTime.Observe(time.Since(start).Seconds())
}
