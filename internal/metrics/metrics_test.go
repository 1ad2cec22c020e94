package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersRegisterAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Login("password", OutcomeSuccess)
	m.Login("password", OutcomeSuccess)
	m.Login("password", OutcomeLocked)
	m.Refresh(OutcomeRevoked)
	m.TokenRejected("expired")
	m.PermissionCacheHit()
	m.PermissionCacheMiss()
	m.AuditDropped()
	m.ObserveAuthenticate(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues("password", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("password", OutcomeLocked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(OutcomeRevoked)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditDropped))

	n, err := testutil.GatherAndCount(reg, "shopauth_authenticate_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Login("password", OutcomeSuccess)
	m.Refresh(OutcomeSuccess)
	m.TokenRejected("x")
	m.PermissionCacheHit()
	m.PermissionCacheMiss()
	m.AuditDropped()
	m.ObserveAuthenticate(time.Now())
}

func TestNilRegistererStillCounts(t *testing.T) {
	m := New(nil)
	m.Refresh(OutcomeSuccess)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshes.WithLabelValues(OutcomeSuccess)))
}
