package otel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/shopauth"
)

var _ Source = (*shopauth.Engine)(nil)

type fakeSource struct {
	dropped atomic.Uint64
	down    atomic.Bool
}

func (f *fakeSource) AuditDropped() uint64 { return f.dropped.Load() }

func (f *fakeSource) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("redis down")
	}
	return nil
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func TestExporterObservesSource(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{}
	src.dropped.Store(3)

	exp, err := NewExporter(provider.Meter("shopauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	got := collect(t, reader)
	require.Equal(t, int64(3), got["shopauth_audit_dropped_total"])
	require.Equal(t, int64(1), got["shopauth_redis_up"])

	src.down.Store(true)
	src.dropped.Store(5)
	got = collect(t, reader)
	require.Equal(t, int64(5), got["shopauth_audit_dropped_total"])
	require.Equal(t, int64(0), got["shopauth_redis_up"])
}

func TestExporterRejectsNil(t *testing.T) {
	_, provider := newReader()
	_, err := NewExporter(nil, &fakeSource{})
	require.ErrorIs(t, err, ErrNilMeter)
	_, err = NewExporter(provider.Meter("shopauth-test"), nil)
	require.ErrorIs(t, err, ErrNilSource)
}

func TestCloseNil(t *testing.T) {
	var e *Exporter
	require.NoError(t, e.Close())
}
