// Package otel publishes engine health to an OpenTelemetry meter.
//
// The Prometheus counters live inside the engine. This package covers what a
// collector polls instead: audit events dropped under backpressure and whether
// Redis answers a ping. The caller owns the MeterProvider.
package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil engine source")
)

const pingTimeout = time.Second

// Source is satisfied by *shopauth.Engine.
type Source interface {
	AuditDropped() uint64
	Ping(ctx context.Context) error
}

type Exporter struct {
	source       Source
	registration metric.Registration
	auditDropped metric.Int64ObservableCounter
	redisUp      metric.Int64ObservableGauge
}

func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}
	e := &Exporter{source: source}

	var err error
	e.auditDropped, err = meter.Int64ObservableCounter(
		"shopauth_audit_dropped_total",
		metric.WithDescription("Audit events dropped on a full dispatcher buffer."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.redisUp, err = meter.Int64ObservableGauge(
		"shopauth_redis_up",
		metric.WithDescription("1 when the revocation store answers a ping."),
	)
	if err != nil {
		return nil, fmt.Errorf("create redis up gauge: %w", err)
	}

	e.registration, err = meter.RegisterCallback(e.observe, e.auditDropped, e.redisUp)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(ctx context.Context, o metric.Observer) error {
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	var up int64
	if e.source.Ping(pingCtx) == nil {
		up = 1
	}
	o.ObserveInt64(e.redisUp, up)
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
