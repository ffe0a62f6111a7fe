package httpapi

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/caselawd/internal/httpapi"

// Metrics holds HTTP API instrumentation.
type Metrics struct {
	meter         metric.Meter
	logger        *zap.Logger
	requestsTotal metric.Int64Counter
	requestDur    metric.Float64Histogram
	errorsTotal   metric.Int64Counter
}

// NewMetrics creates API metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"caselawd.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, route, and status code."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = m.meter.Float64Histogram(
		"caselawd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, route, and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errorsTotal, err = m.meter.Int64Counter(
		"caselawd.http.errors_total",
		metric.WithDescription("Boundary errors labeled by code (SOURCE_UNAVAILABLE, RATE_LIMITED, POLICY_BLOCKED, VALIDATION_ERROR) and reason."),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordRequest records one completed request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	if m.requestsTotal != nil {
		m.requestsTotal.Add(ctx, 1, attrs)
	}
	if m.requestDur != nil {
		m.requestDur.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordError records one boundary error by code and reason.
func (m *Metrics) RecordError(ctx context.Context, code, reason string) {
	if m.errorsTotal != nil {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", code),
			attribute.String("reason", reason),
		))
	}
}
