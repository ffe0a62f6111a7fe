package feedcache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/caselawd/internal/feedcache"

// Metrics holds feed cache instrumentation.
type Metrics struct {
	meter           metric.Meter
	logger          *zap.Logger
	hits            metric.Int64Counter
	misses          metric.Int64Counter
	staleServes     metric.Int64Counter
	refreshes       metric.Int64Counter
	refreshFailures metric.Int64Counter
}

// NewMetrics creates cache metrics on the global meter provider.
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

	m.hits, err = m.meter.Int64Counter(
		"caselawd.feedcache.hits_total",
		metric.WithDescription("Feed cache reads served without a blocking fetch, labeled by source."),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		m.logger.Warn("failed to create hits counter", zap.Error(err))
	}

	m.misses, err = m.meter.Int64Counter(
		"caselawd.feedcache.misses_total",
		metric.WithDescription("Feed cache reads that required a blocking fetch (first access or past stale ceiling), labeled by source."),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		m.logger.Warn("failed to create misses counter", zap.Error(err))
	}

	m.staleServes, err = m.meter.Int64Counter(
		"caselawd.feedcache.stale_serves_total",
		metric.WithDescription("Reads served from an expired entry because the refetch failed. Sustained growth means a source is down."),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		m.logger.Warn("failed to create stale serves counter", zap.Error(err))
	}

	m.refreshes, err = m.meter.Int64Counter(
		"caselawd.feedcache.background_refreshes_total",
		metric.WithDescription("Background stale-while-revalidate refreshes started, labeled by source."),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		m.logger.Warn("failed to create refreshes counter", zap.Error(err))
	}

	m.refreshFailures, err = m.meter.Int64Counter(
		"caselawd.feedcache.background_refresh_failures_total",
		metric.WithDescription("Background refreshes that failed and left the stale entry in place, labeled by source."),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		m.logger.Warn("failed to create refresh failures counter", zap.Error(err))
	}
}

func (m *Metrics) RecordHit(ctx context.Context, sourceID string) {
	if m.hits != nil {
		m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceID)))
	}
}

func (m *Metrics) RecordMiss(ctx context.Context, sourceID string) {
	if m.misses != nil {
		m.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceID)))
	}
}

func (m *Metrics) RecordStaleServe(ctx context.Context, sourceID string) {
	if m.staleServes != nil {
		m.staleServes.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceID)))
	}
}

func (m *Metrics) RecordRefresh(ctx context.Context, sourceID string) {
	if m.refreshes != nil {
		m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceID)))
	}
}

func (m *Metrics) RecordRefreshFailure(ctx context.Context, sourceID string) {
	if m.refreshFailures != nil {
		m.refreshFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", sourceID)))
	}
}
