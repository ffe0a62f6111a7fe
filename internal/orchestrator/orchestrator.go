// Package orchestrator coordinates case-law retrieval: it resolves
// eligible official sources through the policy gate, fetches them from
// the feed cache in parallel, falls back to the external metadata
// provider only when every official source yields nothing, and merges,
// deduplicates, and ranks the candidates deterministically.
package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/citation"
	"github.com/fyrsmithlabs/caselawd/internal/logging"
	"github.com/fyrsmithlabs/caselawd/internal/registry"
)

// FeedCache is the official feed cache surface the orchestrator needs.
type FeedCache interface {
	Get(ctx context.Context, src registry.Source) (records []caselaw.CaseRecord, stale bool, err error)
	Resolve(match func(caselaw.CaseRecord) bool) (caselaw.CaseRecord, bool)
}

// Fallback is the quota-limited metadata provider surface.
type Fallback interface {
	Search(ctx context.Context, query string) ([]caselaw.CaseRecord, error)
}

// Query is one retrieval request.
type Query struct {
	// Text is the free-text query.
	Text string `json:"text"`

	// Court optionally targets a court code for the ranking bonus
	// (e.g. "FC").
	Court string `json:"court,omitempty"`

	// Limit optionally lowers the configured result cap.
	Limit int `json:"limit,omitempty"`
}

// Result is a ranked retrieval response.
type Result struct {
	// Cases is the ranked, deduplicated, capped candidate list.
	Cases []caselaw.CaseRecord `json:"cases"`

	// LowConfidence is set when the specificity gate rejected the query
	// before any source was consulted.
	LowConfidence bool `json:"low_confidence"`

	// Partial is set when at least one eligible source was unavailable,
	// so the list may be missing its contribution.
	Partial bool `json:"partial"`
}

// Options configures the orchestrator.
type Options struct {
	Environment    caselaw.Environment
	MaxResults     int
	MinQueryTokens int
	FetchWorkers   int
}

// Orchestrator wires the registry, cache, and fallback together.
type Orchestrator struct {
	registry *registry.Registry
	cache    FeedCache
	fallback Fallback // nil when the fallback provider is disabled
	opts     Options
	logger   *zap.Logger
}

// New creates an orchestrator. fallback may be nil to disable the
// external provider entirely.
func New(reg *registry.Registry, cache FeedCache, fallback Fallback, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FetchWorkers < 1 {
		opts.FetchWorkers = 1
	}
	return &Orchestrator{
		registry: reg,
		cache:    cache,
		fallback: fallback,
		opts:     opts,
		logger:   logger,
	}
}

// Search runs one retrieval query end to end.
//
// Official sources are primary: the fallback provider is consulted only
// when the combined official result set is explicitly empty, and a
// fallback rejection (quota, outage) degrades to an empty contribution
// rather than failing the query. Output order is deterministic for
// identical inputs regardless of source completion order.
func (o *Orchestrator) Search(ctx context.Context, q Query) (Result, error) {
	tokens := meaningfulTokens(q.Text)
	if len(tokens) < o.opts.MinQueryTokens {
		o.logger.Debug("query rejected by specificity gate",
			append(logging.Fields(ctx),
				zap.String("query", q.Text),
				zap.Int("meaningful_tokens", len(tokens)))...)
		return Result{Cases: []caselaw.CaseRecord{}, LowConfidence: true}, nil
	}

	eligible := o.eligibleSources(ctx)

	official, partial := o.fetchOfficial(ctx, eligible)

	candidates := official
	if len(official) == 0 && o.fallback != nil {
		fallbackRecords, err := o.fallback.Search(ctx, q.Text)
		if err != nil {
			// Quota and provider outages are absorbed: fewer results,
			// never a failed query.
			o.logger.Warn("fallback contributed nothing",
				append(logging.Fields(ctx),
					zap.String("code", string(caselaw.CodeOf(err))),
					zap.String("reason", caselaw.ReasonOf(err)))...)
		} else {
			candidates = append(candidates, fallbackRecords...)
		}
	}

	merged := dedupe(candidates, o.isOfficial)
	score(merged, q.Text, q.Court, tokens)
	sortRanked(merged)

	limit := o.opts.MaxResults
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}

	return Result{Cases: merged, Partial: partial}, nil
}

// eligibleSources filters the registry's official sources through the
// policy gate for the cite action, logging a structured audit record for
// every denial.
func (o *Orchestrator) eligibleSources(ctx context.Context) []registry.Source {
	var eligible []registry.Source
	for _, src := range o.registry.Sources() {
		if !src.Official() {
			continue
		}
		decision := o.registry.Decide(src.ID, o.opts.Environment, registry.ActionCite)
		if !decision.Allowed {
			o.logger.Warn("policy denied source",
				append(logging.Fields(ctx),
					zap.String("source", src.ID),
					zap.String("action", string(registry.ActionCite)),
					zap.String("reason", decision.Reason))...)
			continue
		}
		eligible = append(eligible, src)
	}
	return eligible
}

// fetchOfficial pulls every eligible source from the cache on a bounded
// pool. A stale or failed source never prevents the others' results from
// returning; failures only mark the result partial. Results are collected
// per source slot and merged in registry declaration order, so the merged
// candidate list is independent of goroutine completion order.
func (o *Orchestrator) fetchOfficial(ctx context.Context, sources []registry.Source) (records []caselaw.CaseRecord, partial bool) {
	var mu sync.Mutex
	perSource := make([][]caselaw.CaseRecord, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.FetchWorkers)
	for i, src := range sources {
		g.Go(func() error {
			recs, stale, err := o.cache.Get(gctx, src)
			if err != nil {
				mu.Lock()
				partial = true
				mu.Unlock()
				o.logger.Warn("official source unavailable",
					append(logging.Fields(ctx),
						zap.String("source", src.ID),
						zap.Error(err))...)
				return nil // isolate: one bad source must not cancel the rest
			}
			if stale {
				o.logger.Info("serving expired records",
					append(logging.Fields(ctx), zap.String("source", src.ID))...)
			}
			perSource[i] = recs
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	for _, recs := range perSource {
		records = append(records, recs...)
	}
	return records, partial
}

// isOfficial reports whether sourceID belongs to an official source.
func (o *Orchestrator) isOfficial(sourceID string) bool {
	src, ok := o.registry.Get(sourceID)
	return ok && src.Official()
}

// Resolve finds a previously retrieved record whose citation normalizes
// to the same key as caseID. It never triggers network I/O; the export
// path must not fetch records the user has not already seen.
func (o *Orchestrator) Resolve(caseID string) (caselaw.CaseRecord, bool) {
	key := citation.Normalize(caseID)
	if key == "" {
		return caselaw.CaseRecord{}, false
	}
	return o.cache.Resolve(func(rec caselaw.CaseRecord) bool {
		return citation.Normalize(rec.Citation) == key
	})
}
