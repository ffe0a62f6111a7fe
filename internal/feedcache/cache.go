package feedcache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/registry"
)

// Options configures the cache windows and the background refresh pool.
type Options struct {
	// FreshTTL is the window during which reads are pure cache hits.
	FreshTTL time.Duration

	// StaleTTL is the ceiling after which a blocking refetch is
	// mandatory.
	StaleTTL time.Duration

	// RefreshWorkers bounds concurrent background refreshes.
	RefreshWorkers int
}

// entry is the cached state for one source. All fields are guarded by mu;
// fetchedAt is monotonically non-decreasing.
type entry struct {
	mu         sync.Mutex
	records    []caselaw.CaseRecord
	fetchedAt  time.Time
	refreshing bool
}

// Cache is the per-source TTL cache with stale-while-revalidate and
// single-flight background refresh.
type Cache struct {
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger
	metrics *Metrics

	// now is injectable for freshness-window tests.
	now func() time.Time

	// refreshSem bounds the background refresh pool.
	refreshSem chan struct{}

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a cache backed by fetcher.
func New(fetcher Fetcher, opts Options, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RefreshWorkers < 1 {
		opts.RefreshWorkers = 1
	}
	return &Cache{
		fetcher:    fetcher,
		opts:       opts,
		logger:     logger,
		metrics:    NewMetrics(logger),
		now:        time.Now,
		refreshSem: make(chan struct{}, opts.RefreshWorkers),
		entries:    make(map[string]*entry),
	}
}

// entryFor returns the entry for src, creating it if needed. Only the map
// lookup is under the cache-level lock; per-source state has its own lock
// so unrelated sources never serialize.
func (c *Cache) entryFor(id string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{}
		c.entries[id] = e
	}
	return e
}

// Get returns the cached records for src, fetching as the freshness policy
// requires.
//
// Inside FreshTTL the cached records return with no I/O. Between FreshTTL
// and StaleTTL the cached records return immediately and at most one
// background refresh is enqueued (single-flight). Past StaleTTL (or on
// first access) the fetch is synchronous; if it fails and an expired entry
// exists, that entry is returned with stale=true instead of an error. Only
// a source with no usable data at all yields SourceUnavailable.
func (c *Cache) Get(ctx context.Context, src registry.Source) (records []caselaw.CaseRecord, stale bool, err error) {
	e := c.entryFor(src.ID)

	e.mu.Lock()
	defer e.mu.Unlock()

	age := c.now().Sub(e.fetchedAt)

	// Fresh: serve with no I/O.
	if !e.fetchedAt.IsZero() && age < c.opts.FreshTTL {
		c.metrics.RecordHit(ctx, src.ID)
		return cloneRecords(e.records), false, nil
	}

	// Stale window: serve immediately, revalidate in the background.
	if !e.fetchedAt.IsZero() && age < c.opts.StaleTTL {
		if !e.refreshing {
			e.refreshing = true
			go c.backgroundRefresh(src, e)
		}
		c.metrics.RecordHit(ctx, src.ID)
		return cloneRecords(e.records), false, nil
	}

	// Expired or missing: blocking fetch under the per-source lock, so
	// concurrent readers of this source wait rather than stampede.
	c.metrics.RecordMiss(ctx, src.ID)
	fetched, fetchErr := c.fetcher.Fetch(ctx, src)
	if fetchErr == nil {
		e.records = fetched
		e.fetchedAt = c.now()
		return cloneRecords(e.records), false, nil
	}

	if !e.fetchedAt.IsZero() {
		// Serve last known good past the stale ceiling rather than
		// failing the caller.
		c.logger.Warn("feed refetch failed, serving expired entry",
			zap.String("source", src.ID),
			zap.Duration("age", age),
			zap.Error(fetchErr))
		c.metrics.RecordStaleServe(ctx, src.ID)
		return cloneRecords(e.records), true, nil
	}

	return nil, false, caselaw.NewSourceUnavailable(src.ID, fetchErr)
}

// backgroundRefresh runs one single-flight refresh for src on the bounded
// pool. A failed refresh leaves the existing entry untouched and only
// clears the in-flight flag; no error surfaces to any caller.
func (c *Cache) backgroundRefresh(src registry.Source, e *entry) {
	c.refreshSem <- struct{}{}
	defer func() { <-c.refreshSem }()

	c.metrics.RecordRefresh(context.Background(), src.ID)

	// Detached from any request context: the caller that triggered this
	// refresh already got its answer.
	records, err := c.fetcher.Fetch(context.Background(), src)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshing = false
	if err != nil {
		c.metrics.RecordRefreshFailure(context.Background(), src.ID)
		c.logger.Warn("background feed refresh failed",
			zap.String("source", src.ID),
			zap.Error(err))
		return
	}
	e.records = records
	e.fetchedAt = c.now()
}

// SourceStat describes cache state for one source, for dashboards.
type SourceStat struct {
	SourceID   string    `json:"source_id"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	Records    int       `json:"records"`
	Refreshing bool      `json:"refreshing"`
}

// Stats snapshots the freshness of every cached source.
func (c *Cache) Stats() []SourceStat {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entries))
	entries := make([]*entry, 0, len(c.entries))
	for id, e := range c.entries {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	c.mu.Unlock()

	stats := make([]SourceStat, 0, len(ids))
	for i, e := range entries {
		e.mu.Lock()
		stat := SourceStat{
			SourceID:   ids[i],
			FetchedAt:  e.fetchedAt,
			Records:    len(e.records),
			Refreshing: e.refreshing,
		}
		if !e.fetchedAt.IsZero() {
			stat.AgeSeconds = c.now().Sub(e.fetchedAt).Seconds()
		}
		e.mu.Unlock()
		stats = append(stats, stat)
	}
	return stats
}

// Resolve scans all cached entries for a record whose citation normalizes
// to key. Used by the export path; it never triggers network I/O.
func (c *Cache) Resolve(match func(caselaw.CaseRecord) bool) (caselaw.CaseRecord, bool) {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		for _, rec := range e.records {
			if match(rec) {
				e.mu.Unlock()
				return rec, true
			}
		}
		e.mu.Unlock()
	}
	return caselaw.CaseRecord{}, false
}

func cloneRecords(in []caselaw.CaseRecord) []caselaw.CaseRecord {
	out := make([]caselaw.CaseRecord, len(in))
	copy(out, in)
	return out
}
