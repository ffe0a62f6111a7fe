// Package registry holds the table of known case-law sources and the
// policy gate that decides which actions are permitted against them.
//
// The table is immutable after load: Reload swaps the whole table
// atomically and logs an audit line, it never mutates in place. All policy
// decisions are pure functions of the loaded table plus the call inputs,
// so they are safe to evaluate on every request.
package registry

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/config"
)

// Source classes.
const (
	ClassOfficial   = "official"
	ClassUnofficial = "unofficial"
)

// Permissions holds the per-environment action flags for one source.
type Permissions struct {
	Ingest bool
	Cite   bool
	Export bool
}

// Source describes one known case-law source.
type Source struct {
	ID         string
	Host       string
	Class      string
	FeedURL    string
	FeedFormat string // "atom" or "json"

	// Environments maps environment to permissions. An environment
	// missing from the map denies everything.
	Environments map[caselaw.Environment]Permissions
}

// Official reports whether the source is a government-operated feed.
func (s Source) Official() bool {
	return s.Class == ClassOfficial
}

// Registry is the loaded source table.
type Registry struct {
	logger *zap.Logger

	mu      sync.RWMutex
	sources map[string]Source
	order   []string
}

// New builds a registry from configuration. An empty source list loads the
// built-in defaults (SCC, FC, FCA, IRB feeds plus the CanLII fallback).
func New(cfgs []config.SourceConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfgs) == 0 {
		cfgs = DefaultSources()
	}
	sources, order, err := buildTable(cfgs)
	if err != nil {
		return nil, err
	}
	return &Registry{logger: logger, sources: sources, order: order}, nil
}

// buildTable validates and converts raw source configs into the lookup
// table, preserving declaration order.
func buildTable(cfgs []config.SourceConfig) (map[string]Source, []string, error) {
	sources := make(map[string]Source, len(cfgs))
	order := make([]string, 0, len(cfgs))

	for _, sc := range cfgs {
		if sc.ID == "" {
			return nil, nil, fmt.Errorf("source with empty id")
		}
		if sc.Host == "" {
			return nil, nil, fmt.Errorf("source %s: host is required", sc.ID)
		}
		if sc.Class != ClassOfficial && sc.Class != ClassUnofficial {
			return nil, nil, fmt.Errorf("source %s: class must be official or unofficial, got %q", sc.ID, sc.Class)
		}
		if _, dup := sources[sc.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate source id %s", sc.ID)
		}
		format := sc.FeedFormat
		if format == "" {
			format = "atom"
		}
		if format != "atom" && format != "json" {
			return nil, nil, fmt.Errorf("source %s: feed_format must be atom or json, got %q", sc.ID, format)
		}

		envs := make(map[caselaw.Environment]Permissions, len(sc.Environments))
		for name, p := range sc.Environments {
			envs[caselaw.Environment(name)] = Permissions{
				Ingest: p.Ingest,
				Cite:   p.Cite,
				Export: p.Export,
			}
		}

		sources[sc.ID] = Source{
			ID:           sc.ID,
			Host:         sc.Host,
			Class:        sc.Class,
			FeedURL:      sc.FeedURL,
			FeedFormat:   format,
			Environments: envs,
		}
		order = append(order, sc.ID)
	}
	return sources, order, nil
}

// Get returns the source for id.
func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	return s, ok
}

// Sources returns all sources in declaration order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id])
	}
	return out
}

// Reload re-reads the sources file and atomically swaps the table. A
// malformed file leaves the previous table in place and returns the error.
// Every successful swap is logged with the source count for audit.
func (r *Registry) Reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read sources file: %w", err)
	}

	var doc struct {
		Sources []config.SourceConfig `yaml:"sources"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}
	if len(doc.Sources) == 0 {
		return fmt.Errorf("sources file %s defines no sources", path)
	}

	sources, order, err := buildTable(doc.Sources)
	if err != nil {
		return fmt.Errorf("invalid sources file %s: %w", path, err)
	}

	r.mu.Lock()
	r.sources = sources
	r.order = order
	r.mu.Unlock()

	r.logger.Info("source registry reloaded",
		zap.String("path", path),
		zap.Int("sources", len(order)))
	return nil
}

// DefaultSources returns the built-in source table: the four official
// Canadian feeds relevant to immigration law plus the CanLII fallback.
// CanLII never permits export in any environment.
func DefaultSources() []config.SourceConfig {
	allActions := map[string]config.PermissionsConfig{
		"production":  {Ingest: true, Cite: true, Export: true},
		"staging":     {Ingest: true, Cite: true, Export: true},
		"ci":          {Ingest: true, Cite: true, Export: true},
		"development": {Ingest: true, Cite: true, Export: true},
	}
	citeOnly := map[string]config.PermissionsConfig{
		"production":  {Cite: true},
		"staging":     {Cite: true},
		"ci":          {Cite: true},
		"development": {Cite: true},
	}
	return []config.SourceConfig{
		{
			ID:         "scc",
			Host:       "decisions.scc-csc.ca",
			Class:      ClassOfficial,
			FeedURL:    "https://decisions.scc-csc.ca/scc-csc/en/d/rss.do",
			FeedFormat: "atom",
			Environments: allActions,
		},
		{
			ID:         "fc",
			Host:       "decisions.fct-cf.gc.ca",
			Class:      ClassOfficial,
			FeedURL:    "https://decisions.fct-cf.gc.ca/fc-cf/en/d/rss.do",
			FeedFormat: "atom",
			Environments: allActions,
		},
		{
			ID:         "fca",
			Host:       "decisions.fca-caf.gc.ca",
			Class:      ClassOfficial,
			FeedURL:    "https://decisions.fca-caf.gc.ca/fca-caf/en/d/rss.do",
			FeedFormat: "atom",
			Environments: allActions,
		},
		{
			ID:         "irb",
			Host:       "decisions.irb-cisr.gc.ca",
			Class:      ClassOfficial,
			FeedURL:    "https://decisions.irb-cisr.gc.ca/en/recent.json",
			FeedFormat: "json",
			Environments: allActions,
		},
		{
			ID:           "canlii",
			Host:         "api.canlii.org",
			Class:        ClassUnofficial,
			Environments: citeOnly,
		},
	}
}
