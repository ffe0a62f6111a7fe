// Package caselaw defines the shared domain types and error taxonomy for
// the case-law retrieval engine.
//
// A CaseRecord is a structured metadata record for a single court decision
// (citation, title, court, date, URL). Records are produced by the
// source-specific feed parsers and by the fallback metadata client, and are
// treated as immutable values once constructed. No field of a CaseRecord is
// ever fabricated: every field traces to a parsed upstream payload.
package caselaw

import "time"

// CaseRecord is a structured metadata record for one court decision.
type CaseRecord struct {
	// Citation is the citation as reported by the source
	// (e.g. "2024 FC 123"). Dedup uses the normalized canonical form,
	// not this raw string.
	Citation string `json:"citation"`

	// Title is the style of cause (e.g. "Singh v. Canada (Citizenship
	// and Immigration)").
	Title string `json:"title"`

	// Court is the court code as reported by the source (e.g. "FC",
	// "FCA", "SCC", "IRB").
	Court string `json:"court"`

	// DecisionDate is the date the decision was rendered.
	DecisionDate time.Time `json:"decision_date"`

	// URL is the landing page for the decision on the source's site.
	URL string `json:"url"`

	// DocumentURL points at the exportable document (usually a PDF).
	// Empty when the source exposes no document endpoint.
	DocumentURL string `json:"document_url,omitempty"`

	// SourceID identifies the registry source that produced this record.
	SourceID string `json:"source_id"`

	// Score is the relevance score assigned by the ranker for the query
	// that surfaced this record. It is never stored in the feed cache.
	Score float64 `json:"score"`
}

// Environment identifies the deployment environment a policy decision is
// evaluated in.
type Environment string

// Known environments. Production, staging, and CI are hardened: unknown
// sources are denied everything there.
const (
	EnvProduction  Environment = "production"
	EnvStaging     Environment = "staging"
	EnvCI          Environment = "ci"
	EnvDevelopment Environment = "development"
)

// Hardened reports whether unknown sources must be denied in this
// environment.
func (e Environment) Hardened() bool {
	switch e {
	case EnvProduction, EnvStaging, EnvCI:
		return true
	}
	return false
}
