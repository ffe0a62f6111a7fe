package httpapi

import (
	"time"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/feedcache"
	"github.com/fyrsmithlabs/caselawd/internal/fallback"
)

// SearchRequest is the body for POST /api/v1/cases/search.
type SearchRequest struct {
	Query string `json:"query"`
	Court string `json:"court,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse is the body for a successful search.
type SearchResponse struct {
	Cases         []caselaw.CaseRecord `json:"cases"`
	LowConfidence bool                 `json:"low_confidence"`
	Partial       bool                 `json:"partial"`
	TraceID       string               `json:"trace_id"`
}

// ApproveRequest is the body for POST /api/v1/cases/export/approve.
type ApproveRequest struct {
	CaseID string `json:"case_id"`
}

// ApproveResponse carries the issued approval token.
type ApproveResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TraceID   string    `json:"trace_id"`
}

// ExportRequest is the body for POST /api/v1/cases/export.
type ExportRequest struct {
	CaseID string `json:"case_id"`
	Token  string `json:"token"`
}

// ErrorResponse is the structured error envelope. PolicyReason
// distinguishes failure modes within a code; TraceID correlates the
// failure across systems.
type ErrorResponse struct {
	Code         string `json:"code"`
	PolicyReason string `json:"policy_reason,omitempty"`
	TraceID      string `json:"trace_id"`
}

// OpsStatsResponse is the body for GET /api/v1/ops/stats.
type OpsStatsResponse struct {
	CacheSources  []feedcache.SourceStat `json:"cache_sources"`
	FallbackQuota *fallback.Usage        `json:"fallback_quota,omitempty"`
	TraceID       string                 `json:"trace_id"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
