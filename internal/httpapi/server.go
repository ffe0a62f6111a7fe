// Package httpapi exposes the retrieval and export engine over HTTP.
//
// Every request gets a trace id, every error crosses the boundary as a
// structured {code, policy_reason, trace_id} envelope, and export
// responses carry the validated document bytes with their content type.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/export"
	"github.com/fyrsmithlabs/caselawd/internal/fallback"
	"github.com/fyrsmithlabs/caselawd/internal/feedcache"
	"github.com/fyrsmithlabs/caselawd/internal/logging"
	"github.com/fyrsmithlabs/caselawd/internal/orchestrator"
)

// Searcher runs retrieval queries.
type Searcher interface {
	Search(ctx context.Context, q orchestrator.Query) (orchestrator.Result, error)
}

// Exporter runs the export approval and release flow.
type Exporter interface {
	RequestApproval(ctx context.Context, caseID string) (export.Approval, error)
	Export(ctx context.Context, caseID, token string) (body []byte, contentType string, err error)
}

// CacheStats snapshots feed cache freshness.
type CacheStats interface {
	Stats() []feedcache.SourceStat
}

// QuotaUsage snapshots fallback quota consumption.
type QuotaUsage interface {
	Usage() fallback.Usage
}

// Config holds HTTP server settings.
type Config struct {
	Host string
	Port int
}

// Server is the caselawd HTTP API.
type Server struct {
	echo     *echo.Echo
	logger   *zap.Logger
	metrics  *Metrics
	searcher Searcher
	exporter Exporter
	cache    CacheStats
	quota    QuotaUsage // nil when the fallback provider is disabled
	config   Config
}

// NewServer creates the HTTP API server. quota may be nil when the
// fallback provider is disabled.
func NewServer(searcher Searcher, exporter Exporter, cache CacheStats, quota QuotaUsage, logger *zap.Logger, cfg Config) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if exporter == nil {
		return nil, fmt.Errorf("exporter cannot be nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and audit")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		logger:   logger,
		metrics:  NewMetrics(logger),
		searcher: searcher,
		exporter: exporter,
		cache:    cache,
		quota:    quota,
		config:   cfg,
	}

	e.Use(s.traceMiddleware)
	s.registerRoutes()
	return s, nil
}

// traceMiddleware assigns every request a trace id, carries it through
// the request context, echoes it in a response header, and logs the
// request outcome.
func (s *Server) traceMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		traceID := uuid.NewString()
		ctx := logging.WithTraceID(c.Request().Context(), traceID)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set("X-Trace-Id", traceID)

		start := time.Now()
		err := next(c)
		duration := time.Since(start)

		s.metrics.RecordRequest(ctx, c.Request().Method, c.Path(), c.Response().Status, duration)
		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", duration),
			zap.String("trace_id", traceID),
		)
		return err
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/cases/search", s.handleSearch)
	v1.POST("/cases/export/approve", s.handleApprove)
	v1.POST("/cases/export", s.handleExport)
	v1.GET("/ops/stats", s.handleOpsStats)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSearch(c echo.Context) error {
	ctx := c.Request().Context()

	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, caselaw.NewValidation("malformed_request", err))
	}

	result, err := s.searcher.Search(ctx, orchestrator.Query{
		Text:  req.Query,
		Court: req.Court,
		Limit: req.Limit,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Cases:         result.Cases,
		LowConfidence: result.LowConfidence,
		Partial:       result.Partial,
		TraceID:       logging.TraceID(ctx),
	})
}

func (s *Server) handleApprove(c echo.Context) error {
	ctx := c.Request().Context()

	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, caselaw.NewValidation("malformed_request", err))
	}
	if req.CaseID == "" {
		return s.writeError(c, caselaw.NewValidation("malformed_request", nil))
	}

	approval, err := s.exporter.RequestApproval(ctx, req.CaseID)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, ApproveResponse{
		Token:     approval.Token,
		ExpiresAt: approval.ExpiresAt,
		TraceID:   logging.TraceID(ctx),
	})
}

func (s *Server) handleExport(c echo.Context) error {
	ctx := c.Request().Context()

	var req ExportRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, caselaw.NewValidation("malformed_request", err))
	}
	if req.CaseID == "" {
		return s.writeError(c, caselaw.NewValidation("malformed_request", nil))
	}

	body, contentType, err := s.exporter.Export(ctx, req.CaseID, req.Token)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.Blob(http.StatusOK, contentType, body)
}

func (s *Server) handleOpsStats(c echo.Context) error {
	ctx := c.Request().Context()

	resp := OpsStatsResponse{
		CacheSources: s.cache.Stats(),
		TraceID:      logging.TraceID(ctx),
	}
	if s.quota != nil {
		usage := s.quota.Usage()
		resp.FallbackQuota = &usage
	}
	return c.JSON(http.StatusOK, resp)
}

// writeError maps an error to the structured envelope and status code.
// Non-taxonomy errors become opaque 500s; internal detail never leaks.
func (s *Server) writeError(c echo.Context, err error) error {
	ctx := c.Request().Context()
	traceID := logging.TraceID(ctx)

	var typed *caselaw.Error
	if !errors.As(err, &typed) {
		s.logger.Error("internal error",
			append(logging.Fields(ctx), zap.Error(err))...)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL",
			TraceID: traceID,
		})
	}

	status := http.StatusInternalServerError
	switch typed.Code {
	case caselaw.CodeSourceUnavailable:
		status = http.StatusServiceUnavailable
	case caselaw.CodeRateLimited:
		status = http.StatusTooManyRequests
	case caselaw.CodePolicyBlocked:
		status = http.StatusForbidden
	case caselaw.CodeValidation:
		status = http.StatusBadRequest
		if typed.Reason == caselaw.ReasonUnknownCase {
			status = http.StatusNotFound
		}
	}

	s.metrics.RecordError(ctx, string(typed.Code), typed.Reason)
	return c.JSON(status, ErrorResponse{
		Code:         string(typed.Code),
		PolicyReason: typed.Reason,
		TraceID:      traceID,
	})
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
