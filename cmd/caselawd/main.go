// Caselawd is the case-law retrieval, caching, ranking, and export-safety
// daemon for the legal research assistant.
//
// It serves official court decision feeds from a stale-while-revalidate
// cache, falls back to a quota-limited external metadata provider only
// when official sources yield nothing, and gates every document export
// behind signed approval plus host and payload validation.
//
// Usage:
//
//	# Start with defaults (development environment, fallback disabled)
//	caselawd
//
//	# Point at a config file
//	caselawd -config /etc/caselawd/config.yaml
//
//	# Configure via environment
//	SERVER_PORT=8450 REGISTRY_ENVIRONMENT=production caselawd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/config"
	"github.com/fyrsmithlabs/caselawd/internal/export"
	"github.com/fyrsmithlabs/caselawd/internal/fallback"
	"github.com/fyrsmithlabs/caselawd/internal/feedcache"
	"github.com/fyrsmithlabs/caselawd/internal/httpapi"
	"github.com/fyrsmithlabs/caselawd/internal/logging"
	"github.com/fyrsmithlabs/caselawd/internal/orchestrator"
	"github.com/fyrsmithlabs/caselawd/internal/registry"
	"github.com/fyrsmithlabs/caselawd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("caselawd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

// run wires every dependency and blocks until ctx is cancelled:
// configuration, logger, telemetry, source registry (with optional file
// watch), feed cache, fallback client, orchestrator, export service, and
// the HTTP server.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // best-effort on shutdown
	}()

	env := caselaw.Environment(cfg.Registry.Environment)
	logger.Info("starting caselawd",
		zap.String("version", version),
		zap.String("environment", string(env)),
		zap.Int("port", cfg.Server.Port))

	tel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg, err := registry.New(cfg.Registry.Sources, logger)
	if err != nil {
		return fmt.Errorf("failed to load source registry: %w", err)
	}
	if cfg.Registry.SourcesFile != "" {
		if err := reg.Reload(cfg.Registry.SourcesFile); err != nil {
			return fmt.Errorf("failed to load sources file: %w", err)
		}
		go func() {
			if err := reg.Watch(ctx, cfg.Registry.SourcesFile); err != nil && ctx.Err() == nil {
				logger.Error("sources file watcher stopped", zap.Error(err))
			}
		}()
	}

	fetcher := feedcache.NewHTTPFetcher(nil, cfg.Cache.FetchTimeout.Duration(), logger)
	cache := feedcache.New(fetcher, feedcache.Options{
		FreshTTL:       cfg.Cache.FreshTTL.Duration(),
		StaleTTL:       cfg.Cache.StaleTTL.Duration(),
		RefreshWorkers: cfg.Cache.RefreshWorkers,
	}, logger)

	var fallbackClient *fallback.Client
	var orchFallback orchestrator.Fallback
	if cfg.Fallback.Enabled {
		fallbackClient = fallback.New(fallback.Config{
			BaseURL:       cfg.Fallback.BaseURL,
			APIKey:        cfg.Fallback.APIKey.Value(),
			DailyLimit:    cfg.Fallback.DailyLimit,
			PerSecond:     cfg.Fallback.PerSecond,
			MaxConcurrent: cfg.Fallback.MaxConcurrent,
			Timeout:       cfg.Fallback.Timeout.Duration(),
		}, nil, logger)
		orchFallback = fallbackClient
	}

	orch := orchestrator.New(reg, cache, orchFallback, orchestrator.Options{
		Environment:    env,
		MaxResults:     cfg.Search.MaxResults,
		MinQueryTokens: cfg.Search.MinQueryTokens,
		FetchWorkers:   cfg.Cache.FetchWorkers,
	}, logger)

	signingKey := cfg.Export.SigningKey.Value()
	if signingKey == "" {
		// Development only: Validate() already requires a key in
		// hardened environments. An ephemeral key keeps tokens working
		// within one process lifetime.
		signingKey = fmt.Sprintf("caselawd-dev-%d", time.Now().UnixNano())
		logger.Warn("export.signing_key not set, using ephemeral development key")
	}
	exporter, err := export.New(reg, orch, []byte(signingKey), export.Options{
		Environment:         env,
		TokenTTL:            cfg.Export.TokenTTL.Duration(),
		MaxBytes:            cfg.Export.MaxBytes,
		AllowedContentTypes: cfg.Export.AllowedContentTypes,
		FetchTimeout:        cfg.Export.FetchTimeout.Duration(),
	}, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create export service: %w", err)
	}

	var quota httpapi.QuotaUsage
	if fallbackClient != nil {
		quota = fallbackClient
	}
	server, err := httpapi.NewServer(orch, exporter, cache, quota, logger, httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
