package feedcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/registry"
)

// maxFeedBytes caps feed payloads; official feeds are a few hundred KB at
// most and an oversized response indicates a broken upstream.
const maxFeedBytes = 4 << 20 // 4MB

// Fetcher retrieves and parses the decision feed for one source.
type Fetcher interface {
	Fetch(ctx context.Context, src registry.Source) ([]caselaw.CaseRecord, error)
}

// HTTPFetcher fetches feeds over HTTP with a bounded per-attempt timeout
// and a single synchronous retry on transient failure.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPFetcher creates a fetcher. client may be nil to use a default.
func NewHTTPFetcher(client *http.Client, timeout time.Duration, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{client: client, timeout: timeout, logger: logger}
}

// Fetch retrieves src's feed and parses it into case records. A transient
// failure (network error, 5xx) is retried once before reporting the
// error; parse failures are not retried since the payload will not change.
func (f *HTTPFetcher) Fetch(ctx context.Context, src registry.Source) ([]caselaw.CaseRecord, error) {
	if src.FeedURL == "" {
		return nil, fmt.Errorf("source %s has no feed URL", src.ID)
	}

	payload, err := f.fetchOnce(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("feed fetch failed, retrying once",
			zap.String("source", src.ID),
			zap.Error(err))
		payload, err = f.fetchOnce(ctx, src)
		if err != nil {
			return nil, err
		}
	}

	records, err := Parse(src, payload)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	return records, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, src registry.Source) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s: unexpected status %d", src.ID, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	return payload, nil
}
