package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/logging"
)

// SourceID identifies fallback records in merged result sets. It matches
// the registry descriptor for the provider.
const SourceID = "canlii"

// maxResponseBytes caps the provider response body.
const maxResponseBytes = 2 << 20 // 2MB

// Config holds fallback client settings. The limits mirror the external
// provider's contract; see the registry for the provider descriptor.
type Config struct {
	BaseURL       string
	APIKey        string
	DailyLimit    int
	PerSecond     int
	MaxConcurrent int
	Timeout       time.Duration
}

// Client is the quota-limited metadata client. It is invoked by the
// orchestrator only, never directly by API callers.
type Client struct {
	cfg    Config
	http   *http.Client
	quota  *quota
	logger *zap.Logger
}

// New creates a fallback client. httpClient may be nil to use a default.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		quota:  newQuota(cfg.DailyLimit, cfg.PerSecond, cfg.MaxConcurrent),
		logger: logger,
	}
}

// searchResponse is the provider's search result payload.
type searchResponse struct {
	Results []struct {
		Citation    string `json:"citation"`
		Title       string `json:"title"`
		Court       string `json:"court"`
		Date        string `json:"date"`
		URL         string `json:"url"`
		DocumentURL string `json:"document_url"`
	} `json:"results"`
}

// Search queries the provider for case metadata matching query.
//
// The quota check is a short check-and-increment critical section; a
// rejection returns RateLimited with the tripped ceiling before any
// network I/O. Provider failures return SourceUnavailable. The in-flight
// slot is released on every path once the outbound call completes.
func (c *Client) Search(ctx context.Context, query string) ([]caselaw.CaseRecord, error) {
	release, err := c.quota.acquire()
	if err != nil {
		c.logger.Warn("fallback search rejected by quota",
			append(logging.Fields(ctx), zap.String("reason", caselaw.ReasonOf(err)))...)
		return nil, err
	}
	defer release()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/search?q=%s", c.cfg.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, caselaw.NewSourceUnavailable(SourceID, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, caselaw.NewSourceUnavailable(SourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, caselaw.NewSourceUnavailable(SourceID,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, caselaw.NewSourceUnavailable(SourceID, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, caselaw.NewSourceUnavailable(SourceID, err)
	}

	records := make([]caselaw.CaseRecord, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Citation == "" || r.Title == "" {
			continue
		}
		rec := caselaw.CaseRecord{
			Citation:    r.Citation,
			Title:       r.Title,
			Court:       r.Court,
			URL:         r.URL,
			DocumentURL: r.DocumentURL,
			SourceID:    SourceID,
		}
		if t, err := time.Parse("2006-01-02", r.Date); err == nil {
			rec.DecisionDate = t
		}
		records = append(records, rec)
	}
	return records, nil
}

// Usage snapshots quota consumption for the ops endpoint.
func (c *Client) Usage() Usage {
	return c.quota.usage()
}
