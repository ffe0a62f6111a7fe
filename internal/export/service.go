package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/citation"
	"github.com/fyrsmithlabs/caselawd/internal/logging"
	"github.com/fyrsmithlabs/caselawd/internal/registry"
)

// errRedirectHostMismatch aborts a document fetch when a redirect hop
// leaves the registered host.
var errRedirectHostMismatch = errors.New("redirect left the registered host")

// Resolver finds a previously retrieved case record by its identifier.
type Resolver interface {
	Resolve(caseID string) (caselaw.CaseRecord, bool)
}

// Options configures the export service.
type Options struct {
	Environment         caselaw.Environment
	TokenTTL            time.Duration
	MaxBytes            int64
	AllowedContentTypes []string
	FetchTimeout        time.Duration
}

// Approval is the issued approval for one case.
type Approval struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service implements export approval and validation.
type Service struct {
	registry  *registry.Registry
	resolver  Resolver
	signer    *Signer
	transport http.RoundTripper
	opts      Options
	logger    *zap.Logger
}

// New creates an export service. transport may be nil to use the default.
func New(reg *registry.Registry, resolver Resolver, signingKey []byte, opts Options, transport http.RoundTripper, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	signer, err := NewSigner(signingKey, opts.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &Service{
		registry:  reg,
		resolver:  resolver,
		signer:    signer,
		transport: transport,
		opts:      opts,
		logger:    logger,
	}, nil
}

// RequestApproval records the caller's explicit confirmation to export
// caseID and issues a short-lived signed token bound to it. No export
// occurs yet; the token is presented back on the export call.
func (s *Service) RequestApproval(ctx context.Context, caseID string) (Approval, error) {
	rec, ok := s.resolver.Resolve(caseID)
	if !ok {
		return Approval{}, caselaw.NewValidation(caselaw.ReasonUnknownCase, nil)
	}

	token, expiresAt, err := s.signer.Issue(citation.Normalize(rec.Citation))
	if err != nil {
		return Approval{}, err
	}

	s.logger.Info("export approval issued",
		append(logging.Fields(ctx),
			zap.String("citation", rec.Citation),
			zap.Time("expires_at", expiresAt))...)
	return Approval{Token: token, ExpiresAt: expiresAt}, nil
}

// Export releases the document bytes for caseID after the full state
// machine passes: token verification, policy gate, host validation
// (request URL and every redirect hop), and payload type/size checks.
// Every failure returns before any byte reaches the caller.
func (s *Service) Export(ctx context.Context, caseID, token string) (body []byte, contentType string, err error) {
	// Approved: the token must verify, be unexpired, and be bound to
	// this case.
	rec, ok := s.resolver.Resolve(caseID)
	if !ok {
		return nil, "", caselaw.NewValidation(caselaw.ReasonUnknownCase, nil)
	}
	if err := s.signer.Verify(token, citation.Normalize(rec.Citation)); err != nil {
		s.logger.Warn("export rejected: approval check failed",
			append(logging.Fields(ctx),
				zap.String("citation", rec.Citation),
				zap.Error(err))...)
		return nil, "", caselaw.NewPolicyBlocked(caselaw.ReasonApprovalRequired)
	}

	// Validated: policy gate for the export action.
	decision := s.registry.Decide(rec.SourceID, s.opts.Environment, registry.ActionExport)
	if !decision.Allowed {
		s.logger.Warn("export rejected: policy denied",
			append(logging.Fields(ctx),
				zap.String("source", rec.SourceID),
				zap.String("reason", decision.Reason))...)
		return nil, "", caselaw.NewPolicyBlocked(decision.Reason)
	}

	src, ok := s.registry.Get(rec.SourceID)
	if !ok {
		return nil, "", caselaw.NewPolicyBlocked(caselaw.ReasonUnknownSource)
	}

	docURL := rec.DocumentURL
	if docURL == "" {
		docURL = rec.URL
	}
	target, err := url.Parse(docURL)
	if err != nil || target.Hostname() == "" {
		return nil, "", caselaw.NewValidation(caselaw.ReasonHostMismatch, err)
	}
	if !HostMatches(target.Hostname(), src.Host) {
		s.auditHostMismatch(ctx, rec, target.Hostname(), src.Host)
		return nil, "", caselaw.NewValidation(caselaw.ReasonHostMismatch, nil)
	}

	return s.fetchDocument(ctx, rec, src, target)
}

// fetchDocument retrieves the validated document, re-validating the host
// on every redirect hop and enforcing payload type and size before
// returning any bytes.
func (s *Service) fetchDocument(ctx context.Context, rec caselaw.CaseRecord, src registry.Source, target *url.URL) ([]byte, string, error) {
	client := &http.Client{
		Transport: s.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			if !HostMatches(req.URL.Hostname(), src.Host) {
				s.auditHostMismatch(ctx, rec, req.URL.Hostname(), src.Host)
				return errRedirectHostMismatch
			}
			return nil
		},
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, "", caselaw.NewSourceUnavailable(src.ID, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, errRedirectHostMismatch) {
			return nil, "", caselaw.NewValidation(caselaw.ReasonHostMismatch, nil)
		}
		return nil, "", caselaw.NewSourceUnavailable(src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", caselaw.NewSourceUnavailable(src.ID,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !s.contentTypeAllowed(mediaType) {
		return nil, "", caselaw.NewValidation(caselaw.ReasonWrongPayloadType, nil)
	}

	if resp.ContentLength > s.opts.MaxBytes {
		return nil, "", caselaw.NewValidation(caselaw.ReasonPayloadTooLarge, nil)
	}

	// Read one byte past the cap so an understated Content-Length still
	// trips the size check.
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBytes+1))
	if err != nil {
		return nil, "", caselaw.NewSourceUnavailable(src.ID, err)
	}
	if int64(len(body)) > s.opts.MaxBytes {
		return nil, "", caselaw.NewValidation(caselaw.ReasonPayloadTooLarge, nil)
	}

	// Released.
	s.logger.Info("document released",
		append(logging.Fields(ctx),
			zap.String("citation", rec.Citation),
			zap.String("source", src.ID),
			zap.Int("bytes", len(body)),
			zap.String("content_type", mediaType))...)
	return body, mediaType, nil
}

func (s *Service) contentTypeAllowed(mediaType string) bool {
	for _, allowed := range s.opts.AllowedContentTypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

func (s *Service) auditHostMismatch(ctx context.Context, rec caselaw.CaseRecord, got, want string) {
	s.logger.Warn("export rejected: host mismatch",
		append(logging.Fields(ctx),
			zap.String("citation", rec.Citation),
			zap.String("source", rec.SourceID),
			zap.String("host", got),
			zap.String("registered_host", want))...)
}
