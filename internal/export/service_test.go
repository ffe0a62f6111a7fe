package export

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/caselawd/internal/caselaw"
	"github.com/fyrsmithlabs/caselawd/internal/citation"
	"github.com/fyrsmithlabs/caselawd/internal/config"
	"github.com/fyrsmithlabs/caselawd/internal/registry"
)

// stubResolver serves records by normalized citation, the way the
// orchestrator's cache-backed resolver does.
type stubResolver struct {
	records []caselaw.CaseRecord
}

func (s *stubResolver) Resolve(caseID string) (caselaw.CaseRecord, bool) {
	key := citation.Normalize(caseID)
	for _, rec := range s.records {
		if citation.Normalize(rec.Citation) == key {
			return rec, true
		}
	}
	return caselaw.CaseRecord{}, false
}

// exportTestRegistry registers local test hosts: "fc" permits export in
// production, "noexp" does not.
func exportTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]config.SourceConfig{
		{
			ID:    "fc",
			Host:  "127.0.0.1",
			Class: registry.ClassOfficial,
			Environments: map[string]config.PermissionsConfig{
				"production": {Ingest: true, Cite: true, Export: true},
			},
		},
		{
			ID:    "noexp",
			Host:  "127.0.0.1",
			Class: registry.ClassOfficial,
			Environments: map[string]config.PermissionsConfig{
				"production": {Ingest: true, Cite: true},
			},
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return reg
}

func newTestService(t *testing.T, resolver Resolver, opts Options) *Service {
	t.Helper()
	if opts.TokenTTL == 0 {
		opts.TokenTTL = 10 * time.Minute
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = 1 << 20
	}
	if len(opts.AllowedContentTypes) == 0 {
		opts.AllowedContentTypes = []string{"application/pdf"}
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	opts.Environment = caselaw.EnvProduction

	svc, err := New(exportTestRegistry(t), resolver, []byte("test-signing-key"), opts, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func pdfServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestApprovalUnknownCase(t *testing.T) {
	svc := newTestService(t, &stubResolver{}, Options{})

	_, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, caselaw.ErrValidation))
	assert.Equal(t, caselaw.ReasonUnknownCase, caselaw.ReasonOf(err))
}

func TestExportWithoutApproval(t *testing.T) {
	srv := pdfServer(t, "%PDF-1.7 ...")
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: srv.URL + "/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	for _, token := range []string{"", "garbage", "a.b"} {
		_, _, err := svc.Export(context.Background(), "2024 FC 123", token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, caselaw.ErrPolicyBlocked), "token %q", token)
		assert.Equal(t, caselaw.ReasonApprovalRequired, caselaw.ReasonOf(err))
	}
}

func TestExportHappyPath(t *testing.T) {
	srv := pdfServer(t, "%PDF-1.7 judgment text")
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: srv.URL + "/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	body, contentType, err := svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, "%PDF-1.7 judgment text", string(body))
}

func TestExportTokenBoundToOtherCase(t *testing.T) {
	srv := pdfServer(t, "%PDF-1.7")
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: srv.URL + "/a.pdf"},
		{Citation: "2024 FC 200", SourceID: "fc", DocumentURL: srv.URL + "/b.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	_, _, err = svc.Export(context.Background(), "2024 FC 200", approval.Token)
	require.Error(t, err)
	assert.Equal(t, caselaw.ReasonApprovalRequired, caselaw.ReasonOf(err))
}

func TestExportExpiredToken(t *testing.T) {
	srv := pdfServer(t, "%PDF-1.7")
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: srv.URL + "/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	issued := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.signer.now = func() time.Time { return issued }
	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	svc.signer.now = func() time.Time { return issued.Add(11 * time.Minute) }
	_, _, err = svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, caselaw.ErrPolicyBlocked))
	assert.Equal(t, caselaw.ReasonApprovalRequired, caselaw.ReasonOf(err))
}

func TestExportPolicyDeniedSource(t *testing.T) {
	srv := pdfServer(t, "%PDF-1.7")
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "noexp", DocumentURL: srv.URL + "/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	_, _, err = svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, caselaw.ErrPolicyBlocked))
	assert.Equal(t, caselaw.ReasonSourceExportDisabled, caselaw.ReasonOf(err))
}

func TestExportHostMismatch(t *testing.T) {
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: "https://evil.test/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	_, _, err = svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, caselaw.ErrValidation))
	assert.Equal(t, caselaw.ReasonHostMismatch, caselaw.ReasonOf(err))
}

func TestExportRedirectLeavesRegisteredHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://evil.test/doc.pdf", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: srv.URL + "/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	_, _, err = svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.Error(t, err, "a redirect off the registered host must abort before any byte transfers")
	assert.True(t, errors.Is(err, caselaw.ErrValidation))
	assert.Equal(t, caselaw.ReasonHostMismatch, caselaw.ReasonOf(err))
}

func TestExportWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>not a judgment</html>"))
	}))
	t.Cleanup(srv.Close)

	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: srv.URL + "/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	_, _, err = svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.Error(t, err)
	assert.Equal(t, caselaw.ReasonWrongPayloadType, caselaw.ReasonOf(err))
}

func TestExportPayloadTooLarge(t *testing.T) {
	srv := pdfServer(t, strings.Repeat("x", 2048))
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", DocumentURL: srv.URL + "/doc.pdf"},
	}}
	svc := newTestService(t, resolver, Options{MaxBytes: 1024})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	_, _, err = svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.Error(t, err)
	assert.Equal(t, caselaw.ReasonPayloadTooLarge, caselaw.ReasonOf(err))
}

func TestExportFallsBackToRecordURL(t *testing.T) {
	srv := pdfServer(t, "%PDF-1.7")
	resolver := &stubResolver{records: []caselaw.CaseRecord{
		{Citation: "2024 FC 123", SourceID: "fc", URL: srv.URL + "/index.do"},
	}}
	svc := newTestService(t, resolver, Options{})

	approval, err := svc.RequestApproval(context.Background(), "2024 FC 123")
	require.NoError(t, err)

	body, _, err := svc.Export(context.Background(), "2024 FC 123", approval.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}
