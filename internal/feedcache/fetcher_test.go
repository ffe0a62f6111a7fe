package feedcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/caselawd/internal/registry"
)

func TestHTTPFetcherParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleAtom))
	}))
	defer srv.Close()

	src := atomSource()
	src.FeedURL = srv.URL

	f := NewHTTPFetcher(nil, 5*time.Second, zaptest.NewLogger(t))
	records, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestHTTPFetcherRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(sampleAtom))
	}))
	defer srv.Close()

	src := atomSource()
	src.FeedURL = srv.URL

	f := NewHTTPFetcher(nil, 5*time.Second, zaptest.NewLogger(t))
	records, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFetcherGivesUpAfterRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := atomSource()
	src.FeedURL = srv.URL

	f := NewHTTPFetcher(nil, 5*time.Second, zaptest.NewLogger(t))
	_, err := f.Fetch(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFetcherNoRetryAfterCancel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	src := atomSource()
	src.FeedURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := NewHTTPFetcher(nil, 5*time.Second, zaptest.NewLogger(t))
	_, err := f.Fetch(ctx, src)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a cancelled request must not be retried")
}

func TestHTTPFetcherMissingFeedURL(t *testing.T) {
	f := NewHTTPFetcher(nil, time.Second, zaptest.NewLogger(t))
	_, err := f.Fetch(context.Background(), registry.Source{ID: "fc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no feed URL")
}
