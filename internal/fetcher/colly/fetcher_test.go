package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/university-rankings/internal/fetcher"
)

func TestFetchParsesDocumentAndSendsBrowserHeaders(t *testing.T) {
	t.Parallel()

	seen := make(chan http.Header, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><table><tr><td class="rank">1</td></tr></table></body></html>`))
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second}, nil)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "1", doc.Find("td.rank").Text())
	headers := <-seen
	require.Equal(t, fetcher.DefaultUserAgent, headers.Get("User-Agent"))
	require.Equal(t, "en-US,en;q=0.5", headers.Get("Accept-Language"))

	// Re-fetching the same URL is allowed.
	_, err = f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
}

func TestFetchNon2xxIsStatusFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), srv.URL)
	var failure *fetcher.Failure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, fetcher.KindHTTPStatus, failure.Kind)
	require.Equal(t, http.StatusForbidden, failure.StatusCode)
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(Config{Timeout: 50 * time.Millisecond}, nil).Fetch(context.Background(), srv.URL)
	var failure *fetcher.Failure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, fetcher.KindTimeout, failure.Kind)
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), url)
	var failure *fetcher.Failure
	require.True(t, errors.As(err, &failure))
	require.Equal(t, fetcher.KindRequestError, failure.Kind)
}

func TestBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second}, nil)
	collector := f.buildCollector(&page{})
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var p page
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &p)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	req := &colly.Request{Headers: &http.Header{"Accept": {"*/*"}}}
	hooks.onRequest(req)
	require.Equal(t, []string{f.headers.Get("Accept")}, req.Headers.Values("Accept"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, http.StatusOK, p.status)
	require.Equal(t, "body", string(p.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("boom"))
	require.Equal(t, http.StatusBadGateway, p.status)
	require.EqualError(t, p.err, "boom")
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
