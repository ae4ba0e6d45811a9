package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/seocheck/analyzer"
	"github.com/seo-optimizer/seocheck/config"
	"github.com/seo-optimizer/seocheck/export"
	"github.com/seo-optimizer/seocheck/logging"
	"github.com/seo-optimizer/seocheck/page"
	"github.com/seo-optimizer/seocheck/stats"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLoader struct {
	snap  *analyzer.Snapshot
	err   error
	calls int
}

func (l *fakeLoader) Load(_ context.Context, rawURL string) (*analyzer.Snapshot, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	snap := *l.snap
	return &snap, nil
}

type reachableProber struct{}

func (reachableProber) Probe(context.Context, string, string) error { return nil }

func goodSnapshot() *analyzer.Snapshot {
	links := make([]analyzer.Link, 10)
	for i := range links {
		links[i] = analyzer.Link{Href: fmt.Sprintf("https://example.com/%d", i)}
	}
	return &analyzer.Snapshot{
		HasTitle:           true,
		HasMetaDescription: true,
		HasH1:              true,
		HasStructuredData:  true,
		Origin:             "https://example.com",
		Links:              links,
		BodyText:           "Example pages are example content",
		TitleText:          "Example",
	}
}

func newTestServer(t *testing.T, httpLoader, browserLoader page.Loader) *server {
	t.Helper()

	storage, err := stats.NewStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Shutdown() })

	return &server{
		analyzer:      analyzer.New(reachableProber{}, storage),
		httpLoader:    httpLoader,
		browserLoader: browserLoader,
		requestStats:  logging.New(filepath.Join(t.TempDir(), "statistics.json"), false),
		storage:       storage,
		close:         func() {},
	}
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) analysisResponse {
	t.Helper()
	var response analysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHealth(t *testing.T) {
	r := newTestServer(t, &fakeLoader{snap: goodSnapshot()}, nil).router(nil)

	w := do(r, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflight(t *testing.T) {
	r := newTestServer(t, &fakeLoader{snap: goodSnapshot()}, nil).router(nil)

	w := do(r, http.MethodOptions, "/api/analyze", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAnalyzeNoIssues(t *testing.T) {
	r := newTestServer(t, &fakeLoader{snap: goodSnapshot()}, nil).router(nil)

	w := do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "https://example.com", response.URL)
	assert.Equal(t, "No major SEO issues found!", response.Result)
	assert.False(t, response.HasIssues)
	assert.Empty(t, response.Issues)
	assert.Empty(t, response.Download)
	assert.Contains(t, w.Body.String(), `"issues":[]`)
}

func TestAnalyzeWithIssues(t *testing.T) {
	snap := goodSnapshot()
	snap.HasH1 = false
	snap.Images = []analyzer.Image{{Src: "https://example.com/a b.png"}}
	r := newTestServer(t, &fakeLoader{snap: snap}, nil).router(nil)

	w := do(r, http.MethodPost, "/api/analyze", `{"url":"example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	want := "SEO Issues:\n- Missing H1 tag.\n- Image missing alt attribute: https://example.com/a b.png"
	assert.Equal(t, want, response.Result)
	assert.True(t, response.HasIssues)
	assert.Equal(t, []analyzer.Issue{
		{Check: analyzer.CheckH1, Message: "Missing H1 tag."},
		{Check: analyzer.CheckImageAlt, Message: "Image missing alt attribute: https://example.com/a b.png"},
	}, response.Issues)
	assert.Equal(t, export.DataURI(want), response.Download)
}

func TestAnalyzeBadRequest(t *testing.T) {
	loader := &fakeLoader{snap: goodSnapshot()}
	r := newTestServer(t, loader, nil).router(nil)

	for _, body := range []string{``, `{}`, `{"url":""}`, `not json`} {
		w := do(r, http.MethodPost, "/api/analyze", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Zero(t, loader.calls)
}

func TestAnalyzeLoadFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad status", fmt.Errorf("%w: https://example.com answered 404", page.ErrBadStatus), http.StatusBadGateway},
		{"invalid url", fmt.Errorf("%w: unsupported scheme \"ftp\"", page.ErrInvalidURL), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeLoader{err: tt.err}, nil)
			r := srv.router(nil)

			w := do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "Analysis failed: "+tt.err.Error(), body["error"])
			assert.Equal(t, 100.0, srv.requestStats.GetErrorRate())
		})
	}
}

type panickingProber struct{}

func (panickingProber) Probe(context.Context, string, string) error { panic("boom") }

func TestAnalyzeFailedAnalysis(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{snap: goodSnapshot()}, nil)
	srv.analyzer = analyzer.New(panickingProber{}, srv.storage)

	w := do(srv.router(nil), http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "Analysis failed: probe /robots.txt: boom", response.Result)
	assert.True(t, response.Failed)
	assert.False(t, response.HasIssues)
	assert.Empty(t, response.Download)
}

func TestAnalyzeRenderSelectsBrowser(t *testing.T) {
	httpLoader := &fakeLoader{snap: goodSnapshot()}
	browserLoader := &fakeLoader{snap: goodSnapshot()}
	srv := newTestServer(t, httpLoader, browserLoader)
	r := srv.router(nil)

	do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com","render":true}`)
	do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)

	assert.Equal(t, 1, browserLoader.calls)
	assert.Equal(t, 1, httpLoader.calls)

	srv.renderByDefault = true
	do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)
	do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com","render":false}`)

	assert.Equal(t, 2, browserLoader.calls)
	assert.Equal(t, 2, httpLoader.calls)
}

func TestAnalyzeSnapshot(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{snap: goodSnapshot()}, nil)
	r := srv.router(nil)

	body, err := json.Marshal(analyzer.Snapshot{
		HasMetaDescription: true,
		HasH1:              true,
		HasStructuredData:  true,
		Origin:             "https://example.com",
		LoadTimeMs:         analyzer.Float(3500),
	})
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/analyze/snapshot", string(body))
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "SEO Issues:\n- Missing title tag.\n- Page load time is more than 3 seconds.\n- Less than 10 internal links found.", response.Result)
	assert.Equal(t, 1, srv.storage.GetCurrentStats().Analyses)

	w = do(r, http.MethodPost, "/api/analyze/snapshot", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportMatchesDisplayedText(t *testing.T) {
	snap := goodSnapshot()
	snap.HasMetaDescription = false
	r := newTestServer(t, &fakeLoader{snap: snap}, nil).router(nil)

	displayed := decode(t, do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)).Result

	w := do(r, http.MethodPost, "/api/analyze/export", `{"url":"https://example.com"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="seo_issues.txt"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte(displayed), w.Body.Bytes())
}

func TestStatistics(t *testing.T) {
	r := newTestServer(t, &fakeLoader{snap: goodSnapshot()}, nil).router(nil)

	do(r, http.MethodPost, "/api/analyze", `{"url":"https://example.com"}`)
	w := do(r, http.MethodGet, "/api/statistics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Requests map[string]interface{} `json:"requests"`
		Counters stats.MonthlyStats     `json:"counters"`
		Months   []monthStats           `json:"months"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body.Requests["totalRequests"])
	assert.Equal(t, 1, body.Counters.Analyses)
	require.Len(t, body.Months, 1)
	assert.Equal(t, time.Now().Format("2006-01"), body.Months[0].Month)
	assert.Equal(t, 1, body.Months[0].Analyses)
}

func TestNewServerWiring(t *testing.T) {
	storage, err := stats.NewStorage(t.TempDir())
	require.NoError(t, err)
	defer storage.Shutdown()

	cfg := config.Default()
	srv := newServer(cfg, storage, logging.New(filepath.Join(t.TempDir(), "statistics.json"), false))
	defer srv.close()

	assert.IsType(t, &page.HTTPLoader{}, srv.loaderFor(analyzeRequest{URL: "https://example.com"}))
	render := true
	assert.IsType(t, &page.BrowserLoader{}, srv.loaderFor(analyzeRequest{URL: "https://example.com", Render: &render}))

	w := do(srv.router(nil), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
