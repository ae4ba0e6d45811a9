package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo-optimizer/seocheck/analyzer"
	"github.com/seo-optimizer/seocheck/config"
	"github.com/seo-optimizer/seocheck/export"
)

func init() {
	color.NoColor = true
}

const missingH1Page = `<html><head><title>Plain page</title><meta name="description" content="x"></head>
<body itemscope itemtype="https://schema.org/WebPage"><p>Plain words only</p></body></html>`

func TestRunWritesReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, missingH1Page)
	}))
	defer server.Close()

	out := t.TempDir()
	var buf bytes.Buffer

	code := run(context.Background(), options{
		url:      server.URL,
		out:      out,
		timeout:  5 * time.Second,
		noProbes: true,
	}, config.Default(), &buf)

	require.Equal(t, 0, code)

	want := "SEO Issues:\n- Missing H1 tag.\n- Less than 10 internal links found."
	assert.Contains(t, buf.String(), want)

	data, err := os.ReadFile(filepath.Join(out, export.FileName))
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}

func TestRunProbesOrigin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, missingH1Page)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var buf bytes.Buffer
	code := run(context.Background(), options{url: server.URL, timeout: 5 * time.Second}, config.Default(), &buf)

	require.Equal(t, 0, code)
	assert.NotContains(t, buf.String(), "robots.txt")
	assert.Contains(t, buf.String(), "- Missing or inaccessible sitemap.xml.")
}

func TestRunLoadFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	out := t.TempDir()
	var buf bytes.Buffer

	code := run(context.Background(), options{url: server.URL, out: out, timeout: 5 * time.Second}, config.Default(), &buf)

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "Analysis failed: ")
	_, err := os.Stat(filepath.Join(out, export.FileName))
	assert.True(t, os.IsNotExist(err))
}

func TestReportFailedAnalysis(t *testing.T) {
	out := t.TempDir()
	var buf bytes.Buffer
	result := &analyzer.Result{Text: "Analysis failed: probe /robots.txt: boom", Failed: true}

	code := report(&buf, result, out)

	assert.Equal(t, 1, code)
	assert.Equal(t, "Analysis failed: probe /robots.txt: boom\n", buf.String())
	_, err := os.Stat(filepath.Join(out, export.FileName))
	assert.True(t, os.IsNotExist(err))
}

func TestReportDeclaredSitemaps(t *testing.T) {
	var buf bytes.Buffer
	issues := []analyzer.Issue{{Check: analyzer.CheckSitemapXML, Message: "Missing or inaccessible sitemap.xml."}}
	result := &analyzer.Result{
		Issues:   issues,
		Text:     analyzer.Render(issues),
		Sitemaps: []string{"https://example.com/sitemap_index.xml"},
	}

	code := report(&buf, result, "")

	assert.Equal(t, 0, code)
	assert.Equal(t, "SEO Issues:\n- Missing or inaccessible sitemap.xml.\nrobots.txt declares: https://example.com/sitemap_index.xml\n", buf.String())
}
