package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seo-optimizer/seocheck/analyzer"
)

// maxPageSize caps how much of a page body is read
const maxPageSize = 10 << 20

var (
	ErrInvalidURL = errors.New("invalid URL")
	ErrBadStatus  = errors.New("unexpected status")
	ErrNotHTML    = errors.New("not an HTML document")
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// Loader produces a snapshot of the page at rawURL
type Loader interface {
	Load(ctx context.Context, rawURL string) (*analyzer.Snapshot, error)
}

// NormalizeURL parses rawURL, assuming https when no scheme is given
func NormalizeURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrInvalidURL, rawURL)
	}

	return u, nil
}

// HTTPLoader fetches the raw HTML of a page without rendering it. The time
// spent fetching and reading the body stands in for the page load time.
type HTTPLoader struct {
	client    *http.Client
	userAgent string
}

// NewHTTPLoader creates a loader; a nil client gets the pooled default
func NewHTTPLoader(client *http.Client) *HTTPLoader {
	if client == nil {
		client = analyzer.NewHTTPClient(15 * time.Second)
	}

	return &HTTPLoader{
		client:    client,
		userAgent: analyzer.DefaultUserAgent,
	}
}

// SetUserAgent overrides the User-Agent header
func (l *HTTPLoader) SetUserAgent(userAgent string) {
	if userAgent != "" {
		l.userAgent = userAgent
	}
}

// Load implements Loader
func (l *HTTPLoader) Load(ctx context.Context, rawURL string) (*analyzer.Snapshot, error) {
	pageURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s answered %d", ErrBadStatus, pageURL, resp.StatusCode)
	}

	if contentType := resp.Header.Get("Content-Type"); contentType != "" && !isHTML(contentType) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotHTML, pageURL, contentType)
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if _, err := io.Copy(buf, io.LimitReader(resp.Body, maxPageSize)); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pageURL, err)
	}

	loadTime := time.Since(startTime)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}

	// The origin is the one the page was finally served from
	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	snap := FromDocument(doc, finalURL)
	snap.LoadTimeMs = analyzer.Float(float64(loadTime) / float64(time.Millisecond))

	return snap, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
