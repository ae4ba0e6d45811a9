package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/seo-optimizer/seocheck/stats"
)

// DefaultUserAgent is sent with every request made on behalf of an analysis
const DefaultUserAgent = "SEOAnalyzer/1.0"

// maxProbeBody caps how much of a probed file is read
const maxProbeBody = 512 << 10

const robotsPath = "/robots.txt"

// ErrUnreachable is returned for probes answered with a non-2xx status
var ErrUnreachable = errors.New("unreachable")

// Prober checks whether a well-known file is served by an origin
type Prober interface {
	// Probe returns nil when origin+path answered with a 2xx status
	Probe(ctx context.Context, origin, path string) error
}

// SitemapSource is implemented by probers that remember the sitemaps an
// origin's robots.txt declares
type SitemapSource interface {
	DeclaredSitemaps(origin string) []string
}

// NewHTTPClient creates a client with connection pooling and keep-alive
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

type probeCacheEntry struct {
	err       error
	sitemaps  []string
	timestamp time.Time
}

// HTTPProber probes files over HTTP and caches the outcome per URL
type HTTPProber struct {
	client          *http.Client
	userAgent       string
	cache           map[string]probeCacheEntry
	cacheMutex      sync.RWMutex
	cacheTTL        time.Duration
	maxCacheSize    int
	lastCleanup     time.Time
	cleanupInterval time.Duration
	stats           *stats.Storage
}

// NewHTTPProber creates a prober. storage may be nil.
func NewHTTPProber(client *http.Client, storage *stats.Storage) *HTTPProber {
	if client == nil {
		client = NewHTTPClient(DefaultProbeTimeout)
	}

	return &HTTPProber{
		client:          client,
		userAgent:       DefaultUserAgent,
		cache:           make(map[string]probeCacheEntry),
		cacheTTL:        10 * time.Minute,
		maxCacheSize:    10000,
		lastCleanup:     time.Now(),
		cleanupInterval: 5 * time.Minute,
		stats:           storage,
	}
}

// SetUserAgent overrides the User-Agent header
func (p *HTTPProber) SetUserAgent(userAgent string) {
	if userAgent != "" {
		p.userAgent = userAgent
	}
}

// SetCacheTTL sets how long a probe outcome is reused
func (p *HTTPProber) SetCacheTTL(ttl time.Duration) {
	p.cacheMutex.Lock()
	defer p.cacheMutex.Unlock()
	p.cacheTTL = ttl
}

// SetMaxCacheSize sets the maximum number of cached outcomes
func (p *HTTPProber) SetMaxCacheSize(size int) {
	p.cacheMutex.Lock()
	p.maxCacheSize = size
	p.cacheMutex.Unlock()
	p.cleanup()
}

// ClearCache drops every cached outcome
func (p *HTTPProber) ClearCache() {
	p.cacheMutex.Lock()
	defer p.cacheMutex.Unlock()
	p.cache = make(map[string]probeCacheEntry)
}

// CacheEntries returns the number of cached outcomes
func (p *HTTPProber) CacheEntries() int {
	p.cacheMutex.RLock()
	defer p.cacheMutex.RUnlock()
	return len(p.cache)
}

// Probe implements Prober
func (p *HTTPProber) Probe(ctx context.Context, origin, path string) error {
	p.cacheMutex.RLock()
	needsCleanup := time.Since(p.lastCleanup) > p.cleanupInterval
	p.cacheMutex.RUnlock()
	if needsCleanup {
		go p.cleanup()
	}

	target := origin + path

	p.cacheMutex.RLock()
	if entry, found := p.cache[target]; found && time.Since(entry.timestamp) < p.cacheTTL {
		p.cacheMutex.RUnlock()
		p.count(stats.Counters{ProbeCacheHits: 1})
		return entry.err
	}
	p.cacheMutex.RUnlock()

	p.count(stats.Counters{ProbeCacheMisses: 1})

	sitemaps, err := p.fetch(ctx, target, path)

	// A cancelled or timed out probe says nothing about the site
	if ctx.Err() == nil {
		p.store(target, sitemaps, err)
	}

	return err
}

// DeclaredSitemaps returns the Sitemap entries of the origin's robots.txt
// from the last successful probe that is still cached
func (p *HTTPProber) DeclaredSitemaps(origin string) []string {
	p.cacheMutex.RLock()
	defer p.cacheMutex.RUnlock()

	entry, found := p.cache[origin+robotsPath]
	if !found || entry.err != nil || time.Since(entry.timestamp) >= p.cacheTTL {
		return nil
	}
	return append([]string(nil), entry.sitemaps...)
}

func (p *HTTPProber) fetch(ctx context.Context, target, path string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read probe response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s answered %d", ErrUnreachable, target, resp.StatusCode)
	}

	if path == robotsPath {
		return parseSitemaps(target, resp.StatusCode, body), nil
	}

	return nil, nil
}

// parseSitemaps returns the sitemaps a robots.txt declares. An unparsable
// file still counts as present.
func parseSitemaps(target string, statusCode int, body []byte) []string {
	robots, err := robotstxt.FromStatusAndBytes(statusCode, body)
	if err != nil {
		log.Printf("Could not parse %s: %v", target, err)
		return nil
	}

	if len(robots.Sitemaps) > 0 {
		log.Printf("%s declares %d sitemap(s): %s", target, len(robots.Sitemaps), strings.Join(robots.Sitemaps, ", "))
	}
	return robots.Sitemaps
}

func (p *HTTPProber) store(target string, sitemaps []string, err error) {
	p.cacheMutex.Lock()
	defer p.cacheMutex.Unlock()

	p.cache[target] = probeCacheEntry{
		err:       err,
		sitemaps:  sitemaps,
		timestamp: time.Now(),
	}
}

func (p *HTTPProber) count(c stats.Counters) {
	if p.stats != nil {
		p.stats.Add(c)
	}
}

// cleanup removes expired entries and enforces the size limit
func (p *HTTPProber) cleanup() {
	now := time.Now()

	p.cacheMutex.Lock()
	defer p.cacheMutex.Unlock()

	for key, entry := range p.cache {
		if now.Sub(entry.timestamp) > p.cacheTTL {
			delete(p.cache, key)
		}
	}

	if len(p.cache) > p.maxCacheSize {
		type keyed struct {
			key       string
			timestamp time.Time
		}

		entries := make([]keyed, 0, len(p.cache))
		for key, entry := range p.cache {
			entries = append(entries, keyed{key, entry.timestamp})
		}

		// Oldest first
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].timestamp.Before(entries[j].timestamp)
		})

		for i := 0; i < len(entries)-p.maxCacheSize; i++ {
			delete(p.cache, entries[i].key)
		}
	}

	p.lastCleanup = now
}
