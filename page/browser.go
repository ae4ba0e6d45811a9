package page

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/seo-optimizer/seocheck/analyzer"
)

// pageInfoScript resolves once the load event has fired and loadEventEnd is set
const pageInfoScript = `new Promise((resolve) => {
	const collect = () => setTimeout(() => {
		const timing = window.performance && window.performance.timing;
		resolve({
			url: window.location.href,
			origin: window.location.origin,
			title: document.title,
			bodyText: document.body ? document.body.innerText : "",
			loadTime: timing ? timing.loadEventEnd - timing.navigationStart : null,
		});
	}, 0);

	if (document.readyState === "complete") {
		collect();
	} else {
		window.addEventListener("load", collect);
	}
})`

type pageInfo struct {
	URL      string   `json:"url"`
	Origin   string   `json:"origin"`
	Title    string   `json:"title"`
	BodyText string   `json:"bodyText"`
	LoadTime *float64 `json:"loadTime"`
}

// BrowserLoader renders pages in headless Chrome, so scripts run and the
// navigation timing of the real page load is available.
type BrowserLoader struct {
	timeout   time.Duration
	userAgent string

	startOnce     sync.Once
	startErr      error
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowserLoader creates a loader. Chrome is started on first use.
func NewBrowserLoader(timeout time.Duration) *BrowserLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &BrowserLoader{
		timeout:   timeout,
		userAgent: analyzer.DefaultUserAgent,
	}
}

// SetUserAgent overrides the browser's User-Agent; call it before Load
func (l *BrowserLoader) SetUserAgent(userAgent string) {
	if userAgent != "" {
		l.userAgent = userAgent
	}
}

func (l *BrowserLoader) start() error {
	l.startOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.DisableGPU,
			chromedp.Headless,
			chromedp.NoSandbox,
			chromedp.UserAgent(l.userAgent),
		)

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Printf))

		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			l.startErr = fmt.Errorf("failed to start browser: %w", err)
			return
		}

		l.allocCancel = allocCancel
		l.browserCtx = browserCtx
		l.browserCancel = browserCancel
	})

	return l.startErr
}

// Load implements Loader
func (l *BrowserLoader) Load(ctx context.Context, rawURL string) (*analyzer.Snapshot, error) {
	pageURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := l.start(); err != nil {
		return nil, err
	}

	// Each page gets its own tab
	tabCtx, cancelTab := chromedp.NewContext(l.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, l.timeout)
	defer cancelTimeout()

	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var (
		info      pageInfo
		outerHTML string
	)
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}

	err = chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en"}),
		chromedp.Navigate(pageURL.String()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(pageInfoScript, &info, awaitPromise),
		chromedp.OuterHTML("html", &outerHTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered %s: %w", pageURL, err)
	}

	finalURL := pageURL
	if parsed, err := url.Parse(info.URL); err == nil && parsed.Host != "" {
		finalURL = parsed
	}

	snap := FromDocument(doc, finalURL)
	if info.Origin != "" && info.Origin != "null" {
		snap.Origin = info.Origin
	}
	snap.TitleText = info.Title
	snap.BodyText = info.BodyText
	if info.LoadTime != nil && *info.LoadTime > 0 {
		snap.LoadTimeMs = info.LoadTime
	}

	return snap, nil
}

// Close shuts the browser down
func (l *BrowserLoader) Close() {
	if l.browserCancel != nil {
		l.browserCancel()
		l.browserCancel = nil
	}
	if l.allocCancel != nil {
		l.allocCancel()
		l.allocCancel = nil
	}
}
