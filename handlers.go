package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/seocheck/analyzer"
	"github.com/seo-optimizer/seocheck/config"
	"github.com/seo-optimizer/seocheck/export"
	"github.com/seo-optimizer/seocheck/logging"
	"github.com/seo-optimizer/seocheck/middleware"
	"github.com/seo-optimizer/seocheck/page"
	"github.com/seo-optimizer/seocheck/stats"
)

type server struct {
	analyzer        *analyzer.Analyzer
	httpLoader      page.Loader
	browserLoader   page.Loader
	renderByDefault bool
	requestStats    *logging.Statistics
	storage         *stats.Storage
	close           func()
}

type analyzeRequest struct {
	URL    string `json:"url" binding:"required"`
	Render *bool  `json:"render"`
}

type analysisResponse struct {
	URL        string           `json:"url,omitempty"`
	Result     string           `json:"result"`
	Issues     []analyzer.Issue `json:"issues"`
	HasIssues  bool             `json:"hasIssues"`
	Failed     bool             `json:"failed,omitempty"`
	Sitemaps   []string         `json:"sitemaps,omitempty"`
	Download   string           `json:"download,omitempty"`
	DurationMs int64            `json:"durationMs"`
}

type monthStats struct {
	Month string `json:"month"`
	stats.MonthlyStats
}

func newServer(cfg config.Config, storage *stats.Storage, requestStats *logging.Statistics) *server {
	client := analyzer.NewHTTPClient(cfg.FetchTimeout)

	prober := analyzer.NewHTTPProber(client, storage)
	prober.SetUserAgent(cfg.UserAgent)
	prober.SetCacheTTL(cfg.ProbeCacheTTL)

	seoAnalyzer := analyzer.New(prober, storage)
	seoAnalyzer.SetProbeTimeout(cfg.ProbeTimeout)

	httpLoader := page.NewHTTPLoader(client)
	httpLoader.SetUserAgent(cfg.UserAgent)

	browserLoader := page.NewBrowserLoader(2 * cfg.FetchTimeout)
	browserLoader.SetUserAgent(cfg.UserAgent)

	return &server{
		analyzer:        seoAnalyzer,
		httpLoader:      httpLoader,
		browserLoader:   browserLoader,
		renderByDefault: cfg.Render,
		requestStats:    requestStats,
		storage:         storage,
		close:           browserLoader.Close,
	}
}

func (s *server) router(rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.ErrorHandler())
	if rateLimiter != nil {
		r.Use(rateLimiter.RateLimit())
	}
	r.Use(cors())
	r.Use(middleware.Stats(s.requestStats))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			log.Printf("Health check request received from: %s\n", c.ClientIP())
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})

		api.POST("/analyze", s.analyzeURL)
		api.POST("/analyze/snapshot", s.analyzeSnapshot)
		api.POST("/analyze/export", s.exportReport)

		api.GET("/statistics", s.statistics)
	}

	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *server) analyzeURL(c *gin.Context) {
	log.Printf("Analyze request received from: %s\n", c.ClientIP())
	start := time.Now()

	result, pageURL, ok := s.analyzeRequested(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, newAnalysisResponse(pageURL, result, time.Since(start)))
}

func (s *server) analyzeSnapshot(c *gin.Context) {
	start := time.Now()

	var snap analyzer.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid page snapshot",
		})
		return
	}
	c.Set(middleware.PageURLKey, snap.Origin)

	result := s.analyzer.Analyze(c.Request.Context(), &snap)
	c.JSON(http.StatusOK, newAnalysisResponse("", result, time.Since(start)))
}

// exportReport answers with the report as a seo_issues.txt download
func (s *server) exportReport(c *gin.Context) {
	result, _, ok := s.analyzeRequested(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.FileName+`"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(result.Text))
}

func (s *server) statistics(c *gin.Context) {
	months := make([]monthStats, 0, stats.RetainMonths+1)
	for _, month := range s.storage.GetAllMonths() {
		if counters, ok := s.storage.GetMonthlyStats(month); ok {
			months = append(months, monthStats{Month: month, MonthlyStats: counters})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": s.requestStats.GetStatistics(),
		"counters": s.storage.GetCurrentStats(),
		"months":   months,
	})
}

// analyzeRequested loads the page named in the request body and analyzes it.
// On failure the response has been handled and ok is false.
func (s *server) analyzeRequested(c *gin.Context) (result *analyzer.Result, pageURL string, ok bool) {
	var request analyzeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid URL provided",
		})
		return nil, "", false
	}
	c.Set(middleware.PageURLKey, request.URL)

	snap, err := s.loaderFor(request).Load(c.Request.Context(), request.URL)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, page.ErrInvalidURL) {
			status = http.StatusBadRequest
		}
		// The status is recorded now so Stats sees the failure; ErrorHandler writes the body
		c.Error(errors.New(analyzer.FailureText(err))).SetMeta(status)
		c.Status(status)
		c.Abort()
		return nil, "", false
	}

	return s.analyzer.Analyze(c.Request.Context(), snap), request.URL, true
}

func (s *server) loaderFor(request analyzeRequest) page.Loader {
	render := s.renderByDefault
	if request.Render != nil {
		render = *request.Render
	}

	if render && s.browserLoader != nil {
		return s.browserLoader
	}
	return s.httpLoader
}

func newAnalysisResponse(pageURL string, result *analyzer.Result, elapsed time.Duration) analysisResponse {
	response := analysisResponse{
		URL:        pageURL,
		Result:     result.Text,
		Issues:     result.Issues,
		HasIssues:  result.HasIssues(),
		Failed:     result.Failed,
		Sitemaps:   result.Sitemaps,
		DurationMs: elapsed.Milliseconds(),
	}

	if response.Issues == nil {
		response.Issues = []analyzer.Issue{}
	}
	if response.HasIssues {
		response.Download = export.DataURI(result.Text)
	}

	return response
}
