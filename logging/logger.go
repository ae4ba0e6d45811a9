package logging

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Statistics represents the collected request statistics
type Statistics struct {
	UniqueVisitors   map[string]time.Time `json:"uniqueVisitors"`   // IP -> Last Visit Time
	AnalysisRequests int                  `json:"analysisRequests"` // Total number of analysis requests
	ErrorCount       int                  `json:"errorCount"`       // Number of failed analyses
	PopularOrigins   map[string]int       `json:"popularOrigins"`   // Origin -> Count
	AverageDuration  float64              `json:"averageDuration"`  // Average analysis duration in milliseconds
	TotalDuration    float64              `json:"totalDuration"`
	LastPersisted    time.Time            `json:"lastPersisted"`

	filePath string
	devMode  bool
	mutex    sync.RWMutex
}

// New creates statistics persisted at filePath, loading what is already there.
// devMode exposes the most analyzed origins.
func New(filePath string, devMode bool) *Statistics {
	s := &Statistics{
		UniqueVisitors: make(map[string]time.Time),
		PopularOrigins: make(map[string]int),
		LastPersisted:  time.Now(),
		filePath:       filePath,
		devMode:        devMode,
	}

	if err := s.Load(); err != nil {
		fmt.Printf("Could not load existing statistics: %v\n", err)
	}

	return s
}

// TrackVisitor records a unique visitor
func (s *Statistics) TrackVisitor(ip string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.UniqueVisitors[ip] = time.Now()
}

// pageOrigin reduces an analyzed URL to scheme://host, dropping local hosts
func pageOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	if strings.Contains(u.Host, "localhost") || strings.Contains(u.Host, "127.0.0.1") {
		return ""
	}

	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// TrackAnalysis records an analysis request
func (s *Statistics) TrackAnalysis(pageURL string, durationMs float64, hasError bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.AnalysisRequests++

	if origin := pageOrigin(pageURL); origin != "" {
		s.PopularOrigins[origin]++
	}

	if hasError {
		s.ErrorCount++
	}

	s.TotalDuration += durationMs
	s.AverageDuration = s.TotalDuration / float64(s.AnalysisRequests)
}

// GetUniqueVisitorsCount returns the number of unique visitors in the last 24 hours
func (s *Statistics) GetUniqueVisitorsCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.uniqueVisitors()
}

func (s *Statistics) uniqueVisitors() int {
	count := 0
	cutoff := time.Now().Add(-24 * time.Hour)

	for _, lastVisit := range s.UniqueVisitors {
		if lastVisit.After(cutoff) {
			count++
		}
	}

	return count
}

// OriginCount is one entry of the popular origins ranking
type OriginCount struct {
	Origin string `json:"origin"`
	Count  int    `json:"count"`
}

// GetPopularOrigins returns the n most analyzed origins, most frequent first
func (s *Statistics) GetPopularOrigins(n int) []OriginCount {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.popularOrigins(n)
}

func (s *Statistics) popularOrigins(n int) []OriginCount {
	ranking := make([]OriginCount, 0, len(s.PopularOrigins))
	for origin, count := range s.PopularOrigins {
		ranking = append(ranking, OriginCount{origin, count})
	}

	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Count != ranking[j].Count {
			return ranking[i].Count > ranking[j].Count
		}
		return ranking[i].Origin < ranking[j].Origin
	})

	if len(ranking) > n {
		ranking = ranking[:n]
	}
	return ranking
}

// GetErrorRate returns the error rate as a percentage
func (s *Statistics) GetErrorRate() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.errorRate()
}

func (s *Statistics) errorRate() float64 {
	if s.AnalysisRequests == 0 {
		return 0
	}
	return (float64(s.ErrorCount) / float64(s.AnalysisRequests)) * 100
}

// TotalRequests returns the number of analysis requests tracked so far
func (s *Statistics) TotalRequests() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.AnalysisRequests
}

// Save persists the statistics to the configured file
func (s *Statistics) Save() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.LastPersisted = time.Now()

	file, err := os.Create(s.filePath)
	if err != nil {
		return fmt.Errorf("could not create statistics file: %w", err)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(s); err != nil {
		return fmt.Errorf("could not encode statistics: %w", err)
	}

	return nil
}

// Load reads the statistics from the configured file
func (s *Statistics) Load() error {
	file, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Not an error if file doesn't exist yet
		}
		return fmt.Errorf("could not open statistics file: %w", err)
	}
	defer file.Close()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := json.NewDecoder(file).Decode(s); err != nil {
		return fmt.Errorf("could not decode statistics: %w", err)
	}

	if s.UniqueVisitors == nil {
		s.UniqueVisitors = make(map[string]time.Time)
	}
	if s.PopularOrigins == nil {
		s.PopularOrigins = make(map[string]int)
	}

	return nil
}

// GetStatistics returns a summary; popular origins are only shown in dev mode
func (s *Statistics) GetStatistics() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	summary := map[string]interface{}{
		"uniqueVisitors24h": s.uniqueVisitors(),
		"totalRequests":     s.AnalysisRequests,
		"errorRate":         s.errorRate(),
		"averageDuration":   s.AverageDuration,
	}

	if s.devMode {
		summary["popularOrigins"] = s.popularOrigins(5)
	}

	return summary
}
