package stats

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const monthLayout = "2006-01"

// RetainMonths is how many months before the current one are kept
const RetainMonths = 1

// Counters is a set of increments applied to the current month
type Counters struct {
	Analyses         int
	IssuesReported   int
	ProbeCacheHits   int
	ProbeCacheMisses int
	ProbeFailures    int
}

// MonthlyStats represents statistics for a specific month
type MonthlyStats struct {
	Analyses         int       `json:"analyses"`
	IssuesReported   int       `json:"issues_reported"`
	ProbeCacheHits   int       `json:"probe_hits"`
	ProbeCacheMisses int       `json:"probe_misses"`
	ProbeFailures    int       `json:"probe_failures"`
	LastUpdated      time.Time `json:"last_updated"`
}

// Storage handles persistent storage of operational counters
type Storage struct {
	mutex       sync.RWMutex
	stats       map[string]*MonthlyStats // key: "YYYY-MM"
	filePath    string
	lastWrite   time.Time
	writeBuffer chan struct{}
	done        chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// NewStorage creates a new statistics storage instance
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		stats:       make(map[string]*MonthlyStats),
		filePath:    filepath.Join(dataDir, "stats.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		now:         time.Now,
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	s.Cleanup(RetainMonths)

	go s.backgroundWriter()

	return s, nil
}

// load reads statistics from file
func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.stats)
}

// save writes statistics to file
func (s *Storage) save() error {
	s.mutex.RLock()
	data, err := json.Marshal(s.stats)
	s.mutex.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	// Write to a temporary file first, then rename over the real one
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// backgroundWriter handles requested and periodic writes to disk
func (s *Storage) backgroundWriter() {
	defer close(s.stopped)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
			s.saveAndLog()
		case <-ticker.C:
			s.Cleanup(RetainMonths)
			s.saveAndLog()
		case <-s.done:
			return
		}
	}
}

func (s *Storage) saveAndLog() {
	if err := s.save(); err != nil {
		log.Printf("Failed to save statistics: %v", err)
	}
}

func (s *Storage) currentMonth() string {
	return s.now().Format(monthLayout)
}

// requestWrite signals that a write to disk is needed
func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// write already pending
	}
}

// Add applies the counters to the current month
func (s *Storage) Add(c Counters) {
	month := s.currentMonth()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats, exists := s.stats[month]
	if !exists {
		stats = &MonthlyStats{}
		s.stats[month] = stats
	}

	stats.Analyses += c.Analyses
	stats.IssuesReported += c.IssuesReported
	stats.ProbeCacheHits += c.ProbeCacheHits
	stats.ProbeCacheMisses += c.ProbeCacheMisses
	stats.ProbeFailures += c.ProbeFailures
	stats.LastUpdated = s.now()

	// Request a write if enough time has passed
	if time.Since(s.lastWrite) > time.Minute {
		s.requestWrite()
		s.lastWrite = time.Now()
	}
}

// GetCurrentStats returns statistics for the current month
func (s *Storage) GetCurrentStats() MonthlyStats {
	stats, _ := s.GetMonthlyStats(s.currentMonth())
	return stats
}

// GetMonthlyStats returns statistics for a specific month
func (s *Storage) GetMonthlyStats(yearMonth string) (MonthlyStats, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stats, exists := s.stats[yearMonth]; exists {
		return *stats, true
	}
	return MonthlyStats{}, false
}

// GetAllMonths returns all months that have statistics, newest first
func (s *Storage) GetAllMonths() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	months := make([]string, 0, len(s.stats))
	for month := range s.stats {
		months = append(months, month)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	return months
}

// Cleanup keeps the current month and the retainMonths months before it
func (s *Storage) Cleanup(retainMonths int) {
	if retainMonths < 0 {
		retainMonths = 0
	}

	now := s.now()
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	oldest := firstOfMonth.AddDate(0, -retainMonths, 0).Format(monthLayout)

	removed := 0
	s.mutex.Lock()
	for key := range s.stats {
		// YYYY-MM keys sort chronologically
		if key < oldest {
			delete(s.stats, key)
			removed++
		}
	}
	s.mutex.Unlock()

	if removed > 0 {
		s.requestWrite()
		log.Printf("Removed statistics for %d month(s) before %s", removed, oldest)
	}
}

// Shutdown stops the background writer and flushes the counters to disk
func (s *Storage) Shutdown() error {
	if s == nil {
		return nil
	}

	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped

	return s.save()
}
