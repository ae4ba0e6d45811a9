package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/seo-optimizer/seocheck/stats"
)

const (
	loadTimeLimitMs   = 3000
	minInternalLinks  = 10
	minKeywordDensity = 0.01

	// DefaultProbeTimeout bounds each robots.txt / sitemap.xml probe
	DefaultProbeTimeout = 5 * time.Second

	issuesHeader = "SEO Issues:"
	noIssuesText = "No major SEO issues found!"
)

// siteFile is a well-known file probed relative to the page origin
type siteFile struct {
	check   Check
	path    string
	message string
}

var siteFiles = []siteFile{
	{CheckRobotsTxt, "/robots.txt", "Missing or inaccessible robots.txt."},
	{CheckSitemapXML, "/sitemap.xml", "Missing or inaccessible sitemap.xml."},
}

// Analyzer evaluates the on-page SEO rules against a page snapshot
type Analyzer struct {
	prober       Prober
	probeTimeout time.Duration
	stats        *stats.Storage
}

// New creates a new Analyzer. A nil prober disables the robots.txt and
// sitemap.xml checks; a nil storage disables counters.
func New(prober Prober, storage *stats.Storage) *Analyzer {
	return &Analyzer{
		prober:       prober,
		probeTimeout: DefaultProbeTimeout,
		stats:        storage,
	}
}

// SetProbeTimeout sets the per-probe timeout
func (a *Analyzer) SetProbeTimeout(timeout time.Duration) {
	if timeout > 0 {
		a.probeTimeout = timeout
	}
}

// Analyze runs every check in order and renders the report. It waits for the
// reachability probes, so their findings are always part of the result.
func (a *Analyzer) Analyze(ctx context.Context, snap *Snapshot) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Analysis panic recovered: %v\nStack trace:\n%s", r, debug.Stack())
			result = failedResult(fmt.Errorf("%v", r))
		}
	}()

	if snap == nil {
		return failedResult(errors.New("no page snapshot"))
	}

	// Probes run while the document checks are evaluated
	waitProbes := a.startProbes(ctx, snap.Origin)

	issues := make([]Issue, 0, 8)
	issues = append(issues, checkTitle(snap)...)
	issues = append(issues, checkMetaDescription(snap)...)
	issues = append(issues, checkH1(snap)...)
	issues = append(issues, checkImageAlt(snap)...)
	issues = append(issues, checkStructuredData(snap)...)

	probeIssues := waitProbes()
	issues = append(issues, probeIssues...)

	issues = append(issues, checkLoadTime(snap)...)
	issues = append(issues, checkInternalLinks(snap)...)
	issues = append(issues, checkKeywordDensity(snap)...)

	if a.stats != nil {
		a.stats.Add(stats.Counters{
			Analyses:       1,
			IssuesReported: len(issues),
			ProbeFailures:  len(probeIssues),
		})
	}

	result = &Result{
		Issues: issues,
		Text:   Render(issues),
	}

	if source, ok := a.prober.(SitemapSource); ok {
		result.Sitemaps = source.DeclaredSitemaps(snap.Origin)
		if len(result.Sitemaps) > 0 && hasCheck(probeIssues, CheckSitemapXML) {
			log.Printf("%s has no /sitemap.xml but robots.txt declares %s", snap.Origin, strings.Join(result.Sitemaps, ", "))
		}
	}

	return result
}

func failedResult(err error) *Result {
	return &Result{Text: FailureText(err), Failed: true}
}

func hasCheck(issues []Issue, check Check) bool {
	for _, issue := range issues {
		if issue.Check == check {
			return true
		}
	}
	return false
}

// startProbes launches one probe per site file and returns a function that
// blocks until all of them finished, yielding their issues in fixed order.
// A panicking prober is re-raised on the waiting goroutine.
func (a *Analyzer) startProbes(ctx context.Context, origin string) func() []Issue {
	if a.prober == nil {
		return func() []Issue { return nil }
	}

	failed := make([]bool, len(siteFiles))
	panics := make([]interface{}, len(siteFiles))
	var wg sync.WaitGroup
	for i, f := range siteFiles {
		wg.Add(1)
		go func(i int, f siteFile) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Probe %s%s panicked: %v\nStack trace:\n%s", origin, f.path, r, debug.Stack())
					panics[i] = r
				}
			}()

			probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
			defer cancel()

			if err := a.prober.Probe(probeCtx, origin, f.path); err != nil {
				log.Printf("Probe %s%s failed: %v", origin, f.path, err)
				failed[i] = true
			}
		}(i, f)
	}

	return func() []Issue {
		wg.Wait()

		for i, f := range siteFiles {
			if panics[i] != nil {
				panic(fmt.Sprintf("probe %s: %v", f.path, panics[i]))
			}
		}

		var issues []Issue
		for i, f := range siteFiles {
			if failed[i] {
				issues = append(issues, Issue{Check: f.check, Message: f.message})
			}
		}
		return issues
	}
}

func checkTitle(snap *Snapshot) []Issue {
	if snap.HasTitle {
		return nil
	}
	return []Issue{{Check: CheckTitle, Message: "Missing title tag."}}
}

func checkMetaDescription(snap *Snapshot) []Issue {
	if snap.HasMetaDescription {
		return nil
	}
	return []Issue{{Check: CheckMetaDescription, Message: "Missing meta description."}}
}

func checkH1(snap *Snapshot) []Issue {
	if snap.HasH1 {
		return nil
	}
	return []Issue{{Check: CheckH1, Message: "Missing H1 tag."}}
}

// checkImageAlt reports every image without a non-empty alt, in document order
func checkImageAlt(snap *Snapshot) []Issue {
	var issues []Issue
	for _, img := range snap.Images {
		if !img.HasAlt {
			issues = append(issues, Issue{
				Check:   CheckImageAlt,
				Message: "Image missing alt attribute: " + img.Src,
			})
		}
	}
	return issues
}

func checkStructuredData(snap *Snapshot) []Issue {
	if snap.HasStructuredData {
		return nil
	}
	return []Issue{{Check: CheckStructuredData, Message: "No structured data (schema.org) found."}}
}

// checkLoadTime is skipped when the page exposed no timing
func checkLoadTime(snap *Snapshot) []Issue {
	if snap.LoadTimeMs == nil || *snap.LoadTimeMs <= loadTimeLimitMs {
		return nil
	}
	return []Issue{{Check: CheckLoadTime, Message: "Page load time is more than 3 seconds."}}
}

func checkInternalLinks(snap *Snapshot) []Issue {
	if CountInternalLinks(snap) >= minInternalLinks {
		return nil
	}
	return []Issue{{Check: CheckInternalLinks, Message: "Less than 10 internal links found."}}
}

// CountInternalLinks counts links whose href starts with the page origin.
// The match is a plain case-sensitive prefix; an empty origin matches nothing.
func CountInternalLinks(snap *Snapshot) int {
	if snap.Origin == "" {
		return 0
	}

	count := 0
	for _, link := range snap.Links {
		if strings.HasPrefix(link.Href, snap.Origin) {
			count++
		}
	}
	return count
}

// checkKeywordDensity is skipped when the title has no keyword
func checkKeywordDensity(snap *Snapshot) []Issue {
	density, ok := KeywordDensity(snap)
	if !ok || density >= minKeywordDensity {
		return nil
	}
	return []Issue{{Check: CheckKeywordDensity, Message: "Keyword density is less than 1%."}}
}

// KeywordDensity returns occurrences of the first title word in the body text
// divided by the body word count. ok is false when the title has no words;
// an empty body has density 0.
func KeywordDensity(snap *Snapshot) (density float64, ok bool) {
	keyword := firstWord(snap.TitleText)
	if keyword == "" {
		return 0, false
	}

	wordCount := len(strings.Fields(snap.BodyText))
	if wordCount == 0 {
		return 0, true
	}

	return float64(countOccurrences(snap.BodyText, keyword)) / float64(wordCount), true
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// countOccurrences counts non-overlapping, case-insensitive substring matches
func countOccurrences(text, keyword string) int {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(keyword))
	return len(re.FindAllStringIndex(text, -1))
}

// Render turns an issue list into the report text
func Render(issues []Issue) string {
	if len(issues) == 0 {
		return noIssuesText
	}

	var b strings.Builder
	b.WriteString(issuesHeader)
	for _, issue := range issues {
		b.WriteString("\n- ")
		b.WriteString(issue.Message)
	}
	return b.String()
}

// FailureText is the terminal message shown when a page could not be analyzed
func FailureText(err error) string {
	return "Analysis failed: " + err.Error()
}

func containsIssueHeader(text string) bool {
	return strings.Contains(text, issuesHeader)
}
