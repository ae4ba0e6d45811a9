package analyzer

// Snapshot is a read-only view of a single page's structure at one instant
type Snapshot struct {
	HasTitle           bool     `json:"hasTitle"`
	HasMetaDescription bool     `json:"hasMetaDescription"`
	HasH1              bool     `json:"hasH1"`
	Images             []Image  `json:"images"`
	HasStructuredData  bool     `json:"hasStructuredData"`
	Origin             string   `json:"origin"`
	Links              []Link   `json:"links"`
	LoadTimeMs         *float64 `json:"loadTimeMs,omitempty"` // nil when no timing facility exists
	BodyText           string   `json:"bodyText"`
	TitleText          string   `json:"titleText"`
}

type Image struct {
	HasAlt bool   `json:"hasAlt"`
	Src    string `json:"src"`
}

type Link struct {
	Href string `json:"href"`
}

// Check identifies one of the analyzer's rules
type Check string

const (
	CheckTitle           Check = "title"
	CheckMetaDescription Check = "meta-description"
	CheckH1              Check = "h1"
	CheckImageAlt        Check = "image-alt"
	CheckStructuredData  Check = "structured-data"
	CheckRobotsTxt       Check = "robots-txt"
	CheckSitemapXML      Check = "sitemap-xml"
	CheckLoadTime        Check = "load-time"
	CheckInternalLinks   Check = "internal-links"
	CheckKeywordDensity  Check = "keyword-density"
)

// Issue is a single human-readable SEO finding
type Issue struct {
	Check   Check  `json:"check"`
	Message string `json:"message"`
}

// Result is the outcome of one analysis
type Result struct {
	Issues []Issue `json:"issues"`
	Text   string  `json:"result"`
	// Failed is set when Text is a terminal "Analysis failed: ..." message
	Failed bool `json:"failed,omitempty"`
	// Sitemaps lists the sitemap URLs the origin's robots.txt declares
	Sitemaps []string `json:"sitemaps,omitempty"`
}

// HasIssues reports whether the rendered text is an issue report
func (r *Result) HasIssues() bool {
	return r != nil && containsIssueHeader(r.Text)
}

// Float returns a pointer to v, handy for filling Snapshot.LoadTimeMs
func Float(v float64) *float64 {
	return &v
}
