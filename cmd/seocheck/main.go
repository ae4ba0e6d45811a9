// Command seocheck analyzes one page and prints its SEO issues.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/seo-optimizer/seocheck/analyzer"
	"github.com/seo-optimizer/seocheck/config"
	"github.com/seo-optimizer/seocheck/export"
	"github.com/seo-optimizer/seocheck/page"
)

type options struct {
	url      string
	render   bool
	out      string
	timeout  time.Duration
	noProbes bool
}

func main() {
	config.LoadEnv()
	cfg := config.FromEnv()

	opts := parseFlags(cfg)
	if opts.url == "" && flag.NArg() > 0 {
		opts.url = flag.Arg(0)
	}
	if opts.url == "" {
		fmt.Fprintln(os.Stderr, "usage: seocheck [-render] [-out dir] [-timeout 30s] [-no-probes] -url <page>")
		os.Exit(2)
	}

	os.Exit(run(context.Background(), opts, cfg, os.Stdout))
}

func parseFlags(cfg config.Config) options {
	var opts options

	flag.StringVar(&opts.url, "url", "", "Page to analyze")
	flag.BoolVar(&opts.render, "render", cfg.Render, "Render the page in headless Chrome")
	flag.StringVar(&opts.out, "out", "", "Directory to write seo_issues.txt to when issues are found")
	flag.DurationVar(&opts.timeout, "timeout", 2*cfg.FetchTimeout, "Overall time limit")
	flag.BoolVar(&opts.noProbes, "no-probes", false, "Skip the robots.txt and sitemap.xml checks")

	flag.Parse()
	return opts
}

// run analyzes one page and returns the process exit code
func run(ctx context.Context, opts options, cfg config.Config, w io.Writer) int {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	loader, closeLoader := newLoader(opts, cfg)
	defer closeLoader()

	snap, err := loader.Load(ctx, opts.url)
	if err != nil {
		color.New(color.FgRed).Fprintln(w, analyzer.FailureText(err))
		return 1
	}

	var prober analyzer.Prober
	if !opts.noProbes {
		httpProber := analyzer.NewHTTPProber(analyzer.NewHTTPClient(cfg.ProbeTimeout), nil)
		httpProber.SetUserAgent(cfg.UserAgent)
		prober = httpProber
	}

	seoAnalyzer := analyzer.New(prober, nil)
	seoAnalyzer.SetProbeTimeout(cfg.ProbeTimeout)

	return report(w, seoAnalyzer.Analyze(ctx, snap), opts.out)
}

// report prints the result, exports it to out when it lists issues and
// returns the exit code
func report(w io.Writer, result *analyzer.Result, out string) int {
	if result.Failed {
		color.New(color.FgRed).Fprintln(w, result.Text)
		return 1
	}

	printResult(w, result)

	if result.HasIssues() && len(result.Sitemaps) > 0 && hasCheck(result, analyzer.CheckSitemapXML) {
		fmt.Fprintf(w, "robots.txt declares: %s\n", strings.Join(result.Sitemaps, ", "))
	}

	if out != "" && result.HasIssues() {
		path, err := export.WriteFile(out, result.Text)
		if err != nil {
			log.Printf("Failed to export issues: %v", err)
			return 1
		}
		fmt.Fprintf(w, "Issues written to %s\n", path)
	}

	return 0
}

func hasCheck(result *analyzer.Result, check analyzer.Check) bool {
	for _, issue := range result.Issues {
		if issue.Check == check {
			return true
		}
	}
	return false
}

func newLoader(opts options, cfg config.Config) (page.Loader, func()) {
	if opts.render {
		browser := page.NewBrowserLoader(opts.timeout)
		browser.SetUserAgent(cfg.UserAgent)
		return browser, browser.Close
	}

	loader := page.NewHTTPLoader(analyzer.NewHTTPClient(cfg.FetchTimeout))
	loader.SetUserAgent(cfg.UserAgent)
	return loader, func() {}
}

// printResult writes the report, highlighting the header and issue lines
func printResult(w io.Writer, result *analyzer.Result) {
	if !result.HasIssues() {
		color.New(color.FgGreen).Fprintln(w, result.Text)
		return
	}

	header := color.New(color.FgYellow, color.Bold)
	issue := color.New(color.FgRed)

	lines := strings.Split(result.Text, "\n")
	header.Fprintln(w, lines[0])
	for _, line := range lines[1:] {
		issue.Fprintln(w, line)
	}
}
