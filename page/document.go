// Package page turns web pages into analyzer snapshots.
package page

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seo-optimizer/seocheck/analyzer"
)

// FromDocument reads the structural facts the analyzer needs from a parsed
// document. Image sources and link targets are resolved the way a browser
// resolves img.src and a.href: against <base href> when present, otherwise
// against pageURL. The snapshot carries no load time.
func FromDocument(doc *goquery.Document, pageURL *url.URL) *analyzer.Snapshot {
	base := baseURL(doc, pageURL)
	title := doc.Find("title").First()

	snap := &analyzer.Snapshot{
		HasTitle:           title.Length() > 0,
		HasMetaDescription: doc.Find(`meta[name="description"]`).Length() > 0,
		HasH1:              doc.Find("h1").Length() > 0,
		HasStructuredData:  doc.Find("[itemtype]").Length() > 0,
		Origin:             Origin(pageURL),
		BodyText:           VisibleText(doc),
		TitleText:          strings.Join(strings.Fields(title.Text()), " "),
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		alt, _ := s.Attr("alt")
		snap.Images = append(snap.Images, analyzer.Image{
			HasAlt: alt != "",
			Src:    resolvedAttr(s, "src", base),
		})
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		snap.Links = append(snap.Links, analyzer.Link{
			Href: resolvedAttr(s, "href", base),
		})
	})

	return snap
}

// Origin returns scheme://host[:port] with the scheme's default port dropped
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + canonicalHost(u)
}

func baseURL(doc *goquery.Document, pageURL *url.URL) *url.URL {
	href, exists := doc.Find("base[href]").First().Attr("href")
	if !exists || pageURL == nil {
		return pageURL
	}

	base, err := pageURL.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return base
}

// resolvedAttr returns the absolute form of a URL attribute, an empty string
// when the attribute is absent, and the raw value when it cannot be resolved
func resolvedAttr(s *goquery.Selection, name string, base *url.URL) string {
	raw, exists := s.Attr(name)
	if !exists {
		return ""
	}

	raw = strings.TrimSpace(raw)
	if base == nil {
		return raw
	}

	resolved, err := base.Parse(raw)
	if err != nil {
		return raw
	}
	if resolved.Host != "" {
		resolved.Host = canonicalHost(resolved)
	}
	return resolved.String()
}

func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()

	scheme := strings.ToLower(u.Scheme)
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}

	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}
