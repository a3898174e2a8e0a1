// Package extract turns raw article HTML into structured fields. The
// Extractor interface keeps the processor decoupled from the concrete
// engine, so an external extraction service can slot in behind it.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Result carries the structured output of one extraction. The three date
// variants come back separately; the processor reconciles them.
type Result struct {
	Title        string
	Text         string
	Authors      []string
	Date         *time.Time
	DatePublish  *time.Time
	DateModify   *time.Time
	CanonicalURL string
	Language     string
}

// Extractor produces structured content from raw HTML.
type Extractor interface {
	Extract(ctx context.Context, rawHTML, sourceURL string) (*Result, error)
}

// HTMLExtractor extracts content with CSS selectors and meta tags.
type HTMLExtractor struct{}

// NewHTMLExtractor creates the selector based extractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Extract(_ context.Context, rawHTML, sourceURL string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html from %s: %w", sourceURL, err)
	}

	res := &Result{
		Title:        extractTitle(doc),
		Authors:      extractAuthors(doc),
		CanonicalURL: extractCanonical(doc),
		Language:     extractLanguage(doc),
		DatePublish:  parseDate(metaContent(doc, "meta[property='article:published_time']")),
		DateModify:   parseDate(metaContent(doc, "meta[property='article:modified_time']")),
	}
	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		res.Date = parseDate(datetime)
	}

	// Text extraction mutates the document, so it runs last
	res.Text = extractText(doc)
	return res, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); ogTitle != "" {
		return strings.TrimSpace(ogTitle)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func extractAuthors(doc *goquery.Document) []string {
	var authors []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" && !seen[name] {
			seen[name] = true
			authors = append(authors, name)
		}
	}

	doc.Find("meta[name='author']").Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			add(content)
		}
	})
	doc.Find("meta[property='article:author']").Each(func(_ int, s *goquery.Selection) {
		// article:author is sometimes a profile URL rather than a name
		if content, ok := s.Attr("content"); ok && !strings.HasPrefix(content, "http") {
			add(content)
		}
	})
	return authors
}

func extractCanonical(doc *goquery.Document) string {
	if href, ok := doc.Find("link[rel='canonical']").Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if ogURL, ok := doc.Find("meta[property='og:url']").Attr("content"); ok {
		return strings.TrimSpace(ogURL)
	}
	return ""
}

func extractLanguage(doc *goquery.Document) string {
	lang, ok := doc.Find("html").Attr("lang")
	if !ok || lang == "" {
		lang = metaContent(doc, "meta[property='og:locale']")
	}
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return content
}

// extractText strips boilerplate, then joins block level text from the
// first matching content container, falling back to the whole body.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .cookie-banner").Remove()

	var parts []string
	collect := func(s *goquery.Selection) {
		s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
			if text := strings.TrimSpace(item.Text()); text != "" {
				parts = append(parts, text)
			}
		})
	}

	containers := []string{
		"article", "main", "[role='main']",
		".article-body", ".entry-content", ".post-content", ".main-content",
		"#content", ".content",
	}
	for _, selector := range containers {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			collect(sel)
			if len(parts) > 0 {
				break
			}
		}
	}
	if len(parts) == 0 {
		collect(doc.Find("body").First())
	}

	return strings.Join(parts, "\n\n")
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate tries the known layouts. Naive timestamps carry no zone and
// come back as UTC.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}
