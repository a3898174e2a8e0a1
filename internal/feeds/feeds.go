// Package feeds fetches RSS/Atom feeds and normalises their entries for the
// ingestion pipeline.
package feeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one normalised feed item. Published falls back to the updated
// timestamp when the feed carries no publication date.
type Entry struct {
	Title     string
	Link      string
	GUID      string
	Summary   string
	Published *time.Time
}

// Fetcher downloads and parses feeds with a fixed deadline per fetch.
type Fetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewFetcher creates a fetcher. A non-positive timeout falls back to 10s.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	parser := gofeed.NewParser()
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	parser.Client = &http.Client{Timeout: timeout}
	return &Fetcher{parser: parser, timeout: timeout}
}

// Fetch retrieves the feed and returns its entries in document order.
// Entries without a link are dropped; nothing downstream can use them.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		entry := Entry{
			Title:   strings.TrimSpace(item.Title),
			Link:    link,
			GUID:    item.GUID,
			Summary: item.Description,
		}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			entry.Published = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			entry.Published = &t
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
