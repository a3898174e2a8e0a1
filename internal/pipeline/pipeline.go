// Package pipeline implements the ingestion and clustering workers: the
// beat-driven dispatcher that fans source feeds out into jobs, the article
// processor that downloads, extracts and deduplicates content, and the
// clusterer that embeds stored articles and attaches them to topical
// clusters under the active run.
package pipeline

import "time"

// Config holds the tunables shared by the pipeline workers.
type Config struct {
	// IngestTTL bounds how long a queued feed fetch stays valid. A stalled
	// queue sheds outdated ticks instead of replaying them.
	IngestTTL time.Duration

	// TrendsTTL bounds how long a queued trends computation stays valid.
	TrendsTTL time.Duration

	// ArticleTimeout is the per-article download deadline.
	ArticleTimeout time.Duration

	// UserAgent identifies the ingestion bot to origin servers.
	UserAgent string

	// SpaceName, SpaceProvider and SpaceDims describe the default embedding
	// space, created lazily on first use.
	SpaceName     string
	SpaceProvider string
	SpaceDims     int

	// Window bounds neighbour candidates by article age.
	Window time.Duration

	// Neighbors is the number of nearest neighbours considered per article.
	Neighbors int

	// DefaultThreshold is the assignment similarity floor used when the
	// active run carries no threshold parameter.
	DefaultThreshold float64

	// MinSummarySize is the member count at which summarisation starts.
	MinSummarySize int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		IngestTTL:        10 * time.Minute,
		TrendsTTL:        4 * time.Minute,
		ArticleTimeout:   15 * time.Second,
		UserAgent:        "veille-ingestion-bot/0.1",
		SpaceName:        "mistral-embed",
		SpaceProvider:    "mistral",
		SpaceDims:        1024,
		Window:           48 * time.Hour,
		Neighbors:        5,
		DefaultThreshold: 0.80,
		MinSummarySize:   3,
	}
}
