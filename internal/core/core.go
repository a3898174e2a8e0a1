// Package core defines the domain entities shared across the pipeline:
// sources and their articles, embedding spaces, cluster runs and their
// clusters, assignments, summaries, trend metrics and detected events.
package core

import "time"

// Source is a long-lived feed catalogue entry. Rarely mutated after bootstrap.
type Source struct {
	ID            int64      `json:"id"`              // Unique identifier
	URL           string     `json:"url"`             // Feed URL, globally unique
	Name          string     `json:"name"`            // Human-readable name
	Kind          string     `json:"kind"`            // feed, site, social or api
	Country       string     `json:"country"`         // ISO country code
	Lang          string     `json:"lang"`            // Default language of published articles
	TrustTier     string     `json:"trust_tier"`      // A, B or C
	Scope         string     `json:"scope"`           // local, regional, national or international
	PoliticalAxis string     `json:"political_axis"`  // Editorial positioning tag
	Status        string     `json:"status"`          // active or paused
	ErrorRate     float64    `json:"error_rate"`      // Rolling fetch failure rate
	LastFetchAt   *time.Time `json:"last_fetch_at"`   // Last successful feed fetch
	CreatedAt     time.Time  `json:"created_at"`
}

// Article is a normalised piece of content owned by exactly one Source.
// URL, ContentHash and SimHash are immutable once inserted.
type Article struct {
	ID           int64      `json:"id"`
	SourceID     int64      `json:"source_id"`
	URL          string     `json:"url"`           // Globally unique when non-empty
	URLCanonical string     `json:"url_canonical"` // Canonical URL from the extractor
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	Lang         string     `json:"lang"`
	PublishedAt  *time.Time `json:"published_at"` // UTC; nil when the extractor found no date
	RawHTML      string     `json:"raw_html"`
	TextContent  string     `json:"text_content"`
	ContentHash  uint64     `json:"content_hash"` // Keyed BLAKE2b truncated to 64 bits
	SimHash      uint64     `json:"simhash_64"`   // 64-bit SimHash for near-duplicate detection
	QualityScore *float64   `json:"quality_score"`
	CreatedAt    time.Time  `json:"created_at"` // Ingestion time
}

// DuplicateKind classifies how a rejected article matched an existing one.
type DuplicateKind string

const (
	DuplicateExact DuplicateKind = "exact" // Same URL
	DuplicateNear  DuplicateKind = "near"  // SimHash within the Hamming threshold
)

// ArticleDuplicate records a suppressed duplicate for later reconciliation.
type ArticleDuplicate struct {
	ArticleID     int64         `json:"article_id"`      // The surviving article
	DuplicateOfID int64         `json:"duplicate_of_id"` // Kept for symmetry with ad-hoc audits
	Kind          DuplicateKind `json:"kind"`
	Distance      int           `json:"distance"` // Hamming distance, 0 for exact
	CreatedAt     time.Time     `json:"created_at"`
}

// EmbeddingSpace is a registry entry for one embedding model configuration.
// Unique by (name, version).
type EmbeddingSpace struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Dims     int    `json:"dims"` // Declared dimension; updated on provider drift
	Version  string `json:"version"`
}

// ClusterRun is one clustering epoch over an embedding space.
// At most one run per space is active at any moment.
type ClusterRun struct {
	ID         int64          `json:"id"`
	SpaceID    int64          `json:"space_id"`
	Algo       string         `json:"algo"`
	Params     map[string]any `json:"params"` // Includes the assignment threshold
	Status     string         `json:"status"` // running, complete or failed
	IsActive   bool           `json:"is_active"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
}

// Param returns a numeric run parameter, falling back to the default when
// the parameter map does not carry it. JSON decoding stores numbers as
// float64; int covers parameters set in code.
func (r *ClusterRun) Param(name string, def float64) float64 {
	if r == nil || r.Params == nil {
		return def
	}
	switch v := r.Params[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Threshold returns the run's assignment threshold, falling back to the
// default when the parameter map does not carry one.
func (r *ClusterRun) Threshold(def float64) float64 {
	return r.Param("threshold", def)
}

// Cluster is a topical group owned by a ClusterRun. It has no centroid;
// membership grows by attachment through ArticleCluster rows.
type Cluster struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"run_id"`
	Label       string     `json:"label"`
	WindowStart *time.Time `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Assignment links an article to a cluster under a specific run, with the
// similarity recorded at assignment time. At most one row per (run, article).
type Assignment struct {
	RunID      int64     `json:"run_id"`
	ClusterID  int64     `json:"cluster_id"`
	ArticleID  int64     `json:"article_id"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClusterSummary is a versioned LLM output for a cluster. At most one row
// per cluster has IsActive set.
type ClusterSummary struct {
	ID             int64          `json:"id"`
	ClusterID      int64          `json:"cluster_id"`
	Version        int            `json:"version"` // Monotonic per cluster
	IsActive       bool           `json:"is_active"`
	Lang           string         `json:"lang"`
	SummaryMD      string         `json:"summary_md"`
	BiasAnalysisMD string         `json:"bias_analysis_md"`
	TimelineMD     string         `json:"timeline_md"`
	Engine         string         `json:"engine"`
	Metadata       map[string]any `json:"generation_metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TrendMetric is one append-only measurement of a cluster at a wall-clock tick.
type TrendMetric struct {
	TS            time.Time `json:"ts"`
	ClusterID     int64     `json:"cluster_id"`
	RunID         int64     `json:"run_id"`
	DocCount      int       `json:"doc_count"`
	UniqueSources int       `json:"unique_sources"`
	Velocity      float64   `json:"velocity"`     // Articles per hour over the last hour
	Acceleration  float64   `json:"acceleration"` // Velocity delta per hour against the previous tick
	Novelty       float64   `json:"novelty"`      // Fraction of members created in the last six hours
	Locality      *float64  `json:"locality"`     // Reserved, currently always nil
}

// Severity of a detected event, ordered low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a detected trending anomaly for a cluster.
type Event struct {
	ID          int64     `json:"id"`
	RunID       int64     `json:"run_id"`
	ClusterID   int64     `json:"cluster_id"`
	DetectedAt  time.Time `json:"detected_at"`
	Score       float64   `json:"score"`
	Severity    Severity  `json:"severity"`
	Label       string    `json:"label"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// EventMessage is the wire format published on the events channel and
// forwarded verbatim to stream subscribers.
type EventMessage struct {
	EventID    int64   `json:"event_id"`
	ClusterID  int64   `json:"cluster_id"`
	Severity   string  `json:"severity"`
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	DetectedAt string  `json:"detected_at"` // RFC 3339
}
