package pipeline

// Job kinds understood by the worker pool. The beat process and the
// handlers enqueue them; the worker command binds each kind to a handler.
const (
	KindIngestSource     = "ingest_source"
	KindProcessArticle   = "process_article"
	KindEmbedAndCluster  = "embed_and_cluster"
	KindIndexArticle     = "index_article"
	KindSummarizeCluster = "summarize_cluster"
	KindComputeTrends    = "compute_trends"
)

// IngestSourcePayload asks a worker to fetch one source feed.
type IngestSourcePayload struct {
	SourceID int64 `json:"source_id"`
}

// ProcessArticlePayload asks a worker to download and store one article.
type ProcessArticlePayload struct {
	SourceID int64  `json:"source_id"`
	URL      string `json:"url"`
}

// EmbedAndClusterPayload asks a worker to embed a stored article and attach
// it to a cluster.
type EmbedAndClusterPayload struct {
	ArticleID int64 `json:"article_id"`
}

// IndexArticlePayload asks a worker to push a stored article to the search
// index.
type IndexArticlePayload struct {
	ArticleID int64 `json:"article_id"`
}

// SummarizeClusterPayload asks a worker to generate a cluster summary.
type SummarizeClusterPayload struct {
	ClusterID int64 `json:"cluster_id"`
}

// ComputeTrendsPayload asks a worker to run one trend metrics pass.
type ComputeTrendsPayload struct{}
