package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"veille/internal/persistence"

	"github.com/go-chi/chi/v5"
)

// TopicListItem is one active cluster in the list view.
type TopicListItem struct {
	ID           int64      `json:"id"`
	RunID        int64      `json:"run_id"`
	Label        string     `json:"label,omitempty"`
	WindowStart  *time.Time `json:"window_start"`
	WindowEnd    *time.Time `json:"window_end"`
	CreatedAt    time.Time  `json:"created_at"`
	ArticleCount int        `json:"article_count"`
}

// TopicsListResponse is the paginated topics payload.
type TopicsListResponse struct {
	Total  int             `json:"total"`
	Topics []TopicListItem `json:"topics"`
	Skip   int             `json:"skip"`
	Limit  int             `json:"limit"`
}

// ArticleInTopic is a member article in the detail view.
type ArticleInTopic struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	SourceID    int64      `json:"source_id"`
	PublishedAt *time.Time `json:"published_at"`
	Lang        string     `json:"lang"`
	Similarity  *float64   `json:"similarity"`
}

// TopicSummary is the active summary attached to a topic detail.
type TopicSummary struct {
	Version        int       `json:"version"`
	Lang           string    `json:"lang"`
	SummaryMD      string    `json:"summary_md"`
	BiasAnalysisMD string    `json:"bias_analysis_md"`
	TimelineMD     string    `json:"timeline_md"`
	Engine         string    `json:"engine"`
	CreatedAt      time.Time `json:"created_at"`
}

// TopicDetailResponse is the cluster detail payload with its member
// articles, most recent first, and the active summary when one exists.
type TopicDetailResponse struct {
	ID          int64            `json:"id"`
	RunID       int64            `json:"run_id"`
	Label       string           `json:"label,omitempty"`
	WindowStart *time.Time       `json:"window_start"`
	WindowEnd   *time.Time       `json:"window_end"`
	CreatedAt   time.Time        `json:"created_at"`
	Articles    []ArticleInTopic `json:"articles"`
	Summary     *TopicSummary    `json:"summary,omitempty"`
}

// handleListTopics handles GET /api/v1/topics
func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	skip := queryInt(r, "skip", 0)
	limit := clampLimit(queryInt(r, "limit", 20))

	clusters, total, err := s.db.Clusters().ListActive(ctx, limit, skip)
	if err != nil {
		s.log.Error("Failed to list topics", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load topics")
		return
	}

	topics := make([]TopicListItem, len(clusters))
	for i, cluster := range clusters {
		topics[i] = TopicListItem{
			ID:           cluster.ID,
			RunID:        cluster.RunID,
			Label:        cluster.Label,
			WindowStart:  cluster.WindowStart,
			WindowEnd:    cluster.WindowEnd,
			CreatedAt:    cluster.CreatedAt,
			ArticleCount: cluster.ArticleCount,
		}
	}

	s.respondJSON(w, http.StatusOK, TopicsListResponse{
		Total:  total,
		Topics: topics,
		Skip:   skip,
		Limit:  limit,
	})
}

// handleGetTopic handles GET /api/v1/topics/{id}
func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid topic ID")
		return
	}

	cluster, err := s.db.Clusters().GetActive(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "Topic not found or not active")
		return
	}
	if err != nil {
		s.log.Error("Failed to get topic", "cluster_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load topic")
		return
	}

	members, err := s.db.Clusters().ListMembers(ctx, id)
	if err != nil {
		s.log.Error("Failed to list topic members", "cluster_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load topic")
		return
	}
	similarities := make(map[int64]float64, len(members))
	for _, m := range members {
		similarities[m.ArticleID] = m.Similarity
	}

	articles, err := s.db.Articles().ListByCluster(ctx, cluster.RunID, id)
	if err != nil {
		s.log.Error("Failed to list topic articles", "cluster_id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to load topic")
		return
	}

	items := make([]ArticleInTopic, len(articles))
	for i, article := range articles {
		item := ArticleInTopic{
			ID:          article.ID,
			Title:       article.Title,
			URL:         article.URL,
			SourceID:    article.SourceID,
			PublishedAt: article.PublishedAt,
			Lang:        article.Lang,
		}
		if sim, ok := similarities[article.ID]; ok {
			item.Similarity = &sim
		}
		items[i] = item
	}

	response := TopicDetailResponse{
		ID:          cluster.ID,
		RunID:       cluster.RunID,
		Label:       cluster.Label,
		WindowStart: cluster.WindowStart,
		WindowEnd:   cluster.WindowEnd,
		CreatedAt:   cluster.CreatedAt,
		Articles:    items,
	}

	// A missing or unreadable summary leaves the field empty rather than
	// failing the whole detail view.
	summary, err := s.db.Summaries().ActiveForCluster(ctx, id)
	if err != nil {
		s.log.Warn("Failed to load topic summary", "cluster_id", id, "error", err)
	} else if summary != nil {
		response.Summary = &TopicSummary{
			Version:        summary.Version,
			Lang:           summary.Lang,
			SummaryMD:      summary.SummaryMD,
			BiasAnalysisMD: summary.BiasAnalysisMD,
			TimelineMD:     summary.TimelineMD,
			Engine:         summary.Engine,
			CreatedAt:      summary.CreatedAt,
		}
	}

	s.respondJSON(w, http.StatusOK, response)
}
