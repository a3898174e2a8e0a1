package persistence

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db         *sql.DB
	sources    SourceRepository
	articles   ArticleRepository
	spaces     SpaceRepository
	embeddings EmbeddingRepository
	runs       RunRepository
	clusters   ClusterRepository
	summaries  SummaryRepository
	metrics    MetricRepository
	events     EventRepository
}

// NewPostgresDB opens a connection pool and wires the repositories.
// Zero or negative pool settings fall back to the defaults.
func NewPostgresDB(connectionString string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxOpen <= 0 {
		maxOpen = 15
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if connMaxLifetime <= 0 {
		connMaxLifetime = time.Hour
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pgDB := &PostgresDB{db: db}
	pgDB.sources = &postgresSourceRepo{db: db}
	pgDB.articles = &postgresArticleRepo{db: db}
	pgDB.spaces = &postgresSpaceRepo{db: db}
	pgDB.embeddings = &postgresEmbeddingRepo{db: db}
	pgDB.runs = &postgresRunRepo{db: db}
	pgDB.clusters = &postgresClusterRepo{db: db}
	pgDB.summaries = &postgresSummaryRepo{db: db}
	pgDB.metrics = &postgresMetricRepo{db: db}
	pgDB.events = &postgresEventRepo{db: db}

	return pgDB, nil
}

func (p *PostgresDB) Sources() SourceRepository       { return p.sources }
func (p *PostgresDB) Articles() ArticleRepository     { return p.articles }
func (p *PostgresDB) Spaces() SpaceRepository         { return p.spaces }
func (p *PostgresDB) Embeddings() EmbeddingRepository { return p.embeddings }
func (p *PostgresDB) Runs() RunRepository             { return p.runs }
func (p *PostgresDB) Clusters() ClusterRepository     { return p.clusters }
func (p *PostgresDB) Summaries() SummaryRepository    { return p.summaries }
func (p *PostgresDB) Metrics() MetricRepository       { return p.metrics }
func (p *PostgresDB) Events() EventRepository         { return p.events }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// formatVector renders the pgvector input literal, e.g. "[0.1,0.2,0.3]".
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses the pgvector text representation back into floats.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", s)
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %w", p, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// simhashToDB maps the unsigned fingerprint onto BIGINT; simhashFromDB
// reverses it. The cast preserves all 64 bits.
func simhashToDB(h uint64) int64 { return int64(h) }

func simhashFromDB(v int64) uint64 { return uint64(v) }

// hashToBytes encodes the content hash big-endian for BYTEA storage.
func hashToBytes(h uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)
	return b
}

func hashFromBytes(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
