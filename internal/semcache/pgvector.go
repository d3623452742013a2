package semcache

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PgVectorOptions configures the relational provider.
type PgVectorOptions struct {
	DSN     string
	Table   string
	Dim     int
	Timeout time.Duration
}

// pgvectorStore keeps entries in a Postgres table with a pgvector column.
// Similarity is computed in SQL as 1 - (embedding <=> query), so the
// threshold is applied server-side.
type pgvectorStore struct {
	db      *sqlx.DB
	table   string
	dim     int
	timeout time.Duration

	mu    sync.Mutex
	ready bool
}

// NewPgVector opens the relational provider. The connection pool is created
// eagerly; the schema is created lazily on first use.
func NewPgVector(opts PgVectorOptions) (Store, error) {
	db, err := sqlx.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &pgvectorStore{db: db, table: opts.Table, dim: opts.Dim, timeout: opts.Timeout}, nil
}

// withTimeout caps a query at the configured store timeout, if any.
func (s *pgvectorStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureReady creates the schema on first success and short-circuits after.
// A failed attempt is retried on the next call, so a database that was down
// at startup does not leave the store broken for the process lifetime.
func (s *pgvectorStore) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.ensure(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

func (s *pgvectorStore) ensure(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id bigserial PRIMARY KEY,
			tenant_id text NOT NULL,
			endpoint text NOT NULL,
			backend text NOT NULL,
			llm_source text,
			model text,
			params_hash text NOT NULL DEFAULT '',
			query_text text NOT NULL,
			embedding vector(%d) NOT NULL,
			response_json text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			expires_at timestamptz NOT NULL
		)`, s.table, s.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ann_idx ON %s
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring pgvector schema: %w", err)
		}
	}
	return nil
}

// vectorLiteral renders a pgvector input literal like [0.1,0.2,...].
func vectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.Grow(len(vec) * 10)
	sb.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func (s *pgvectorStore) Search(ctx context.Context, vec []float32, sctx Context, threshold float64) ([]byte, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}

	vstr := vectorLiteral(vec)
	query := fmt.Sprintf(`SELECT response_json, 1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		WHERE tenant_id = $2 AND endpoint = $3 AND backend = $4
		  AND expires_at > now()`, s.table)
	args := []any{vstr, sctx.TenantID, sctx.Endpoint, sctx.Backend}

	if sctx.LLMSource != "" {
		args = append(args, sctx.LLMSource)
		query += fmt.Sprintf(" AND (llm_source IS NULL OR llm_source = $%d)", len(args))
	}
	if sctx.Model != "" {
		args = append(args, sctx.Model)
		query += fmt.Sprintf(" AND (model IS NULL OR model = $%d)", len(args))
	}
	query += " ORDER BY embedding <=> $1::vector LIMIT 1"

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var row struct {
		ResponseJSON string  `db:"response_json"`
		Similarity   float64 `db:"similarity"`
	}
	err := s.db.QueryRowxContext(qctx, query, args...).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("searching pgvector: %w", err)
	}
	if row.Similarity < threshold {
		return nil, nil
	}
	return []byte(row.ResponseJSON), nil
}

func (s *pgvectorStore) IndexDoc(ctx context.Context, vec []float32, sctx Context, queryText string, response []byte, ttl time.Duration) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s
		(tenant_id, endpoint, backend, llm_source, model, query_text, embedding, response_json, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9, $10)`, s.table)

	qctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(qctx, query,
		sctx.TenantID,
		sctx.Endpoint,
		sctx.Backend,
		nullable(sctx.LLMSource),
		nullable(sctx.Model),
		queryText,
		vectorLiteral(vec),
		string(response),
		now,
		now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("inserting into pgvector: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close releases the connection pool.
func (s *pgvectorStore) Close() error {
	return s.db.Close()
}
