// Package semcache implements the semantic (embedding-similarity) response
// cache over pluggable vector stores.
package semcache

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Context carries the hard filters of a semantic lookup. TenantID, Endpoint
// and Backend always match exactly; LLMSource and Model narrow the match
// when set, and entries stored without them match any query context.
type Context struct {
	TenantID  string
	Endpoint  string
	Backend   string
	LLMSource string
	Model     string
}

// Store is the provider-agnostic vector-store surface. Implementations must
// treat expiry as a filter: entries whose expires_at has passed are never
// returned.
type Store interface {
	// EnsureReady idempotently creates the index or schema.
	EnsureReady(ctx context.Context) error
	// Search returns the stored response of the nearest neighbour whose
	// cosine similarity is >= threshold, or nil on miss.
	Search(ctx context.Context, vec []float32, sctx Context, threshold float64) ([]byte, error)
	// IndexDoc appends a new entry expiring after ttl. Existing entries for
	// the same context are kept; duplicates are acceptable.
	IndexDoc(ctx context.Context, vec []float32, sctx Context, queryText string, response []byte, ttl time.Duration) error
}

// Embedder is the slice of embedding.Client the cache needs.
type Embedder interface {
	Enabled() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache glues an Embedder to a Store. All operations are best-effort: any
// embedder or store failure is logged and reported as a miss (reads) or
// dropped (writes). A nil *Cache is valid and disabled.
type Cache struct {
	store     Store
	embedder  Embedder
	threshold float64
	ttl       time.Duration
	logger    *slog.Logger
}

// New creates a semantic cache with a global similarity threshold in [0, 1].
func New(store Store, embedder Embedder, threshold float64, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		store:     store,
		embedder:  embedder,
		threshold: threshold,
		ttl:       ttl,
		logger:    logger,
	}
}

// Enabled reports whether lookups can be served at all.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil && c.embedder != nil && c.embedder.Enabled()
}

// EnsureReady prepares the backing store. Failure disables nothing; later
// reads simply miss.
func (c *Cache) EnsureReady(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.EnsureReady(ctx)
}

// Lookup embeds the text and searches for a similar cached response. The
// embedding is returned alongside so Store can reuse it without recomputing.
// On any failure the result is (nil, vec): a plain miss.
func (c *Cache) Lookup(ctx context.Context, text string, sctx Context) ([]byte, []float32) {
	if !c.Enabled() || text == "" {
		return nil, nil
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("embedding failed, bypassing semantic cache", "endpoint", sctx.Endpoint, "error", err)
		return nil, nil
	}

	resp, err := c.store.Search(ctx, vec, sctx, c.threshold)
	if err != nil {
		c.logger.Warn("semantic cache read failed", "endpoint", sctx.Endpoint, "error", err)
		return nil, vec
	}
	if resp != nil {
		c.logger.Info("semantic cache hit",
			"endpoint", sctx.Endpoint,
			"backend", sctx.Backend,
			"tenant", sctx.TenantID,
		)
	}
	return resp, vec
}

// Store indexes a response for future lookups. If vec is nil the embedding
// is recomputed. Failures are logged and dropped.
func (c *Cache) Store(ctx context.Context, text string, sctx Context, response []byte, vec []float32) {
	if !c.Enabled() || text == "" || response == nil {
		return
	}

	if vec == nil {
		var err error
		vec, err = c.embedder.Embed(ctx, text)
		if err != nil {
			c.logger.Warn("embedding failed, skipping semantic cache write", "endpoint", sctx.Endpoint, "error", err)
			return
		}
	}

	if err := c.store.IndexDoc(ctx, vec, sctx, text, response, c.ttl); err != nil {
		c.logger.Warn("semantic cache write failed", "endpoint", sctx.Endpoint, "error", err)
		return
	}
	c.logger.Info("semantic cache set",
		"endpoint", sctx.Endpoint,
		"backend", sctx.Backend,
		"tenant", sctx.TenantID,
		"ttl", c.ttl,
	)
}

// Cosine computes the cosine similarity of two vectors. Mismatched lengths,
// empty inputs, or zero norms yield -1 so they always fall below threshold.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na <= 0 || nb <= 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
