package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/cogneo/edge-router/internal/cache"
	"github.com/cogneo/edge-router/internal/proxy"
	"github.com/cogneo/edge-router/internal/semcache"
)

// writeTimeout bounds the double-write after an upstream success. The write
// runs on a detached context so a client disconnect cannot leave the tiers
// half-written mid-flight.
const writeTimeout = 5 * time.Second

// ExactStage serves responses from the fingerprint-keyed cache.
type ExactStage struct {
	cache *cache.Exact
}

func (s *ExactStage) Name() string { return "exact_cache" }

func (s *ExactStage) Process(ctx context.Context, req *Request) (*Result, error) {
	body, ok := s.cache.Get(ctx, req.Key)
	if !ok {
		return nil, nil
	}
	return &Result{Status: http.StatusOK, Body: body, Source: SourceExact}, nil
}

// SemanticStage serves responses by embedding similarity. It records the
// computed embedding on the request so the upstream stage can reuse it.
type SemanticStage struct {
	semantic *semcache.Cache
}

func (s *SemanticStage) Name() string { return "semantic_cache" }

func (s *SemanticStage) Process(ctx context.Context, req *Request) (*Result, error) {
	if !s.semantic.Enabled() || req.FreeText == "" {
		return nil, nil
	}
	resp, vec := s.semantic.Lookup(ctx, req.FreeText, req.semanticContext())
	req.Vec = vec
	if resp == nil {
		return nil, nil
	}
	// The exact tier is deliberately not written on a semantic hit.
	return &Result{Status: http.StatusOK, Body: resp, Source: SourceSemantic}, nil
}

// UpstreamStage forwards the canonical payload and, on success, writes both
// cache tiers before the response is returned so the immediately-following
// identical request observes the hit.
type UpstreamStage struct {
	pool     *proxy.Pool
	exact    *cache.Exact
	semantic *semcache.Cache
	ttl      time.Duration
}

func (s *UpstreamStage) Name() string { return "upstream" }

func (s *UpstreamStage) Process(ctx context.Context, req *Request) (*Result, error) {
	status, body, err := s.pool.Post(ctx, req.BaseURL, req.UpstreamPath, req.Body, req.Auth)
	if err != nil {
		return nil, &UpstreamError{Backend: req.Backend, Err: err}
	}
	if status >= http.StatusInternalServerError {
		return nil, &UpstreamError{Backend: req.Backend, Status: status}
	}
	if status >= http.StatusBadRequest {
		// Upstream 4xx passes through untouched and uncached.
		return &Result{Status: status, Body: body, Source: SourceUpstream}, nil
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	s.semantic.Store(wctx, req.FreeText, req.semanticContext(), body, req.Vec)
	s.exact.Set(wctx, req.Key, body, s.ttl)

	return &Result{Status: status, Body: body, Source: SourceUpstream}, nil
}
