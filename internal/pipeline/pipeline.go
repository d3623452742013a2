// Package pipeline orchestrates a request through tenant resolution, the
// exact and semantic cache tiers, and the upstream proxy.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cogneo/edge-router/internal/cache"
	"github.com/cogneo/edge-router/internal/fingerprint"
	"github.com/cogneo/edge-router/internal/model"
	"github.com/cogneo/edge-router/internal/proxy"
	"github.com/cogneo/edge-router/internal/semcache"
	"github.com/cogneo/edge-router/internal/tenant"
)

// Result sources, reported in the X-Cache response header.
const (
	SourceExact    = "exact"
	SourceSemantic = "semantic"
	SourceUpstream = "miss"
)

// Result is a terminal pipeline outcome: a status and a verbatim JSON body.
type Result struct {
	Status int
	Body   []byte
	Source string
}

// Request carries the resolved per-request state through the stages.
type Request struct {
	TenantID     string
	Endpoint     string
	UpstreamPath string
	Backend      string
	LLMSource    string
	Model        string
	FreeText     string
	Key          string
	Body         []byte
	BaseURL      string
	Auth         *proxy.Auth

	// Vec is the query embedding, computed once by the semantic stage and
	// reused by the upstream stage's double-write.
	Vec []float32
}

func (r *Request) semanticContext() semcache.Context {
	return semcache.Context{
		TenantID:  r.TenantID,
		Endpoint:  r.Endpoint,
		Backend:   r.Backend,
		LLMSource: r.LLMSource,
		Model:     r.Model,
	}
}

// Stage processes a request. Returning a non-nil Result short-circuits the
// chain; returning (nil, nil) passes through to the next stage.
type Stage interface {
	Name() string
	Process(ctx context.Context, req *Request) (*Result, error)
}

// Options wires a Dispatcher. Exact and Semantic may be nil (tier disabled).
type Options struct {
	Registry  *tenant.Registry
	Tenancy   bool
	Normalize bool
	Exact     *cache.Exact
	ExactTTL  time.Duration
	Semantic  *semcache.Cache
	Proxy     *proxy.Pool
	Logger    *slog.Logger
}

// Dispatcher resolves tenancy and routing, then runs the stage chain:
// exact lookup, semantic lookup, upstream call with double-write.
type Dispatcher struct {
	registry  *tenant.Registry
	tenancy   bool
	normalize bool
	logger    *slog.Logger
	stages    []Stage
}

// NewDispatcher creates the dispatcher with the fixed stage order.
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  opts.Registry,
		tenancy:   opts.Tenancy,
		normalize: opts.Normalize,
		logger:    logger,
		stages: []Stage{
			&ExactStage{cache: opts.Exact},
			&SemanticStage{semantic: opts.Semantic},
			&UpstreamStage{
				pool:     opts.Proxy,
				exact:    opts.Exact,
				semantic: opts.Semantic,
				ttl:      opts.ExactTTL,
			},
		},
	}
}

// Dispatch runs a decoded request through the pipeline. tenantID is the raw
// X-Tenant-Id header value; it is ignored when tenancy is disabled.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, req model.Request) (*Result, error) {
	desc, resolvedID, err := d.resolveTenant(tenantID)
	if err != nil {
		return nil, err
	}

	backend := req.BackendOverride()
	if backend == "" {
		backend = desc.DefaultBackend
	}
	if !model.ValidBackend(backend) {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid backend: %s", backend)}
	}

	baseURL, err := desc.UpstreamFor(backend)
	if err != nil {
		return nil, err
	}

	llm := req.LLMOverride()
	if llm == "" && req.DefaultsLLM() {
		llm = desc.DefaultLLM
	}
	if llm != "" && !model.ValidLLMSource(llm) {
		return nil, &ValidationError{Msg: fmt.Sprintf("invalid llm_source: %s", llm)}
	}

	var auth *proxy.Auth
	if user, pass := req.AuthOverride(); user != "" && pass != "" {
		auth = &proxy.Auth{User: user, Pass: pass}
	} else if desc.Auth != nil {
		auth = &proxy.Auth{User: desc.Auth.User, Pass: desc.Auth.Pass}
	}

	keyText := req.FreeText()
	if d.normalize {
		keyText = fingerprint.Normalize(keyText)
	}

	body, err := json.Marshal(req.Payload(llm))
	if err != nil {
		return nil, fmt.Errorf("marshaling upstream payload: %w", err)
	}

	key, err := fingerprint.Key(req.Endpoint(), backend, req.Fingerprint(keyText, llm))
	if err != nil {
		return nil, fmt.Errorf("computing cache key: %w", err)
	}

	preq := &Request{
		TenantID:     resolvedID,
		Endpoint:     req.Endpoint(),
		UpstreamPath: strings.TrimPrefix(req.Endpoint(), "/v1"),
		Backend:      backend,
		LLMSource:    llm,
		Model:        req.ModelName(),
		FreeText:     req.FreeText(),
		Key:          key,
		Body:         body,
		BaseURL:      baseURL,
		Auth:         auth,
	}

	for _, s := range d.stages {
		res, err := s.Process(ctx, preq)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
		if res != nil {
			d.logger.Debug("dispatched",
				"endpoint", preq.Endpoint,
				"tenant", preq.TenantID,
				"backend", preq.Backend,
				"source", res.Source,
			)
			return res, nil
		}
	}
	return nil, fmt.Errorf("pipeline completed without producing a response")
}

func (d *Dispatcher) resolveTenant(tenantID string) (*tenant.Descriptor, string, error) {
	if !d.tenancy {
		desc, err := d.registry.Default()
		if err != nil {
			return nil, "", err
		}
		return desc, tenant.DefaultID, nil
	}
	if tenantID == "" {
		return nil, "", &TenantMissingError{}
	}
	desc, err := d.registry.Get(tenantID)
	if err != nil {
		return nil, "", err
	}
	return desc, tenantID, nil
}
