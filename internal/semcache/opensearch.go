package semcache

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// OpenSearchOptions configures the knn-index provider.
type OpenSearchOptions struct {
	URL       string
	Index     string
	User      string
	Pass      string
	Dim       int
	TLSVerify bool
	Timeout   time.Duration
}

// openSearchStore keeps entries in an OpenSearch index with a knn_vector
// field. The index may return neighbours below the similarity threshold, so
// Search re-computes cosine similarity from the returned embedding before
// deciding hit or miss.
type openSearchStore struct {
	client *opensearch.Client
	index  string
	dim    int
}

// NewOpenSearch creates the vector-index provider.
func NewOpenSearch(opts OpenSearchOptions) (Store, error) {
	transport := &http.Transport{
		ResponseHeaderTimeout: opts.Timeout,
	}
	if !opts.TLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	cfg := opensearch.Config{
		Addresses: []string{opts.URL},
		Username:  opts.User,
		Password:  opts.Pass,
		Transport: transport,
	}
	client, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}
	return &openSearchStore{client: client, index: opts.Index, dim: opts.Dim}, nil
}

func (s *openSearchStore) EnsureReady(ctx context.Context) error {
	exists := opensearchapi.IndicesExistsRequest{Index: []string{s.index}}
	res, err := exists.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("checking index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"settings": map[string]any{
			"index": map[string]any{"knn": true},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"tenant_id":   map[string]any{"type": "keyword"},
				"endpoint":    map[string]any{"type": "keyword"},
				"backend":     map[string]any{"type": "keyword"},
				"llm_source":  map[string]any{"type": "keyword"},
				"model":       map[string]any{"type": "keyword"},
				"params_hash": map[string]any{"type": "keyword"},
				"query_text":  map[string]any{"type": "text"},
				"embedding": map[string]any{
					"type":      "knn_vector",
					"dimension": s.dim,
					// lucene is the engine that accepts the knn query's
					// filter parameter with cosinesimil.
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     "lucene",
					},
				},
				"response_json": map[string]any{"type": "text"},
				"created_at":    map[string]any{"type": "date"},
				"expires_at":    map[string]any{"type": "date"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshaling index mapping: %w", err)
	}

	create := opensearchapi.IndicesCreateRequest{Index: s.index, Body: bytes.NewReader(body)}
	cres, err := create.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	defer cres.Body.Close()
	if cres.IsError() {
		return fmt.Errorf("creating index: %s", cres.String())
	}
	return nil
}

// hardFilters builds the always-on and optional context filters. A stored
// entry with no llm_source/model matches any query context, so the optional
// clauses accept either an equal term or an absent field.
func hardFilters(sctx Context) []map[string]any {
	filters := []map[string]any{
		{"term": map[string]any{"tenant_id": sctx.TenantID}},
		{"term": map[string]any{"endpoint": sctx.Endpoint}},
		{"term": map[string]any{"backend": sctx.Backend}},
		{"range": map[string]any{"expires_at": map[string]any{"gt": "now"}}},
	}
	optional := []struct{ field, val string }{
		{"llm_source", sctx.LLMSource},
		{"model", sctx.Model},
	}
	for _, opt := range optional {
		field, val := opt.field, opt.val
		if val == "" {
			continue
		}
		filters = append(filters, map[string]any{
			"bool": map[string]any{
				"minimum_should_match": 1,
				"should": []map[string]any{
					{"term": map[string]any{field: val}},
					{"bool": map[string]any{
						"must_not": map[string]any{"exists": map[string]any{"field": field}},
					}},
				},
			},
		})
	}
	return filters
}

func (s *openSearchStore) Search(ctx context.Context, vec []float32, sctx Context, threshold float64) ([]byte, error) {
	query := map[string]any{
		"size":    1,
		"_source": []string{"response_json", "embedding"},
		"query": map[string]any{
			"knn": map[string]any{
				"embedding": map[string]any{
					"vector": vec,
					"k":      1,
					"filter": map[string]any{
						"bool": map[string]any{"filter": hardFilters(sctx)},
					},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshaling search query: %w", err)
	}

	search := opensearchapi.SearchRequest{Index: []string{s.index}, Body: bytes.NewReader(body)}
	res, err := search.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("searching index: %s", res.String())
	}

	var sr struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Embedding    []float32 `json:"embedding"`
					ResponseJSON string    `json:"response_json"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if len(sr.Hits.Hits) == 0 {
		return nil, nil
	}

	hit := sr.Hits.Hits[0].Source
	if Cosine(vec, hit.Embedding) < threshold {
		return nil, nil
	}
	return []byte(hit.ResponseJSON), nil
}

type osDoc struct {
	TenantID     string    `json:"tenant_id"`
	Endpoint     string    `json:"endpoint"`
	Backend      string    `json:"backend"`
	LLMSource    string    `json:"llm_source,omitempty"`
	Model        string    `json:"model,omitempty"`
	ParamsHash   string    `json:"params_hash"`
	QueryText    string    `json:"query_text"`
	Embedding    []float32 `json:"embedding"`
	ResponseJSON string    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *openSearchStore) IndexDoc(ctx context.Context, vec []float32, sctx Context, queryText string, response []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	doc := osDoc{
		TenantID:     sctx.TenantID,
		Endpoint:     sctx.Endpoint,
		Backend:      sctx.Backend,
		LLMSource:    sctx.LLMSource,
		Model:        sctx.Model,
		QueryText:    queryText,
		Embedding:    vec,
		ResponseJSON: string(response),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}

	// Refresh so the immediately-following request can observe the entry.
	index := opensearchapi.IndexRequest{
		Index:      s.index,
		DocumentID: uuid.NewString(),
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := index.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("indexing document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("indexing document: %s", res.String())
	}
	return nil
}
