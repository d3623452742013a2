// Package embedding turns free-text queries into fixed-dimension vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrDisabled is returned by Embed when no embedding service is configured.
var ErrDisabled = errors.New("embedder disabled")

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// knownDims overrides the configured dimension for models whose output size
// is fixed.
var knownDims = map[string]int{
	"e5-small-v2":            384,
	"intfloat/e5-small-v2":   384,
	"all-MiniLM-L6-v2":       384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// Client calls an OpenAI-compatible embeddings API. Embedding is effectively
// CPU-bound on the serving side, so a bounded worker gate limits in-flight
// calls instead of letting every request goroutine pile onto it.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	gate    chan struct{}
	client  *http.Client
}

// NewClient creates an embedder. An empty baseURL yields a disabled client;
// callers bypass the semantic tier when Enabled reports false.
func NewClient(baseURL, apiKey, model string, dim, workers int) *Client {
	if d, ok := knownDims[model]; ok {
		dim = d
	}
	if workers < 1 {
		workers = 4
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		gate:    make(chan struct{}, workers),
		client:  &http.Client{Transport: transport},
	}
}

// Enabled reports whether embedding is available. Fixed at construction.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Dim returns the vector dimension this embedder produces.
func (c *Client) Dim() int { return c.dim }

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	select {
	case c.gate <- struct{}{}:
		defer func() { <-c.gate }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body := embeddingRequest{Input: text, Model: c.model}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("creating embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}

	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	vec := result.Data[0].Embedding
	if c.dim > 0 && len(vec) != c.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", c.dim, len(vec))
	}
	return vec, nil
}
