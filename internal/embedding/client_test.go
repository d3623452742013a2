package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func mockEmbedServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = float32(len(req.Input)%7) + float32(i)*0.001
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec}},
		})
	}))
}

func TestEmbed(t *testing.T) {
	srv := mockEmbedServer(t, 384)
	defer srv.Close()

	c := NewClient(srv.URL, "", "e5-small-v2", 0, 2)
	if !c.Enabled() {
		t.Fatal("client with base URL should be enabled")
	}
	if c.Dim() != 384 {
		t.Fatalf("known model should fix dim to 384, got %d", c.Dim())
	}

	vec, err := c.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("vector length = %d", len(vec))
	}
}

func TestEmbedDimMismatch(t *testing.T) {
	srv := mockEmbedServer(t, 100)
	defer srv.Close()

	c := NewClient(srv.URL, "", "e5-small-v2", 0, 2)
	_, err := c.Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "dimension mismatch") {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestEmbedAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk-test", "custom-model", 3, 1)
	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestEmbedUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "custom-model", 3, 1)
	_, err := c.Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("", "", "e5-small-v2", 0, 0)
	if c.Enabled() {
		t.Fatal("empty base URL should disable the client")
	}
	if _, err := c.Embed(context.Background(), "x"); err != ErrDisabled {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should be disabled")
	}
}

func TestEmbedCanceledContext(t *testing.T) {
	srv := mockEmbedServer(t, 3)
	defer srv.Close()

	c := NewClient(srv.URL, "", "custom-model", 3, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Embed(ctx, "x"); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
