package fingerprint

import (
	"math"
	"strings"
	"testing"
)

func mustKey(t *testing.T, endpoint, backend string, fields map[string]any) string {
	t.Helper()
	k, err := Key(endpoint, backend, fields)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	return k
}

func TestKeyDeterministic(t *testing.T) {
	fields := map[string]any{"query": "hello", "top_k": 5, "alpha": 0.5}
	k1 := mustKey(t, "/v1/search/hybrid", "opensearch", fields)
	k2 := mustKey(t, "/v1/search/hybrid", "opensearch", fields)
	if k1 != k2 {
		t.Errorf("same fields produced different keys: %q vs %q", k1, k2)
	}
}

func TestKeyFormat(t *testing.T) {
	k := mustKey(t, "/v1/search/vector", "postgres", map[string]any{"query": "x", "top_k": 5})

	parts := strings.Split(k, ":")
	if len(parts) != 3 {
		t.Fatalf("expected endpoint:backend:hash, got %q", k)
	}
	if parts[0] != "/v1/search/vector" {
		t.Errorf("endpoint segment = %q", parts[0])
	}
	if parts[1] != "postgres" {
		t.Errorf("backend segment = %q", parts[1])
	}
	if len(parts[2]) != 64 {
		t.Errorf("hash segment should be 64 hex chars, got %d", len(parts[2]))
	}
}

func TestKeyVariesByComponent(t *testing.T) {
	base := mustKey(t, "/v1/search/vector", "opensearch", map[string]any{"query": "x", "top_k": 5})

	cases := map[string]string{
		"endpoint": mustKey(t, "/v1/search/fts", "opensearch", map[string]any{"query": "x", "top_k": 5}),
		"backend":  mustKey(t, "/v1/search/vector", "postgres", map[string]any{"query": "x", "top_k": 5}),
		"field":    mustKey(t, "/v1/search/vector", "opensearch", map[string]any{"query": "x", "top_k": 6}),
	}
	for name, k := range cases {
		if k == base {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestKeyUnserializableFieldIsError(t *testing.T) {
	_, err := Key("/v1/search/vector", "opensearch", map[string]any{"alpha": math.NaN()})
	if err == nil {
		t.Fatal("expected an error instead of a key over partial fields")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello World", "hello world"},
		{"  What   is\tthe  time? ", "what is the time"},
		{"What's up!!!", "whats up"},
		{"price: $5 + tax", "price 5 tax"},
		{"", ""},
		{"???", ""},
		{"résumé, please", "résumé please"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizedVariantsShareKey(t *testing.T) {
	a := mustKey(t, "/v1/search/vector", "opensearch", map[string]any{"query": Normalize("What is RAG?"), "top_k": 5})
	b := mustKey(t, "/v1/search/vector", "opensearch", map[string]any{"query": Normalize("  what is rag "), "top_k": 5})
	if a != b {
		t.Errorf("normalized variants produced different keys")
	}
}
