package semcache

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Enabled() bool { return true }
func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeStore struct {
	searchResp []byte
	searchErr  error
	indexErr   error

	indexed   int
	lastSctx  Context
	lastVec   []float32
	lastText  string
	lastTTL   time.Duration
	ensureErr error
}

func (f *fakeStore) EnsureReady(ctx context.Context) error { return f.ensureErr }

func (f *fakeStore) Search(ctx context.Context, vec []float32, sctx Context, threshold float64) ([]byte, error) {
	f.lastSctx = sctx
	return f.searchResp, f.searchErr
}

func (f *fakeStore) IndexDoc(ctx context.Context, vec []float32, sctx Context, queryText string, response []byte, ttl time.Duration) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed++
	f.lastSctx = sctx
	f.lastVec = vec
	f.lastText = queryText
	f.lastTTL = ttl
	return nil
}

func TestLookupHit(t *testing.T) {
	store := &fakeStore{searchResp: []byte(`{"cached":true}`)}
	emb := &fakeEmbedder{vec: []float32{1, 0, 0}}
	c := New(store, emb, 0.9, time.Minute, testLogger)

	sctx := Context{TenantID: "acme", Endpoint: "/v1/search/vector", Backend: "opensearch"}
	resp, vec := c.Lookup(context.Background(), "hello", sctx)
	if string(resp) != `{"cached":true}` {
		t.Errorf("resp = %q", resp)
	}
	if len(vec) != 3 {
		t.Errorf("Lookup should return the embedding for reuse, got %v", vec)
	}
	if store.lastSctx.TenantID != "acme" {
		t.Errorf("hard filters not passed through: %+v", store.lastSctx)
	}
}

func TestLookupEmbedFailureIsMiss(t *testing.T) {
	store := &fakeStore{searchResp: []byte("never")}
	emb := &fakeEmbedder{err: errors.New("model down")}
	c := New(store, emb, 0.9, time.Minute, testLogger)

	resp, vec := c.Lookup(context.Background(), "hello", Context{})
	if resp != nil || vec != nil {
		t.Errorf("embed failure should be a plain miss, got %q %v", resp, vec)
	}
}

func TestLookupStoreFailureIsMiss(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("index down")}
	emb := &fakeEmbedder{vec: []float32{1}}
	c := New(store, emb, 0.9, time.Minute, testLogger)

	resp, vec := c.Lookup(context.Background(), "hello", Context{})
	if resp != nil {
		t.Errorf("store failure should be a miss, got %q", resp)
	}
	if vec == nil {
		t.Error("embedding should still be returned for reuse on the write path")
	}
}

func TestStoreReusesVector(t *testing.T) {
	store := &fakeStore{}
	emb := &fakeEmbedder{err: errors.New("should not be called")}
	c := New(store, emb, 0.9, 5*time.Minute, testLogger)

	vec := []float32{0.5, 0.5}
	c.Store(context.Background(), "hello", Context{TenantID: "t"}, []byte("resp"), vec)
	if store.indexed != 1 {
		t.Fatalf("indexed = %d", store.indexed)
	}
	if store.lastVec[0] != 0.5 {
		t.Error("provided vector was not reused")
	}
	if store.lastTTL != 5*time.Minute {
		t.Errorf("ttl = %v", store.lastTTL)
	}
}

func TestStoreRecomputesWhenVecNil(t *testing.T) {
	store := &fakeStore{}
	emb := &fakeEmbedder{vec: []float32{9}}
	c := New(store, emb, 0.9, time.Minute, testLogger)

	c.Store(context.Background(), "hello", Context{}, []byte("resp"), nil)
	if store.indexed != 1 {
		t.Fatalf("indexed = %d", store.indexed)
	}
	if store.lastVec[0] != 9 {
		t.Error("embedding was not recomputed")
	}
}

func TestStoreFailuresDropped(t *testing.T) {
	c := New(&fakeStore{indexErr: errors.New("full")}, &fakeEmbedder{vec: []float32{1}}, 0.9, time.Minute, testLogger)
	// Must not panic or surface the error.
	c.Store(context.Background(), "hello", Context{}, []byte("resp"), nil)

	c = New(&fakeStore{}, &fakeEmbedder{err: errors.New("down")}, 0.9, time.Minute, testLogger)
	c.Store(context.Background(), "hello", Context{}, []byte("resp"), nil)
}

func TestDisabledCache(t *testing.T) {
	var c *Cache
	if c.Enabled() {
		t.Fatal("nil cache should be disabled")
	}
	resp, vec := c.Lookup(context.Background(), "x", Context{})
	if resp != nil || vec != nil {
		t.Error("nil cache Lookup should miss")
	}
	c.Store(context.Background(), "x", Context{}, []byte("r"), nil)
	if err := c.EnsureReady(context.Background()); err != nil {
		t.Errorf("nil EnsureReady: %v", err)
	}
}

func TestEmptyTextSkipped(t *testing.T) {
	store := &fakeStore{searchResp: []byte("never")}
	c := New(store, &fakeEmbedder{vec: []float32{1}}, 0.9, time.Minute, testLogger)

	if resp, _ := c.Lookup(context.Background(), "", Context{}); resp != nil {
		t.Error("empty text should bypass the cache")
	}
	c.Store(context.Background(), "", Context{}, []byte("r"), nil)
	if store.indexed != 0 {
		t.Error("empty text should not be indexed")
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 2}, []float32{1}, -1},
		{"empty", nil, nil, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, -1},
	}
	for _, tt := range tests {
		if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s: Cosine = %v, want %v", tt.name, got, tt.want)
		}
	}
}
