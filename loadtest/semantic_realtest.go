//go:build ignore

// semantic_realtest.go verifies the semantic cache tier against a live
// router with an embedding endpoint and vector store configured. A paraphrase
// of a cached query must come back as a semantic hit without touching the
// exact tier.
//
//   go run loadtest/semantic_realtest.go
//
// Env vars:
//   ROUTER_TEST_URL    - default http://localhost:8080
//   ROUTER_TEST_TENANT - X-Tenant-Id value, default "default"

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var (
	routerURL = env("ROUTER_TEST_URL", "http://localhost:8080")
	tenantID  = env("ROUTER_TEST_TENANT", "default")
)

var client = &http.Client{Timeout: 30 * time.Second}

func doSearch(query string) (status int, xcache string, latency time.Duration, err error) {
	payload := map[string]any{"query": query, "top_k": 5}
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", routerURL+"/v1/search/vector", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenantID)

	start := time.Now()
	resp, err := client.Do(req)
	latency = time.Since(start)
	if err != nil {
		return 0, "", 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Header.Get("X-Cache"), latency, nil
}

func main() {
	fmt.Println("=== Edge Router Semantic-Cache Test ===")
	fmt.Printf("Router: %s | Tenant: %s\n\n", routerURL, tenantID)

	// Distinct nonce keeps this run independent of earlier cache contents
	// while leaving the two phrasings semantically close.
	nonce := time.Now().UnixNano() % 100000
	original := fmt.Sprintf("how do I rotate the credentials for database %d", nonce)
	paraphrase := fmt.Sprintf("what is the way to rotate credentials on database %d", nonce)

	status, xcache, latency, err := doSearch(original)
	if err != nil {
		fail("%v", err)
	}
	if status != 200 {
		fail("seed request: got status %d", status)
	}
	fmt.Printf("  Seed:        %4dms  X-Cache=%s\n", latency.Milliseconds(), xcache)

	status, xcache, latency, err = doSearch(paraphrase)
	if err != nil {
		fail("%v", err)
	}
	if status != 200 {
		fail("paraphrase request: got status %d", status)
	}
	fmt.Printf("  Paraphrase:  %4dms  X-Cache=%s\n", latency.Milliseconds(), xcache)
	if xcache != "semantic" {
		fail("expected X-Cache=semantic on paraphrase, got %q", xcache)
	}

	// The paraphrase has a different fingerprint, so a repeat of it must
	// still be a semantic hit, never an exact one.
	status, xcache, latency, err = doSearch(paraphrase)
	if err != nil {
		fail("%v", err)
	}
	if status != 200 {
		fail("repeat request: got status %d", status)
	}
	fmt.Printf("  Repeat:      %4dms  X-Cache=%s\n", latency.Milliseconds(), xcache)
	if xcache != "semantic" {
		fail("expected X-Cache=semantic on repeat, got %q", xcache)
	}

	fmt.Println("\nPASS")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
