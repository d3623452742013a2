//go:build ignore

// realtest.go verifies the exact cache tier against a live router and
// upstream. Run the mock upstream, point a tenant at it, then:
//
//   go run loadtest/realtest.go
//
// Env vars:
//   ROUTER_TEST_URL    - default http://localhost:8080
//   ROUTER_TEST_TENANT - X-Tenant-Id value, default "default"
//   ROUTER_RUNS        - default 3 (repetitions per measurement)

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
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
	runs      = func() int {
		n, err := strconv.Atoi(env("ROUTER_RUNS", "3"))
		if err != nil || n < 1 {
			return 3
		}
		return n
	}()
)

var client = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConnsPerHost: 10,
	},
}

type result struct {
	Latency    time.Duration
	XCache     string
	StatusCode int
}

func doSearch(query string) (result, error) {
	payload := map[string]any{"query": query, "top_k": 5}
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", routerURL+"/v1/search/vector", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenantID)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return result{
		Latency:    latency,
		XCache:     resp.Header.Get("X-Cache"),
		StatusCode: resp.StatusCode,
	}, nil
}

func median(durations []time.Duration) time.Duration {
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	return durations[len(durations)/2]
}

func measure(label, query string, n int) (time.Duration, string, error) {
	latencies := make([]time.Duration, 0, n)
	var last result
	for i := 0; i < n; i++ {
		r, err := doSearch(query)
		if err != nil {
			return 0, "", fmt.Errorf("%s run %d: %w", label, i+1, err)
		}
		if r.StatusCode != 200 {
			return 0, "", fmt.Errorf("%s run %d: got status %d", label, i+1, r.StatusCode)
		}
		latencies = append(latencies, r.Latency)
		last = r
	}
	return median(latencies), last.XCache, nil
}

func main() {
	fmt.Println("=== Edge Router Exact-Cache Test ===")
	fmt.Printf("Router: %s | Tenant: %s | Runs: %d\n\n", routerURL, tenantID, runs)

	// Unique query so the first request is a guaranteed miss.
	query := fmt.Sprintf("exact cache probe %d", time.Now().UnixNano())

	missMedian, missCache, err := measure("MISS", query, 1)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("  First request:  %4dms  X-Cache=%s\n", missMedian.Milliseconds(), missCache)
	if missCache != "miss" {
		fail("expected X-Cache=miss on first request, got %q", missCache)
	}

	hitMedian, hitCache, err := measure("HIT", query, runs)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("  Repeat (x%d):    %4dms  X-Cache=%s\n", runs, hitMedian.Milliseconds(), hitCache)
	if hitCache != "exact" {
		fail("expected X-Cache=exact on repeat, got %q", hitCache)
	}

	if hitMedian > 0 {
		fmt.Printf("  Cache speedup:  %4.0fx\n", float64(missMedian)/float64(hitMedian))
	}
	fmt.Println("\nPASS")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
