// Command mockupstream simulates a search/chat API for local development and
// load testing of the router. It echoes enough of the request back that cache
// behavior can be verified end to end.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

var (
	port    int
	latency time.Duration
	served  atomic.Int64
)

func main() {
	flag.IntVar(&port, "port", 9999, "listen port")
	flag.DurationVar(&latency, "latency", 50*time.Millisecond, "simulated processing latency")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /search/vector", handleSearch("vector"))
	mux.HandleFunc("POST /search/hybrid", handleSearch("hybrid"))
	mux.HandleFunc("POST /search/fts", handleSearch("fts"))
	mux.HandleFunc("POST /search/rag", handleAnswer("rag", "question"))
	mux.HandleFunc("POST /chat/conversation", handleAnswer("conversation", "message"))
	mux.HandleFunc("POST /chat/agentic", handleAnswer("agentic", "message"))
	mux.HandleFunc("GET /health", handleHealth)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("mock-upstream listening on %s (latency=%v)", addr, latency)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return nil, false
	}
	return req, true
}

// handleSearch returns a canned result list echoing the query. The served
// counter makes repeated responses distinguishable, so a cache hit is easy to
// spot: its body still carries the original serial.
func handleSearch(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody(w, r)
		if !ok {
			return
		}
		time.Sleep(latency)

		n := served.Add(1)
		resp := map[string]any{
			"mode":   mode,
			"query":  req["query"],
			"serial": n,
			"results": []map[string]any{
				{"id": "doc-1", "score": 0.91, "text": "first mock result"},
				{"id": "doc-2", "score": 0.84, "text": "second mock result"},
			},
		}
		if user, _, authOK := r.BasicAuth(); authOK {
			resp["auth_user"] = user
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// handleAnswer returns a canned generated answer for the rag and chat routes.
func handleAnswer(mode, textField string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBody(w, r)
		if !ok {
			return
		}
		time.Sleep(latency)

		n := served.Add(1)
		resp := map[string]any{
			"mode":       mode,
			textField:    req[textField],
			"llm_source": req["llm_source"],
			"answer":     "This is a mock generated answer.",
			"serial":     n,
			"sources":    []string{"doc-1", "doc-2"},
		}
		if user, _, authOK := r.BasicAuth(); authOK {
			resp["auth_user"] = user
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
