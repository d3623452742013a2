// Package model defines the typed request payloads for each endpoint and
// their cache-key and upstream-body projections.
package model

// LLM source labels.
const (
	LLMOllama   = "ollama"
	LLMOCIGenAI = "oci_genai"
	LLMBedrock  = "bedrock"
)

// ValidBackend reports whether b names a known search backend.
func ValidBackend(b string) bool {
	switch b {
	case "postgres", "oracle", "opensearch":
		return true
	}
	return false
}

// ValidLLMSource reports whether s names a known model provider.
func ValidLLMSource(s string) bool {
	switch s {
	case LLMOllama, LLMOCIGenAI, LLMBedrock:
		return true
	}
	return false
}

// Request is the dispatch pipeline's view of a decoded payload. Fingerprint
// and Payload build maps rather than re-marshaling the struct so that the
// cache-key subset stays explicit per endpoint: the text passed to
// Fingerprint may be normalized, the body built by Payload never is.
type Request interface {
	// Endpoint returns the inbound route, e.g. "/v1/search/vector".
	Endpoint() string
	// BackendOverride returns the per-request backend, "" if unset.
	BackendOverride() string
	// LLMOverride returns the per-request llm_source, "" if unset.
	LLMOverride() string
	// DefaultsLLM reports whether an absent llm_source falls back to the
	// tenant default (chat endpoints) or stays unset (everything else).
	DefaultsLLM() bool
	// ModelName returns the requested model, "" if unset.
	ModelName() string
	// FreeText returns the raw free-text field (query, question, message).
	FreeText() string
	// Fingerprint returns the cache-key subset with text substituted for
	// the free-text field and llmSource for llm_source where applicable.
	Fingerprint(text, llmSource string) map[string]any
	// Payload returns the body forwarded upstream, auth-override fields
	// removed and null fields dropped.
	Payload(llmSource string) map[string]any
	// AuthOverride returns the reserved _upstream_user/_upstream_pass pair.
	AuthOverride() (user, pass string)
}

// authOverride carries the reserved basic-auth override fields. They are
// stripped from every fingerprint and forwarded body.
type authOverride struct {
	UpstreamUser string `json:"_upstream_user,omitempty"`
	UpstreamPass string `json:"_upstream_pass,omitempty"`
}

func (a *authOverride) AuthOverride() (string, string) {
	return a.UpstreamUser, a.UpstreamPass
}

// VectorRequest is the payload of POST /v1/search/vector.
type VectorRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
	Backend string `json:"backend,omitempty"`
	authOverride
}

func (r *VectorRequest) ApplyDefaults() {
	if r.TopK == 0 {
		r.TopK = 5
	}
}

func (r *VectorRequest) Endpoint() string        { return "/v1/search/vector" }
func (r *VectorRequest) BackendOverride() string { return r.Backend }
func (r *VectorRequest) LLMOverride() string     { return "" }
func (r *VectorRequest) DefaultsLLM() bool       { return false }
func (r *VectorRequest) ModelName() string       { return "" }
func (r *VectorRequest) FreeText() string        { return r.Query }

func (r *VectorRequest) Fingerprint(text, _ string) map[string]any {
	return map[string]any{"query": text, "top_k": r.TopK}
}

func (r *VectorRequest) Payload(_ string) map[string]any {
	return map[string]any{"query": r.Query, "top_k": r.TopK}
}

// HybridRequest is the payload of POST /v1/search/hybrid.
type HybridRequest struct {
	Query   string   `json:"query"`
	TopK    int      `json:"top_k"`
	Alpha   *float64 `json:"alpha,omitempty"`
	Backend string   `json:"backend,omitempty"`
	authOverride
}

func (r *HybridRequest) ApplyDefaults() {
	if r.TopK == 0 {
		r.TopK = 5
	}
	if r.Alpha == nil {
		r.Alpha = ptr(0.5)
	}
}

func (r *HybridRequest) Endpoint() string        { return "/v1/search/hybrid" }
func (r *HybridRequest) BackendOverride() string { return r.Backend }
func (r *HybridRequest) LLMOverride() string     { return "" }
func (r *HybridRequest) DefaultsLLM() bool       { return false }
func (r *HybridRequest) ModelName() string       { return "" }
func (r *HybridRequest) FreeText() string        { return r.Query }

func (r *HybridRequest) Fingerprint(text, _ string) map[string]any {
	return map[string]any{"query": text, "top_k": r.TopK, "alpha": *r.Alpha}
}

func (r *HybridRequest) Payload(_ string) map[string]any {
	return map[string]any{"query": r.Query, "top_k": r.TopK, "alpha": *r.Alpha}
}

// FtsRequest is the payload of POST /v1/search/fts.
type FtsRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
	Mode    string `json:"mode,omitempty"` // documents | metadata | both
	Backend string `json:"backend,omitempty"`
	authOverride
}

func (r *FtsRequest) ApplyDefaults() {
	if r.TopK == 0 {
		r.TopK = 10
	}
	if r.Mode == "" {
		r.Mode = "both"
	}
}

func (r *FtsRequest) Endpoint() string        { return "/v1/search/fts" }
func (r *FtsRequest) BackendOverride() string { return r.Backend }
func (r *FtsRequest) LLMOverride() string     { return "" }
func (r *FtsRequest) DefaultsLLM() bool       { return false }
func (r *FtsRequest) ModelName() string       { return "" }
func (r *FtsRequest) FreeText() string        { return r.Query }

func (r *FtsRequest) Fingerprint(text, _ string) map[string]any {
	return map[string]any{"query": text, "top_k": r.TopK, "mode": r.Mode}
}

func (r *FtsRequest) Payload(_ string) map[string]any {
	return map[string]any{"query": r.Query, "top_k": r.TopK, "mode": r.Mode}
}

// RagRequest is the payload of POST /v1/search/rag. Its fingerprint is the
// full request minus null fields and minus the auth-override fields.
type RagRequest struct {
	Question      string           `json:"question"`
	Backend       string           `json:"backend,omitempty"`
	LLMSource     string           `json:"llm_source,omitempty"`
	Model         string           `json:"model,omitempty"`
	Region        string           `json:"region,omitempty"`
	ContextChunks []string         `json:"context_chunks,omitempty"`
	Sources       []string         `json:"sources,omitempty"`
	ChunkMetadata []map[string]any `json:"chunk_metadata,omitempty"`
	CustomPrompt  string           `json:"custom_prompt,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	MaxTokens     *int             `json:"max_tokens,omitempty"`
	RepeatPenalty *float64         `json:"repeat_penalty,omitempty"`
	ChatHistory   []map[string]any `json:"chat_history,omitempty"`
	authOverride
}

func (r *RagRequest) ApplyDefaults() {
	if r.Temperature == nil {
		r.Temperature = ptr(0.1)
	}
	if r.TopP == nil {
		r.TopP = ptr(0.9)
	}
	if r.MaxTokens == nil {
		n := 1024
		r.MaxTokens = &n
	}
	if r.RepeatPenalty == nil {
		r.RepeatPenalty = ptr(1.1)
	}
}

func (r *RagRequest) Endpoint() string        { return "/v1/search/rag" }
func (r *RagRequest) BackendOverride() string { return r.Backend }
func (r *RagRequest) LLMOverride() string     { return r.LLMSource }
func (r *RagRequest) DefaultsLLM() bool       { return false }
func (r *RagRequest) ModelName() string       { return r.Model }
func (r *RagRequest) FreeText() string        { return r.Question }

func (r *RagRequest) fields(question string) map[string]any {
	m := map[string]any{
		"question":       question,
		"temperature":    *r.Temperature,
		"top_p":          *r.TopP,
		"max_tokens":     *r.MaxTokens,
		"repeat_penalty": *r.RepeatPenalty,
	}
	if r.Backend != "" {
		m["backend"] = r.Backend
	}
	if r.LLMSource != "" {
		m["llm_source"] = r.LLMSource
	}
	if r.Model != "" {
		m["model"] = r.Model
	}
	if r.Region != "" {
		m["region"] = r.Region
	}
	if r.ContextChunks != nil {
		m["context_chunks"] = r.ContextChunks
	}
	if r.Sources != nil {
		m["sources"] = r.Sources
	}
	if r.ChunkMetadata != nil {
		m["chunk_metadata"] = r.ChunkMetadata
	}
	if r.CustomPrompt != "" {
		m["custom_prompt"] = r.CustomPrompt
	}
	if r.ChatHistory != nil {
		m["chat_history"] = r.ChatHistory
	}
	return m
}

func (r *RagRequest) Fingerprint(text, _ string) map[string]any {
	return r.fields(text)
}

func (r *RagRequest) Payload(_ string) map[string]any {
	return r.fields(r.Question)
}

// ChatRequest is the shared payload of the chat endpoints. The fingerprint
// keys on {llm_source, model, message, top_k} only; chat history and
// sampling hyperparameters are excluded to maximize hit rate.
type ChatRequest struct {
	Message       string           `json:"message"`
	Backend       string           `json:"backend,omitempty"`
	LLMSource     string           `json:"llm_source,omitempty"`
	Model         string           `json:"model,omitempty"`
	TopK          int              `json:"top_k"`
	SystemPrompt  string           `json:"system_prompt,omitempty"`
	ChatHistory   []map[string]any `json:"chat_history,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	MaxTokens     *int             `json:"max_tokens,omitempty"`
	RepeatPenalty *float64         `json:"repeat_penalty,omitempty"`
	authOverride
}

func (r *ChatRequest) ApplyDefaults() {
	if r.TopK == 0 {
		r.TopK = 10
	}
	if r.Temperature == nil {
		r.Temperature = ptr(0.1)
	}
	if r.TopP == nil {
		r.TopP = ptr(0.9)
	}
	if r.MaxTokens == nil {
		n := 1024
		r.MaxTokens = &n
	}
	if r.RepeatPenalty == nil {
		r.RepeatPenalty = ptr(1.1)
	}
}

func (r *ChatRequest) BackendOverride() string { return r.Backend }
func (r *ChatRequest) LLMOverride() string     { return r.LLMSource }
func (r *ChatRequest) DefaultsLLM() bool       { return true }
func (r *ChatRequest) ModelName() string       { return r.Model }
func (r *ChatRequest) FreeText() string        { return r.Message }

func (r *ChatRequest) Fingerprint(text, llmSource string) map[string]any {
	m := map[string]any{"message": text, "top_k": r.TopK}
	if llmSource != "" {
		m["llm_source"] = llmSource
	}
	if r.Model != "" {
		m["model"] = r.Model
	}
	return m
}

func (r *ChatRequest) Payload(llmSource string) map[string]any {
	m := map[string]any{
		"message":        r.Message,
		"top_k":          r.TopK,
		"temperature":    *r.Temperature,
		"top_p":          *r.TopP,
		"max_tokens":     *r.MaxTokens,
		"repeat_penalty": *r.RepeatPenalty,
	}
	if llmSource != "" {
		m["llm_source"] = llmSource
	}
	if r.Model != "" {
		m["model"] = r.Model
	}
	if r.SystemPrompt != "" {
		m["system_prompt"] = r.SystemPrompt
	}
	if r.ChatHistory != nil {
		m["chat_history"] = r.ChatHistory
	}
	return m
}

// ConversationRequest is the payload of POST /v1/chat/conversation.
type ConversationRequest struct {
	ChatRequest
}

func (r *ConversationRequest) Endpoint() string { return "/v1/chat/conversation" }

// AgenticRequest is the payload of POST /v1/chat/agentic.
type AgenticRequest struct {
	ChatRequest
}

func (r *AgenticRequest) Endpoint() string { return "/v1/chat/agentic" }

func ptr(f float64) *float64 { return &f }
