package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cogneo/edge-router/internal/model"
	"github.com/cogneo/edge-router/internal/pipeline"
	"github.com/cogneo/edge-router/internal/tenant"
)

// TenantHeader identifies the caller's tenant.
const TenantHeader = "X-Tenant-Id"

// Handler serves the search and chat routing endpoints.
type Handler struct {
	dispatcher *pipeline.Dispatcher
	registry   *tenant.Registry
	logger     *slog.Logger
}

// NewHandler creates a new request handler.
func NewHandler(d *pipeline.Dispatcher, registry *tenant.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		registry:   registry,
		logger:     logger,
	}
}

// RegisterRoutes registers all HTTP routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /v1/search/vector", h.handleVector)
	mux.HandleFunc("POST /v1/search/hybrid", h.handleHybrid)
	mux.HandleFunc("POST /v1/search/fts", h.handleFts)
	mux.HandleFunc("POST /v1/search/rag", h.handleRag)
	mux.HandleFunc("POST /v1/chat/conversation", h.handleConversation)
	mux.HandleFunc("POST /v1/chat/agentic", h.handleAgentic)
	mux.HandleFunc("POST /admin/tenants/reload", h.handleTenantsReload)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"ok":true}`)
}

func (h *Handler) handleTenantsReload(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Reload(); err != nil {
		h.logger.Error("tenant reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "tenant reload failed: "+err.Error())
		return
	}
	h.logger.Info("tenant registry reloaded")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"ok":true}`)
}

func (h *Handler) handleVector(w http.ResponseWriter, r *http.Request) {
	var req model.VectorRequest
	if !decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	h.dispatch(w, r, &req)
}

func (h *Handler) handleHybrid(w http.ResponseWriter, r *http.Request) {
	var req model.HybridRequest
	if !decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	h.dispatch(w, r, &req)
}

func (h *Handler) handleFts(w http.ResponseWriter, r *http.Request) {
	var req model.FtsRequest
	if !decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	h.dispatch(w, r, &req)
}

func (h *Handler) handleRag(w http.ResponseWriter, r *http.Request) {
	var req model.RagRequest
	if !decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	h.dispatch(w, r, &req)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	var req model.ConversationRequest
	if !decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	h.dispatch(w, r, &req)
}

func (h *Handler) handleAgentic(w http.ResponseWriter, r *http.Request) {
	var req model.AgenticRequest
	if !decode(w, r, &req) {
		return
	}
	req.ApplyDefaults()
	h.dispatch(w, r, &req)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "failed to parse request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, req model.Request) {
	res, err := h.dispatcher.Dispatch(r.Context(), r.Header.Get(TenantHeader), req)
	if err != nil {
		h.writeDispatchError(w, r, req, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", res.Source)
	w.WriteHeader(res.Status)
	if _, err := w.Write(res.Body); err != nil {
		h.logger.Error("failed to write response", "error", err, "request_id", GetRequestID(r.Context()))
	}
}

func (h *Handler) writeDispatchError(w http.ResponseWriter, r *http.Request, req model.Request, err error) {
	var (
		validation  *pipeline.ValidationError
		missing     *pipeline.TenantMissingError
		notFound    *tenant.NotFoundError
		unavailable *tenant.BackendUnavailableError
		upstream    *pipeline.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "invalid_request_error", validation.Error())
	case errors.As(err, &missing):
		writeError(w, http.StatusUnauthorized, "unauthorized", missing.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusUnauthorized, "unauthorized", notFound.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusBadRequest, "invalid_request_error", unavailable.Error())
	case errors.As(err, &upstream):
		h.logger.Error("upstream failure",
			"endpoint", req.Endpoint(),
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
		writeError(w, http.StatusBadGateway, "upstream_error", upstream.Error())
	default:
		h.logger.Error("pipeline error",
			"endpoint", req.Endpoint(),
			"error", err,
			"request_id", GetRequestID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail holds error information.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{Message: message, Type: errType},
	})
}
