package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/notify-triage/internal/decision"
	"github.com/ignite/notify-triage/internal/pipeline"
	"github.com/ignite/notify-triage/internal/rules"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	engine    *pipeline.Engine
	startTime time.Time
}

// NewHandlers creates the handler set around a pipeline engine.
func NewHandlers(engine *pipeline.Engine) *Handlers {
	return &Handlers{engine: engine, startTime: time.Now()}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// batchRequest is the POST /api/events payload.
type batchRequest struct {
	Events []map[string]interface{} `json:"events"`
}

// batchSummary counts outcomes across one processed batch.
type batchSummary struct {
	Total int `json:"total"`
	Now   int `json:"now"`
	Later int `json:"later"`
	Never int `json:"never"`
}

// ProcessEvents runs a batch of raw events through the pipeline. A payload
// that is not a well-formed batch is a request-level 400, distinct from
// any individual event's VALIDATION_ERROR.
func (h *Handlers) ProcessEvents(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "request body is not a well-formed event batch")
		return
	}
	if req.Events == nil {
		respondError(w, http.StatusBadRequest, "missing events array")
		return
	}

	results := h.engine.ProcessBatch(r.Context(), req.Events)

	summary := batchSummary{Total: len(results)}
	for _, res := range results {
		switch res.Outcome {
		case decision.Now:
			summary.Now++
		case decision.Later:
			summary.Later++
		case decision.Never:
			summary.Never++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"summary": summary,
	})
}

// GetRules returns the active rule set snapshot.
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Rules().Snapshot())
}

// ReplaceRules atomically swaps the rule set. A set containing any
// malformed rule is rejected whole and the old set stays active.
func (h *Handlers) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	var rs rules.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		respondError(w, http.StatusBadRequest, "request body is not a rule set")
		return
	}
	if err := h.engine.Rules().Replace(&rs); err != nil {
		if errors.Is(err, rules.ErrInvalidRule) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "replaced",
		"rules":  len(rs.Rules),
	})
}

// fallbackRequest is the POST /api/classifier/fallback payload.
type fallbackRequest struct {
	Enabled bool `json:"enabled"`
}

// SetFallback toggles the forced classifier fallback for subsequent events.
func (h *Handlers) SetFallback(w http.ResponseWriter, r *http.Request) {
	var req fallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid fallback toggle payload")
		return
	}
	h.engine.SetForceFallback(req.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

// GetAudit returns audit entries in processing order. Supports optional
// user_id and limit query parameters.
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.engine.Audit().Recent(r.Context(), r.URL.Query().Get("user_id"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Recent is newest first; flip to processing order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// Reset clears history and audit state.
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reset(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
