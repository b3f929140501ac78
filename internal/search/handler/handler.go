// Package handler exposes the searcher over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/logger"
)

// Searcher is the part of *search.Searcher the handler serves.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
	Document(ctx context.Context, primaryKey string) (*search.StoredDocument, error)
}

type Handler struct {
	searcher Searcher
	logger   *slog.Logger
}

func New(s Searcher) *Handler {
	return &Handler{
		searcher: s,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /api/v1/search?q=...&sort=field&limit=n. The sort
// parameter may repeat; more than one key is rejected.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	query := params.Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	req := search.Request{Query: query}
	if limitStr := params.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		req.Limit = parsed
	}
	for _, f := range params["sort"] {
		req.Sort = append(req.Sort, search.SortField{Field: f})
	}

	result, err := h.searcher.Search(ctx, req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error("search execution failed", "query", query, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}

	log.Info("search completed",
		"query", query,
		"sorted_by", result.SortedBy,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Document serves GET /api/v1/documents/{key}.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		h.writeError(w, http.StatusBadRequest, "document key is required")
		return
	}
	doc, err := h.searcher.Document(r.Context(), key)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("document lookup failed", "key", key, "error", err)
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func statusFor(err error) int {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidSort), apperrors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
