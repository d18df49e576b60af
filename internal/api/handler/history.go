package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/tubefetch/internal/domain"
	"github.com/iconidentify/tubefetch/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryHandler serves the record of finished fetch requests.
type HistoryHandler struct {
	history repository.HistoryRepository
	logger  *slog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history repository.HistoryRepository, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: history,
		logger:  logger,
	}
}

// HistoryListResponse is the JSON response for GET /api/v1/history.
type HistoryListResponse struct {
	Entries []domain.HistoryEntry `json:"entries"`
	Count   int                   `json:"count"`
}

// List handles GET /api/v1/history?limit=N.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}

	writeJSON(w, http.StatusOK, HistoryListResponse{
		Entries: entries,
		Count:   len(entries),
	})
}

// Summary handles GET /api/v1/history/summary.
func (h *HistoryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.history.Summary(r.Context())
	if err != nil {
		h.logger.Error("failed to summarize history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to summarize history")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
