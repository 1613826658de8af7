package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/repository"
)

const maxHistoryLimit = 100

type HistoryService interface {
	ListRecent(ctx context.Context, userID string, cursor *pagination.Cursor, limit int) (*repository.QueryLogPageResult, error)
}

// HistoryHandler lists the questions a user has asked.
type HistoryHandler struct {
	svc HistoryService
}

func NewHistoryHandler(svc HistoryService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

type QueryLogResponse struct {
	ID         string `json:"id"`
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	Passages   int    `json:"passages"`
	DurationMs int64  `json:"duration_ms"`
	Failed     bool   `json:"failed"`
	CreatedAt  string `json:"created_at"`
}

type HistoryResponse struct {
	Items   []QueryLogResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	cursor, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}
	limit = min(limit, maxHistoryLimit)

	page, err := h.svc.ListRecent(r.Context(), middleware.GetUserID(r.Context()), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := HistoryResponse{
		Items:   make([]QueryLogResponse, len(page.Items)),
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}
	for i, l := range page.Items {
		resp.Items[i] = QueryLogResponse{
			ID:         l.ID,
			Query:      l.Query,
			TopK:       l.TopK,
			Passages:   l.Passages,
			DurationMs: l.DurationMs,
			Failed:     l.Failed,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		}
	}
	api.Success(w, http.StatusOK, resp)
}
