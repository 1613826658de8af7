package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/domain"
)

type QueryService interface {
	Ask(ctx context.Context, userID, question string, topK int) (*domain.QueryResult, error)
}

type AskHandler struct {
	svc QueryService
}

func NewAskHandler(svc QueryService) *AskHandler {
	return &AskHandler{svc: svc}
}

type AskRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SourceResponse is one retrieved passage. Distance is the squared L2
// distance to the question, smaller is closer.
type SourceResponse struct {
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}

type AskResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceResponse `json:"sources"`
}

func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK < 0 {
		api.Error(w, http.StatusBadRequest, "top_k must not be negative")
		return
	}

	result, err := h.svc.Ask(r.Context(), middleware.GetUserID(r.Context()), req.Query, req.TopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := AskResponse{
		Answer:  result.Answer,
		Sources: make([]SourceResponse, len(result.Sources)),
	}
	for i, h := range result.Sources {
		resp.Sources[i] = SourceResponse{
			Document: h.Source,
			Page:     h.Page,
			Text:     h.Text,
			Distance: h.Distance,
		}
	}
	api.Success(w, http.StatusOK, resp)
}
