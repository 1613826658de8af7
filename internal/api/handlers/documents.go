package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/cloo-solutions/docqa/internal/service"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

type DocumentService interface {
	Upload(ctx context.Context, userID string, files []service.UploadFile) (*service.UploadResult, error)
	ListDocuments(ctx context.Context, userID string) ([]*domain.Document, error)
	Reset(ctx context.Context, userID string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentResponse struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename"`
	StorageKey  string `json:"storage_key"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256,omitempty"`
	UploadedAt  string `json:"uploaded_at"`
	DownloadURL string `json:"download_url,omitempty"`
}

type UploadResponse struct {
	Documents  []DocumentResponse `json:"documents"`
	Passages   int                `json:"passages"`
	Skipped    int                `json:"skipped"`
	Generation string             `json:"generation"`
	Replicated bool               `json:"replicated"`
}

func toDocumentResponse(d *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:          d.ID,
		Filename:    d.Filename,
		StorageKey:  d.StorageKey,
		SizeBytes:   d.SizeBytes,
		SHA256:      d.SHA256,
		UploadedAt:  d.UploadedAt.Format(time.RFC3339),
		DownloadURL: d.DownloadURL,
	}
}

// Upload accepts a multipart form with one or more "files" parts and
// rebuilds the caller's index from them.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		api.HandleError(w, domain.ErrNoFiles)
		return
	}

	files, closeAll, err := openParts(headers)
	defer closeAll()
	if err != nil {
		api.Error(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	result, err := h.svc.Upload(r.Context(), userID, files)
	if err != nil {
		logger.FromContext(r.Context()).Warn("upload failed", zap.Int("files", len(files)), zap.Error(err))
		api.HandleError(w, err)
		return
	}

	resp := UploadResponse{
		Documents:  make([]DocumentResponse, len(result.Documents)),
		Passages:   result.Index.Passages,
		Skipped:    result.Index.Skipped,
		Generation: result.Index.Manifest.Generation,
		Replicated: result.Index.Manifest.Replicated,
	}
	for i, d := range result.Documents {
		resp.Documents[i] = toDocumentResponse(d)
	}
	api.Success(w, http.StatusCreated, resp)
}

func openParts(headers []*multipart.FileHeader) ([]service.UploadFile, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		files = append(files, service.UploadFile{Name: fh.Filename, Content: f})
	}
	return files, closeAll, nil
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		resp[i] = toDocumentResponse(d)
	}
	api.Success(w, http.StatusOK, resp)
}

// Reset deletes every upload and the index of the caller.
func (h *DocumentHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
