package client

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader_ReportsProgress(t *testing.T) {
	data := []byte("hello world this is test data")

	var progressCalls []struct{ current, total int64 }
	pr := &progressReader{
		reader: bytes.NewReader(data),
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			progressCalls = append(progressCalls, struct{ current, total int64 }{current, total})
		},
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)

	require.NotEmpty(t, progressCalls)
	lastCall := progressCalls[len(progressCalls)-1]
	assert.Equal(t, int64(len(data)), lastCall.current)
	assert.Equal(t, int64(len(data)), lastCall.total)
}

func TestProgressReader_NilCallback(t *testing.T) {
	data := []byte("hello world")
	pr := &progressReader{reader: bytes.NewReader(data), total: int64(len(data))}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)
}

func TestAPIClient_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ask", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "why?", req.Query)
		assert.Equal(t, 3, req.TopK)

		w.Write([]byte(`{"data":{"answer":"because","sources":[{"document":"a.pdf","page":2,"text":"it is so","distance":0.5}]}}`))
	}))
	defer srv.Close()

	resp, err := NewAPIClientWithConfig(testKey, srv.URL).Post("/ask", AskRequest{Query: "why?", TopK: 3})
	require.NoError(t, err)

	var result AskResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, "because", result.Answer)
	assert.Equal(t, []Source{{Document: "a.pdf", Page: 2, Text: "it is so", Distance: 0.5}}, result.Sources)
}

func TestAPIClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"json error", http.StatusNotFound, `{"error":"no documents uploaded yet; please upload a document first"}`, "no documents uploaded yet; please upload a document first"},
		{"plain text error", http.StatusBadGateway, "upstream down", "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewAPIClientWithConfig(testKey, srv.URL).Get("/documents")

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestAPIClient_DeleteNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := NewAPIClientWithConfig(testKey, srv.URL).Delete("/apikeys/k1")
	require.NoError(t, err)
}

func TestAPIClient_UploadFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "one.pdf")
	second := filepath.Join(dir, "two.pdf")
	require.NoError(t, os.WriteFile(first, []byte("%PDF-first"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("%PDF-second!"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "one.pdf", files[0].Filename)
		assert.Equal(t, "two.pdf", files[1].Filename)

		f, err := files[1].Open()
		require.NoError(t, err)
		content, _ := io.ReadAll(f)
		f.Close()
		assert.Equal(t, "%PDF-second!", string(content))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"passages":4}}`))
	}))
	defer srv.Close()

	var last, total int64
	resp, err := NewAPIClientWithConfig(testKey, srv.URL).UploadFiles("/documents", []string{first, second}, func(current, t int64) {
		last, total = current, t
	})
	require.NoError(t, err)

	var result UploadResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 4, result.Passages)
	assert.Equal(t, int64(22), total)
	assert.Equal(t, total, last)
}

func TestAPIClient_UploadFiles_MissingFile(t *testing.T) {
	_, err := NewAPIClientWithConfig(testKey, "http://127.0.0.1:0").UploadFiles("/documents", []string{"/does/not/exist.pdf"}, nil)
	assert.Error(t, err)
}

func TestHistoryPath(t *testing.T) {
	assert.Equal(t, "/history", historyPath(0, ""))
	assert.Equal(t, "/history?limit=5", historyPath(5, ""))
	assert.Equal(t, "/history?cursor=abc%3D&limit=5", historyPath(5, "abc="))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "***", maskAPIKey("short"))
	assert.Equal(t, "dqa_012...cdef", maskAPIKey(testKey))
}
