package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RuFFyGTLP/TC/pkg/api/response"
	"github.com/RuFFyGTLP/TC/pkg/rag"
)

const (
	defaultSearchTopK       = 5
	defaultMaxContextTokens = 2000
	defaultMaxUploadBytes   = 10 << 20
	maxMultipartMemory      = 1 << 20
)

// DocumentsConfig sets request defaults for the document endpoints.
type DocumentsConfig struct {
	SearchTopK       int
	MaxContextTokens int
	MaxUploadBytes   int64
}

// DocumentsHandler serves the document index.
type DocumentsHandler struct {
	index  *rag.Index
	cfg    DocumentsConfig
	logger handlerLogger
}

// NewDocumentsHandler creates a document handler.
func NewDocumentsHandler(idx *rag.Index, cfg DocumentsConfig, log handlerLogger) *DocumentsHandler {
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = defaultSearchTopK
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = defaultMaxContextTokens
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &DocumentsHandler{index: idx, cfg: cfg, logger: orNop(log)}
}

type indexRequest struct {
	Content  string         `json:"content" validate:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChunkView is a chunk without its embedding.
type ChunkView struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// IndexResponse reports the chunks produced by an index call.
type IndexResponse struct {
	Chunks []ChunkView `json:"chunks"`
	Total  int         `json:"total"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	Chunk      ChunkView `json:"chunk"`
	Similarity float64   `json:"similarity"`
}

func viewChunks(chunks []rag.Chunk) []ChunkView {
	out := make([]ChunkView, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkView{ID: c.ID, Content: c.Content, Metadata: c.Metadata, CreatedAt: c.CreatedAt}
	}
	return out
}

// IndexDocument handles POST /api/v1/documents
//
// @Summary Index a document
// @Tags documents
// @Accept json
// @Produce json
// @Param request body indexRequest true "Document"
// @Success 201 {object} IndexResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/documents [post]
func (h *DocumentsHandler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req indexRequest
	if err := response.Decode(r, &req); err != nil {
		response.HandleError(w, err, getRequestID(ctx))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Content is required", getRequestID(ctx))
		return
	}

	chunks := h.index.IndexDocument(ctx, req.Content, req.Metadata)
	response.JSON(w, http.StatusCreated, IndexResponse{Chunks: viewChunks(chunks), Total: h.index.Len()})
}

// Upload handles POST /api/v1/documents/upload with a multipart "file" field.
// An optional "lastModified" field holds the file time in epoch milliseconds.
//
// @Summary Upload and index a file
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to index"
// @Success 201 {object} IndexResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 413 {object} response.ErrorResponse
// @Router /api/v1/documents/upload [post]
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			response.Error(w, http.StatusRequestEntityTooLarge, response.ErrCodePayloadTooLarge, "File exceeds upload limit", getRequestID(ctx))
			return
		}
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid multipart form", getRequestID(ctx))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "File is required", getRequestID(ctx))
		return
	}
	defer file.Close()

	fileType := header.Header.Get("Content-Type")
	if fileType == "" || fileType == "application/octet-stream" {
		if t := mime.TypeByExtension(filepath.Ext(header.Filename)); t != "" {
			fileType = t
		}
	}
	modified := time.Now()
	if v := r.FormValue("lastModified"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			modified = time.UnixMilli(ms)
		}
	}

	chunks, err := h.index.IndexFile(ctx, rag.File{
		Name:         header.Filename,
		Type:         fileType,
		Size:         header.Size,
		LastModified: modified,
		Content:      file,
	})
	if err != nil {
		h.logger.Error("Failed to index upload", "file", header.Filename, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to index file", getRequestID(ctx))
		return
	}

	h.logger.Info("File indexed", "file", header.Filename, "chunks", len(chunks))
	response.JSON(w, http.StatusCreated, IndexResponse{Chunks: viewChunks(chunks), Total: h.index.Len()})
}

// Clear handles DELETE /api/v1/documents
//
// @Summary Clear the document index
// @Tags documents
// @Produce json
// @Success 200 {object} map[string]int
// @Router /api/v1/documents [delete]
func (h *DocumentsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	cleared := h.index.Len()
	h.index.Clear(r.Context())
	response.JSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// Stats handles GET /api/v1/documents/stats
//
// @Summary Index statistics
// @Tags documents
// @Produce json
// @Success 200 {object} rag.Stats
// @Router /api/v1/documents/stats [get]
func (h *DocumentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.index.Stats())
}

// Search handles GET /api/v1/search?q=&top_k=
//
// @Summary Rank chunks against a query
// @Tags documents
// @Produce json
// @Param q query string true "Query"
// @Param top_k query int false "Result limit"
// @Success 200 {array} SearchResult
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/search [get]
func (h *DocumentsHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query parameter q is required", getRequestID(ctx))
		return
	}

	results := h.index.Search(ctx, q, queryInt(r, "top_k", h.cfg.SearchTopK))
	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{Chunk: viewChunks([]rag.Chunk{res.Chunk})[0], Similarity: res.Similarity}
	}
	response.JSON(w, http.StatusOK, out)
}

// Context handles GET /api/v1/context?q=&max_tokens=
//
// @Summary Build a context block for a query
// @Tags documents
// @Produce json
// @Param q query string true "Query"
// @Param max_tokens query int false "Token budget"
// @Success 200 {object} map[string]string
// @Router /api/v1/context [get]
func (h *DocumentsHandler) Context(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query parameter q is required", getRequestID(ctx))
		return
	}

	block := h.index.BuildContext(ctx, q, queryInt(r, "max_tokens", h.cfg.MaxContextTokens))
	response.JSON(w, http.StatusOK, map[string]string{"context": block})
}
