// Package httpapi exposes the localrag Engine over HTTP: the same
// router backs both the standalone server binary (cmd/server) and the
// CLI's "serve" subcommand (cmd/localrag).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelai/localrag"
	"github.com/kestrelai/localrag/webrag"
)

// Handler adapts an *localrag.Engine to chi-routable HTTP handlers.
type Handler struct {
	engine *localrag.Engine
}

func NewHandler(e *localrag.Engine) *Handler {
	return &Handler{engine: e}
}

// POST /ingest
// Accepts multipart file upload or JSON with a file path (spec §6
// "three document parsers supply {text,type,metadata}").
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(50 << 20); err == nil { // spec §6 "single file max 50 MB"
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			safeName := filepath.Base(header.Filename)
			tmpPath := filepath.Join(os.TempDir(), safeName)
			dst, err := os.Create(tmpPath)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("creating temp file", "error", err)
				return
			}
			if _, err := io.Copy(dst, file); err != nil {
				dst.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("saving uploaded file", "error", err)
				return
			}
			dst.Close()
			defer os.Remove(tmpPath)

			docID, err := h.engine.Ingest(ctx, tmpPath)
			if err != nil {
				writeEngineError(w, "ingestion failed", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "filename": safeName})
			return
		}
	}

	var req struct {
		Path     string            `json:"path"`
		Metadata map[string]string `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	var opts []localrag.IngestOption
	if len(req.Metadata) > 0 {
		opts = append(opts, localrag.WithMetadata(req.Metadata))
	}

	docID, err := h.engine.Ingest(ctx, absPath, opts...)
	if err != nil {
		writeEngineError(w, "ingestion failed", err)
		slog.Error("ingest error", "path", absPath, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"document_id": docID, "path": absPath})
}

// POST /query
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Question       string  `json:"question"`
		TopK           int     `json:"top_k,omitempty"`
		DocumentIDs    []int64 `json:"document_ids,omitempty"`
		ConversationID *int64  `json:"conversation_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	var opts []localrag.QueryOption
	if req.TopK > 0 {
		opts = append(opts, localrag.WithTopK(req.TopK))
	}
	if len(req.DocumentIDs) > 0 {
		opts = append(opts, localrag.WithDocuments(req.DocumentIDs))
	}
	if req.ConversationID != nil {
		opts = append(opts, localrag.WithConversation(*req.ConversationID))
	}

	answer, err := h.engine.Query(ctx, req.Question, opts...)
	if err != nil {
		writeEngineError(w, "query failed", err)
		slog.Error("query error", "question", req.Question, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// POST /search — the Web-RAG orchestrator (spec §4.9).
func (h *Handler) handleSearchWeb(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var req struct {
		Query            string   `json:"query"`
		MaxSearchResults int      `json:"max_search_results,omitempty"`
		Sources          []string `json:"sources,omitempty"`
		MaxURLsToFetch   int      `json:"max_urls_to_fetch,omitempty"`
		TopK             int      `json:"top_k,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := webrag.Options{
		MaxSearchResults: req.MaxSearchResults,
		Sources:          req.Sources,
		MaxURLsToFetch:   req.MaxURLsToFetch,
		TopK:             req.TopK,
	}

	result, err := h.engine.SearchWeb(ctx, req.Query, opts, nil)
	if err != nil {
		writeEngineError(w, "web search failed", err)
		slog.Error("search error", "query", req.Query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// DELETE /documents/{id}
func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathInt64(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		if errors.Is(err, localrag.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeEngineError(w, "delete failed", err)
		slog.Error("delete error", "document_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /documents
func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		writeEngineError(w, "failed to list documents", err)
		slog.Error("list documents error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// POST /conversations
func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Model string `json:"model"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Title == "" {
		req.Title = "New Conversation"
	}

	id, err := h.engine.Conversations().Create(r.Context(), req.Title, req.Model)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		slog.Error("create conversation error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id})
}

// GET /conversations
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.engine.Conversations().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		slog.Error("list conversations error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// GET /conversations/{id}/messages
func (h *Handler) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathInt64(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	messages, err := h.engine.Conversations().Messages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		slog.Error("conversation messages error", "conversation_id", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// GET /settings/{key}
func (h *Handler) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok, err := h.engine.Store().GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read setting")
		slog.Error("get setting error", "key", key, "error", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// PUT /settings/{key}
func (h *Handler) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.engine.Store().PutSetting(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write setting")
		slog.Error("put setting error", "key", key, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps localrag sentinel errors onto HTTP status codes
// (spec §7's taxonomy, re-expressed as response codes at this boundary).
func writeEngineError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, localrag.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, msg)
	case errors.Is(err, localrag.ErrParseFailed), errors.Is(err, localrag.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, localrag.ErrUserCancelled):
		writeError(w, http.StatusRequestTimeout, msg)
	case errors.Is(err, localrag.ErrNoResults):
		writeError(w, http.StatusNotFound, msg)
	default:
		writeError(w, http.StatusInternalServerError, msg)
	}
}
