package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/junhanzh/ragstore"
	"github.com/junhanzh/ragstore/fetch"
	"github.com/junhanzh/ragstore/ingest"
	"github.com/junhanzh/ragstore/retrieval"
	"github.com/junhanzh/ragstore/store"
)

type handler struct {
	engine ragstore.Engine
}

func newHandler(e ragstore.Engine) *handler {
	return &handler{engine: e}
}

// POST /ingest
// Accepts JSON with exactly one of "url", "path", or "content".
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		URL     string `json:"url,omitempty"`
		Path    string `json:"path,omitempty"`
		Content string `json:"content,omitempty"`
		Source  string `json:"source,omitempty"`
		Title   string `json:"title,omitempty"`
		Fresh   bool   `json:"fresh,omitempty"` // bypass the page cache
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var res *ingest.Result
	var err error

	switch {
	case req.URL != "":
		var opts []ragstore.IngestOption
		if req.Fresh {
			opts = append(opts, ragstore.WithoutCache())
		}
		res, err = h.engine.IngestURL(ctx, req.URL, opts...)

	case req.Path != "":
		// Validate that path is a real file (prevents directory traversal probing).
		absPath, perr := filepath.Abs(req.Path)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid path")
			return
		}
		info, serr := os.Stat(absPath)
		if serr != nil || info.IsDir() {
			writeError(w, http.StatusBadRequest, "path must be an existing file")
			return
		}
		res, err = h.engine.IngestFile(ctx, absPath)

	case req.Content != "":
		source := req.Source
		if source == "" {
			source = "inline"
		}
		res, err = h.engine.IngestContent(ctx, source, req.Title, req.Content)

	default:
		writeError(w, http.StatusBadRequest, "one of 'url', 'path', or 'content' is required")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, fetch.ErrUnsupportedFormat):
			writeError(w, http.StatusBadRequest, "unsupported file format")
		case errors.Is(err, fetch.ErrFetch):
			writeError(w, http.StatusBadGateway, "could not fetch the target")
		default:
			writeError(w, http.StatusInternalServerError, "ingestion failed")
			slog.Error("ingest error", "url", req.URL, "path", req.Path, "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// POST /retrieve
func (h *handler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Query         string  `json:"query"`
		TopK          int     `json:"top_k,omitempty"`
		MinSimilarity float64 `json:"min_similarity,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	// Bound parameters.
	if req.TopK < 0 || req.TopK > 100 {
		req.TopK = 0 // use default
	}
	if req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		req.MinSimilarity = 0 // use default
	}

	var opts []ragstore.QueryOption
	if req.TopK > 0 {
		opts = append(opts, ragstore.WithTopK(req.TopK))
	}
	if req.MinSimilarity > 0 {
		opts = append(opts, ragstore.WithMinSimilarity(req.MinSimilarity))
	}

	res, err := h.engine.Retrieve(ctx, req.Query, opts...)
	if err != nil {
		if errors.Is(err, retrieval.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		slog.Error("retrieve error", "query", req.Query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   res.Query,
		"indexed": res.Indexed,
		"chunks":  res.Chunks,
		"context": res.Context(),
	})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("list documents error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
	})
}

// GET /documents/{id}
func (h *handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.engine.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get document")
		slog.Error("get document error", "document_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		slog.Error("delete error", "document_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		slog.Error("stats error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
