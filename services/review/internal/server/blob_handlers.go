package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"shotreview/internal/util"
	"shotreview/pkg/domain"
	"shotreview/pkg/permission"
	"shotreview/pkg/storage"
	"shotreview/services/review/internal/app"
)

// POST /api/upload-screenshot?filename=... with the image as the raw body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if !s.allowRate(w, r, s.uploadLimiter, "upload") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		writeErrorDetails(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}
	url, err := s.app.Upload(r.Context(), filename, data, r.Header.Get("Content-Type"))
	if err != nil {
		if isStorageInputError(err) {
			writeErrorDetails(w, http.StatusBadRequest, "filename is required", err.Error())
			return
		}
		util.LoggerFromContext(r.Context()).Error("upload failed", "filename", filename, "err", err)
		writeErrorDetails(w, http.StatusInternalServerError, "upload failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": url})
}

// GET /api/list-screenshots?prefix=&cursor=&limit=
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	page, err := s.app.ListImages(r.Context(), q.Get("prefix"), q.Get("cursor"), limit)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list failed", "err", err)
		writeErrorDetails(w, http.StatusInternalServerError, "failed to list screenshots", err.Error())
		return
	}
	objects := page.Objects
	if objects == nil {
		objects = []storage.Object{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"screenshots": objects,
		"cursor":      page.Cursor,
		"hasMore":     page.HasMore,
	})
}

// DELETE /api/delete-screenshot?url=...
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	ref := strings.TrimSpace(r.URL.Query().Get("url"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !permission.Allows(user.Role, permission.DeleteScreenshot) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := s.app.DeleteImage(r.Context(), ref); err != nil {
		if isStorageInputError(err) {
			writeErrorDetails(w, http.StatusBadRequest, "invalid url", err.Error())
			return
		}
		util.LoggerFromContext(r.Context()).Error("delete failed", "url", ref, "err", err)
		writeErrorDetails(w, http.StatusInternalServerError, "delete failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /blobs/{key} serves the in-memory image store.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, app.BlobPathPrefix+"/")
	data, contentType, ok := s.app.MemoryBlobs().Get(key)
	if !ok {
		notFound(w, "not found")
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}
