package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// multipartMemory is how much of a multipart body is kept in memory before
// the rest spills to disk.
const multipartMemory = 32 << 20

// handlePreview stages an uploaded file and returns its first page.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	// Leave room for the multipart envelope; the service enforces the
	// exact file limit while spooling.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, core.ErrFileTooLarge)
			return
		}
		respondError(w, r, badRequest("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, badRequest("no file provided"))
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Preview(ctx, file, header.Filename)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handlePreviewPage pages through a staged session.
func (s *Server) handlePreviewPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	page := parseIntParam(r, "page", 1)
	size := parseIntParam(r, "size", 0)

	result, err := s.service.Page(id, page, size)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCommit writes a staged session to the selected stores.
//
// A partial commit answers 207 with the per-store results; a commit where
// every store failed answers with the failure status and still carries the
// results so the client can see each store's error.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	into := core.TargetRelational
	if raw := r.URL.Query().Get("target"); raw != "" {
		t, err := core.ParseImportTarget(raw)
		if err != nil {
			respondError(w, r, badRequest(err.Error()))
			return
		}
		into = t
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Commit(ctx, id, into, r.URL.Query().Get("table"))
	if err != nil {
		if result == nil {
			respondError(w, r, err)
			return
		}
		logRequestError(r, err)
		writeJSON(w, statusFor(err), result)
		return
	}

	status := http.StatusOK
	if result.Status == core.StatusPartial {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// handleCancel discards a staged session.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.service.Cancel(WithRequestMetadata(r.Context(), r), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "cancelled"})
}
