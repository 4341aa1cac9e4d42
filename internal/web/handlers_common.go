package web

// handlers_common.go holds request parsing helpers and the handlers that
// do not belong to a preview session or a target.

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetimport/internal/store"
)

// parseIntParam parses a positive integer query parameter with a default
// value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// backendParam resolves the {backend} path segment.
func backendParam(r *http.Request) (store.Backend, error) {
	b, err := store.ParseBackend(chi.URLParam(r, "backend"))
	if err != nil {
		return "", badRequest(err.Error())
	}
	return b, nil
}

// handleHealth reports which stores are configured and how busy the
// import limiter is. It is served outside /api so health checks need no key.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backends": s.service.Configured(),
		"imports":  s.service.Limiter().Status(),
	})
}

// handleStats returns per-store row counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleFormats lists the accepted upload extensions.
func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"extensions": s.service.SupportedExtensions()})
}
