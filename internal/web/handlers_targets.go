package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxRowBody bounds a row update; image cells arrive as data URIs.
const maxRowBody = 32 << 20

// handleListTargets lists the targets of one store.
func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	b, err := backendParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	targets, err := s.service.ListTargets(r.Context(), b)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if targets == nil {
		targets = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"backend": b, "targets": targets})
}

// handleHeaders returns the recorded column order of a target.
func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	b, err := backendParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	target := chi.URLParam(r, "target")
	headers, err := s.service.GetOrderedHeaders(r.Context(), b, target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backend": b, "target": target, "headers": headers})
}

// handleTableData returns one page of a target.
func (s *Server) handleTableData(w http.ResponseWriter, r *http.Request) {
	b, err := backendParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	page := parseIntParam(r, "page", 1)
	size := parseIntParam(r, "size", 0)

	data, err := s.service.TableData(r.Context(), b, chi.URLParam(r, "target"), page, size)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExport returns a whole target as JSON, or as a CSV or XLSX
// attachment with ?format=csv or ?format=xlsx.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	b, err := backendParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	target := chi.URLParam(r, "target")

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		exp, err := s.service.ExportData(r.Context(), b, target)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, exp)

	case "csv", "xlsx":
		// Buffered so a failure still produces a JSON error instead of a
		// truncated attachment.
		var buf bytes.Buffer
		export, contentType := s.service.ExportCSV, "text/csv; charset=utf-8"
		if format == "xlsx" {
			export, contentType = s.service.ExportXLSX, xlsxContentType
		}
		if err := export(r.Context(), b, target, &buf); err != nil {
			respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+target+`.`+format+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)

	default:
		respondError(w, r, badRequest("unsupported export format: "+format))
	}
}

// handleUpdateRow applies a JSON object of column values to one row.
func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	b, err := backendParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRowBody)
	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		respondError(w, r, badRequest("request body must be a JSON object of column values"))
		return
	}
	if len(values) == 0 {
		respondError(w, r, badRequest("no columns to update"))
		return
	}

	target, id := chi.URLParam(r, "target"), chi.URLParam(r, "rowID")
	if err := s.service.UpdateRow(WithRequestMetadata(r.Context(), r), b, target, id, values); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"target": target, "id": id, "updated": len(values)})
}

// handleDeleteRow removes one row.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	b, err := backendParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	target, id := chi.URLParam(r, "target"), chi.URLParam(r, "rowID")
	if err := s.service.DeleteRow(WithRequestMetadata(r.Context(), r), b, target, id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDropTarget removes a target and its recorded column order.
func (s *Server) handleDropTarget(w http.ResponseWriter, r *http.Request) {
	b, err := backendParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.DropTarget(WithRequestMetadata(r.Context(), r), b, chi.URLParam(r, "target")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
