package core

// facade.go is the backend-neutral read path over committed targets.
//
// Every read replays the column order recorded at import time, so display
// and export stay stable however the store orders fields. Binary values
// leave as data URIs and come back through UpdateRow the same way. The
// document store's native id is only ever surfaced as "id".

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/imaging"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/schema"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// Export is the full content of a target.
type Export struct {
	Backend store.Backend `json:"backend" yaml:"backend"`
	Target  string        `json:"target" yaml:"target"`
	IDKey   string        `json:"id_key" yaml:"id_key"`
	Headers []string      `json:"headers" yaml:"headers"`
	Rows    []store.Row   `json:"rows" yaml:"rows"`
}

// TableData is one page of a target.
type TableData struct {
	Export
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
}

// TargetStats is the row count of one target.
type TargetStats struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// BackendStats summarizes one store.
type BackendStats struct {
	Backend store.Backend `json:"backend"`
	Targets []TargetStats `json:"targets"`
	Error   string        `json:"error,omitempty"`
}

// Stats is the service-wide summary served by /api/stats.
type Stats struct {
	Backends        []BackendStats `json:"backends"`
	PendingPreviews int            `json:"pending_previews"`
	Limiter         LimiterStatus  `json:"limiter"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// idKey is the key under which rows of b carry their identifier.
func idKey(b store.Backend) string {
	if b == store.BackendDocument {
		return schema.DocumentIDKey
	}
	return schema.SurrogateKey
}

// ListTargets lists the user-visible targets of backend b.
func (s *Service) ListTargets(ctx context.Context, b store.Backend) ([]string, error) {
	m, err := s.manager(b)
	if err != nil {
		return nil, err
	}
	return m.ListTargets(ctx)
}

// GetOrderedHeaders returns the authoritative column order of target.
// Relational targets list the surrogate key first.
func (s *Service) GetOrderedHeaders(ctx context.Context, b store.Backend, target string) ([]string, error) {
	m, err := s.manager(b)
	if err != nil {
		return nil, err
	}
	return m.GetColumnOrder(ctx, target)
}

// ExportData returns every row of target in insertion order.
func (s *Service) ExportData(ctx context.Context, b store.Backend, target string) (*Export, error) {
	return s.read(ctx, b, target, 0, 0)
}

// TableData returns one page of target. page is 1-based.
func (s *Service) TableData(ctx context.Context, b store.Backend, target string, page, size int) (*TableData, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.opts.PreviewPageSize
	}
	size = min(size, s.opts.MaxPageSize)

	m, err := s.manager(b)
	if err != nil {
		return nil, err
	}
	total, err := m.Count(ctx, target)
	if err != nil {
		return nil, err
	}

	exp, err := s.read(ctx, b, target, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &TableData{Export: *exp, Page: page, Size: size, Total: total}, nil
}

// load returns the recorded column order of target and its raw rows.
func (s *Service) load(ctx context.Context, b store.Backend, target string, offset, limit int) ([]string, []store.Row, error) {
	m, err := s.manager(b)
	if err != nil {
		return nil, nil, err
	}
	headers, err := m.GetColumnOrder(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	rows, err := m.ReadRows(ctx, target, offset, limit)
	if err != nil {
		return nil, nil, err
	}
	return headers, rows, nil
}

func (s *Service) read(ctx context.Context, b store.Backend, target string, offset, limit int) (*Export, error) {
	headers, rows, err := s.load(ctx, b, target, offset, limit)
	if err != nil {
		return nil, err
	}

	key := idKey(b)
	out := make([]store.Row, len(rows))
	for i, row := range rows {
		r := make(store.Row, len(headers)+1)
		for _, h := range headers {
			r[h] = exportValue(row[h])
		}
		if id, ok := row[key]; ok {
			r[key] = exportValue(id)
		}
		out[i] = r
	}

	return &Export{Backend: b, Target: target, IDKey: key, Headers: headers, Rows: out}, nil
}

// exportValue renders binary payloads as data URIs.
func exportValue(v any) any {
	if b, ok := v.([]byte); ok {
		if len(b) == 0 {
			return nil
		}
		return imaging.EncodeDataURI(b)
	}
	return v
}

// ExportCSV writes target as CSV in its recorded column order. Relational
// exports keep the surrogate key column; document exports lead with id.
func (s *Service) ExportCSV(ctx context.Context, b store.Backend, target string, w io.Writer) error {
	exp, err := s.ExportData(ctx, b, target)
	if err != nil {
		return err
	}

	headers := exp.Headers
	if b == store.BackendDocument {
		headers = append([]string{schema.DocumentIDKey}, headers...)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	record := make([]string, len(headers))
	for _, row := range exp.Rows {
		for i, h := range headers {
			record[i] = formatCell(row[h])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// UpdateRow sets values on the row identified by id. Values for image
// columns may be data URIs; a payload that does not decode is stored as
// NULL and logged rather than failing the update.
func (s *Service) UpdateRow(ctx context.Context, b store.Backend, target, id string, values map[string]any) error {
	m, err := s.manager(b)
	if err != nil {
		return err
	}
	images, err := m.ImageColumns(ctx, target)
	if err != nil {
		return err
	}

	converted := make(map[string]any, len(values))
	for col, v := range values {
		converted[col] = v
		if !contains(images, col) {
			continue
		}
		val, err := imageValue(target, col, v)
		if err != nil {
			logging.WithFields(ctx, "target", target, "column", col, "row", id).
				Warn("image value degraded to null", "error", err)
		}
		converted[col] = val
	}

	if err := m.UpdateRow(ctx, target, id, converted); err != nil {
		return err
	}
	logging.WithFields(ctx, "backend", b, "target", target, "row", id).
		Info("row updated", "columns", len(converted))
	return nil
}

// imageValue decodes an incoming image cell. Non-URI text is kept.
func imageValue(target, column string, v any) (any, error) {
	str, ok := v.(string)
	if !ok {
		return v, nil
	}
	if str == "" {
		return nil, nil
	}
	if !imaging.IsDataURI(str) {
		return str, nil
	}
	data, err := imaging.DecodeDataURI(str)
	if err != nil {
		return nil, &apperrors.ClassificationError{
			Code:   apperrors.CodeImageDecode,
			Target: target,
			Column: column,
			Err:    err,
		}
	}
	return data, nil
}

// DeleteRow removes the row identified by id.
func (s *Service) DeleteRow(ctx context.Context, b store.Backend, target, id string) error {
	m, err := s.manager(b)
	if err != nil {
		return err
	}
	if err := m.DeleteRow(ctx, target, id); err != nil {
		return err
	}
	logging.WithFields(ctx, "backend", b, "target", target, "row", id).Info("row deleted")
	return nil
}

// DropTarget removes target and its recorded column order.
func (s *Service) DropTarget(ctx context.Context, b store.Backend, target string) error {
	m, err := s.manager(b)
	if err != nil {
		return err
	}
	if _, err := m.GetColumnOrder(ctx, target); err != nil {
		return err
	}
	if err := m.Drop(ctx, target); err != nil {
		return err
	}
	logging.WithFields(ctx, "backend", b, "target", target).Info("target dropped")
	return nil
}

// Stats gathers target row counts from every configured store
// concurrently. A store that fails reports its error instead of counts.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	backends := s.Configured()
	results := make([]BackendStats, len(backends))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			results[i] = s.backendStats(gctx, b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Stats{
		Backends:        results,
		PendingPreviews: s.cache.Len(),
		Limiter:         s.limiter.Status(),
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

func (s *Service) backendStats(ctx context.Context, b store.Backend) BackendStats {
	st := BackendStats{Backend: b}
	m, err := s.manager(b)
	if err == nil {
		var targets []string
		targets, err = m.ListTargets(ctx)
		for _, t := range targets {
			n, cerr := m.Count(ctx, t)
			if cerr != nil {
				if errors.Is(cerr, apperrors.ErrNotFound) {
					continue
				}
				err = cerr
				break
			}
			st.Targets = append(st.Targets, TargetStats{Name: t, Rows: n})
		}
	}
	if err != nil {
		st.Error = MapError(err).Message
		logging.FromContext(ctx).Warn("collect stats", "backend", b, "error", err)
	}
	sort.Slice(st.Targets, func(i, j int) bool { return st.Targets[i].Name < st.Targets[j].Name })
	return st
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
