package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/imaging"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/schema"
)

// ErrFileTooLarge is returned when an upload exceeds Options.MaxFileSize.
var ErrFileTooLarge = errors.New("file too large")

// PreviewRow is one row keyed by display header.
type PreviewRow map[string]any

// PreviewResult is returned by Preview.
type PreviewResult struct {
	SessionID string                    `json:"session_id"`
	FileName  string                    `json:"file_name"`
	Target    string                    `json:"target"`
	Headers   []string                  `json:"headers"`
	Columns   []schema.ColumnDescriptor `json:"columns"`
	Rows      []PreviewRow              `json:"rows"`
	Total     int                       `json:"total"`
}

// PageResult is returned by Page.
type PageResult struct {
	SessionID string       `json:"session_id"`
	Headers   []string     `json:"headers"`
	Rows      []PreviewRow `json:"rows"`
	Page      int          `json:"page"`
	Size      int          `json:"size"`
	Total     int          `json:"total"`
}

// Preview parses r once, stages it as a new session and returns the first
// page. The reader is chosen by the extension of fileName.
func (s *Service) Preview(ctx context.Context, r io.Reader, fileName string) (*PreviewResult, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	reader, ok := s.readers.ForFile(fileName)
	if !ok {
		return nil, &apperrors.ImportError{
			Code: apperrors.CodeUnsupportedFormat,
			Err:  fmt.Errorf("unsupported file format %q (supported: %s)", ext, strings.Join(s.readers.Extensions(), ", ")),
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	id := uuid.New().String()
	logger := logging.WithFields(ctx, "session_id", id, "file", fileName)

	path, err := s.spool(r, ext)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	src, err := reader.Read(ctx, path)
	if err != nil {
		removeTemp(ctx, path)
		return nil, &apperrors.ImportError{Code: apperrors.CodeParseFailed, Session: id, Err: err}
	}

	sess := &Session{
		ID:        id,
		FileName:  fileName,
		TempPath:  path,
		Headers:   src.Headers,
		Rows:      src.Rows,
		Images:    src.Images,
		CreatedAt: time.Now(),
	}
	s.cache.Put(sess)

	logger.Info("preview staged",
		"rows", sess.Total(),
		"columns", len(sess.Headers),
		"images", len(sess.Images),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	target := schema.TargetNameFromFile(fileName)
	return &PreviewResult{
		SessionID: id,
		FileName:  fileName,
		Target:    target,
		Headers:   displayHeaders(sess.Headers),
		Columns:   s.inferSchema(sess, target).Columns,
		Rows:      renderRows(sess, 0, min(s.opts.PreviewPageSize, sess.Total())),
		Total:     sess.Total(),
	}, nil
}

// Page returns rows of a staged session. page is 1-based. It never touches
// a store.
func (s *Service) Page(id string, page, size int) (*PageResult, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, apperrors.SessionNotFound(id)
	}

	page, size = s.clampPage(page, size)
	start := min((page-1)*size, sess.Total())
	end := min(start+size, sess.Total())

	return &PageResult{
		SessionID: id,
		Headers:   displayHeaders(sess.Headers),
		Rows:      renderRows(sess, start, end),
		Page:      page,
		Size:      size,
		Total:     sess.Total(),
	}, nil
}

// Cancel discards a staged session without writing anything.
func (s *Service) Cancel(ctx context.Context, id string) error {
	sess, ok := s.cache.Take(id)
	if !ok {
		return apperrors.SessionNotFound(id)
	}
	removeTemp(ctx, sess.TempPath)
	logging.WithFields(ctx, "session_id", id).Info("preview cancelled")
	return nil
}

func (s *Service) clampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = s.opts.PreviewPageSize
	}
	if size > s.opts.MaxPageSize {
		size = s.opts.MaxPageSize
	}
	return page, size
}

// inferSchema derives the schema a commit of sess would create.
func (s *Service) inferSchema(sess *Session, target string) schema.TableSchema {
	var first []string
	if len(sess.Rows) > 0 {
		first = sess.Rows[0]
	}
	sch := schema.Build(target, sess.Headers, first)
	imaging.Apply(&sch, sess.Images, s.opts.ImageKeywords)
	return sch
}

// spool copies r to a temp file so readers can seek and so the file can be
// released with the session.
func (s *Service) spool(r io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(s.opts.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	f, err := os.CreateTemp(s.opts.TempDir, "preview-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.opts.MaxFileSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.opts.MaxFileSize {
		err = fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.opts.MaxFileSize)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// removeTemp deletes a session file. Failures are logged only.
func removeTemp(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.FromContext(ctx).Warn("remove temp file", "path", path, "error", err)
	}
}

// displayHeaders makes raw headers unique and non-blank so they can key
// preview rows.
func displayHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]struct{}, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Column " + strconv.Itoa(i+1)
		}
		name := h
		for n := 2; ; n++ {
			if _, dup := seen[name]; !dup {
				break
			}
			name = h + "_" + strconv.Itoa(n)
		}
		seen[name] = struct{}{}
		out[i] = name
	}
	return out
}

// renderRows renders staged rows [start, end); image cells with bytes
// become data URIs.
func renderRows(sess *Session, start, end int) []PreviewRow {
	headers := displayHeaders(sess.Headers)
	out := make([]PreviewRow, 0, max(end-start, 0))
	for r := start; r < end; r++ {
		row := make(PreviewRow, len(headers))
		for c, h := range headers {
			if b := sess.Images.Get(r, c); len(b) > 0 {
				row[h] = imaging.EncodeDataURI(b)
				continue
			}
			var v string
			if c < len(sess.Rows[r]) {
				v = sess.Rows[r][c]
			}
			row[h] = v
		}
		out = append(out, row)
	}
	return out
}
