package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/imaging"
	"github.com/JonMunkholm/sheetimport/internal/source"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// DefaultPreviewPageSize is the number of rows returned by Preview.
const DefaultPreviewPageSize = 10

// DefaultMaxPageSize caps the page size accepted by Page and TableData.
const DefaultMaxPageSize = 500

// DefaultMaxFileSize bounds an uploaded file.
const DefaultMaxFileSize int64 = 100 << 20

// ImportTarget selects the stores a commit writes to.
type ImportTarget string

const (
	TargetRelational ImportTarget = "relational"
	TargetDocument   ImportTarget = "document"
	TargetBoth       ImportTarget = "both"
)

// ParseImportTarget accepts a backend name or "both".
func ParseImportTarget(s string) (ImportTarget, error) {
	if strings.EqualFold(strings.TrimSpace(s), string(TargetBoth)) {
		return TargetBoth, nil
	}
	b, err := store.ParseBackend(s)
	if err != nil {
		return "", fmt.Errorf("unknown import target: %q", s)
	}
	return ImportTarget(b), nil
}

// Backends lists the stores of t in commit order.
func (t ImportTarget) Backends() []store.Backend {
	switch t {
	case TargetRelational:
		return []store.Backend{store.BackendRelational}
	case TargetDocument:
		return []store.Backend{store.BackendDocument}
	case TargetBoth:
		return []store.Backend{store.BackendRelational, store.BackendDocument}
	}
	return nil
}

// Options tunes a Service. Zero values take the defaults.
type Options struct {
	TempDir         string
	MaxFileSize     int64
	PreviewPageSize int
	MaxPageSize     int
	ImageKeywords   []string
	MaxConcurrent   int
	MaxWait         time.Duration
}

func (o Options) withDefaults() Options {
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.PreviewPageSize <= 0 {
		o.PreviewPageSize = DefaultPreviewPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = DefaultMaxPageSize
	}
	if len(o.ImageKeywords) == 0 {
		o.ImageKeywords = imaging.DefaultKeywords
	}
	return o
}

// Service runs the preview/commit pipeline and the read façade over the
// configured stores. Either manager may be nil when its store is not
// configured; operations that need it fail with IMP005.
type Service struct {
	relational store.Manager
	document   store.Manager

	cache   *PreviewCache
	readers *source.Registry
	limiter *ImportLimiter
	opts    Options
}

// NewService wires the managers. Pass nil for an unconfigured store.
func NewService(relational, document store.Manager, opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		relational: relational,
		document:   document,
		cache:      NewPreviewCache(),
		readers:    source.DefaultRegistry(),
		limiter:    NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:       opts,
	}
}

// WithReaders replaces the file reader registry.
func (s *Service) WithReaders(r *source.Registry) *Service {
	s.readers = r
	return s
}

// Cache exposes the preview cache.
func (s *Service) Cache() *PreviewCache { return s.cache }

// Limiter exposes the import limiter for shutdown draining.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// SupportedExtensions lists the file extensions Preview accepts.
func (s *Service) SupportedExtensions() []string { return s.readers.Extensions() }

// Configured lists the backends that have a manager.
func (s *Service) Configured() []store.Backend {
	var out []store.Backend
	if s.relational != nil {
		out = append(out, store.BackendRelational)
	}
	if s.document != nil {
		out = append(out, store.BackendDocument)
	}
	return out
}

// manager returns the manager of b, or IMP005 when it is not configured.
func (s *Service) manager(b store.Backend) (store.Manager, error) {
	var m store.Manager
	switch b {
	case store.BackendRelational:
		m = s.relational
	case store.BackendDocument:
		m = s.document
	}
	if m == nil {
		return nil, &apperrors.ImportError{
			Code:    apperrors.CodeBackendUnconfigured,
			Backend: string(b),
			Err:     fmt.Errorf("backend not configured: %s", b),
		}
	}
	return m, nil
}

// Close closes both managers.
func (s *Service) Close(ctx context.Context) error {
	var firstErr error
	for _, m := range []store.Manager{s.relational, s.document} {
		if m == nil {
			continue
		}
		if err := m.Close(ctx); err != nil {
			slog.Error("close store", "backend", m.Backend(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
