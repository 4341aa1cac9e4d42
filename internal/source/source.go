// Package source turns uploaded tabular files into a uniform row stream.
//
// Every reader produces a Source: the header row, the data rows as ordered
// cell strings, and the images anchored to cells (when the format carries
// any). Readers are selected by file extension, never by content sniffing.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/sheetimport/internal/imaging"
)

// ContextCheckInterval is how often (in rows) readers check for cancellation.
const ContextCheckInterval = 1000

// ErrEmptyFile is returned when a file has no header row.
var ErrEmptyFile = errors.New("empty file")

// Source is the parsed content of one file.
type Source struct {
	Headers []string
	Rows    [][]string
	Images  imaging.ImageMap
}

// Reader parses a file on disk into a Source.
type Reader interface {
	Read(ctx context.Context, path string) (*Source, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, path string) (*Source, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, path string) (*Source, error) {
	return f(ctx, path)
}

// Registry maps lower-case file extensions (with the dot) to readers.
type Registry struct {
	mu      sync.RWMutex
	readers map[string]Reader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{readers: make(map[string]Reader)}
}

// DefaultRegistry returns a registry with the CSV and XLSX readers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(".csv", CSVReader{})
	r.Register(".xlsx", XLSXReader{})
	r.Register(".xlsm", XLSXReader{})
	return r
}

// Register adds a reader for ext.
// Panics if a reader is already registered for the extension.
func (r *Registry) Register(ext string, reader Reader) {
	ext = normalizeExt(ext)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.readers[ext]; exists {
		panic(fmt.Sprintf("reader already registered: %s", ext))
	}
	r.readers[ext] = reader
}

// ForFile returns the reader for fileName's extension.
func (r *Registry) ForFile(fileName string) (Reader, bool) {
	ext := normalizeExt(filepath.Ext(fileName))

	r.mu.RLock()
	defer r.mu.RUnlock()

	reader, ok := r.readers[ext]
	return reader, ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.readers))
	for ext := range r.readers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
