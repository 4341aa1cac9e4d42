// Package store implements the schema/collection managers of the two
// backing stores.
//
// Both variants satisfy Manager: a target is dropped and recreated on every
// import, its authoritative column order is persisted in a side metadata
// table/collection named table_metadata, and rows are written in bounded
// batches. The set of variants is closed: Relational and Document.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/schema"
)

// MetadataTable names the side table/collection holding column order.
const MetadataTable = "table_metadata"

// Default batch sizes per backend.
const (
	DefaultRelationalBatchSize = 1000
	DefaultDocumentBatchSize   = 100
)

// Backend identifies one of the two store variants.
type Backend string

const (
	BackendRelational Backend = "relational"
	BackendDocument   Backend = "document"
)

// ParseBackend accepts the backend names used by the HTTP and CLI surfaces.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "relational", "mysql", "sql":
		return BackendRelational, nil
	case "document", "mongo", "mongodb":
		return BackendDocument, nil
	}
	return "", fmt.Errorf("unknown backend: %q", s)
}

// Row is one record keyed by column name. Relational rows carry the
// surrogate key under schema.SurrogateKey, documents their id under
// schema.DocumentIDKey.
type Row map[string]any

// Manager is the contract shared by both backends.
type Manager interface {
	Backend() Backend

	// BatchSize is the number of rows the pipeline passes per InsertBatch.
	BatchSize() int

	// CreateOrReplace drops any existing target of the same name, creates
	// it fresh in descriptor order, and records the order in metadata.
	CreateOrReplace(ctx context.Context, s schema.TableSchema) error

	// GetColumnOrder returns the recorded order, falling back to the
	// backend's own column list when no metadata is available.
	GetColumnOrder(ctx context.Context, target string) ([]string, error)

	// ImageColumns returns the columns recorded as image-bearing.
	ImageColumns(ctx context.Context, target string) ([]string, error)

	ListTargets(ctx context.Context) ([]string, error)

	// InsertBatch writes rows aligned with s.Columns. Values are int64,
	// string, []byte or nil.
	InsertBatch(ctx context.Context, s schema.TableSchema, rows [][]any) error

	ReadRows(ctx context.Context, target string, offset, limit int) ([]Row, error)
	Count(ctx context.Context, target string) (int64, error)
	UpdateRow(ctx context.Context, target, id string, values map[string]any) error
	DeleteRow(ctx context.Context, target, id string) error
	Drop(ctx context.Context, target string) error

	Close(ctx context.Context) error
}

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// ValidTarget rejects names that could not have been produced by the
// normalizer. Targets arrive from request paths, so they are checked
// before being spliced into statements.
func ValidTarget(target string) error {
	if !identifierRegex.MatchString(target) || target == MetadataTable {
		return apperrors.TargetNotFound(target)
	}
	return nil
}

// isInternal reports names that listTargets must hide.
func isInternal(name string) bool {
	if name == MetadataTable {
		return true
	}
	for _, p := range []string{"system.", "sqlite_", "pg_"} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func columnNotFound(target, column string) error {
	return &apperrors.SchemaError{
		Code:   apperrors.CodeColumnNotFound,
		Target: target,
		Column: column,
		Err:    fmt.Errorf("column not found: %s", column),
	}
}

func rowNotFound(target, id string) error {
	return &apperrors.SchemaError{
		Code:   apperrors.CodeRowNotFound,
		Target: target,
		Err:    fmt.Errorf("row not found: %s", id),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
