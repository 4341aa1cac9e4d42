// Package apperrors defines the typed errors shared by the import pipeline,
// the store managers and the HTTP layer.
//
// Every error carries a stable code and the offending target (and column,
// where one applies) so a failure can be diagnosed without re-deriving state.
//
//	SCH001  target not found
//	SCH002  column not found
//	SCH003  target creation failed
//	SCH004  row not found
//	IMP001  preview session not found (unknown, committed or cancelled)
//	IMP002  source file could not be parsed
//	IMP003  backend write failed
//	IMP004  unsupported file format
//	IMP005  backend not configured
//	IMG001  image payload could not be decoded
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is matched with errors.Is for unknown sessions and targets.
var ErrNotFound = errors.New("not found")

// Schema error codes.
const (
	CodeTargetNotFound = "SCH001"
	CodeColumnNotFound = "SCH002"
	CodeCreateFailed   = "SCH003"
	CodeRowNotFound    = "SCH004"
)

// Import error codes.
const (
	CodeSessionNotFound     = "IMP001"
	CodeParseFailed         = "IMP002"
	CodeWriteFailed         = "IMP003"
	CodeUnsupportedFormat   = "IMP004"
	CodeBackendUnconfigured = "IMP005"
)

// Classification error codes.
const (
	CodeImageDecode = "IMG001"
)

// SchemaError reports a failure to create, find or read a target schema.
type SchemaError struct {
	Code   string
	Target string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	return format("schema", e.Code, e.Target, e.Column, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is reports not-found codes as ErrNotFound.
func (e *SchemaError) Is(target error) bool {
	if target != ErrNotFound {
		return false
	}
	return e.Code == CodeTargetNotFound || e.Code == CodeColumnNotFound || e.Code == CodeRowNotFound
}

// ImportError reports a failure of the preview/commit pipeline.
type ImportError struct {
	Code    string
	Session string
	Target  string
	Backend string
	Err     error
}

func (e *ImportError) Error() string {
	var b strings.Builder
	b.WriteString("import ")
	b.WriteString(e.Code)
	if e.Session != "" {
		fmt.Fprintf(&b, " session=%s", e.Session)
	}
	if e.Backend != "" {
		fmt.Fprintf(&b, " backend=%s", e.Backend)
	}
	if e.Target != "" {
		fmt.Fprintf(&b, " target=%s", e.Target)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ImportError) Unwrap() error { return e.Err }

// Is reports an unknown session as ErrNotFound.
func (e *ImportError) Is(target error) bool {
	return target == ErrNotFound && e.Code == CodeSessionNotFound
}

// ClassificationError reports an image cell that could not be decoded.
// Callers degrade the cell to NULL instead of failing the operation.
type ClassificationError struct {
	Code   string
	Target string
	Column string
	Err    error
}

func (e *ClassificationError) Error() string {
	return format("classification", e.Code, e.Target, e.Column, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// TargetNotFound builds the SCH001 error for target.
func TargetNotFound(target string) *SchemaError {
	return &SchemaError{Code: CodeTargetNotFound, Target: target, Err: fmt.Errorf("table not found: %s", target)}
}

// CreateFailed builds the SCH003 error for target.
func CreateFailed(target string, err error) *SchemaError {
	return &SchemaError{Code: CodeCreateFailed, Target: target, Err: err}
}

// SessionNotFound builds the IMP001 error for id.
func SessionNotFound(id string) *ImportError {
	return &ImportError{Code: CodeSessionNotFound, Session: id, Err: fmt.Errorf("upload not found: %s", id)}
}

// Code extracts the code of a typed error, or "" for any other error.
func Code(err error) string {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Code
	}
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Code
	}
	var ce *ClassificationError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// Location returns the target and column recorded on a typed error.
func Location(err error) (target, column string) {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Target, se.Column
	}
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Target, ""
	}
	var ce *ClassificationError
	if errors.As(err, &ce) {
		return ce.Target, ce.Column
	}
	return "", ""
}

func format(kind, code, target, column string, err error) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte(' ')
	b.WriteString(code)
	if target != "" {
		fmt.Fprintf(&b, " target=%s", target)
	}
	if column != "" {
		fmt.Fprintf(&b, " column=%s", column)
	}
	if err != nil {
		fmt.Fprintf(&b, ": %v", err)
	}
	return b.String()
}
