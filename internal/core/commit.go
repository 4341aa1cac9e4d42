package core

// commit.go writes a staged session to one or both stores.
//
// The session is taken from the cache before any store is touched, so a concurrent
// cancel or second commit of the same id observes NotFound. The schema is
// rebuilt from the session's first row exactly as a fresh import would.
// Stores are written sequentially, relational first; each store's outcome
// is reported on its own and nothing written to one store is undone when
// the other fails.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/schema"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

// ErrReservedTarget rejects a table name override that would overwrite
// the metadata side table.
var ErrReservedTarget = errors.New("reserved table name")

// Commit outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// BackendResult is the outcome of a commit against one store.
type BackendResult struct {
	Backend    store.Backend `json:"backend"`
	Target     string        `json:"target"`
	Rows       int           `json:"rows"`
	Batches    int           `json:"batches"`
	DurationMs int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
	Code       string        `json:"code,omitempty"`

	err error
}

// Err returns the failure of this backend, or nil.
func (r BackendResult) Err() error { return r.err }

// Succeeded reports whether every row reached the store.
func (r BackendResult) Succeeded() bool { return r.err == nil }

// CommitResult aggregates the per-store outcomes of one commit.
type CommitResult struct {
	SessionID string                    `json:"session_id"`
	Target    string                    `json:"target"`
	Status    string                    `json:"status"`
	Total     int                       `json:"total"`
	Columns   []schema.ColumnDescriptor `json:"columns"`
	Results   []BackendResult           `json:"results"`
}

// Result returns the outcome for b, if b was part of the commit.
func (c *CommitResult) Result(b store.Backend) (BackendResult, bool) {
	for _, r := range c.Results {
		if r.Backend == b {
			return r, true
		}
	}
	return BackendResult{}, false
}

func (c *CommitResult) setStatus() {
	ok := 0
	for _, r := range c.Results {
		if r.Succeeded() {
			ok++
		}
	}
	switch {
	case ok == len(c.Results):
		c.Status = StatusSucceeded
	case ok == 0:
		c.Status = StatusFailed
	default:
		c.Status = StatusPartial
	}
}

// Commit writes session id to the stores selected by into. tableName
// overrides the target name derived from the uploaded file name.
//
// The returned error is non-nil when the session is unknown or when every
// selected store failed; in the latter case the result is returned too.
// A partial commit returns a nil error and Status "partial".
func (s *Service) Commit(ctx context.Context, id string, into ImportTarget, tableName string) (*CommitResult, error) {
	backends := into.Backends()
	if len(backends) == 0 {
		return nil, fmt.Errorf("unknown import target: %q", into)
	}

	var target string
	if tableName != "" {
		target = schema.TargetName(tableName)
		if target == store.MetadataTable {
			return nil, fmt.Errorf("%w: %s", ErrReservedTarget, target)
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	sess, ok := s.cache.Take(id)
	if !ok {
		return nil, apperrors.SessionNotFound(id)
	}
	defer removeTemp(ctx, sess.TempPath)

	if target == "" {
		target = schema.TargetNameFromFile(sess.FileName)
		if target == store.MetadataTable {
			target = "t_" + target
		}
	}

	sch := s.inferSchema(sess, target)
	result := &CommitResult{
		SessionID: id,
		Target:    target,
		Total:     sess.Total(),
		Columns:   sch.Columns,
	}

	logger := logging.WithFields(ctx, "session_id", id, "target", target, "into", into, "client_ip", ClientIPFromContext(ctx))
	logger.Info("commit started", "rows", sess.Total(), "columns", len(sch.Columns))

	for _, b := range backends {
		res := s.commitTo(ctx, b, sess, sch)
		if res.err != nil {
			logger.Error("commit to backend failed",
				"backend", b,
				"rows_written", res.Rows,
				"error", res.err,
			)
		} else {
			logger.Info("commit to backend succeeded",
				"backend", b,
				"rows", res.Rows,
				"batches", res.Batches,
				"duration_ms", res.DurationMs,
			)
		}
		result.Results = append(result.Results, res)
	}

	result.setStatus()
	if result.Status == StatusFailed {
		return result, result.Results[0].err
	}
	return result, nil
}

// commitTo creates the target on backend b and writes every staged row in
// batches of the manager's size. A failed batch aborts the rest.
func (s *Service) commitTo(ctx context.Context, b store.Backend, sess *Session, sch schema.TableSchema) BackendResult {
	res := BackendResult{Backend: b, Target: sch.Target}
	start := time.Now()

	fail := func(err error) BackendResult {
		res.err = err
		res.Error = err.Error()
		res.Code = apperrors.Code(err)
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	m, err := s.manager(b)
	if err != nil {
		return fail(err)
	}

	if b == store.BackendRelational {
		sch = sch.WithSurrogateKey()
	}
	if err := m.CreateOrReplace(ctx, sch); err != nil {
		var se *apperrors.SchemaError
		if !errors.As(err, &se) {
			err = apperrors.CreateFailed(sch.Target, err)
		}
		return fail(err)
	}

	size := m.BatchSize()
	if size <= 0 {
		size = store.DefaultDocumentBatchSize
	}
	for lo := 0; lo < sess.Total(); lo += size {
		hi := min(lo+size, sess.Total())
		if err := m.InsertBatch(ctx, sch, convertRows(sess, sch, lo, hi)); err != nil {
			return fail(&apperrors.ImportError{
				Code:    apperrors.CodeWriteFailed,
				Session: sess.ID,
				Target:  sch.Target,
				Backend: string(b),
				Err:     fmt.Errorf("batch %d (rows %d-%d): %w", res.Batches+1, lo+1, hi, err),
			})
		}
		res.Batches++
		res.Rows = hi
	}

	res.DurationMs = time.Since(start).Milliseconds()
	return res
}
