package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/schema"
)

// RelationalOptions configures OpenRelational.
type RelationalOptions struct {
	Driver          string // mysql, sqlite3 or postgres
	DSN             string
	MaxConns        int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BatchSize       int
}

// Relational manages targets as SQL tables. Every table carries the
// auto-increment surrogate key system_id as its first column.
type Relational struct {
	db        *sql.DB
	dialect   dialect
	batchSize int
}

// OpenRelational connects, pings and prepares the metadata table.
func OpenRelational(ctx context.Context, opts RelationalOptions) (*Relational, error) {
	d, err := lookupDialect(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.sqlDriver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	r, err := NewRelational(ctx, db, d.name, opts.BatchSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// NewRelational wraps an open database. driver selects the SQL dialect.
func NewRelational(ctx context.Context, db *sql.DB, driver string, batchSize int) (*Relational, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = DefaultRelationalBatchSize
	}

	if _, err := db.ExecContext(ctx, d.createMetadataSQL()); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetadataTable, err)
	}

	return &Relational{db: db, dialect: d, batchSize: batchSize}, nil
}

// Backend implements Manager.
func (r *Relational) Backend() Backend { return BackendRelational }

// BatchSize implements Manager.
func (r *Relational) BatchSize() int { return r.batchSize }

// Driver returns the dialect name.
func (r *Relational) Driver() string { return r.dialect.name }

// CreateOrReplace implements Manager.
func (r *Relational) CreateOrReplace(ctx context.Context, s schema.TableSchema) error {
	s = s.WithSurrogateKey()

	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+r.dialect.quote(s.Target)); err != nil {
		return apperrors.CreateFailed(s.Target, fmt.Errorf("drop: %w", err))
	}
	// The old order must not outlive its table if the create fails.
	if err := r.deleteMetadata(ctx, s.Target); err != nil {
		return apperrors.CreateFailed(s.Target, err)
	}
	if _, err := r.db.ExecContext(ctx, r.dialect.createTableSQL(s)); err != nil {
		return apperrors.CreateFailed(s.Target, fmt.Errorf("create: %w", err))
	}

	_, err := r.db.ExecContext(ctx, r.dialect.upsertMeta,
		s.Target,
		schema.JoinOrder(s.Order()),
		schema.JoinOrder(s.ImageColumns()),
		time.Now().UTC(),
	)
	if err != nil {
		return apperrors.CreateFailed(s.Target, fmt.Errorf("record column order: %w", err))
	}
	return nil
}

func (r *Relational) deleteMetadata(ctx context.Context, target string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE table_name = %s", r.dialect.quote(MetadataTable), r.dialect.placeholder(1))
	if _, err := r.db.ExecContext(ctx, q, target); err != nil {
		return fmt.Errorf("drop metadata of %s: %w", target, err)
	}
	return nil
}

func (r *Relational) readMetadata(ctx context.Context, target string) (order, images []string, err error) {
	var orderStr string
	var imageStr sql.NullString

	q := fmt.Sprintf("SELECT column_order, image_columns FROM %s WHERE table_name = %s",
		r.dialect.quote(MetadataTable), r.dialect.placeholder(1))
	if err := r.db.QueryRowContext(ctx, q, target).Scan(&orderStr, &imageStr); err != nil {
		return nil, nil, err
	}
	return schema.SplitOrder(orderStr), schema.SplitOrder(imageStr.String), nil
}

// physicalColumns returns the table's columns as the database reports them.
func (r *Relational) physicalColumns(ctx context.Context, target string) ([]*sql.ColumnType, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", r.dialect.quote(target)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.ColumnTypes()
}

func (r *Relational) exists(ctx context.Context, target string) (bool, error) {
	targets, err := r.ListTargets(ctx)
	if err != nil {
		return false, err
	}
	return contains(targets, target), nil
}

// GetColumnOrder implements Manager.
func (r *Relational) GetColumnOrder(ctx context.Context, target string) ([]string, error) {
	if err := ValidTarget(target); err != nil {
		return nil, err
	}

	order, _, err := r.readMetadata(ctx, target)
	if err == nil && len(order) > 0 {
		return order, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		slog.Warn("column order metadata unavailable, using physical order",
			"target", target,
			"error", err,
		)
	}

	ok, err := r.exists(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if !ok {
		return nil, apperrors.TargetNotFound(target)
	}

	cols, err := r.physicalColumns(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", target, err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name()
	}
	return names, nil
}

// ImageColumns implements Manager. Without metadata, binary-typed
// columns are reported.
func (r *Relational) ImageColumns(ctx context.Context, target string) ([]string, error) {
	if err := ValidTarget(target); err != nil {
		return nil, err
	}

	order, images, err := r.readMetadata(ctx, target)
	if err == nil && len(order) > 0 {
		return images, nil
	}

	cols, err := r.physicalColumns(ctx, target)
	if err != nil {
		return nil, apperrors.TargetNotFound(target)
	}
	var out []string
	for _, c := range cols {
		if isBinaryType(c.DatabaseTypeName()) {
			out = append(out, c.Name())
		}
	}
	return out, nil
}

// ListTargets implements Manager.
func (r *Relational) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.listTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if !isInternal(name) {
			out = append(out, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// InsertBatch implements Manager. The batch is written in one transaction,
// split into as many multi-row INSERTs as the driver's parameter limit needs.
func (r *Relational) InsertBatch(ctx context.Context, s schema.TableSchema, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	columns := s.Names()
	per := r.dialect.rowsPerStatement(len(columns), len(rows))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		chunk := rows[start:end]

		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			for i := range columns {
				var v any
				if i < len(row) {
					v = row[i]
				}
				args = append(args, v)
			}
		}

		if _, err := tx.ExecContext(ctx, r.dialect.insertSQL(s.Target, columns, len(chunk)), args...); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
	}

	return tx.Commit()
}

// ReadRows implements Manager. Rows come back in insertion order. Values
// of binary columns stay []byte; other byte slices become strings.
func (r *Relational) ReadRows(ctx context.Context, target string, offset, limit int) ([]Row, error) {
	if err := ValidTarget(target); err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", r.dialect.quote(target), r.dialect.quote(schema.SurrogateKey))
	var args []any
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %s OFFSET %s", r.dialect.placeholder(1), r.dialect.placeholder(2))
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		if ok, _ := r.exists(ctx, target); !ok {
			return nil, apperrors.TargetNotFound(target)
		}
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows, types)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// scanRow scans the current row into a Row keyed by column name.
func scanRow(rows *sql.Rows, types []*sql.ColumnType) (Row, error) {
	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(Row, len(types))
	for i, t := range types {
		v := values[i]
		if b, ok := v.([]byte); ok {
			if isBinaryType(t.DatabaseTypeName()) {
				v = append([]byte(nil), b...)
			} else {
				v = string(b)
			}
		}
		row[t.Name()] = v
	}
	return row, nil
}

// Count implements Manager.
func (r *Relational) Count(ctx context.Context, target string) (int64, error) {
	if err := ValidTarget(target); err != nil {
		return 0, err
	}
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.dialect.quote(target)).Scan(&n)
	if err != nil {
		if ok, _ := r.exists(ctx, target); !ok {
			return 0, apperrors.TargetNotFound(target)
		}
		return 0, err
	}
	return n, nil
}

// UpdateRow implements Manager. id is the surrogate key value.
func (r *Relational) UpdateRow(ctx context.Context, target, id string, values map[string]any) error {
	order, err := r.GetColumnOrder(ctx, target)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	cols := make([]string, 0, len(values))
	for c := range values {
		if c == schema.SurrogateKey || !contains(order, c) {
			return columnNotFound(target, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	// RowsAffected cannot tell a missing row from an unchanged one on MySQL.
	var one int
	lookup := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s",
		r.dialect.quote(target), r.dialect.quote(schema.SurrogateKey), r.dialect.placeholder(1))
	if err := r.db.QueryRowContext(ctx, lookup, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rowNotFound(target, id)
		}
		return fmt.Errorf("look up %s row %s: %w", target, id, err)
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", r.dialect.quote(c), r.dialect.placeholder(i+1))
		args = append(args, values[c])
	}
	args = append(args, id)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		r.dialect.quote(target), strings.Join(sets, ", "),
		r.dialect.quote(schema.SurrogateKey), r.dialect.placeholder(len(cols)+1))
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update %s row %s: %w", target, id, err)
	}
	return nil
}

// DeleteRow implements Manager.
func (r *Relational) DeleteRow(ctx context.Context, target, id string) error {
	if err := ValidTarget(target); err != nil {
		return err
	}

	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		r.dialect.quote(target), r.dialect.quote(schema.SurrogateKey), r.dialect.placeholder(1))
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		if ok, _ := r.exists(ctx, target); !ok {
			return apperrors.TargetNotFound(target)
		}
		return fmt.Errorf("delete %s row %s: %w", target, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return rowNotFound(target, id)
	}
	return nil
}

// Drop implements Manager.
func (r *Relational) Drop(ctx context.Context, target string) error {
	if err := ValidTarget(target); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+r.dialect.quote(target)); err != nil {
		return fmt.Errorf("drop %s: %w", target, err)
	}
	return r.deleteMetadata(ctx, target)
}

// Close implements Manager.
func (r *Relational) Close(context.Context) error {
	return r.db.Close()
}
