package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/schema"
)

func newTestRelational(t *testing.T) *Relational {
	t.Helper()
	r, err := OpenRelational(context.Background(), RelationalOptions{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

func peopleSchema() schema.TableSchema {
	return schema.TableSchema{
		Target: "people",
		Columns: []schema.ColumnDescriptor{
			{OrdinalIndex: 0, RawHeader: "Name", Name: "name", Type: schema.ShortText},
			{OrdinalIndex: 1, RawHeader: "年龄", Name: "nianling", Type: schema.Integer},
			{OrdinalIndex: 2, RawHeader: "Score", Name: "score", Type: schema.Decimal},
			{OrdinalIndex: 3, RawHeader: "Photo", Name: "photo", Type: schema.Binary, IsImage: true},
		},
	}
}

func TestDialect_CreateTableSQL(t *testing.T) {
	s := peopleSchema()

	tests := []struct {
		driver string
		want   string
	}{
		{"mysql", "CREATE TABLE `people` (`system_id` BIGINT AUTO_INCREMENT PRIMARY KEY, `name` VARCHAR(255), `nianling` BIGINT, `score` DECIMAL(10,2), `photo` MEDIUMBLOB)"},
		{"sqlite3", `CREATE TABLE "people" ("system_id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT, "nianling" INTEGER, "score" DECIMAL(10,2), "photo" BLOB)`},
		{"postgres", `CREATE TABLE "people" ("system_id" BIGSERIAL PRIMARY KEY, "name" VARCHAR(255), "nianling" BIGINT, "score" DECIMAL(10,2), "photo" BYTEA)`},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := lookupDialect(tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.createTableSQL(s))
		})
	}
}

func TestDialect_InsertSQL(t *testing.T) {
	pg, _ := lookupDialect("pgx")
	assert.Equal(t, `INSERT INTO "t" ("a", "b") VALUES ($1, $2), ($3, $4)`, pg.insertSQL("t", []string{"a", "b"}, 2))

	my, _ := lookupDialect("mysql")
	assert.Equal(t, "INSERT INTO `t` (`a`) VALUES (?), (?), (?)", my.insertSQL("t", []string{"a"}, 3))

	_, err := lookupDialect("oracle")
	assert.Error(t, err)
}

func TestDialect_RowsPerStatement(t *testing.T) {
	d, _ := lookupDialect("sqlite3")
	assert.Equal(t, 1000, d.rowsPerStatement(10, 1000))
	assert.Equal(t, 32766/100, d.rowsPerStatement(100, 1000))
	assert.Equal(t, 1, d.rowsPerStatement(40000, 1000))
}

func TestDialect_Quote(t *testing.T) {
	my, _ := lookupDialect("mysql")
	assert.Equal(t, "`a``b`", my.quote("a`b"))
	pg, _ := lookupDialect("postgres")
	assert.Equal(t, `"a""b"`, pg.quote(`a"b`))
}

func TestRelational_CreateInsertRead(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)
	s := peopleSchema()
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

	require.NoError(t, r.CreateOrReplace(ctx, s))
	require.NoError(t, r.InsertBatch(ctx, s, [][]any{
		{"Alice", int64(30), "95.50", png},
		{"Bob", int64(25), nil, nil},
	}))

	order, err := r.GetColumnOrder(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"system_id", "name", "nianling", "score", "photo"}, order)

	images, err := r.ImageColumns(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"photo"}, images)

	rows, err := r.ReadRows(ctx, "people", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", rows[0]["name"])
	assert.Equal(t, int64(30), rows[0]["nianling"])
	assert.Equal(t, png, rows[0]["photo"])
	assert.Nil(t, rows[1]["photo"])
	assert.Equal(t, int64(1), rows[0][schema.SurrogateKey])

	n, err := r.Count(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	page, err := r.ReadRows(ctx, "people", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Bob", page[0]["name"])
}

func TestRelational_CreateOrReplaceDropsExisting(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)
	s := peopleSchema()

	require.NoError(t, r.CreateOrReplace(ctx, s))
	require.NoError(t, r.InsertBatch(ctx, s, [][]any{{"Alice", int64(1), nil, nil}}))

	replaced := schema.TableSchema{
		Target:  "people",
		Columns: []schema.ColumnDescriptor{{Name: "city", Type: schema.ShortText}},
	}
	require.NoError(t, r.CreateOrReplace(ctx, replaced))

	order, err := r.GetColumnOrder(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"system_id", "city"}, order)

	n, err := r.Count(ctx, "people")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelational_FailedReplaceLeavesTargetAbsent(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)
	require.NoError(t, r.CreateOrReplace(ctx, peopleSchema()))

	// Duplicate column names make the CREATE fail after the DROP.
	broken := schema.TableSchema{
		Target: "people",
		Columns: []schema.ColumnDescriptor{
			{Name: "a", Type: schema.ShortText},
			{Name: "a", Type: schema.ShortText},
		},
	}
	err := r.CreateOrReplace(ctx, broken)
	assert.Equal(t, apperrors.CodeCreateFailed, apperrors.Code(err))

	targets, err := r.ListTargets(ctx)
	require.NoError(t, err)
	assert.Empty(t, targets)

	_, err = r.GetColumnOrder(ctx, "people")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	var n int
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_metadata`).Scan(&n))
	assert.Zero(t, n)
}

func TestRelational_ListTargets(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)

	for _, name := range []string{"zeta", "alpha"} {
		s := peopleSchema()
		s.Target = name
		require.NoError(t, r.CreateOrReplace(ctx, s))
	}

	targets, err := r.ListTargets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, targets)
}

func TestRelational_GetColumnOrder_Fallback(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)

	_, err := r.db.ExecContext(ctx, `CREATE TABLE legacy (system_id INTEGER PRIMARY KEY, b TEXT, a BLOB)`)
	require.NoError(t, err)

	order, err := r.GetColumnOrder(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, []string{"system_id", "b", "a"}, order)

	images, err := r.ImageColumns(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, images)
}

func TestRelational_NotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)

	_, err := r.GetColumnOrder(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, apperrors.CodeTargetNotFound, apperrors.Code(err))

	_, err = r.ReadRows(ctx, "missing", 0, 10)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = r.GetColumnOrder(ctx, "bad name; drop")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = r.GetColumnOrder(ctx, MetadataTable)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRelational_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)
	s := peopleSchema()

	require.NoError(t, r.CreateOrReplace(ctx, s))
	require.NoError(t, r.InsertBatch(ctx, s, [][]any{{"Alice", int64(30), nil, nil}}))

	require.NoError(t, r.UpdateRow(ctx, "people", "1", map[string]any{"name": "Alicia"}))

	rows, err := r.ReadRows(ctx, "people", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", rows[0]["name"])

	err = r.UpdateRow(ctx, "people", "1", map[string]any{"nope": "x"})
	assert.Equal(t, apperrors.CodeColumnNotFound, apperrors.Code(err))

	err = r.UpdateRow(ctx, "people", "1", map[string]any{schema.SurrogateKey: "9"})
	assert.Equal(t, apperrors.CodeColumnNotFound, apperrors.Code(err))

	err = r.UpdateRow(ctx, "people", "999", map[string]any{"name": "Nobody"})
	assert.Equal(t, apperrors.CodeRowNotFound, apperrors.Code(err))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, r.DeleteRow(ctx, "people", "1"))
	err = r.UpdateRow(ctx, "people", "1", map[string]any{"name": "Alicia"})
	assert.Equal(t, apperrors.CodeRowNotFound, apperrors.Code(err))
	err = r.DeleteRow(ctx, "people", "1")
	assert.Equal(t, apperrors.CodeRowNotFound, apperrors.Code(err))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRelational_InsertBatchRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)
	s := peopleSchema()
	require.NoError(t, r.CreateOrReplace(ctx, s))

	// A schema naming a column the table lacks makes the INSERT fail.
	broken := s
	broken.Columns = append([]schema.ColumnDescriptor{}, s.Columns...)
	broken.Columns[0].Name = "missing_column"

	err := r.InsertBatch(ctx, broken, [][]any{{"x", int64(1), nil, nil}})
	require.Error(t, err)

	n, err := r.Count(ctx, "people")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelational_Drop(t *testing.T) {
	ctx := context.Background()
	r := newTestRelational(t)
	require.NoError(t, r.CreateOrReplace(ctx, peopleSchema()))

	require.NoError(t, r.Drop(ctx, "people"))

	_, err := r.GetColumnOrder(ctx, "people")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	var n int
	require.NoError(t, r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_metadata`).Scan(&n))
	assert.Zero(t, n)
}

func TestNewRelational_UnsupportedDriver(t *testing.T) {
	_, err := NewRelational(context.Background(), &sql.DB{}, "oracle", 0)
	assert.Error(t, err)
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
		err  bool
	}{
		{"relational", BackendRelational, false},
		{"MySQL", BackendRelational, false},
		{"mongodb", BackendDocument, false},
		{"document", BackendDocument, false},
		{"redis", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
