package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetimport/internal/apperrors"
	"github.com/JonMunkholm/sheetimport/internal/imaging"
	"github.com/JonMunkholm/sheetimport/internal/schema"
	"github.com/JonMunkholm/sheetimport/internal/source"
	"github.com/JonMunkholm/sheetimport/internal/store"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

const scenarioCSV = "Name,年龄,Photo\nAlice,30,[IMAGE]\nBob,25,[IMAGE]\n"

func newTestService(t *testing.T, relational, document store.Manager) *Service {
	t.Helper()
	return NewService(relational, document, Options{TempDir: t.TempDir()})
}

// imageRegistry reads CSV and attaches images, standing in for a workbook
// with embedded pictures.
func imageRegistry(images imaging.ImageMap) *source.Registry {
	reg := source.NewRegistry()
	reg.Register(".csv", source.ReaderFunc(func(ctx context.Context, path string) (*source.Source, error) {
		src, err := source.CSVReader{}.Read(ctx, path)
		if err != nil {
			return nil, err
		}
		src.Images = images
		return src, nil
	}))
	return reg
}

func stage(t *testing.T, svc *Service, name, content string) *PreviewResult {
	t.Helper()
	res, err := svc.Preview(context.Background(), strings.NewReader(content), name)
	require.NoError(t, err)
	return res
}

func tempFiles(t *testing.T, svc *Service) int {
	t.Helper()
	entries, err := os.ReadDir(svc.opts.TempDir)
	require.NoError(t, err)
	return len(entries)
}

func TestPreview_Scenario(t *testing.T) {
	images := imaging.ImageMap{{Row: 0, Col: 2}: pngBytes}
	svc := newTestService(t, newMemStore(store.BackendRelational, 0), nil).WithReaders(imageRegistry(images))

	res := stage(t, svc, "people.csv", scenarioCSV)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "people", res.Target)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"Name", "年龄", "Photo"}, res.Headers)

	require.Len(t, res.Columns, 3)
	var names []string
	var types []schema.TypeTag
	for _, c := range res.Columns {
		names = append(names, c.Name)
		types = append(types, c.Type)
	}
	assert.Equal(t, []string{"name", "nianling", "photo"}, names)
	assert.Equal(t, []schema.TypeTag{schema.ShortText, schema.Integer, schema.Binary}, types)
	assert.True(t, res.Columns[2].IsImage)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Alice", res.Rows[0]["Name"])
	assert.Equal(t, imaging.EncodeDataURI(pngBytes), res.Rows[0]["Photo"])
	assert.Equal(t, "[IMAGE]", res.Rows[1]["Photo"])

	assert.Equal(t, 1, tempFiles(t, svc))
}

func TestCommit_ScenarioRelational(t *testing.T) {
	ctx := context.Background()
	rel, err := store.OpenRelational(ctx, store.RelationalOptions{
		Driver: "sqlite3",
		DSN:    filepath.Join(t.TempDir(), "import.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { rel.Close(ctx) })

	images := imaging.ImageMap{{Row: 0, Col: 2}: pngBytes}
	svc := newTestService(t, rel, nil).WithReaders(imageRegistry(images))
	res := stage(t, svc, "people.csv", scenarioCSV)

	result, err := svc.Commit(ctx, res.SessionID, TargetRelational, "")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, "people", result.Target)

	r, ok := result.Result(store.BackendRelational)
	require.True(t, ok)
	assert.Equal(t, 2, r.Rows)
	assert.Equal(t, 1, r.Batches)

	headers, err := svc.GetOrderedHeaders(ctx, store.BackendRelational, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"system_id", "name", "nianling", "photo"}, headers)

	rows, err := rel.ReadRows(ctx, "people", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, pngBytes, rows[0]["photo"])
	assert.Nil(t, rows[1]["photo"])
	assert.Equal(t, int64(25), rows[1]["nianling"])

	exp, err := svc.ExportData(ctx, store.BackendRelational, "people")
	require.NoError(t, err)
	assert.Equal(t, imaging.EncodeDataURI(pngBytes), exp.Rows[0]["photo"])
	assert.Equal(t, "system_id", exp.IDKey)

	targets, err := svc.ListTargets(ctx, store.BackendRelational)
	require.NoError(t, err)
	assert.Equal(t, []string{"people"}, targets)

	assert.Equal(t, 0, tempFiles(t, svc))
}

func TestCommit_BothPartialFailure(t *testing.T) {
	ctx := context.Background()
	rel := newMemStore(store.BackendRelational, 0)
	doc := newMemStore(store.BackendDocument, 0)
	doc.failCreate = errors.New("invalid collection name")

	svc := newTestService(t, rel, doc)
	res := stage(t, svc, "people.csv", "Name,Age\nAlice,30\nBob,25\n")

	result, err := svc.Commit(ctx, res.SessionID, TargetBoth, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, result.Status)
	require.Len(t, result.Results, 2)
	assert.Equal(t, store.BackendRelational, result.Results[0].Backend)
	assert.Equal(t, store.BackendDocument, result.Results[1].Backend)

	relRes, _ := result.Result(store.BackendRelational)
	assert.True(t, relRes.Succeeded())
	assert.Equal(t, 2, relRes.Rows)

	docRes, _ := result.Result(store.BackendDocument)
	assert.False(t, docRes.Succeeded())
	assert.Equal(t, apperrors.CodeCreateFailed, docRes.Code)
	assert.Contains(t, docRes.Error, "invalid collection name")

	exp, err := svc.ExportData(ctx, store.BackendRelational, "people")
	require.NoError(t, err)
	assert.Len(t, exp.Rows, 2)
}

func TestCommit_BatchFailureAbortsRemaining(t *testing.T) {
	ctx := context.Background()
	rel := newMemStore(store.BackendRelational, 2)
	rel.failBatchAt = 2

	svc := newTestService(t, rel, nil)
	res := stage(t, svc, "nums.csv", "n\n1\n2\n3\n4\n5\n")

	result, err := svc.Commit(ctx, res.SessionID, TargetRelational, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeWriteFailed, apperrors.Code(err))
	require.NotNil(t, result)
	assert.Equal(t, StatusFailed, result.Status)

	r := result.Results[0]
	assert.Equal(t, 2, r.Rows)
	assert.Equal(t, 1, r.Batches)
	assert.Equal(t, 2, rel.batches)

	n, err := rel.Count(ctx, "nums")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.Page(res.SessionID, 1, 10)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCommit_UnconfiguredBackend(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore(store.BackendRelational, 0), nil)

	res := stage(t, svc, "a.csv", "x\n1\n")
	result, err := svc.Commit(ctx, res.SessionID, TargetBoth, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, result.Status)
	docRes, _ := result.Result(store.BackendDocument)
	assert.Equal(t, apperrors.CodeBackendUnconfigured, docRes.Code)

	res = stage(t, svc, "b.csv", "x\n1\n")
	_, err = svc.Commit(ctx, res.SessionID, TargetDocument, "")
	assert.Equal(t, apperrors.CodeBackendUnconfigured, apperrors.Code(err))

	_, err = svc.ListTargets(ctx, store.BackendDocument)
	assert.Equal(t, apperrors.CodeBackendUnconfigured, apperrors.Code(err))
}

func TestCommit_TableNameOverride(t *testing.T) {
	ctx := context.Background()
	rel := newMemStore(store.BackendRelational, 0)
	svc := newTestService(t, rel, nil)
	res := stage(t, svc, "a.csv", "x\n1\n")

	_, err := svc.Commit(ctx, res.SessionID, TargetRelational, "Table Metadata")
	assert.ErrorIs(t, err, ErrReservedTarget)

	// A rejected name leaves the session staged; others are normalized.
	result, err := svc.Commit(ctx, res.SessionID, TargetRelational, "My Table")
	require.NoError(t, err)
	assert.Equal(t, "my_table", result.Target)
	_, err = rel.GetColumnOrder(ctx, "my_table")
	assert.NoError(t, err)

	res = stage(t, svc, "b.csv", "x\n1\n")
	result, err = svc.Commit(ctx, res.SessionID, TargetRelational, "2024 学生")
	require.NoError(t, err)
	assert.Equal(t, "t_2024_xuesheng", result.Target)
}

func TestCommit_KeywordColumnKeepsNumericConversion(t *testing.T) {
	ctx := context.Background()
	rel := newMemStore(store.BackendRelational, 0)
	svc := newTestService(t, rel, nil)

	// "Topic" contains the image keyword "pic".
	res := stage(t, svc, "counts.csv", "Topic Count,Plain Count\n3,3\n\"1,200\",\"1,200\"\nn/a,n/a\n")
	_, err := svc.Commit(ctx, res.SessionID, TargetRelational, "")
	require.NoError(t, err)

	rows := rel.tables["counts"].rows
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, row["plain_count"], row["topic_count"], "row %d", i)
	}
	assert.Equal(t, int64(1200), rows[1]["topic_count"])
	assert.Nil(t, rows[2]["topic_count"])
}

func TestCommit_FileNamedLikeMetadata(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore(store.BackendRelational, 0), nil)

	res := stage(t, svc, "table_metadata.csv", "x\n1\n")
	result, err := svc.Commit(ctx, res.SessionID, TargetRelational, "")
	require.NoError(t, err)
	assert.Equal(t, "t_table_metadata", result.Target)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore(store.BackendRelational, 0), nil)

	committed := stage(t, svc, "a.csv", "x\n1\n")
	_, err := svc.Commit(ctx, committed.SessionID, TargetRelational, "")
	require.NoError(t, err)

	cancelled := stage(t, svc, "b.csv", "x\n1\n")
	require.NoError(t, svc.Cancel(ctx, cancelled.SessionID))

	for _, id := range []string{committed.SessionID, cancelled.SessionID, "unknown"} {
		_, err := svc.Page(id, 1, 10)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound), "page %s", id)

		_, err = svc.Commit(ctx, id, TargetRelational, "")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound), "commit %s", id)

		err = svc.Cancel(ctx, id)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound), "cancel %s", id)
		assert.Equal(t, apperrors.CodeSessionNotFound, apperrors.Code(err))
	}

	assert.Equal(t, 0, tempFiles(t, svc))
	assert.Zero(t, svc.Cache().Len())
}

func TestConcurrentCommitAndCancel(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore(store.BackendRelational, 0), nil)

	for i := 0; i < 25; i++ {
		res := stage(t, svc, "race.csv", "x\n1\n2\n")

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, errs[0] = svc.Commit(ctx, res.SessionID, TargetRelational, "")
		}()
		go func() {
			defer wg.Done()
			<-start
			errs[1] = svc.Cancel(ctx, res.SessionID)
		}()
		close(start)
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else {
				assert.True(t, errors.Is(err, apperrors.ErrNotFound), "loser error: %v", err)
			}
		}
		assert.Equal(t, 1, wins, "iteration %d", i)
	}
	assert.Equal(t, 0, tempFiles(t, svc))
}

func TestPreview_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, nil)

	_, err := svc.Preview(ctx, strings.NewReader("x"), "notes.txt")
	assert.Equal(t, apperrors.CodeUnsupportedFormat, apperrors.Code(err))

	_, err = svc.Preview(ctx, strings.NewReader(""), "empty.csv")
	assert.Equal(t, apperrors.CodeParseFailed, apperrors.Code(err))
	assert.Equal(t, 0, tempFiles(t, svc))

	small := NewService(nil, nil, Options{TempDir: t.TempDir(), MaxFileSize: 4})
	_, err = small.Preview(ctx, strings.NewReader("a,b\n1,2\n"), "big.csv")
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Equal(t, "FILE001", MapError(err).Code)
	assert.Zero(t, small.Cache().Len())
}

func TestPage(t *testing.T) {
	svc := newTestService(t, nil, nil)

	var b strings.Builder
	b.WriteString("n,n\n")
	for i := 0; i < 25; i++ {
		b.WriteString("v,w\n")
	}
	res := stage(t, svc, "p.csv", b.String())
	assert.Len(t, res.Rows, DefaultPreviewPageSize)
	assert.Equal(t, 25, res.Total)
	assert.Equal(t, []string{"n", "n_2"}, res.Headers)

	page, err := svc.Page(res.SessionID, 3, 10)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 5)
	assert.Equal(t, "w", page.Rows[0]["n_2"])

	page, err = svc.Page(res.SessionID, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Rows)

	page, err = svc.Page(res.SessionID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPreviewPageSize, page.Size)
}

func TestReapExpired(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil, nil)

	res := stage(t, svc, "old.csv", "x\n1\n")

	assert.Equal(t, 0, svc.ReapExpired(ctx, time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, svc.ReapExpired(ctx, time.Now().Add(time.Second)))

	_, err := svc.Page(res.SessionID, 1, 10)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 0, tempFiles(t, svc))
}

func TestStartReaper_StopsWithContext(t *testing.T) {
	svc := newTestService(t, nil, nil)
	stage(t, svc, "old.csv", "x\n1\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartReaper(ctx, ReaperConfig{TTL: time.Nanosecond, Interval: 10 * time.Millisecond})
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.Cache().Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func committedService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	rel := newMemStore(store.BackendRelational, 0)
	images := imaging.ImageMap{{Row: 0, Col: 2}: pngBytes}
	svc := newTestService(t, rel, nil).WithReaders(imageRegistry(images))
	res := stage(t, svc, "people.csv", scenarioCSV)
	_, err := svc.Commit(context.Background(), res.SessionID, TargetRelational, "")
	require.NoError(t, err)
	return svc, rel
}

func TestTableData(t *testing.T) {
	svc, _ := committedService(t)

	data, err := svc.TableData(context.Background(), store.BackendRelational, "people", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), data.Total)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "Bob", data.Rows[0]["name"])
	assert.Equal(t, "2", data.Rows[0][schema.SurrogateKey])

	_, err = svc.TableData(context.Background(), store.BackendRelational, "missing", 1, 10)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestUpdateRow_ImageValues(t *testing.T) {
	ctx := context.Background()
	svc, rel := committedService(t)

	err := svc.UpdateRow(ctx, store.BackendRelational, "people", "2", map[string]any{
		"photo": imaging.EncodeDataURI(pngBytes),
		"name":  "Robert",
	})
	require.NoError(t, err)

	rows, _ := rel.ReadRows(ctx, "people", 0, 0)
	assert.Equal(t, pngBytes, rows[1]["photo"])
	assert.Equal(t, "Robert", rows[1]["name"])

	err = svc.UpdateRow(ctx, store.BackendRelational, "people", "1", map[string]any{
		"photo": "data:image/png;base64,!!not-base64!!",
	})
	require.NoError(t, err)
	rows, _ = rel.ReadRows(ctx, "people", 0, 0)
	assert.Nil(t, rows[0]["photo"])

	err = svc.UpdateRow(ctx, store.BackendRelational, "people", "99", map[string]any{"name": "x"})
	assert.Equal(t, apperrors.CodeRowNotFound, apperrors.Code(err))
}

func TestImageValue(t *testing.T) {
	v, err := imageValue("t", "c", "plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", v)

	v, err = imageValue("t", "c", "")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = imageValue("t", "photo", "data:image/png;base64,%%%")
	var ce *apperrors.ClassificationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "photo", ce.Column)
	assert.Equal(t, apperrors.CodeImageDecode, ce.Code)
}

func TestDeleteAndDrop(t *testing.T) {
	ctx := context.Background()
	svc, rel := committedService(t)

	require.NoError(t, svc.DeleteRow(ctx, store.BackendRelational, "people", "1"))
	n, _ := rel.Count(ctx, "people")
	assert.Equal(t, int64(1), n)

	require.NoError(t, svc.DropTarget(ctx, store.BackendRelational, "people"))
	err := svc.DropTarget(ctx, store.BackendRelational, "people")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestExportCSV(t *testing.T) {
	svc, _ := committedService(t)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), store.BackendRelational, "people", &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "system_id,name,nianling,photo", lines[0])
	assert.Equal(t, "1,Alice,30,"+imaging.EncodeDataURI(pngBytes), lines[1])
	assert.Equal(t, "2,Bob,25,", lines[2])
}

func TestStats(t *testing.T) {
	svc, _ := committedService(t)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Backends, 1)
	assert.Equal(t, store.BackendRelational, stats.Backends[0].Backend)
	assert.Equal(t, []TargetStats{{Name: "people", Rows: 2}}, stats.Backends[0].Targets)
	assert.Zero(t, stats.PendingPreviews)
}

func TestParseImportTarget(t *testing.T) {
	tests := []struct {
		in   string
		want ImportTarget
		err  bool
	}{
		{"relational", TargetRelational, false},
		{"mysql", TargetRelational, false},
		{"document", TargetDocument, false},
		{"Both", TargetBoth, false},
		{"nowhere", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseImportTarget(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
