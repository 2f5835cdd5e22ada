package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/sweepview/internal/config"
	"github.com/g960059/sweepview/internal/dispatch"
	"github.com/g960059/sweepview/internal/metrics"
	"github.com/g960059/sweepview/internal/model"
	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/source"
	"github.com/g960059/sweepview/internal/testutil"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testConfig(workers int) config.Config {
	cfg := config.DefaultConfig()
	cfg.Workers = workers
	return cfg
}

func TestIndexDirectory(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.avf"), testutil.AVFBeginner().Bytes())
	writeFile(t, filepath.Join(dir, "nested", "b.evf"), testutil.EVFExpert().Bytes())
	writeFile(t, filepath.Join(dir, "nested", "c.rmv.gz"), gzipped(t, testutil.RMVv2().Bytes()))
	writeFile(t, filepath.Join(dir, "bad.rmv"), testutil.RMVv2().Bytes()[:40])
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not a replay"))

	rec := metrics.NewRecorder()
	ix := NewIndexerWithRegistry(store, testConfig(2), dispatch.DefaultRegistry(), rec)
	report, err := ix.IndexPaths(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, Report{Indexed: 3, Failed: 1, Skipped: 1}, report)

	all, err := store.ListReplays(ctx, model.ReplayFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	rmvRow, err := store.GetReplayByPath(ctx, filepath.Join(dir, "nested", "c.rmv.gz"))
	require.NoError(t, err)
	assert.Equal(t, "rmv", rmvRow.Format)
	assert.Equal(t, "beginner", rmvRow.Level)
	assert.Equal(t, "win", rmvRow.Outcome)
	assert.Equal(t, "tok-ralokt", rmvRow.BestToken)
	assert.Len(t, rmvRow.ContentSHA256, 64)
	assert.Equal(t, int64(len(testutil.RMVv2().Bytes())), rmvRow.SizeBytes)
	require.NotNil(t, rmvRow.BoardGeneratedAt)
	assert.Equal(t, "ralokt", rmvRow.Metadata["player.nickname"])

	evfRow, err := store.GetReplayByPath(ctx, filepath.Join(dir, "nested", "b.evf"))
	require.NoError(t, err)
	assert.Equal(t, "expert", evfRow.Level)
	assert.Equal(t, 99, evfRow.MineCount)

	failures, err := store.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, filepath.Join(dir, "bad.rmv"), failures[0].Path)
	assert.Equal(t, model.ErrorKindUnexpectedEnd, failures[0].ErrorKind)

	n, err := promtestutil.GatherAndCount(rec.Gatherer(), "sweepview_decodes_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestReindexKeepsIDsAndClearsFailures(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	dir := t.TempDir()
	good := filepath.Join(dir, "a.avf")
	bad := filepath.Join(dir, "b.rmv")
	writeFile(t, good, testutil.AVFBeginner().Bytes())
	writeFile(t, bad, testutil.RMVv1().Bytes()[:20])

	ix := NewIndexer(store, testConfig(1))
	_, err := ix.IndexPaths(ctx, []string{dir})
	require.NoError(t, err)
	first, err := store.GetReplayByPath(ctx, good)
	require.NoError(t, err)

	writeFile(t, bad, testutil.RMVv1().Bytes())
	report, err := ix.IndexPaths(ctx, []string{dir})
	require.NoError(t, err)
	assert.Equal(t, Report{Indexed: 2}, report)

	again, err := store.GetReplayByPath(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, first.ReplayID, again.ReplayID)

	failures, err := store.ListFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, failures)
	count, err := store.CountRows(ctx, "replays")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExplicitPathsAreAlwaysAttempted(t *testing.T) {
	store, ctx := testutil.NewStore(t)
	dir := t.TempDir()
	txt := filepath.Join(dir, "replay.txt")
	writeFile(t, txt, []byte("x"))
	missing := filepath.Join(dir, "missing.avf")

	report, err := NewIndexer(store, testConfig(4)).IndexPaths(ctx, []string{txt, missing, txt})
	require.NoError(t, err)
	assert.Equal(t, Report{Failed: 2}, report)

	failures, err := store.ListFailures(ctx)
	require.NoError(t, err)
	kinds := map[string]model.ErrorKind{}
	for _, f := range failures {
		kinds[f.Path] = f.ErrorKind
	}
	assert.Equal(t, model.ErrorKindUnknownExtension, kinds[txt])
	assert.Equal(t, model.ErrorKindIO, kinds[missing])
}

func TestIndexCancelled(t *testing.T) {
	store, _ := testutil.NewStore(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.avf"), testutil.AVFBeginner().Bytes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewIndexer(store, testConfig(1)).IndexPaths(ctx, []string{dir})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Indexed)
}

func TestSummarize(t *testing.T) {
	r, err := dispatch.DefaultRegistry().Decode(dispatch.MediaTypeViennasweeper, testutil.RMVv1().Bytes(), "v1.rmv")
	require.NoError(t, err)
	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s := Summarize(r, "id-1", "sum", 99, at)
	assert.Equal(t, "id-1", s.ReplayID)
	assert.Equal(t, "v1.rmv", s.Path)
	assert.Equal(t, string(replay.OutcomeBlast), s.Outcome)
	assert.Equal(t, "tkolar", s.BestToken)
	assert.Equal(t, len(r.Events()), s.EventCount)
	assert.Equal(t, at, s.IndexedAt)
}

func TestClassify(t *testing.T) {
	pathErr := &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}
	cases := []struct {
		err  error
		want model.ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("%w: x.txt", dispatch.ErrUnknownExtension), model.ErrorKindUnknownExtension},
		{fmt.Errorf("open replay: %w", pathErr), model.ErrorKindIO},
		{source.ErrTooLarge, model.ErrorKindIO},
		{replay.Invalid("bad level"), model.ErrorKindInvalidReplay},
		{replay.ErrUnknownFormatVersion, model.ErrorKindUnknownFormatVersion},
		{replay.ErrUnexpectedEndOfData, model.ErrorKindUnexpectedEnd},
		{errors.New("boom"), model.ErrorKindOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}
