package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/g960059/sweepview/internal/config"
	"github.com/g960059/sweepview/internal/db"
	"github.com/g960059/sweepview/internal/dispatch"
	"github.com/g960059/sweepview/internal/logging"
	"github.com/g960059/sweepview/internal/metrics"
	"github.com/g960059/sweepview/internal/model"
	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/source"
)

// Report counts the outcome of one IndexPaths call. Skipped counts files
// met during a directory walk whose extension is not a replay format.
type Report struct {
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type Indexer struct {
	store    *db.Store
	cfg      config.Config
	registry *dispatch.Registry
	recorder *metrics.Recorder
	log      *logrus.Entry
	now      func() time.Time
}

func NewIndexer(store *db.Store, cfg config.Config) *Indexer {
	return NewIndexerWithRegistry(store, cfg, dispatch.DefaultRegistry(), nil)
}

// NewIndexerWithRegistry uses registry to pick decoders; a nil recorder
// disables metrics.
func NewIndexerWithRegistry(store *db.Store, cfg config.Config, registry *dispatch.Registry, recorder *metrics.Recorder) *Indexer {
	if registry == nil {
		registry = dispatch.DefaultRegistry()
	}
	return &Indexer{
		store:    store,
		cfg:      cfg,
		registry: registry,
		recorder: recorder,
		log:      logging.For("catalog"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type job struct {
	path    string
	decoder dispatch.Decoder
	err     error
}

// IndexPaths decodes every replay under paths with at most cfg.Workers
// files in flight. Decode failures are recorded in the store and counted;
// only store errors and cancellation abort the run.
func (ix *Indexer) IndexPaths(ctx context.Context, paths []string) (Report, error) {
	var (
		mu     sync.Mutex
		report Report
	)
	jobs, skipped := ix.expand(paths)
	report.Skipped = skipped

	g, gctx := errgroup.WithContext(ctx)
	workers := ix.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, j := range jobs {
		j := j
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ok, err := ix.indexOne(gctx, j)
			if err != nil {
				return err
			}
			mu.Lock()
			if ok {
				report.Indexed++
			} else {
				report.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	ix.log.WithFields(logrus.Fields{
		"indexed": report.Indexed,
		"failed":  report.Failed,
		"skipped": report.Skipped,
	}).Info("index run finished")
	return report, nil
}

// expand resolves paths into per-file jobs. Explicitly named files are
// always attempted; files inside directories only when their extension
// maps to a decoder.
func (ix *Indexer) expand(paths []string) ([]job, int) {
	var (
		jobs    []job
		skipped int
		seen    = map[string]struct{}{}
	)
	add := func(j job) {
		if _, ok := seen[j.path]; ok {
			return
		}
		seen[j.path] = struct{}{}
		jobs = append(jobs, j)
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		info, err := os.Stat(abs)
		if err != nil {
			add(job{path: abs, err: err})
			continue
		}
		if !info.IsDir() {
			d, err := ix.registry.ForPath(abs)
			add(job{path: abs, decoder: d, err: err})
			continue
		}
		walkErr := filepath.WalkDir(abs, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				add(job{path: path, err: err})
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				return nil
			}
			d, err := ix.registry.ForPath(path)
			if err != nil {
				skipped++
				ix.recorder.ObserveSkip()
				return nil
			}
			add(job{path: path, decoder: d})
			return nil
		})
		if walkErr != nil {
			add(job{path: abs, err: walkErr})
		}
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].path < jobs[j].path })
	return jobs, skipped
}

// indexOne reports whether the file was stored; a false result with a nil
// error means the failure was recorded instead.
func (ix *Indexer) indexOne(ctx context.Context, j job) (bool, error) {
	start := time.Now()
	if j.err != nil {
		return false, ix.fail(ctx, j.path, "", 0, start, j.err)
	}
	format := string(j.decoder.Definition().Format)

	data, err := source.ReadFile(j.path, ix.cfg.MaxReplayBytes)
	if err != nil {
		return false, ix.fail(ctx, j.path, format, 0, start, err)
	}
	r, err := j.decoder.Decode(data, j.path)
	if err != nil {
		return false, ix.fail(ctx, j.path, format, len(data), start, err)
	}

	replayID := uuid.NewString()
	existing, err := ix.store.GetReplayByPath(ctx, j.path)
	switch {
	case err == nil:
		replayID = existing.ReplayID
	case !errors.Is(err, db.ErrNotFound):
		return false, err
	}

	sum := sha256.Sum256(data)
	if err := ix.store.UpsertReplay(ctx, Summarize(r, replayID, hex.EncodeToString(sum[:]), int64(len(data)), ix.now())); err != nil {
		return false, fmt.Errorf("store %s: %w", j.path, err)
	}
	if err := ix.store.ClearFailure(ctx, j.path); err != nil {
		return false, err
	}
	ix.recorder.ObserveDecode(format, metrics.ResultOK, len(data), time.Since(start))
	return true, nil
}

func (ix *Indexer) fail(ctx context.Context, path, format string, size int, start time.Time, cause error) error {
	kind := Classify(cause)
	ix.recorder.ObserveDecode(format, string(kind), size, time.Since(start))
	ix.log.WithFields(logrus.Fields{
		"path":       path,
		"error_kind": kind,
	}).WithError(cause).Warn("replay decode failed")
	return ix.store.RecordFailure(ctx, model.DecodeFailure{
		Path:      path,
		ErrorKind: kind,
		Message:   cause.Error(),
		FailedAt:  ix.now(),
	})
}

// Summarize flattens a decoded replay into its catalog row.
func Summarize(r replay.Replay, replayID, contentSHA256 string, size int64, indexedAt time.Time) model.ReplaySummary {
	props := r.Properties()
	dims := r.Dimensions()
	events := r.Events()
	s := model.ReplaySummary{
		ReplayID:      replayID,
		Path:          r.Name(),
		Format:        string(r.Format()),
		ContentSHA256: contentSHA256,
		SizeBytes:     size,
		Level:         string(props.Level),
		Mode:          string(props.Mode),
		Rows:          dims.Rows,
		Cols:          dims.Cols,
		MineCount:     r.MineCount(),
		EventCount:    len(events),
		BestToken:     r.BestTokenSource(),
		Metadata:      r.Metadata(),
		IndexedAt:     indexedAt,
	}
	if te, ok := replay.Terminal(events); ok {
		s.Outcome = string(te.How)
	}
	if t, ok := r.BoardGenerationTime(); ok {
		s.BoardGeneratedAt = &t
	}
	return s
}

// Classify maps an indexing error onto the catalog's error kinds.
func Classify(err error) model.ErrorKind {
	var pathErr *fs.PathError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, dispatch.ErrUnknownExtension):
		return model.ErrorKindUnknownExtension
	case errors.As(err, &pathErr), errors.Is(err, source.ErrTooLarge):
		return model.ErrorKindIO
	}
	return model.ErrorKind(replay.ErrorKind(err))
}
