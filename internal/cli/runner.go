package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/g960059/sweepview/internal/catalog"
	"github.com/g960059/sweepview/internal/config"
	"github.com/g960059/sweepview/internal/db"
	"github.com/g960059/sweepview/internal/dispatch"
	"github.com/g960059/sweepview/internal/export"
	"github.com/g960059/sweepview/internal/logging"
	"github.com/g960059/sweepview/internal/metrics"
	"github.com/g960059/sweepview/internal/model"
	"github.com/g960059/sweepview/internal/replay"
	"github.com/g960059/sweepview/internal/security"
)

type Runner struct {
	out      io.Writer
	errOut   io.Writer
	registry *dispatch.Registry
	cfg      config.Config
}

func NewRunner(out, errOut io.Writer) *Runner {
	return NewRunnerWithRegistry(dispatch.DefaultRegistry(), out, errOut)
}

func NewRunnerWithRegistry(registry *dispatch.Registry, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if registry == nil {
		registry = dispatch.DefaultRegistry()
	}
	return &Runner{out: out, errOut: errOut, registry: registry}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	configPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat, r.errOut); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	r.cfg = cfg

	switch rest[0] {
	case "formats":
		return r.runFormats(rest[1:])
	case "decode":
		return r.runDecode(rest[1:])
	case "export":
		return r.runExport(ctx, rest[1:])
	case "index":
		return r.runIndex(ctx, rest[1:])
	case "list":
		return r.runList(ctx, rest[1:])
	case "failures":
		return r.runFailures(ctx, rest[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func parseGlobalArgs(args []string) (string, []string, error) {
	path := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--config requires value")
			}
			path = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return path, rest, nil
}

// parseArgs parses flags that may appear before, between or after the
// positional arguments and returns the positionals in order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func (r *Runner) runFormats(args []string) int {
	fs := flag.NewFlagSet("formats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if _, err := parseArgs(fs, args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	defs := r.registry.Definitions()
	if *jsonOut {
		return r.writeJSON(map[string]any{"formats": defs, "supported": r.registry.Supported()})
	}
	for _, d := range defs {
		mt := d.MediaType
		if mt == "" {
			mt = "-"
		}
		_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\n", d.Format, mt, strings.Join(d.Extensions, ","))
	}
	return 0
}

func (r *Runner) runDecode(args []string) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	withEvents := fs.Bool("events", false, "include the event stream")
	redact := fs.Bool("redact", false, "mask player tokens")
	mime := fs.String("mime", "", "media type (default: by extension)")
	paths, err := parseArgs(fs, args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if len(paths) != 1 {
		_, _ = fmt.Fprintln(r.errOut, "usage: sweepview decode [--json] [--events] [--redact] [--mime <type>] <file>")
		return 2
	}
	rp, err := r.registry.DecodeFile(paths[0], *mime, r.cfg.MaxReplayBytes)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		env, err := export.NewReplayEnvelope(0, rp, export.Options{Events: *withEvents, Redact: *redact})
		if err != nil {
			return r.handleErr(err)
		}
		_, _ = r.out.Write(env.Payload)
		_, _ = fmt.Fprintln(r.out)
		return 0
	}
	r.printReplay(rp, *withEvents, *redact)
	return 0
}

func (r *Runner) printReplay(rp replay.Replay, withEvents, redact bool) {
	props := rp.Properties()
	dims := rp.Dimensions()
	token := rp.BestTokenSource()
	if redact {
		token = security.MaskToken(token)
	}
	_, _ = fmt.Fprintf(r.out, "file: %s\n", rp.Name())
	_, _ = fmt.Fprintf(r.out, "format: %s\n", rp.Format())
	_, _ = fmt.Fprintf(r.out, "level: %s\n", props.Level)
	if props.Mode != "" {
		_, _ = fmt.Fprintf(r.out, "mode: %s\n", props.Mode)
	}
	_, _ = fmt.Fprintf(r.out, "board: %dx%d, %d mines\n", dims.Cols, dims.Rows, rp.MineCount())
	_, _ = fmt.Fprintf(r.out, "questionmarks: %t\n", props.QuestionMarks)
	if props.NonFlagging != nil {
		_, _ = fmt.Fprintf(r.out, "nonflagging: %t\n", *props.NonFlagging)
	}
	events := rp.Events()
	_, _ = fmt.Fprintf(r.out, "events: %d\n", len(events))
	if te, ok := replay.Terminal(events); ok {
		_, _ = fmt.Fprintf(r.out, "outcome: %s\n", te.How)
	}
	if token != "" {
		_, _ = fmt.Fprintf(r.out, "player: %s\n", token)
	}
	if t, ok := rp.BoardGenerationTime(); ok {
		_, _ = fmt.Fprintf(r.out, "board generated: %s\n", t.UTC().Format(time.RFC3339Nano))
	}
	if !withEvents {
		return
	}
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(r.out, "%s\n", line)
	}
}

func (r *Runner) runExport(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	withEvents := fs.Bool("events", true, "include the event stream")
	redact := fs.Bool("redact", false, "mask player tokens and secret-looking metadata")
	mime := fs.String("mime", "", "media type (default: by extension)")
	output := fs.String("o", "", "write frames to this file instead of stdout")
	paths, err := parseArgs(fs, args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if len(paths) == 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: sweepview export [--redact] [--events=false] [--mime <type>] [-o <file>] <file>...")
		return 2
	}

	w := r.out
	if *output != "" {
		f, err := os.OpenFile(*output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return r.handleErr(err)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	failed := 0
	opts := export.Options{Events: *withEvents, Redact: *redact}
	for i, path := range paths {
		seq := uint64(i + 1)
		var env export.Envelope
		rp, err := r.registry.DecodeFile(path, *mime, r.cfg.MaxReplayBytes)
		if err != nil {
			failed++
			env, err = export.NewErrorEnvelope(seq, path, string(catalog.Classify(err)), err)
		} else {
			env, err = export.NewReplayEnvelope(seq, rp, opts)
		}
		if err != nil {
			return r.handleErr(err)
		}
		if err := export.WriteFrame(w, env, r.cfg.MaxFrameBytes); err != nil {
			return r.handleErr(fmt.Errorf("%s: %w", path, err))
		}
	}
	if failed > 0 {
		_, _ = fmt.Fprintf(r.errOut, "error: %d of %d replays failed to decode\n", failed, len(paths))
		return 1
	}
	return 0
}

func (r *Runner) openStore(ctx context.Context) (*db.Store, error) {
	store, err := db.Open(ctx, r.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (r *Runner) runIndex(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	workers := fs.Int("workers", r.cfg.Workers, "concurrent decoders")
	textfile := fs.String("metrics-textfile", r.cfg.MetricsTextfile, "write Prometheus metrics to this file")
	jsonOut := fs.Bool("json", false, "output JSON")
	paths, err := parseArgs(fs, args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if len(paths) == 0 || *workers <= 0 {
		_, _ = fmt.Fprintln(r.errOut, "usage: sweepview index [--workers <n>] [--metrics-textfile <path>] <path>...")
		return 2
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer store.Close() //nolint:errcheck

	cfg := r.cfg
	cfg.Workers = *workers
	rec := metrics.NewRecorder()
	report, err := catalog.NewIndexerWithRegistry(store, cfg, r.registry, rec).IndexPaths(ctx, paths)
	if err != nil {
		return r.handleErr(err)
	}
	if *textfile != "" {
		if err := rec.WriteTextfile(*textfile); err != nil {
			return r.handleErr(err)
		}
	}
	if *jsonOut {
		return r.writeJSON(report)
	}
	_, _ = fmt.Fprintf(r.out, "indexed=%d failed=%d skipped=%d\n", report.Indexed, report.Failed, report.Skipped)
	return 0
}

func (r *Runner) runList(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := fs.String("format", "", "only this format (avf, evf, rmv)")
	level := fs.String("level", "", "only this level")
	limit := fs.Int("limit", 0, "maximum rows")
	jsonOut := fs.Bool("json", false, "output JSON")
	if _, err := parseArgs(fs, args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer store.Close() //nolint:errcheck

	replays, err := store.ListReplays(ctx, model.ReplayFilter{Format: *format, Level: *level, Limit: *limit})
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeJSON(map[string]any{"replays": replays})
	}
	for _, rp := range replays {
		outcome := rp.Outcome
		if outcome == "" {
			outcome = "-"
		}
		_, _ = fmt.Fprintf(r.out, "%s\t%s\t%s\t%dx%d/%d\t%d\t%s\t%s\n",
			rp.Path, rp.Format, rp.Level, rp.Cols, rp.Rows, rp.MineCount, rp.EventCount, outcome, rp.BestToken)
	}
	return 0
}

func (r *Runner) runFailures(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("failures", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if _, err := parseArgs(fs, args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	defer store.Close() //nolint:errcheck

	failures, err := store.ListFailures(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.writeJSON(map[string]any{"failures": failures})
	}
	for _, f := range failures {
		_, _ = fmt.Fprintf(r.out, "%s\t%s\t%d\t%s\n", f.Path, f.ErrorKind, f.Attempts, f.Message)
	}
	return 0
}

func (r *Runner) writeJSON(v any) int {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return r.handleErr(err)
	}
	return 0
}

func (r *Runner) handleErr(err error) int {
	var de *replay.DecodeError
	if errors.As(err, &de) {
		_, _ = fmt.Fprintf(r.errOut, "error: %s: %v\n", replay.ErrorKind(err), err)
		return 1
	}
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: sweepview [--config <path>] <formats|decode|export|index|list|failures> ...")
}
