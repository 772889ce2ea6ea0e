// Command shaderjob generates GPU kernels and Go glue for the launch calls in
// a project and keeps them in sync as files change.
//
// Usage:
//
//	shaderjob [options] sync [-removed file,...] [file ...]
//	shaderjob [options] scan
//	shaderjob [options] resume
//	shaderjob [options] ls
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"go/importer"
	"go/token"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/gogpu/shaderjob"
	"github.com/gogpu/shaderjob/internal/artifact"
	"github.com/gogpu/shaderjob/internal/config"
	"github.com/gogpu/shaderjob/internal/engine"
	"github.com/gogpu/shaderjob/internal/queue"
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const usage = `shaderjob - generate GPU kernels for inline compute closures.

Usage:
  shaderjob [options] <command> [arguments]

Commands:
  sync [-removed file,...] [file ...]
        process changed and removed Go files
  scan  process every Go file under the project root
  resume
        finish a batch interrupted by an earlier run
  ls    list registered launch calls

Options:
`

func run(ctx context.Context, out, errOut io.Writer, args []string) error {
	fs := flag.NewFlagSet("shaderjob", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprint(errOut, usage)
		fs.PrintDefaults()
	}
	dir := fs.String("C", ".", "project root directory")
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn or error")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	dryRun := fs.Bool("dry-run", false, "print a diff of artifact changes instead of writing them")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return &ExitError{Code: 2}
	}
	logger, err := newLogger(errOut, *logLevel, *logFormat)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}
	shaderjob.SetLogger(logger)

	cfg, err := config.Load(*dir)
	if err != nil {
		return err
	}
	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if cmd == "ls" {
		return list(out, cfg)
	}

	eng, dry, err := newEngine(cfg, logger, out, *dryRun)
	if err != nil {
		return err
	}
	var rep engine.Report
	switch cmd {
	case "sync":
		sfs := flag.NewFlagSet("sync", flag.ContinueOnError)
		sfs.SetOutput(errOut)
		removed := sfs.String("removed", "", "comma-separated list of removed files")
		if err := sfs.Parse(cmdArgs); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil
			}
			return &ExitError{Code: 2, Message: err.Error()}
		}
		rep, err = eng.Notify(ctx, sfs.Args(), splitList(*removed))
	case "scan":
		rep, err = eng.Scan(ctx)
	case "resume":
		rep, err = eng.Resume(ctx)
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", cmd)}
	}
	printReport(out, rep, dry)
	if err != nil {
		return err
	}
	if rep.Failed > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d file(s) failed", rep.Failed)}
	}
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log-level %q: must be debug, info, warn or error", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log-format %q: must be text or json", format)
}

func newEngine(cfg *config.Config, logger *slog.Logger, out io.Writer, dryRun bool) (*engine.Engine, *artifact.DryRun, error) {
	opts := engine.Options{
		Root:         cfg.Root,
		Prefix:       cfg.Prefix,
		OutputDir:    cfg.OutputPath(),
		Package:      cfg.Package,
		Namespace:    cfg.Namespace,
		RegistryPath: cfg.RegistryPath(),
		Launch:       cfg.Launch,
		Validate:     cfg.Validate,
		DryRun:       dryRun,
		Logger:       logger,
	}
	if cfg.Importer == "source" {
		opts.Importer = importer.ForCompiler(token.NewFileSet(), "source", nil)
	}
	var dry *artifact.DryRun
	if dryRun {
		dry = &artifact.DryRun{Base: artifact.DirStore{Dir: opts.OutputDir}, Out: out}
		opts.Store = dry
	} else {
		q, err := queue.Open(cfg.QueuePath())
		if err != nil {
			return nil, nil, err
		}
		opts.Queue = q
	}
	eng, err := engine.New(opts)
	return eng, dry, err
}

func printReport(out io.Writer, rep engine.Report, dry *artifact.DryRun) {
	for _, d := range rep.Diagnostics {
		fmt.Fprintln(out, d.String())
	}
	if rep.Deferred {
		fmt.Fprintln(out, "deferred to the running pass")
		return
	}
	fmt.Fprintf(out, "generated %d, regenerated %d, unchanged %d, removed %d, failed %d",
		rep.Generated, rep.Regenerated, rep.Unchanged, rep.Removed, rep.Failed)
	if rep.Generation != 0 {
		fmt.Fprintf(out, " (generation %d)", rep.Generation)
	}
	fmt.Fprintln(out)
	if dry != nil {
		fmt.Fprintf(out, "dry run: %d change(s) not written\n", dry.Changes)
	}
}

func list(out io.Writer, cfg *config.Config) error {
	eng, err := engine.New(engine.Options{
		Root:         cfg.Root,
		Prefix:       cfg.Prefix,
		OutputDir:    cfg.OutputPath(),
		RegistryPath: cfg.RegistryPath(),
	})
	if err != nil {
		return err
	}
	entries, err := eng.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%d\t%s\t(%d, %d, %d)\t%d\n", e.ID, e.Location, e.Dims[0], e.Dims[1], e.Dims[2], e.Generation)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
