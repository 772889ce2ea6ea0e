// Package engine keeps generated artifacts consistent with the launch calls
// in a project. It runs incremental passes over changed files, assigns and
// recycles artifact ids through the registry and collects artifacts whose
// calls disappeared.
package engine

import (
	"context"
	"errors"
	"fmt"
	"go/types"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gogpu/shaderjob"
	"github.com/gogpu/shaderjob/internal/artifact"
	"github.com/gogpu/shaderjob/internal/discover"
	"github.com/gogpu/shaderjob/internal/queue"
	"github.com/gogpu/shaderjob/internal/registry"
)

// Options configures an Engine.
type Options struct {
	// Root is the absolute project directory.
	Root string
	// Prefix is the project prefix of location file names.
	Prefix string
	// OutputDir is the directory artifacts are written to. Go files under it
	// are never scanned.
	OutputDir string
	// Package is the Go package name of the generated glue.
	Package string
	// Namespace is the first segment of runtime resource keys.
	Namespace string
	// RegistryPath is the registry document.
	RegistryPath string
	// Queue holds pending notifications. Nil means an in-memory queue.
	Queue *queue.Queue
	// Store receives artifacts. Nil means a DirStore on OutputDir.
	Store artifact.Store
	// Launch names the launch API.
	Launch discover.Config
	// Importer resolves imports during type checking. Nil leaves imported
	// types unresolved.
	Importer types.Importer
	// Validate compiles every generated kernel and reports failures as
	// InvalidKernel diagnostics.
	Validate bool
	// DryRun skips saving the registry.
	DryRun bool
	Logger *slog.Logger
}

// Engine runs passes. Passes never overlap: a notification arriving during a
// pass is queued and drained by one follow-up pass.
type Engine struct {
	opts  Options
	norm  registry.Normalizer
	disc  *discover.Discoverer
	queue *queue.Queue
	store artifact.Store
	log   *slog.Logger

	mu      sync.Mutex
	running bool
	// drained, when set, runs after the queue is found empty and before
	// the pass loop decides to stop.
	drained func()
}

// New returns an Engine for opts.
func New(opts Options) (*Engine, error) {
	if opts.RegistryPath == "" {
		return nil, errors.New("engine: no registry path")
	}
	if opts.Package == "" {
		opts.Package = "shaderjobgen"
	}
	if opts.Namespace == "" {
		opts.Namespace = "shaderjob"
	}
	e := &Engine{
		opts:  opts,
		norm:  registry.Normalizer{Root: opts.Root, Prefix: opts.Prefix},
		disc:  discover.New(opts.Launch),
		queue: opts.Queue,
		store: opts.Store,
		log:   opts.Logger,
	}
	if e.log == nil {
		e.log = shaderjob.NopLogger()
	}
	if e.queue == nil {
		q, err := queue.Open("")
		if err != nil {
			return nil, err
		}
		e.queue = q
	}
	if e.store == nil {
		if opts.OutputDir == "" {
			return nil, errors.New("engine: no output directory")
		}
		e.store = artifact.DirStore{Dir: opts.OutputDir}
	}
	return e, nil
}

// Notify queues changed and removed files and runs passes until the queue is
// empty. If a pass is already running the batch is left for it and Notify
// returns a report with Deferred set.
func (e *Engine) Notify(ctx context.Context, updated, removed []string) (Report, error) {
	if err := e.queue.Append(updated, removed); err != nil {
		return Report{}, err
	}
	return e.drain(ctx)
}

// Resume processes a batch left pending by an earlier process.
func (e *Engine) Resume(ctx context.Context) (Report, error) {
	if !e.queue.Pending() {
		return Report{}, nil
	}
	e.log.InfoContext(ctx, "shaderjob: resuming pending batch")
	return e.drain(ctx)
}

func (e *Engine) drain(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.DebugContext(ctx, "shaderjob: pass in progress, batch queued")
		return Report{Deferred: true}, nil
	}
	e.running = true
	e.mu.Unlock()

	var (
		total Report
		errs  []error
	)
	for {
		batch, ok, err := e.queue.Take()
		if err != nil {
			e.stop()
			return total, err
		}
		if !ok {
			if e.drained != nil {
				e.drained()
			}
			// A Notify that appended after Take but saw running set has
			// returned Deferred; its batch must be picked up here.
			e.mu.Lock()
			if e.queue.Pending() {
				e.mu.Unlock()
				continue
			}
			e.running = false
			e.mu.Unlock()
			break
		}
		rep, err := e.Pass(ctx, batch)
		total.add(rep)
		if err != nil {
			errs = append(errs, err)
		}
		if err := e.queue.Commit(); err != nil {
			e.stop()
			return total, err
		}
	}
	return total, errors.Join(errs...)
}

func (e *Engine) stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Pass runs one pass over batch directly, bypassing the queue. Per-file
// failures are joined into the returned error after the pass completes; the
// registry is still saved for the files that succeeded.
func (e *Engine) Pass(ctx context.Context, batch queue.Batch) (Report, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return Report{}, err
	}
	p := &pass{
		Engine: e,
		ctx:    ctx,
		reg:    reg,
		gen:    reg.Generation + 1,
		report: Report{Passes: 1},
	}
	var errs []error
	for _, path := range batch.Updated {
		if !e.source(path) {
			continue
		}
		if err := p.file(path); err != nil {
			e.log.ErrorContext(ctx, "shaderjob: file skipped", "path", path, "err", err)
			errs = append(errs, &FileError{Path: path, Err: err})
			p.report.Failed++
		}
	}
	for _, path := range batch.Removed {
		if !isGo(path) {
			continue
		}
		if err := p.removed(path); err != nil {
			errs = append(errs, &FileError{Path: path, Err: err})
			p.report.Failed++
		}
	}
	if err := p.index(); err != nil {
		errs = append(errs, err)
	}
	if p.dirty {
		p.reg.Generation = p.gen
		if !e.opts.DryRun {
			if err := registry.Save(e.opts.RegistryPath, p.reg); err != nil {
				return p.report, err
			}
		}
		p.report.Generation = p.gen
	}
	e.log.InfoContext(ctx, "shaderjob: pass complete",
		"generated", p.report.Generated,
		"regenerated", p.report.Regenerated,
		"unchanged", p.report.Unchanged,
		"removed", p.report.Removed,
		"failed", p.report.Failed)
	return p.report, errors.Join(errs...)
}

func (e *Engine) loadRegistry() (*registry.Registry, error) {
	reg, err := registry.Load(e.opts.RegistryPath)
	if err != nil {
		return nil, err
	}
	if reg.Prefix == "" {
		reg.Prefix = e.opts.Prefix
	}
	return reg, nil
}

// Entries returns the current registry entries.
func (e *Engine) Entries() ([]registry.Entry, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Entries(), nil
}

// source reports whether path is a Go file outside the output directory.
func (e *Engine) source(path string) bool {
	if !isGo(path) {
		return false
	}
	if e.opts.OutputDir == "" {
		return true
	}
	abs, err := e.abs(path)
	if err != nil {
		return false
	}
	out, err := filepath.Abs(e.opts.OutputDir)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(out, abs)
	return err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Engine) abs(path string) (string, error) {
	if !filepath.IsAbs(path) && e.opts.Root != "" {
		path = filepath.Join(e.opts.Root, path)
	}
	return filepath.Abs(path)
}

func isGo(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".go")
}

// FileError is a file that could not be processed. Its registry entries
// were left untouched.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
