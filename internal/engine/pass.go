package engine

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"go/types"
	"io/fs"
	"os"

	"github.com/gogpu/shaderjob/internal/analyze"
	"github.com/gogpu/shaderjob/internal/artifact"
	"github.com/gogpu/shaderjob/internal/diag"
	"github.com/gogpu/shaderjob/internal/discover"
	"github.com/gogpu/shaderjob/internal/gluegen"
	"github.com/gogpu/shaderjob/internal/kernelgen"
	"github.com/gogpu/shaderjob/internal/registry"
)

// Report summarizes what passes did.
type Report struct {
	Passes      int
	Generated   int
	Regenerated int
	Unchanged   int
	Removed     int
	Failed      int
	// Generation is the registry generation written by the last mutating
	// pass, or 0 when nothing changed.
	Generation  uint64
	Diagnostics []diag.Diagnostic
	// Deferred is set when the batch was left to a pass already running.
	Deferred bool
}

// Changed reports whether any artifact was written or removed.
func (r Report) Changed() bool {
	return r.Generated+r.Regenerated+r.Removed > 0
}

func (r *Report) add(o Report) {
	r.Passes += o.Passes
	r.Generated += o.Generated
	r.Regenerated += o.Regenerated
	r.Unchanged += o.Unchanged
	r.Removed += o.Removed
	r.Failed += o.Failed
	if o.Generation != 0 {
		r.Generation = o.Generation
	}
	r.Diagnostics = append(r.Diagnostics, o.Diagnostics...)
}

type pass struct {
	*Engine
	ctx    context.Context
	reg    *registry.Registry
	gen    uint64
	dirty  bool
	report Report
}

// output is one staged artifact change. A nil Data removes the file.
type output struct {
	Name string
	Data []byte
}

// flush applies staged outputs in order.
func (p *pass) flush(outs []output) error {
	for _, o := range outs {
		if o.Data == nil {
			if err := p.store.Remove(o.Name); err != nil {
				return err
			}
			continue
		}
		if _, err := p.store.Write(o.Name, o.Data); err != nil {
			return err
		}
	}
	return nil
}

// file brings the artifacts of one source file up to date. Artifacts are
// staged and written only once every call in the file has been generated,
// and the registry is only changed when the writes succeed. A store failure
// part way through the writes can leave files of ids the registry does not
// hold; the next pass over the file reuses those ids and overwrites them.
func (p *pass) file(path string) error {
	abs, err := p.abs(path)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		p.log.DebugContext(p.ctx, "shaderjob: updated file is gone", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, abs, src, 0)
	if err != nil {
		return err
	}

	key := p.norm.Normalize(abs)
	invs, diags := p.disc.Discover(fset, f)
	p.diagnose(diags)

	work := p.reg.Clone()
	var (
		rep   Report
		info  *types.Info
		outs  []output
		lines = make(map[int]bool, len(invs))
	)
	for _, inv := range invs {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		lines[inv.Line] = true
		loc := registry.Location{File: key, Line: inv.Line}
		old, known := work.Lookup(loc)
		if known && old.Text == inv.Text && old.Dims == inv.Dims.Array() {
			rep.Unchanged++
			continue
		}
		if info == nil {
			info = analyze.Check(fset, f, p.opts.Importer)
		}
		id := old.ID
		if !known {
			id = work.FreeID()
		}
		gen, err := p.generate(fset, info, inv, id, loc)
		if err != nil {
			return err
		}
		outs = append(outs, gen...)
		work.Put(registry.Entry{
			Location:   loc,
			ID:         id,
			Text:       inv.Text,
			Dims:       inv.Dims.Array(),
			Generation: p.gen,
		})
		if known {
			rep.Regenerated++
		} else {
			rep.Generated++
		}
	}

	for _, e := range work.InFile(key) {
		if lines[e.Line] {
			continue
		}
		outs = append(outs, p.collect(work, e)...)
		rep.Removed++
	}

	if err := p.flush(outs); err != nil {
		return err
	}
	p.reg = work
	if rep.Changed() {
		p.dirty = true
	}
	p.report.add(rep)
	return nil
}

// removed collects every artifact of a deleted file.
func (p *pass) removed(path string) error {
	abs, err := p.abs(path)
	if err != nil {
		return err
	}
	key := p.norm.Normalize(abs)
	for _, e := range p.reg.InFile(key) {
		if err := p.flush(p.collect(p.reg, e)); err != nil {
			return err
		}
		p.report.Removed++
		p.dirty = true
	}
	return nil
}

// collect deletes the registry entry of e and returns the removal of its
// files.
func (p *pass) collect(reg *registry.Registry, e registry.Entry) []output {
	reg.Delete(e.Location)
	p.log.DebugContext(p.ctx, "shaderjob: artifact collected", "id", e.ID, "location", e.Location.String())
	return []output{{Name: artifact.KernelName(e.ID)}, {Name: artifact.GlueName(e.ID)}}
}

func (p *pass) generate(fset *token.FileSet, info *types.Info, inv discover.Invocation, id int, loc registry.Location) ([]output, error) {
	params, diags := analyze.Params(fset, inv.Call, inv.Lit, info)
	p.diagnose(diags)
	written := analyze.Written(inv.Lit, params)

	kernel, diags := kernelgen.Generate(kernelgen.Input{
		Fset:    fset,
		Lit:     inv.Lit,
		Params:  params,
		Written: written,
		Dims:    inv.Dims,
		Thread:  analyze.ThreadParam(params),
		Source:  loc.String(),
	})
	p.diagnose(diags)
	if p.opts.Validate {
		if err := kernelgen.Validate(kernel); err != nil {
			p.diagnose([]diag.Diagnostic{diag.New(fset, inv.Pos, diag.InvalidKernel, "%v", err)})
		}
	}

	glue, err := gluegen.Generate(gluegen.Input{
		Package:    p.opts.Package,
		ID:         id,
		Namespace:  p.opts.Namespace,
		Generation: p.gen,
		Params:     params,
		Written:    written,
		Dims:       inv.Dims,
		Source:     loc.String(),
	})
	if err != nil {
		return nil, err
	}
	p.log.DebugContext(p.ctx, "shaderjob: artifact generated", "id", id, "location", loc.String(), "dims", inv.Dims.String())
	return []output{
		{Name: artifact.KernelName(id), Data: []byte(kernel)},
		{Name: artifact.GlueName(id), Data: glue},
	}, nil
}

// index rewrites the package index when the id set changed.
func (p *pass) index() error {
	ids := p.reg.IDs()
	if len(ids) == 0 {
		return p.store.Remove(artifact.IndexName)
	}
	src, err := gluegen.Index(p.opts.Package, ids)
	if err != nil {
		return err
	}
	if _, err := p.store.Write(artifact.IndexName, src); err != nil {
		return fmt.Errorf("engine: index: %w", err)
	}
	return nil
}

func (p *pass) diagnose(ds []diag.Diagnostic) {
	for _, d := range ds {
		p.log.WarnContext(p.ctx, "shaderjob: diagnostic", "diag", d)
	}
	p.report.Diagnostics = append(p.report.Diagnostics, ds...)
}
