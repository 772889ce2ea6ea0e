// Package kernelgen translates a job closure into a WGSL compute kernel.
//
// The kernel layout is fixed:
//
//	@group(0) @binding(0)   uniform Params { dispatch_size, scalars... }
//	@group(0) @binding(1..) one storage buffer per array parameter
//	@compute fn main        guarded by dispatch_size
//
// The runtime glue relies on this layout: storage bindings follow the array
// parameters in declaration order and scalars follow dispatch_size in the
// uniform block.
package kernelgen

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"github.com/gogpu/shaderjob"
	"github.com/gogpu/shaderjob/internal/analyze"
	"github.com/gogpu/shaderjob/internal/diag"
)

// EntryPoint is the name of the kernel function.
const EntryPoint = "main"

// Header is the first line of every generated kernel.
const Header = "// Code generated by shaderjob. DO NOT EDIT."

// Input describes one closure to translate.
type Input struct {
	Fset    *token.FileSet
	Lit     *ast.FuncLit
	Params  []analyze.Param
	Written analyze.Usage
	Dims    shaderjob.Dims
	// Thread is the name of the thread id parameter.
	Thread string
	// Source is printed into the header when set, usually "file:line".
	Source string
}

// Generate returns the kernel source for in. Body constructs without a
// translation are copied verbatim and reported as UnsupportedBodySyntax.
func Generate(in Input) (string, []diag.Diagnostic) {
	thread := in.Thread
	if thread == "" {
		thread = analyze.DefaultThread
	}
	dims := in.Dims.Normalize()

	w := &writer{}
	w.line(Header)
	if in.Source != "" {
		w.line("// source: %s", in.Source)
	}
	w.line("// kernel: %s", EntryPoint)
	w.line("")

	w.line("struct Params {")
	w.line("    dispatch_size: vec3<u32>,")
	for _, p := range in.Params {
		if p.Scalar() {
			w.line("    %s: %s,", p.Name, wgslScalar(p.Kind))
		}
	}
	w.line("}")
	w.line("")
	w.line("@group(0) @binding(0) var<uniform> params: Params;")

	binding := 1
	for _, p := range in.Params {
		switch {
		case p.Array():
			access := "read"
			if in.Written.Has(p.Name) {
				access = "read_write"
			}
			w.line("@group(0) @binding(%d) var<storage, %s> %s: array<%s>;", binding, access, p.Name, wgslScalar(p.Elem))
			binding++
		case !p.Supported() && p.Index >= 0 && p.Type != nil:
			w.line("// %s: %s (unsupported)", p.Name, p.TypeString())
		}
	}
	w.line("")

	shape := dims.GroupShape()
	w.line("@compute @workgroup_size(%d, %d, %d)", shape.X, shape.Y, shape.Z)
	w.line("fn %s(@builtin(global_invocation_id) %s: vec3<u32>) {", EntryPoint, thread)
	w.line("    if (%s) {", guard(thread, dims.Rank()))
	w.line("        return;")
	w.line("    }")

	e := newEmitter(in.Fset, in.Params, thread)
	if in.Lit != nil && in.Lit.Body != nil {
		for _, s := range in.Lit.Body.List {
			e.stmt(s, 1)
		}
	}
	w.b.WriteString(e.out.String())
	w.line("}")
	return w.b.String(), e.diags
}

// guard returns the out-of-range condition for the given rank.
func guard(thread string, rank int) string {
	axes := []string{"x", "y", "z"}[:rank]
	conds := make([]string, len(axes))
	for i, a := range axes {
		conds[i] = fmt.Sprintf("%s.%s >= params.dispatch_size.%s", thread, a, a)
	}
	return strings.Join(conds, " || ")
}

func wgslScalar(k analyze.Kind) string {
	switch k {
	case analyze.KindInt32:
		return "i32"
	case analyze.KindFloat32:
		return "f32"
	}
	return "u32"
}

type writer struct {
	b strings.Builder
}

func (w *writer) line(format string, args ...any) {
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}
