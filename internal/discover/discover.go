// Package discover finds launch calls with an inline closure in a parsed Go
// file and records their location, normalized text and literal extent.
package discover

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/inspector"

	"github.com/gogpu/shaderjob"
	"github.com/gogpu/shaderjob/internal/diag"
)

// Config names the launch API. Zero fields take the defaults.
type Config struct {
	// Extent is the name of the extent call, "For".
	Extent string
	// Run is the name of the launch call, "Run".
	Run string
	// Thread is the name of the thread id type, "ID".
	Thread string
}

// DefaultConfig returns the names used by the shaderjob runtime.
func DefaultConfig() Config {
	return Config{Extent: "For", Run: "Run", Thread: "ID"}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Extent == "" {
		c.Extent = d.Extent
	}
	if c.Run == "" {
		c.Run = d.Run
	}
	if c.Thread == "" {
		c.Thread = d.Thread
	}
	return c
}

// Invocation is one qualifying launch call.
type Invocation struct {
	Call *ast.CallExpr
	Lit  *ast.FuncLit
	// Pos is the position of record, the Run name.
	Pos  token.Pos
	Line int
	// Text is the whitespace-normalized closure source.
	Text string
	Dims shaderjob.Dims
}

// Discoverer finds invocations.
type Discoverer struct {
	cfg Config
}

// New returns a Discoverer for cfg.
func New(cfg Config) *Discoverer {
	return &Discoverer{cfg: cfg.withDefaults()}
}

// Discover returns the qualifying invocations of file in document order. At
// most one invocation is kept per line; later ones on the same line produce a
// DuplicateInvocationOnLine diagnostic.
func (d *Discoverer) Discover(fset *token.FileSet, file *ast.File) ([]Invocation, []diag.Diagnostic) {
	var (
		out   []Invocation
		diags []diag.Diagnostic
		lines = make(map[int]bool)
	)
	in := inspector.New([]*ast.File{file})
	in.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		lit, pos, extent, ok := d.match(call)
		if !ok {
			return
		}
		line := fset.Position(pos).Line
		if lines[line] {
			diags = append(diags, diag.New(fset, pos, diag.DuplicateInvocationOnLine,
				"more than one %s call on line %d, only the first is compiled", d.cfg.Run, line))
			return
		}
		lines[line] = true
		out = append(out, Invocation{
			Call: call,
			Lit:  lit,
			Pos:  pos,
			Line: line,
			Text: LambdaText(fset, lit),
			Dims: ExtentOf(extent),
		})
	})
	return out, diags
}

// match reports whether call is a launch call. It returns the closure, the
// position of record and the extent call of a fluent chain, if any.
func (d *Discoverer) match(call *ast.CallExpr) (*ast.FuncLit, token.Pos, *ast.CallExpr, bool) {
	if len(call.Args) == 0 {
		return nil, token.NoPos, nil, false
	}
	lit, ok := ast.Unparen(call.Args[len(call.Args)-1]).(*ast.FuncLit)
	if !ok {
		return nil, token.NoPos, nil, false
	}
	name, recv := callee(call.Fun)
	if name == nil || name.Name != d.cfg.Run {
		return nil, token.NoPos, nil, false
	}
	if extent := d.extentCall(recv); extent != nil {
		return lit, name.Pos(), extent, true
	}
	// Without an extent chain the closure must take the thread id.
	if d.threadTyped(lit) {
		return lit, name.Pos(), nil, true
	}
	return nil, token.NoPos, nil, false
}

// extentCall walks back along a method chain from x and returns the first
// call named Extent.
func (d *Discoverer) extentCall(x ast.Expr) *ast.CallExpr {
	for x != nil {
		call, ok := ast.Unparen(x).(*ast.CallExpr)
		if !ok {
			return nil
		}
		name, recv := callee(call.Fun)
		if name == nil {
			return nil
		}
		if name.Name == d.cfg.Extent {
			return call
		}
		x = recv
	}
	return nil
}

// threadTyped reports whether the last closure parameter is the thread id
// type, qualified or not.
func (d *Discoverer) threadTyped(lit *ast.FuncLit) bool {
	params := lit.Type.Params
	if params == nil || len(params.List) == 0 {
		return false
	}
	switch t := params.List[len(params.List)-1].Type.(type) {
	case *ast.Ident:
		return t.Name == d.cfg.Thread
	case *ast.SelectorExpr:
		return t.Sel.Name == d.cfg.Thread
	}
	return false
}

// callee splits a call's function expression into its final name and the
// receiver expression, unwrapping explicit type arguments.
func callee(fun ast.Expr) (*ast.Ident, ast.Expr) {
	fun = ast.Unparen(fun)
	switch f := fun.(type) {
	case *ast.IndexExpr:
		fun = f.X
	case *ast.IndexListExpr:
		fun = f.X
	}
	switch f := ast.Unparen(fun).(type) {
	case *ast.Ident:
		return f, nil
	case *ast.SelectorExpr:
		return f.Sel, f.X
	}
	return nil, nil
}

// ExtentOf reads up to three integer literal arguments of an extent call.
// Non-literal, non-positive or missing arguments become 1. A nil call yields
// (1, 1, 1).
func ExtentOf(call *ast.CallExpr) shaderjob.Dims {
	var v [3]int
	for i := range v {
		v[i] = 1
		if call == nil || i >= len(call.Args) {
			continue
		}
		if n, ok := intLiteral(call.Args[i]); ok && n > 0 {
			v[i] = n
		}
	}
	return shaderjob.Dims{X: v[0], Y: v[1], Z: v[2]}
}

func intLiteral(x ast.Expr) (int, bool) {
	lit, ok := ast.Unparen(x).(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, false
	}
	n, err := strconv.ParseInt(lit.Value, 0, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

// LambdaText prints lit without comments and collapses every run of
// whitespace to a single space.
func LambdaText(fset *token.FileSet, lit *ast.FuncLit) string {
	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.RawFormat}
	if err := cfg.Fprint(&buf, fset, lit); err != nil {
		return ""
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}
