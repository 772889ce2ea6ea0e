// Package analyze resolves the types of a job closure's parameters and
// classifies its array parameters as read-only or read-write.
package analyze

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"math"
	"sort"

	"github.com/gogpu/shaderjob/internal/diag"
)

// Kind is the kernel-side classification of a parameter.
type Kind int

const (
	KindUnsupported Kind = iota
	KindInt32
	KindFloat32
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	case KindArray:
		return "array"
	default:
		return "unsupported"
	}
}

// Param is one closure parameter.
type Param struct {
	Name string
	// Index is the position of the paired call argument, or -1 when the
	// parameter has no argument.
	Index int
	// Type is the resolved argument type. It is nil when unresolved.
	Type types.Type
	Kind Kind
	// Elem is the element kind of an array parameter.
	Elem Kind
	Pos  token.Pos
}

// Scalar reports whether p is an int32 or float32 value.
func (p Param) Scalar() bool { return p.Kind == KindInt32 || p.Kind == KindFloat32 }

// Array reports whether p is an array of int32 or float32.
func (p Param) Array() bool { return p.Kind == KindArray }

// Supported reports whether p takes part in the kernel interface.
func (p Param) Supported() bool { return p.Scalar() || p.Array() }

// TypeString returns the resolved Go type of p, or "" when unresolved.
func (p Param) TypeString() string {
	if p.Type == nil {
		return ""
	}
	return types.TypeString(p.Type, func(pkg *types.Package) string { return pkg.Name() })
}

// Check type-checks file on its own and returns whatever type information
// could be recovered. Errors are ignored: unresolvable imports become empty
// packages, and uses of them are simply left untyped. A nil importer treats
// every import as unresolvable.
func Check(fset *token.FileSet, file *ast.File, imp types.Importer) *types.Info {
	info := &types.Info{
		Types: make(map[ast.Expr]types.TypeAndValue),
		Defs:  make(map[*ast.Ident]types.Object),
		Uses:  make(map[*ast.Ident]types.Object),
	}
	if imp == nil {
		imp = noImporter{}
	}
	conf := types.Config{
		Importer: imp,
		Error:    func(error) {},
	}
	_, _ = conf.Check(file.Name.Name, fset, []*ast.File{file}, info)
	return info
}

type noImporter struct{}

func (noImporter) Import(path string) (*types.Package, error) {
	return nil, fmt.Errorf("import %q: not resolved", path)
}

// Params pairs the closure's parameters with the call's arguments by
// position. The closure is the last argument; parameters past the other
// arguments get no type. Parameters that do not resolve to a supported type
// produce an UnresolvedParameterType diagnostic, except for the trailing
// thread id.
func Params(fset *token.FileSet, call *ast.CallExpr, lit *ast.FuncLit, info *types.Info) ([]Param, []diag.Diagnostic) {
	var (
		params []Param
		diags  []diag.Diagnostic
	)
	args := call.Args[:len(call.Args)-1]
	names := paramNames(lit)
	for i, n := range names {
		p := Param{Name: n.Name, Index: -1, Pos: n.Pos()}
		if i < len(args) {
			p.Index = i
			p.Type = argType(info, args[i])
			p.Type = constType(info, args[i], n, p.Type)
		}
		p.Kind, p.Elem = classify(p.Type)
		params = append(params, p)

		if p.Supported() || (p.Index < 0 && i == len(names)-1) {
			continue
		}
		what := "unresolved"
		if p.Type != nil {
			what = p.TypeString()
		}
		diags = append(diags, diag.New(fset, n.Pos(), diag.UnresolvedParameterType,
			"parameter %s has type %s, not an int32 or float32 scalar or array; skipped", n.Name, what))
	}
	return params, diags
}

func paramNames(lit *ast.FuncLit) []*ast.Ident {
	var out []*ast.Ident
	if lit.Type.Params == nil {
		return nil
	}
	for _, f := range lit.Type.Params.List {
		if len(f.Names) == 0 {
			out = append(out, &ast.Ident{Name: "_", NamePos: f.Type.Pos()})
			continue
		}
		out = append(out, f.Names...)
	}
	return out
}

// argType resolves the type of an argument expression: an identifier's
// declared object first, then the recorded expression type.
func argType(info *types.Info, arg ast.Expr) types.Type {
	if info == nil {
		return nil
	}
	arg = ast.Unparen(arg)
	var id *ast.Ident
	switch x := arg.(type) {
	case *ast.Ident:
		id = x
	case *ast.SelectorExpr:
		id = x.Sel
	}
	if id != nil {
		if obj := info.Uses[id]; obj != nil {
			if _, ok := obj.(*types.Var); ok {
				return valid(obj.Type())
			}
		}
	}
	return valid(info.TypeOf(arg))
}

// constType retypes a constant argument by the parameter it feeds. Run
// takes ...any, so the checker records a constant's default type (int or
// float64). The parameter's declared int32 or float32 type wins when the
// value is representable in it; an unresolved parameter type falls back to
// int32 for integer constants and float32 for the rest.
func constType(info *types.Info, arg ast.Expr, param *ast.Ident, t types.Type) types.Type {
	if info == nil {
		return t
	}
	tv, ok := info.Types[ast.Unparen(arg)]
	if !ok || tv.Value == nil {
		return t
	}
	var want types.Type
	if obj := info.Defs[param]; obj != nil {
		want = valid(obj.Type())
	}
	if want == nil {
		switch tv.Value.Kind() {
		case constant.Int:
			want = types.Typ[types.Int32]
		case constant.Float:
			want = types.Typ[types.Float32]
		default:
			return t
		}
	}
	if !representable(tv.Value, want) {
		return t
	}
	return want
}

func representable(v constant.Value, t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	if !ok {
		return false
	}
	switch b.Kind() {
	case types.Int32:
		x := constant.ToInt(v)
		if x.Kind() != constant.Int {
			return false
		}
		n, exact := constant.Int64Val(x)
		return exact && n >= math.MinInt32 && n <= math.MaxInt32
	case types.Float32:
		x := constant.ToFloat(v)
		if k := x.Kind(); k != constant.Float && k != constant.Int {
			return false
		}
		f, _ := constant.Float32Val(x)
		return !math.IsInf(float64(f), 0)
	}
	return false
}

func valid(t types.Type) types.Type {
	if t == nil {
		return nil
	}
	if b, ok := t.(*types.Basic); ok && b.Kind() == types.Invalid {
		return nil
	}
	return t
}

func classify(t types.Type) (Kind, Kind) {
	if t == nil {
		return KindUnsupported, KindUnsupported
	}
	if k := scalarKind(t); k != KindUnsupported {
		return k, KindUnsupported
	}
	var elem types.Type
	switch u := t.Underlying().(type) {
	case *types.Slice:
		elem = u.Elem()
	case *types.Array:
		elem = u.Elem()
	case *types.Pointer:
		if a, ok := u.Elem().Underlying().(*types.Array); ok {
			elem = a.Elem()
		}
	}
	if elem == nil {
		return KindUnsupported, KindUnsupported
	}
	// Element types must be exactly int32 or float32 so the glue can
	// reinterpret the slice without copying.
	if b, ok := types.Unalias(elem).(*types.Basic); ok {
		switch b.Kind() {
		case types.Int32:
			return KindArray, KindInt32
		case types.Float32:
			return KindArray, KindFloat32
		}
	}
	return KindUnsupported, KindUnsupported
}

func scalarKind(t types.Type) Kind {
	b, ok := t.Underlying().(*types.Basic)
	if !ok {
		return KindUnsupported
	}
	switch b.Kind() {
	case types.Int32, types.UntypedInt, types.UntypedRune:
		return KindInt32
	case types.Float32, types.UntypedFloat:
		return KindFloat32
	}
	return KindUnsupported
}

// Usage is the set of array parameters a closure writes to.
type Usage map[string]bool

// Has reports whether name is written.
func (u Usage) Has(name string) bool { return u[name] }

// Names returns the written names, sorted.
func (u Usage) Names() []string {
	out := make([]string, 0, len(u))
	for n := range u {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Written scans the closure body for element assignments to array
// parameters: x[i] = v, x[i] op= v and x[i]++ / x[i]--.
func Written(lit *ast.FuncLit, params []Param) Usage {
	arrays := make(map[string]bool)
	for _, p := range params {
		if p.Array() {
			arrays[p.Name] = true
		}
	}
	u := make(Usage)
	mark := func(x ast.Expr) {
		ix, ok := ast.Unparen(x).(*ast.IndexExpr)
		if !ok {
			return
		}
		if id, ok := ast.Unparen(ix.X).(*ast.Ident); ok && arrays[id.Name] {
			u[id.Name] = true
		}
	}
	if lit.Body == nil {
		return u
	}
	ast.Inspect(lit.Body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			if s.Tok != token.DEFINE {
				for _, lhs := range s.Lhs {
					mark(lhs)
				}
			}
		case *ast.IncDecStmt:
			mark(s.X)
		}
		return true
	})
	return u
}

// DefaultThread is the thread id name used when the closure has no usable
// trailing parameter.
const DefaultThread = "id"

// ThreadParam returns the name of the trailing parameter that has no paired
// argument. That parameter is the global invocation id.
func ThreadParam(params []Param) string {
	if n := len(params); n > 0 {
		if p := params[n-1]; p.Index < 0 && p.Name != "_" {
			return p.Name
		}
	}
	return DefaultThread
}
