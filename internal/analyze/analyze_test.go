package analyze

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/gogpu/shaderjob/internal/diag"
	"github.com/gogpu/shaderjob/internal/discover"
)

type fixture struct {
	fset *token.FileSet
	file *ast.File
	invs []discover.Invocation
}

func load(t *testing.T, src string) fixture {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "job.go", src, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	invs, _ := discover.New(discover.Config{}).Discover(fset, f)
	if len(invs) == 0 {
		t.Fatal("no invocations found")
	}
	return fixture{fset: fset, file: f, invs: invs}
}

const scaleSrc = `package job

import "github.com/gogpu/shaderjob"

func scale(exec *shaderjob.Executor) {
	a := make([]float32, 130)
	b := make([]float32, 130)
	var factor float32 = 2
	var n int32 = 130
	exec.For(130).Run(a, b, factor, n, func(a []float32, b []float32, factor float32, n int32, id shaderjob.ID) {
		b[id.X] = a[id.X] * factor
	})
}
`

func TestParamsResolve(t *testing.T) {
	fx := load(t, scaleSrc)
	info := Check(fx.fset, fx.file, nil)
	inv := fx.invs[0]

	params, diags := Params(fx.fset, inv.Call, inv.Lit, info)
	if len(diags) != 0 {
		t.Fatalf("diags = %v", diags)
	}
	want := []struct {
		name string
		kind Kind
		elem Kind
	}{
		{"a", KindArray, KindFloat32},
		{"b", KindArray, KindFloat32},
		{"factor", KindFloat32, KindUnsupported},
		{"n", KindInt32, KindUnsupported},
		{"id", KindUnsupported, KindUnsupported},
	}
	if len(params) != len(want) {
		t.Fatalf("len(params) = %d, want %d", len(params), len(want))
	}
	for i, w := range want {
		p := params[i]
		if p.Name != w.name || p.Kind != w.kind || p.Elem != w.elem {
			t.Errorf("params[%d] = %s %v/%v, want %s %v/%v", i, p.Name, p.Kind, p.Elem, w.name, w.kind, w.elem)
		}
	}
	if got := ThreadParam(params); got != "id" {
		t.Errorf("ThreadParam = %q, want id", got)
	}
}

func TestWrittenClassification(t *testing.T) {
	fx := load(t, scaleSrc)
	info := Check(fx.fset, fx.file, nil)
	inv := fx.invs[0]
	params, _ := Params(fx.fset, inv.Call, inv.Lit, info)

	u := Written(inv.Lit, params)
	if !u.Has("b") {
		t.Error("b is written but not classified read-write")
	}
	if u.Has("a") {
		t.Error("a is only read but classified read-write")
	}
	if names := u.Names(); len(names) != 1 {
		t.Errorf("Names = %v, want [b]", names)
	}
}

func TestWrittenForms(t *testing.T) {
	src := `package job

func f(exec interface{ Run(...any) }) {
	var a, b, c, d []int32
	var s int32
	exec.Run(a, b, c, d, s, func(a, b, c, d []int32, s int32, id ID) {
		a[id.X] += 1
		(b)[id.X]++
		x := c[id.X]
		s = x
		_ = d[0]
	})
}
`
	fx := load(t, src)
	info := Check(fx.fset, fx.file, nil)
	inv := fx.invs[0]
	params, _ := Params(fx.fset, inv.Call, inv.Lit, info)
	u := Written(inv.Lit, params)

	for name, want := range map[string]bool{"a": true, "b": true, "c": false, "d": false, "s": false} {
		if u.Has(name) != want {
			t.Errorf("Has(%s) = %v, want %v", name, u.Has(name), want)
		}
	}
}

func TestUnresolvedParameter(t *testing.T) {
	src := `package job

import (
	"example.com/missing"

	"github.com/gogpu/shaderjob"
)

func f(exec *shaderjob.Executor) {
	a := make([]float32, 4)
	exec.For(4).Run(a, missing.Value, func(a []float32, v missing.Type, id shaderjob.ID) {
		a[id.X] = 1
	})
}
`
	fx := load(t, src)
	info := Check(fx.fset, fx.file, nil)
	inv := fx.invs[0]
	params, diags := Params(fx.fset, inv.Call, inv.Lit, info)

	if len(params) != 3 {
		t.Fatalf("len(params) = %d, want 3", len(params))
	}
	if !params[0].Array() {
		t.Errorf("a = %v, want array", params[0].Kind)
	}
	if params[1].Supported() || params[1].Type != nil {
		t.Errorf("v = %v (%v), want unresolved", params[1].Kind, params[1].Type)
	}
	if diag.Count(diags, diag.UnresolvedParameterType) != 1 {
		t.Errorf("diags = %v, want one UnresolvedParameterType", diags)
	}
}

func TestUnsupportedTypes(t *testing.T) {
	src := `package job

func f(exec interface{ Run(...any) }) {
	var a []float64
	var n int
	var p *[4]int32
	var named []Meters
	exec.Run(a, n, p, named, func(a []float64, n int, p *[4]int32, named []Meters, id ID) {})
}

type Meters float32
`
	fx := load(t, src)
	info := Check(fx.fset, fx.file, nil)
	inv := fx.invs[0]
	params, diags := Params(fx.fset, inv.Call, inv.Lit, info)

	wantKinds := []Kind{KindUnsupported, KindUnsupported, KindArray, KindUnsupported, KindUnsupported}
	for i, k := range wantKinds {
		if params[i].Kind != k {
			t.Errorf("params[%d] (%s) kind = %v, want %v", i, params[i].Name, params[i].Kind, k)
		}
	}
	if got := diag.Count(diags, diag.UnresolvedParameterType); got != 3 {
		t.Errorf("UnresolvedParameterType count = %d, want 3", got)
	}
}

func TestThreadParamDefault(t *testing.T) {
	params := []Param{{Name: "a", Index: 0, Kind: KindArray}}
	if got := ThreadParam(params); got != DefaultThread {
		t.Errorf("ThreadParam = %q, want %q", got, DefaultThread)
	}
	params = append(params, Param{Name: "gid", Index: -1})
	if got := ThreadParam(params); got != "gid" {
		t.Errorf("ThreadParam = %q, want gid", got)
	}
}

func TestConstantArgsTakeParamType(t *testing.T) {
	// Run is declared locally, so the checker resolves ...any and records
	// the constants' default types.
	src := `package job

type ID struct{ X, Y, Z uint32 }

type Job struct{}

func (Job) Run(args ...any) {}

type Executor struct{}

func (Executor) For(n ...int) Job { return Job{} }

const limit = 64

func f(exec Executor, a []float32) {
	exec.For(4).Run(a, 2.0, 3, limit, 1.5, 1e40, func(a []float32, s float32, n int32, k int32, bad int32, huge float32, id ID) {
		a[id.X] = s
	})
}
`
	fx := load(t, src)
	info := Check(fx.fset, fx.file, nil)
	inv := fx.invs[0]
	params, diags := Params(fx.fset, inv.Call, inv.Lit, info)

	want := map[string]Kind{
		"a":    KindArray,
		"s":    KindFloat32,
		"n":    KindInt32,
		"k":    KindInt32,
		"bad":  KindUnsupported,
		"huge": KindUnsupported,
	}
	for _, p := range params {
		k, ok := want[p.Name]
		if !ok {
			continue
		}
		if p.Kind != k {
			t.Errorf("%s kind = %v (%s), want %v", p.Name, p.Kind, p.TypeString(), k)
		}
	}
	if got := diag.Count(diags, diag.UnresolvedParameterType); got != 2 {
		t.Errorf("UnresolvedParameterType count = %d, want 2: %v", got, diags)
	}
}
