package gluegen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os/exec"
	"testing"

	"golang.org/x/tools/go/packages"

	"github.com/gogpu/shaderjob"
)

// runtimeTypes loads the type information of the runtime package the glue
// is generated against.
func runtimeTypes(t *testing.T) *types.Package {
	t.Helper()
	if testing.Short() {
		t.Skip("loads packages with the go command")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, RuntimeImport)
	if err != nil {
		t.Fatalf("load %s: %v", RuntimeImport, err)
	}
	if len(pkgs) != 1 || len(pkgs[0].Errors) != 0 || pkgs[0].Types == nil {
		t.Fatalf("load %s: %v", RuntimeImport, pkgs)
	}
	return pkgs[0].Types
}

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) { return f(path) }

func TestGeneratedGlueTypeChecks(t *testing.T) {
	rt := runtimeTypes(t)

	inputs := []Input{
		scaleInput(),
		{Package: "shaderjobgen", ID: 0, Namespace: "shaderjob", Dims: shaderjob.Dims{X: 8, Y: 8, Z: 1}},
	}
	fset := token.NewFileSet()
	var files []*ast.File
	var ids []int
	for _, in := range inputs {
		src, err := Generate(in)
		if err != nil {
			t.Fatalf("Generate(%d): %v", in.ID, err)
		}
		f, err := parser.ParseFile(fset, fmt.Sprintf("ComputeBinding_%d.go", in.ID), src, 0)
		if err != nil {
			t.Fatalf("parse %d: %v", in.ID, err)
		}
		files = append(files, f)
		ids = append(ids, in.ID)
	}
	index, err := Index("shaderjobgen", ids)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	f, err := parser.ParseFile(fset, "bindings.go", index, 0)
	if err != nil {
		t.Fatalf("parse index: %v", err)
	}
	files = append(files, f)

	var errs []error
	conf := types.Config{
		Importer: importerFunc(func(path string) (*types.Package, error) {
			if path == RuntimeImport {
				return rt, nil
			}
			return nil, fmt.Errorf("unexpected import %q", path)
		}),
		Error: func(err error) { errs = append(errs, err) },
	}
	_, _ = conf.Check("shaderjobgen", fset, files, nil)
	for _, err := range errs {
		t.Error(err)
	}
}
