// Package gluegen writes the Go side of a compiled job: a binder that
// uploads the launch arguments, an updater that reads written buffers back,
// and a registration function tying both to the artifact id.
package gluegen

import (
	"bytes"
	"fmt"
	"go/format"
	"text/template"

	"github.com/gogpu/shaderjob"
	"github.com/gogpu/shaderjob/internal/analyze"
)

// RuntimeImport is the import path of the runtime package.
const RuntimeImport = "github.com/gogpu/shaderjob"

// Input describes one artifact.
type Input struct {
	// Package is the name of the generated package.
	Package    string
	ID         int
	Namespace  string
	Generation uint64
	Params     []analyze.Param
	Written    analyze.Usage
	Dims       shaderjob.Dims
	// Source names the launch call, "file:line".
	Source string
}

// Key returns the runtime resource key of an artifact.
func Key(namespace string, id int) string {
	if namespace == "" {
		return fmt.Sprint(id)
	}
	return fmt.Sprintf("%s/%d", namespace, id)
}

// FuncName returns the registration function of artifact id.
func FuncName(id int) string {
	return fmt.Sprintf("registerComputeBinding%d", id)
}

type arg struct {
	Name   string
	Index  int
	Var    string
	Getter string
	Access string
	Set    string
	Read   bool
}

type data struct {
	Input
	Key     string
	Func    string
	Buffers int
	Arrays  []arg
	Scalars []arg
	Dims    shaderjob.Dims
}

// Generate returns the gofmt-formatted glue file for in.
func Generate(in Input) ([]byte, error) {
	d := data{
		Input: in,
		Key:   Key(in.Namespace, in.ID),
		Func:  FuncName(in.ID),
		Dims:  in.Dims.Normalize(),
	}
	for _, p := range in.Params {
		a := arg{Name: p.Name, Index: p.Index, Var: fmt.Sprintf("arg%d", p.Index)}
		switch {
		case p.Array():
			a.Getter = "Float32Slice"
			if p.Elem == analyze.KindInt32 {
				a.Getter = "Int32Slice"
			}
			a.Access = "ReadOnly"
			if in.Written.Has(p.Name) {
				a.Access = "ReadWrite"
				a.Read = true
			}
			d.Arrays = append(d.Arrays, a)
		case p.Scalar():
			a.Getter, a.Set = "Float32Arg", "SetFloat32"
			if p.Kind == analyze.KindInt32 {
				a.Getter, a.Set = "Int32Arg", "SetInt32"
			}
			d.Scalars = append(d.Scalars, a)
		}
	}
	d.Buffers = len(d.Arrays)

	var buf bytes.Buffer
	if err := glueTmpl.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("gluegen: artifact %d: %w", in.ID, err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("gluegen: format artifact %d: %w", in.ID, err)
	}
	return out, nil
}

// Index returns the package index calling every registration function.
func Index(pkg string, ids []int) ([]byte, error) {
	var buf bytes.Buffer
	err := indexTmpl.Execute(&buf, struct {
		Package string
		Funcs   []string
	}{pkg, funcNames(ids)})
	if err != nil {
		return nil, fmt.Errorf("gluegen: index: %w", err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("gluegen: format index: %w", err)
	}
	return out, nil
}

func funcNames(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = FuncName(id)
	}
	return out
}

var glueTmpl = template.Must(template.New("glue").Parse(`// Code generated by shaderjob. DO NOT EDIT.
{{- if .Source}}
// Source: {{.Source}}
{{- end}}

package {{.Package}}

import "` + RuntimeImport + `"

func {{.Func}}(r *shaderjob.Registry) {
	r.Register({{.ID}}, shaderjob.Binding{
		Key:        {{printf "%q" .Key}},
		Kernel:     0,
		Generation: {{.Generation}},
		Buffers:    {{.Buffers}},
		Extent:     shaderjob.Dims{X: {{.Dims.X}}, Y: {{.Dims.Y}}, Z: {{.Dims.Z}}},
		Bind:       bind{{.ID}},
		Update:     update{{.ID}},
		Groups: func() shaderjob.Dims {
			return shaderjob.Dims{X: {{.Dims.X}}, Y: {{.Dims.Y}}, Z: {{.Dims.Z}}}.GroupCount()
		},
	})
}

func bind{{.ID}}(b shaderjob.Binder, args []any) error {
{{- range .Arrays}}
	{{.Var}}, err := shaderjob.{{.Getter}}({{$.ID}}, args, {{.Index}})
	if err != nil {
		return err
	}
	if err := b.BindBuffer({{printf "%q" .Name}}, shaderjob.Bytes({{.Var}}), shaderjob.{{.Access}}); err != nil {
		return err
	}
{{- end}}
{{- range .Scalars}}
	{{.Var}}, err := shaderjob.{{.Getter}}({{$.ID}}, args, {{.Index}})
	if err != nil {
		return err
	}
	b.{{.Set}}({{printf "%q" .Name}}, {{.Var}})
{{- end}}
	b.SetDispatchSize({{.Dims.X}}, {{.Dims.Y}}, {{.Dims.Z}})
	return nil
}

func update{{.ID}}(b shaderjob.Binder, args []any) error {
	defer b.Release()
{{- range .Arrays}}{{if .Read}}
	{{.Var}}, err := shaderjob.{{.Getter}}({{$.ID}}, args, {{.Index}})
	if err != nil {
		return err
	}
	if err := shaderjob.ReadInto(b, {{printf "%q" .Name}}, {{.Var}}); err != nil {
		return err
	}
{{- end}}{{end}}
	return nil
}
`))

var indexTmpl = template.Must(template.New("index").Parse(`// Code generated by shaderjob. DO NOT EDIT.

// Package {{.Package}} holds the compiled compute jobs of this module.
package {{.Package}}

import "` + RuntimeImport + `"

// Register records every compiled job in r.
func Register(r *shaderjob.Registry) {
{{- range .Funcs}}
	{{.}}(r)
{{- end}}
}
`))
