// Package diag defines the diagnostics produced while compiling job closures.
// Diagnostics are never fatal; they are logged and generation continues.
package diag

import (
	"fmt"
	"go/token"
	"log/slog"
)

// Kind classifies a diagnostic.
type Kind int

const (
	// UnresolvedParameterType: a closure parameter has no int32/float32
	// scalar or array type and is left out of the kernel.
	UnresolvedParameterType Kind = iota + 1
	// UnsupportedBodySyntax: a body construct was copied verbatim.
	UnsupportedBodySyntax
	// DuplicateInvocationOnLine: a second launch call on one line was ignored.
	DuplicateInvocationOnLine
	// InvalidKernel: the generated kernel failed validation.
	InvalidKernel
)

var kindNames = [...]string{
	UnresolvedParameterType:   "UnresolvedParameterType",
	UnsupportedBodySyntax:     "UnsupportedBodySyntax",
	DuplicateInvocationOnLine: "DuplicateInvocationOnLine",
	InvalidKernel:             "InvalidKernel",
}

func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Diagnostic is one warning tied to a source position.
type Diagnostic struct {
	Kind    Kind
	Pos     token.Position
	Message string
}

// New returns a diagnostic at pos.
func New(fset *token.FileSet, pos token.Pos, kind Kind, format string, args ...any) Diagnostic {
	var p token.Position
	if fset != nil && pos.IsValid() {
		p = fset.Position(pos)
	}
	return Diagnostic{Kind: kind, Pos: p, Message: fmt.Sprintf(format, args...)}
}

func (d Diagnostic) String() string {
	if d.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", d.Pos, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// LogValue implements slog.LogValuer.
func (d Diagnostic) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", d.Kind.String()),
		slog.String("pos", d.Pos.String()),
		slog.String("msg", d.Message),
	)
}

// Count returns how many diagnostics in ds have kind k.
func Count(ds []Diagnostic, k Kind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == k {
			n++
		}
	}
	return n
}
