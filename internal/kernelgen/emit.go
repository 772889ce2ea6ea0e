package kernelgen

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"strconv"
	"strings"

	"github.com/gogpu/shaderjob/internal/analyze"
	"github.com/gogpu/shaderjob/internal/diag"
)

// emitter translates closure statements and expressions into WGSL.
type emitter struct {
	fset    *token.FileSet
	scalars map[string]bool
	thread  string
	out     strings.Builder
	diags   []diag.Diagnostic
}

func newEmitter(fset *token.FileSet, params []analyze.Param, thread string) *emitter {
	e := &emitter{fset: fset, scalars: make(map[string]bool), thread: thread}
	for _, p := range params {
		if p.Scalar() {
			e.scalars[p.Name] = true
		}
	}
	return e
}

func (e *emitter) line(depth int, s string) {
	e.out.WriteString(strings.Repeat("    ", depth))
	e.out.WriteString(s)
	e.out.WriteByte('\n')
}

func (e *emitter) stmt(s ast.Stmt, depth int) {
	switch s := s.(type) {
	case *ast.BlockStmt:
		e.line(depth, "{")
		e.block(s, depth+1)
		e.line(depth, "}")
	case *ast.ExprStmt:
		e.line(depth, e.expr(s.X)+";")
	case *ast.AssignStmt:
		if text, ok := e.assign(s); ok {
			e.line(depth, text+";")
			return
		}
		e.verbatim(depth, s)
	case *ast.IncDecStmt:
		e.line(depth, e.expr(s.X)+s.Tok.String()+";")
	case *ast.DeclStmt:
		if text, ok := e.varDecl(s); ok {
			e.line(depth, text+";")
			return
		}
		e.verbatim(depth, s)
	case *ast.IfStmt:
		if s.Init != nil {
			e.verbatim(depth, s)
			return
		}
		e.ifStmt(s, depth, "")
	case *ast.ForStmt:
		e.forStmt(s, depth)
	case *ast.ReturnStmt:
		if len(s.Results) > 0 {
			e.verbatim(depth, s)
			return
		}
		e.line(depth, "return;")
	case *ast.BranchStmt:
		if s.Label != nil || (s.Tok != token.BREAK && s.Tok != token.CONTINUE) {
			e.verbatim(depth, s)
			return
		}
		e.line(depth, s.Tok.String()+";")
	case *ast.EmptyStmt:
	default:
		e.verbatim(depth, s)
	}
}

func (e *emitter) block(b *ast.BlockStmt, depth int) {
	for _, s := range b.List {
		e.stmt(s, depth)
	}
}

func (e *emitter) ifStmt(s *ast.IfStmt, depth int, lead string) {
	if lead == "" {
		e.line(depth, "if ("+e.expr(s.Cond)+") {")
	} else {
		e.line(depth, lead+"if ("+e.expr(s.Cond)+") {")
	}
	e.block(s.Body, depth+1)
	switch els := s.Else.(type) {
	case nil:
		e.line(depth, "}")
	case *ast.IfStmt:
		if els.Init != nil {
			e.line(depth, "} else {")
			e.verbatim(depth+1, els)
			e.line(depth, "}")
			return
		}
		e.ifStmt(els, depth, "} else ")
	case *ast.BlockStmt:
		e.line(depth, "} else {")
		e.block(els, depth+1)
		e.line(depth, "}")
	}
}

func (e *emitter) forStmt(s *ast.ForStmt, depth int) {
	var init, post string
	if s.Init != nil {
		a, ok := s.Init.(*ast.AssignStmt)
		if !ok {
			e.verbatim(depth, s)
			return
		}
		text, ok := e.assign(a)
		if !ok {
			e.verbatim(depth, s)
			return
		}
		init = text
	}
	switch p := s.Post.(type) {
	case nil:
	case *ast.IncDecStmt:
		post = e.expr(p.X) + p.Tok.String()
	case *ast.AssignStmt:
		text, ok := e.assign(p)
		if !ok {
			e.verbatim(depth, s)
			return
		}
		post = text
	default:
		e.verbatim(depth, s)
		return
	}
	if s.Cond == nil && init == "" && post == "" {
		e.line(depth, "loop {")
	} else {
		cond := ""
		if s.Cond != nil {
			cond = e.expr(s.Cond)
		}
		e.line(depth, fmt.Sprintf("for (%s; %s; %s) {", init, cond, post))
	}
	e.block(s.Body, depth+1)
	e.line(depth, "}")
}

var assignOps = map[token.Token]bool{
	token.ASSIGN:     true,
	token.ADD_ASSIGN: true,
	token.SUB_ASSIGN: true,
	token.MUL_ASSIGN: true,
	token.QUO_ASSIGN: true,
	token.REM_ASSIGN: true,
	token.AND_ASSIGN: true,
	token.OR_ASSIGN:  true,
	token.XOR_ASSIGN: true,
	token.SHL_ASSIGN: true,
	token.SHR_ASSIGN: true,
}

// assign translates a single-value assignment without the trailing
// semicolon.
func (e *emitter) assign(s *ast.AssignStmt) (string, bool) {
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return "", false
	}
	if s.Tok == token.DEFINE {
		id, ok := s.Lhs[0].(*ast.Ident)
		if !ok {
			return "", false
		}
		return "var " + id.Name + " = " + e.expr(s.Rhs[0]), true
	}
	if !assignOps[s.Tok] {
		return "", false
	}
	if id, ok := s.Lhs[0].(*ast.Ident); ok && id.Name == "_" {
		return "_ = " + e.expr(s.Rhs[0]), true
	}
	return e.expr(s.Lhs[0]) + " " + s.Tok.String() + " " + e.expr(s.Rhs[0]), true
}

// varDecl translates "var x T = v" with one name.
func (e *emitter) varDecl(s *ast.DeclStmt) (string, bool) {
	gd, ok := s.Decl.(*ast.GenDecl)
	if !ok || gd.Tok != token.VAR || len(gd.Specs) != 1 {
		return "", false
	}
	vs := gd.Specs[0].(*ast.ValueSpec)
	if len(vs.Names) != 1 || len(vs.Values) > 1 {
		return "", false
	}
	text := "var " + vs.Names[0].Name
	if vs.Type != nil {
		id, ok := vs.Type.(*ast.Ident)
		if !ok || scalarTypes[id.Name] == "" {
			return "", false
		}
		text += ": " + scalarTypes[id.Name]
	}
	if len(vs.Values) == 1 {
		text += " = " + e.expr(vs.Values[0])
	} else if vs.Type == nil {
		return "", false
	}
	return text, true
}

var scalarTypes = map[string]string{
	"int32":   "i32",
	"uint32":  "u32",
	"float32": "f32",
	"bool":    "bool",
}

var builtins = map[string]string{
	"min": "min",
	"max": "max",
}

func (e *emitter) expr(x ast.Expr) string {
	switch x := x.(type) {
	case *ast.Ident:
		if e.scalars[x.Name] {
			return "params." + x.Name
		}
		return x.Name
	case *ast.BasicLit:
		if s, ok := literal(x); ok {
			return s
		}
	case *ast.ParenExpr:
		return "(" + e.expr(x.X) + ")"
	case *ast.IndexExpr:
		return e.expr(x.X) + "[" + e.expr(x.Index) + "]"
	case *ast.SelectorExpr:
		if id, ok := x.X.(*ast.Ident); ok && id.Name == e.thread {
			switch x.Sel.Name {
			case "X", "Y", "Z":
				return e.thread + "." + strings.ToLower(x.Sel.Name)
			}
		}
	case *ast.UnaryExpr:
		switch x.Op {
		case token.SUB, token.NOT:
			return x.Op.String() + e.expr(x.X)
		case token.XOR:
			return "~" + e.expr(x.X)
		case token.ADD:
			return e.expr(x.X)
		}
	case *ast.BinaryExpr:
		if x.Op != token.AND_NOT {
			return e.expr(x.X) + " " + x.Op.String() + " " + e.expr(x.Y)
		}
	case *ast.CallExpr:
		if id, ok := x.Fun.(*ast.Ident); ok {
			if t := scalarTypes[id.Name]; t != "" && len(x.Args) == 1 {
				return t + "(" + e.expr(x.Args[0]) + ")"
			}
			if b := builtins[id.Name]; b != "" && len(x.Args) == 2 {
				return b + "(" + e.expr(x.Args[0]) + ", " + e.expr(x.Args[1]) + ")"
			}
		}
	}
	return e.passthrough(x)
}

// literal renders a Go number literal in WGSL syntax.
func literal(x *ast.BasicLit) (string, bool) {
	switch x.Kind {
	case token.INT:
		n, err := strconv.ParseInt(x.Value, 0, 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatInt(n, 10), true
	case token.FLOAT:
		v := strings.ReplaceAll(x.Value, "_", "")
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			return "", false
		}
		return v, true
	case token.CHAR:
		r, _, _, err := strconv.UnquoteChar(strings.Trim(x.Value, "'"), '\'')
		if err != nil {
			return "", false
		}
		return strconv.Itoa(int(r)), true
	}
	return "", false
}

func (e *emitter) source(n ast.Node) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, e.fset, n); err != nil {
		return fmt.Sprintf("/* %T */", n)
	}
	return buf.String()
}

func (e *emitter) passthrough(x ast.Expr) string {
	text := e.source(x)
	e.diags = append(e.diags, diag.New(e.fset, x.Pos(), diag.UnsupportedBodySyntax,
		"expression %s copied verbatim", text))
	return text
}

func (e *emitter) verbatim(depth int, s ast.Stmt) {
	text := e.source(s)
	e.diags = append(e.diags, diag.New(e.fset, s.Pos(), diag.UnsupportedBodySyntax,
		"%T copied verbatim", s))
	for _, l := range strings.Split(text, "\n") {
		e.line(depth, strings.TrimLeft(l, "\t"))
	}
}
