package coffee

import (
	"fmt"
	"strings"
)

const indentUnit = "  "

func indent(level int) string {
	return strings.Repeat(indentUnit, level)
}

// scope tracks the variables visible in one function body. Assigned names
// that are not visible in any enclosing scope are hoisted into a single
// var statement at the top of the function.
type scope struct {
	parent *scope
	names  map[string]bool
	vars   []string
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]bool)}
}

func (s *scope) has(name string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.names[name] {
			return true
		}
	}
	return false
}

func (s *scope) declare(name string) {
	if s.has(name) {
		return
	}
	s.names[name] = true
	s.vars = append(s.vars, name)
}

func (s *scope) param(name string) {
	s.names[name] = true
}

// free declares and returns an unused temporary such as _i or _len1.
func (s *scope) free(base string) string {
	name := "_" + base
	for n := 1; s.has(name); n++ {
		name = fmt.Sprintf("_%s%d", base, n)
	}
	s.declare(name)
	return name
}

func (s *scope) varStatement(level int) string {
	if len(s.vars) == 0 {
		return ""
	}
	return indent(level) + "var " + strings.Join(s.vars, ", ") + ";\n"
}

type generator struct {
	scope *scope
}

func (g *generator) fail(line int, format string, args ...interface{}) {
	panic(&SyntaxError{Line: line, Message: fmt.Sprintf(format, args...)})
}

// program renders the top level, wrapped in a closure unless bare.
func (g *generator) program(prog *Block, bare bool) string {
	g.scope = newScope(nil)

	level := 1
	if bare {
		level = 0
	}

	if len(prog.Statements) == 0 {
		return ""
	}

	stmts := make([]string, 0, len(prog.Statements))
	for _, s := range prog.Statements {
		stmts = append(stmts, g.stmt(s, level))
	}
	vars := g.scope.varStatement(level)

	var b strings.Builder
	if !bare {
		b.WriteString("(function() {\n")
	}
	if vars != "" {
		b.WriteString(vars)
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(stmts, "\n"))
	if !bare {
		b.WriteString("\n}).call(this);\n")
	}
	return b.String()
}

func (g *generator) statements(stmts []Node, level int) string {
	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(g.stmt(s, level))
	}
	return b.String()
}

func (g *generator) stmt(n Node, level int) string {
	pad := indent(level)
	switch n := n.(type) {
	case *Block:
		return g.statements(n.Statements, level)
	case *If:
		return pad + g.ifChain(n, level) + "\n"
	case *While:
		body := guarded(n.Guard, n.Body)
		return pad + "while (" + g.cond(n.Cond, level) + ") {\n" +
			g.statements(body.Statements, level+1) + pad + "}\n"
	case *For:
		if n.Of {
			return g.forOf(n, level)
		}
		return g.forIn(n, level)
	case *Try:
		return g.try(n, level)
	case *Return:
		if n.Value == nil {
			return pad + "return;\n"
		}
		return pad + "return " + g.expr(n.Value, level) + ";\n"
	case *Throw:
		return pad + "throw " + g.expr(n.Value, level) + ";\n"
	case *Break:
		return pad + "break;\n"
	case *Continue:
		return pad + "continue;\n"
	}

	code := g.expr(n, level)
	if strings.HasPrefix(code, "function") || strings.HasPrefix(code, "{") {
		code = "(" + code + ")"
	}
	return pad + code + ";\n"
}

func (g *generator) ifChain(n *If, level int) string {
	s := "if (" + g.cond(n.Cond, level) + ") {\n" +
		g.statements(n.Then.Statements, level+1) + indent(level) + "}"
	switch e := n.Else.(type) {
	case *If:
		s += " else " + g.ifChain(e, level)
	case *Block:
		s += " else {\n" + g.statements(e.Statements, level+1) + indent(level) + "}"
	}
	return s
}

// cond renders a condition, dropping redundant parentheses.
func (g *generator) cond(n Node, level int) string {
	if p, ok := n.(*Paren); ok {
		n = p.Inner
	}
	return g.expr(n, level)
}

func guarded(guard Node, body *Block) *Block {
	if guard == nil {
		return body
	}
	return &Block{Statements: []Node{&If{Cond: guard, Then: body}}}
}

func (g *generator) forIn(n *For, level int) string {
	pad := indent(level)
	var b strings.Builder

	src := g.expr(n.Source, level)
	if _, ok := n.Source.(*Ident); !ok {
		ref := g.scope.free("ref")
		b.WriteString(pad + ref + " = " + src + ";\n")
		src = ref
	}

	idx := n.Index
	if idx == "" {
		idx = g.scope.free("i")
	} else {
		g.scope.declare(idx)
	}
	length := g.scope.free("len")
	g.scope.declare(n.Name)

	fmt.Fprintf(&b, "%sfor (%s = 0, %s = %s.length; %s < %s; %s++) {\n", pad, idx, length, src, idx, length, idx)
	fmt.Fprintf(&b, "%s%s = %s[%s];\n", indent(level+1), n.Name, src, idx)
	b.WriteString(g.statements(guarded(n.Guard, n.Body).Statements, level+1))
	b.WriteString(pad + "}\n")
	return b.String()
}

func (g *generator) forOf(n *For, level int) string {
	pad := indent(level)
	inner := indent(level + 1)
	var b strings.Builder

	src := g.expr(n.Source, level)
	if _, ok := n.Source.(*Ident); !ok {
		ref := g.scope.free("ref")
		b.WriteString(pad + ref + " = " + src + ";\n")
		src = ref
	}

	g.scope.declare(n.Name)
	fmt.Fprintf(&b, "%sfor (%s in %s) {\n", pad, n.Name, src)
	if n.Own {
		fmt.Fprintf(&b, "%sif (!{}.hasOwnProperty.call(%s, %s)) continue;\n", inner, src, n.Name)
	}
	if n.Index != "" {
		g.scope.declare(n.Index)
		fmt.Fprintf(&b, "%s%s = %s[%s];\n", inner, n.Index, src, n.Name)
	}
	b.WriteString(g.statements(guarded(n.Guard, n.Body).Statements, level+1))
	b.WriteString(pad + "}\n")
	return b.String()
}

func (g *generator) try(n *Try, level int) string {
	pad := indent(level)
	s := pad + "try {\n" + g.statements(n.Body.Statements, level+1) + pad + "}"

	switch {
	case n.Catch != nil:
		name := n.CatchName
		if name == "" {
			name = "_error"
		}
		g.scope.param(name)
		s += " catch (" + name + ") {\n" + g.statements(n.Catch.Statements, level+1) + pad + "}"
	case n.Finally == nil:
		s += " catch (_error) {}"
	}

	if n.Finally != nil {
		s += " finally {\n" + g.statements(n.Finally.Statements, level+1) + pad + "}"
	}
	return s + "\n"
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var jsPrecedence = map[string]int{
	"||": 1, "&&": 2,
	"===": 3, "!==": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4, "instanceof": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

const (
	precLowest = 0
	precUnary  = 7
	precAtom   = 10
)

func (g *generator) precedence(n Node) int {
	switch n := n.(type) {
	case *Assign, *IfExpr, *Func:
		return precLowest
	case *Binary:
		return jsPrecedence[n.Op]
	case *In:
		return jsPrecedence[">="]
	case *Existence:
		if g.undeclared(n.Value) {
			return jsPrecedence["&&"]
		}
		return jsPrecedence["!=="]
	case *Unary:
		return precUnary
	case *Str:
		if len(n.Parts) > 1 || (len(n.Parts) == 1 && n.Parts[0].Expr != nil) {
			return jsPrecedence["+"]
		}
	case *Literal:
		if n.Value == "void 0" {
			return precUnary
		}
	}
	return precAtom
}

// wrap renders n, parenthesized when it binds looser than need.
func (g *generator) wrap(n Node, level, need int) string {
	code := g.expr(n, level)
	if g.precedence(n) < need {
		return "(" + code + ")"
	}
	return code
}

func (g *generator) undeclared(n Node) bool {
	id, ok := n.(*Ident)
	return ok && !g.scope.has(id.Name)
}

func (g *generator) expr(n Node, level int) string {
	switch n := n.(type) {
	case *Ident:
		return n.Name
	case *Literal:
		return n.Value
	case *This:
		return "this"
	case *Str:
		return g.str(n, level)
	case *Array:
		elems := make([]string, len(n.Elements))
		for i, e := range n.Elements {
			elems[i] = g.expr(e, level)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case *Object:
		return g.object(n, level)
	case *Func:
		return g.function(n, level)
	case *Member:
		obj := g.wrap(n.Object, level, precAtom)
		if lit, ok := n.Object.(*Literal); ok && isNumeric(lit.Value) {
			obj = "(" + obj + ")"
		}
		return obj + "." + n.Name
	case *Index:
		return g.wrap(n.Object, level, precAtom) + "[" + g.expr(n.Index, level) + "]"
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = g.expr(a, level)
		}
		call := g.wrap(n.Callee, level, precAtom) + "(" + strings.Join(args, ", ") + ")"
		if n.New {
			return "new " + call
		}
		return call
	case *Binary:
		prec := jsPrecedence[n.Op]
		return g.wrap(n.Left, level, prec) + " " + n.Op + " " + g.wrap(n.Right, level, prec+1)
	case *Unary:
		return g.unary(n, level)
	case *In:
		return g.wrap(n.List, level, precAtom) + ".indexOf(" + g.expr(n.Value, level) + ") >= 0"
	case *Existence:
		if g.undeclared(n.Value) {
			name := n.Value.(*Ident).Name
			return fmt.Sprintf("typeof %s !== \"undefined\" && %s !== null", name, name)
		}
		return g.wrap(n.Value, level, precAtom) + " != null"
	case *Assign:
		return g.assign(n, level)
	case *Paren:
		return "(" + g.expr(n.Inner, level) + ")"
	case *IfExpr:
		return g.ternary(n.If, level)
	}
	panic(fmt.Sprintf("coffee: unexpected node %T in expression", n))
}

func isNumeric(s string) bool {
	return s != "" && (isDigit(s[0]) || s[0] == '.')
}

func (g *generator) unary(n *Unary, level int) string {
	operand := g.wrap(n.Operand, level, precUnary)
	switch n.Op {
	case "typeof":
		return "typeof " + operand
	case "-", "+":
		if strings.HasPrefix(operand, "-") || strings.HasPrefix(operand, "+") {
			operand = "(" + operand + ")"
		}
	}
	return n.Op + operand
}

func (g *generator) str(s *Str, level int) string {
	q := string(s.Quote)
	if len(s.Parts) == 1 && s.Parts[0].Expr == nil {
		return q + s.Parts[0].Text + q
	}

	pieces := make([]string, 0, len(s.Parts)+1)
	for i, part := range s.Parts {
		if part.Expr == nil {
			pieces = append(pieces, q+part.Text+q)
			continue
		}
		if i == 0 {
			pieces = append(pieces, q+q)
		}
		pieces = append(pieces, g.wrap(part.Expr, level, jsPrecedence["+"]+1))
	}
	return strings.Join(pieces, " + ")
}

func (g *generator) object(o *Object, level int) string {
	if len(o.Props) == 0 {
		return "{}"
	}
	lines := make([]string, len(o.Props))
	for i, p := range o.Props {
		lines[i] = indent(level+1) + p.Key + ": " + g.expr(p.Value, level+1)
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n" + indent(level) + "}"
}

func (g *generator) assign(n *Assign, level int) string {
	if id, ok := n.Target.(*Ident); ok {
		switch {
		case n.Op == "=":
			g.scope.declare(id.Name)
		case !g.scope.has(id.Name):
			g.fail(n.Line, "the variable \"%s\" can't be assigned with %s because it has not been declared before", id.Name, n.Op)
		}
	}

	target := g.expr(n.Target, level)
	value := g.expr(n.Value, level)
	switch n.Op {
	case "||=":
		return target + " || (" + target + " = " + value + ")"
	case "&&=":
		return target + " && (" + target + " = " + value + ")"
	}
	return target + " " + n.Op + " " + value
}

func (g *generator) ternary(n *If, level int) string {
	cond := g.wrap(n.Cond, level, jsPrecedence["||"])
	then := g.wrap(g.valueOf(n.Then, n.Line), level, jsPrecedence["||"])

	alt := "void 0"
	switch e := n.Else.(type) {
	case *If:
		alt = g.ternary(e, level)
	case *Block:
		alt = g.wrap(g.valueOf(e, n.Line), level, jsPrecedence["||"])
	}
	return cond + " ? " + then + " : " + alt
}

// valueOf returns the single expression a branch of an if used as a value
// evaluates to.
func (g *generator) valueOf(b *Block, line int) Node {
	if len(b.Statements) != 1 {
		g.fail(line, "an if with multi-statement branches cannot be used as a value")
	}
	switch s := b.Statements[0].(type) {
	case *If:
		return &IfExpr{If: s}
	case *While, *For, *Try, *Return, *Throw, *Break, *Continue:
		g.fail(line, "an if containing statements cannot be used as a value")
	}
	return b.Statements[0]
}

func (g *generator) function(fn *Func, level int) string {
	parent := g.scope
	g.scope = newScope(parent)
	defer func() { g.scope = parent }()

	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = p.Name
		g.scope.param(p.Name)
	}

	inner := indent(level + 1)
	var prologue strings.Builder
	for _, p := range fn.Params {
		if p.Default != nil {
			fmt.Fprintf(&prologue, "%sif (%s == null) {\n%s%s%s = %s;\n%s}\n",
				inner, p.Name, inner, indentUnit, p.Name, g.expr(p.Default, level+2), inner)
		}
		if p.This {
			fmt.Fprintf(&prologue, "%sthis.%s = %s;\n", inner, p.Name, p.Name)
		}
	}

	body := g.statements(withImplicitReturn(fn.Body).Statements, level+1)
	vars := g.scope.varStatement(level + 1)

	head := "function(" + strings.Join(names, ", ") + ") {"
	code := head + "}"
	if vars != "" || prologue.Len() > 0 || body != "" {
		code = head + "\n" + vars + prologue.String() + body + indent(level) + "}"
	}
	if fn.Bound {
		code = "(" + code + ").bind(this)"
	}
	return code
}

// withImplicitReturn rewrites a function body so its final expression is
// returned, descending into if and try branches.
func withImplicitReturn(b *Block) *Block {
	if b == nil || len(b.Statements) == 0 {
		return b
	}
	stmts := append([]Node(nil), b.Statements...)
	stmts[len(stmts)-1] = returning(stmts[len(stmts)-1])
	return &Block{Statements: stmts}
}

func returning(n Node) Node {
	switch n := n.(type) {
	case *Return, *Throw, *Break, *Continue, *While, *For:
		return n
	case *Block:
		return withImplicitReturn(n)
	case *If:
		out := &If{Line: n.Line, Cond: n.Cond, Then: withImplicitReturn(n.Then)}
		switch e := n.Else.(type) {
		case *If:
			out.Else = returning(e)
		case *Block:
			out.Else = withImplicitReturn(e)
		}
		return out
	case *Try:
		out := *n
		out.Body = withImplicitReturn(n.Body)
		if n.Catch != nil {
			out.Catch = withImplicitReturn(n.Catch)
		}
		return &out
	}
	return &Return{Value: n}
}
