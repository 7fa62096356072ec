package coffee

import "fmt"

// Parser is a recursive descent parser over a token stream produced by
// Lexer. Errors abort the parse by panicking with a *SyntaxError, which
// Parse recovers.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a parser for tokens, which must end with TokenEOF.
func NewParser(tokens []Token) *Parser {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokenEOF {
		tokens = append(tokens, Token{Type: TokenEOF})
	}
	return &Parser{tokens: tokens}
}

// Parse parses a whole program.
func (p *Parser) Parse() (program *Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			program, err = nil, se
		}
	}()

	return p.parseStatements(func() bool { return p.at(TokenEOF) }), nil
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) peek() Token {
	return p.peekAt(0)
}

func (p *Parser) peekAt(n int) Token {
	if i := p.pos + n; i < len(p.tokens) {
		return p.tokens[i]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) next() Token {
	t := p.peek()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(t TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) atPunct(lit string) bool {
	t := p.peek()
	return t.Type == TokenPunct && t.Literal == lit
}

func (p *Parser) atKeyword(kw string) bool {
	t := p.peek()
	return t.Type == TokenKeyword && t.Literal == kw
}

func (p *Parser) expectPunct(lit string) Token {
	if !p.atPunct(lit) {
		p.unexpected()
	}
	return p.next()
}

func (p *Parser) expectIdent() string {
	if !p.at(TokenIdentifier) {
		p.unexpected()
	}
	return p.next().Literal
}

// skipNewlineBefore consumes a TERMINATOR when it separates a statement
// from its continuation keyword, as in an `else` on its own line.
func (p *Parser) skipNewlineBefore(kw string) {
	if p.at(TokenNewline) {
		t := p.peekAt(1)
		if t.Type == TokenKeyword && t.Literal == kw {
			p.next()
		}
	}
}

func (p *Parser) fail(line int, format string, args ...interface{}) {
	panic(&SyntaxError{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (p *Parser) unexpected() {
	p.failToken(p.peek())
}

func (p *Parser) failToken(t Token) {
	if t.Type == TokenPunct {
		if msg, ok := unsupportedPuncts[t.Literal]; ok {
			p.fail(t.Line, "%s", msg)
		}
	}
	if t.Type == TokenKeyword && unsupportedKeywords[t.Literal] {
		p.fail(t.Line, "'%s' is not supported", t.Literal)
	}
	p.fail(t.Line, "unexpected %s", t.describe())
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatements(end func() bool) *Block {
	block := &Block{}
	for {
		for p.at(TokenNewline) {
			p.next()
		}
		if end() {
			return block
		}
		block.Statements = append(block.Statements, p.parseStatement())
		if !p.at(TokenNewline) && !end() {
			p.unexpected()
		}
	}
}

func (p *Parser) parseBlock() *Block {
	if !p.at(TokenIndent) {
		p.unexpected()
	}
	p.next()
	block := p.parseStatements(func() bool { return p.at(TokenOutdent) || p.at(TokenEOF) })
	if p.at(TokenOutdent) {
		p.next()
	}
	return block
}

// parseBody parses an indented block or an inline `then` statement.
func (p *Parser) parseBody() *Block {
	if p.at(TokenIndent) {
		return p.parseBlock()
	}
	if p.atKeyword("then") {
		p.next()
		return &Block{Statements: []Node{p.parseStatement()}}
	}
	p.unexpected()
	return nil
}

// parseTail parses the body after else, try or finally.
func (p *Parser) parseTail() *Block {
	if p.at(TokenIndent) {
		return p.parseBlock()
	}
	return &Block{Statements: []Node{p.parseStatement()}}
}

func (p *Parser) parseStatement() Node {
	var stmt Node
	if t := p.peek(); t.Type == TokenKeyword {
		switch t.Literal {
		case "if", "unless":
			stmt = p.parseIf()
		case "while", "until":
			stmt = p.parseWhile()
		case "for":
			stmt = p.parseFor()
		case "try":
			stmt = p.parseTry()
		case "return":
			p.next()
			ret := &Return{}
			if !p.atStatementEnd() {
				ret.Value = p.parseExpression()
			}
			stmt = ret
		case "throw":
			p.next()
			stmt = &Throw{Value: p.parseExpression()}
		case "break":
			p.next()
			stmt = &Break{}
		case "continue":
			p.next()
			stmt = &Continue{}
		}
	}
	if stmt == nil {
		stmt = p.parseExpression()
	}
	return p.parsePostfixConditions(stmt)
}

func (p *Parser) atStatementEnd() bool {
	t := p.peek()
	switch t.Type {
	case TokenNewline, TokenOutdent, TokenEOF:
		return true
	case TokenPunct:
		switch t.Literal {
		case ")", "]", "}", ",":
			return true
		}
	case TokenKeyword:
		switch t.Literal {
		case "if", "unless", "while", "until", "else":
			return true
		}
	}
	return false
}

// parsePostfixConditions handles `stmt if cond` and `stmt while cond`.
func (p *Parser) parsePostfixConditions(stmt Node) Node {
	for {
		t := p.peek()
		if t.Type != TokenKeyword {
			return stmt
		}
		switch t.Literal {
		case "if", "unless":
			p.next()
			cond := p.parseExpression()
			if t.Literal == "unless" {
				cond = &Unary{Op: "!", Operand: cond}
			}
			stmt = &If{Line: t.Line, Cond: cond, Then: &Block{Statements: []Node{stmt}}}
		case "while", "until":
			p.next()
			cond := p.parseExpression()
			if t.Literal == "until" {
				cond = &Unary{Op: "!", Operand: cond}
			}
			stmt = &While{Cond: cond, Body: &Block{Statements: []Node{stmt}}}
		case "for":
			p.fail(t.Line, "comprehensions are not supported")
		default:
			return stmt
		}
	}
}

func (p *Parser) parseIf() *If {
	t := p.next()
	cond := p.parseExpression()
	if t.Literal == "unless" {
		cond = &Unary{Op: "!", Operand: cond}
	}
	node := &If{Line: t.Line, Cond: cond, Then: p.parseBody()}

	p.skipNewlineBefore("else")
	if p.atKeyword("else") {
		p.next()
		if p.atKeyword("if") || p.atKeyword("unless") {
			node.Else = p.parseIf()
		} else {
			node.Else = p.parseTail()
		}
	}
	return node
}

func (p *Parser) parseWhile() *While {
	t := p.next()
	cond := p.parseExpression()
	if t.Literal == "until" {
		cond = &Unary{Op: "!", Operand: cond}
	}
	node := &While{Cond: cond}
	if p.atKeyword("when") {
		p.next()
		node.Guard = p.parseExpression()
	}
	node.Body = p.parseBody()
	return node
}

func (p *Parser) parseFor() *For {
	t := p.next()
	node := &For{}
	if own := p.peek(); own.Type == TokenIdentifier && own.Literal == "own" {
		p.next()
		node.Own = true
	}
	node.Name = p.expectIdent()
	if p.atPunct(",") {
		p.next()
		node.Index = p.expectIdent()
	}

	switch {
	case p.atKeyword("in"):
	case p.atKeyword("of"):
		node.Of = true
	default:
		p.unexpected()
	}
	p.next()
	if node.Own && !node.Of {
		p.fail(t.Line, "cannot use own with for-in")
	}

	node.Source = p.parseExpression()
	if p.atKeyword("when") {
		p.next()
		node.Guard = p.parseExpression()
	}
	node.Body = p.parseBody()
	return node
}

func (p *Parser) parseTry() *Try {
	p.next()
	node := &Try{Body: p.parseTail()}

	p.skipNewlineBefore("catch")
	if p.atKeyword("catch") {
		p.next()
		if p.at(TokenIdentifier) {
			node.CatchName = p.next().Literal
		}
		if p.atKeyword("then") {
			p.next()
			node.Catch = &Block{Statements: []Node{p.parseStatement()}}
		} else {
			node.Catch = p.parseBlock()
		}
	}

	p.skipNewlineBefore("finally")
	if p.atKeyword("finally") {
		p.next()
		node.Finally = p.parseTail()
	}
	return node
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "||=": true, "&&=": true,
}

func (p *Parser) parseExpression() Node {
	left := p.parseBinary(1)

	t := p.peek()
	if t.Type != TokenPunct || !assignOps[t.Literal] {
		return left
	}
	switch left.(type) {
	case *Ident, *Member, *Index:
	case *Array, *Object:
		p.fail(t.Line, "destructuring assignment is not supported")
	default:
		p.fail(t.Line, "invalid assignment target")
	}
	p.next()
	return &Assign{Line: t.Line, Op: t.Literal, Target: left, Value: p.parseExpression()}
}

var binaryPrecedence = map[string]int{
	"||": 1, "or": 1,
	"&&": 2, "and": 2,
	"==": 3, "!=": 3, "is": 3, "isnt": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4, "instanceof": 4, "in": 4, "not in": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6, "%": 6,
}

// binaryOp returns the operator at the cursor, its precedence and the
// number of tokens it spans.
func (p *Parser) binaryOp() (string, int, int) {
	t := p.peek()
	if t.Type == TokenKeyword && t.Literal == "not" {
		if nt := p.peekAt(1); nt.Type == TokenKeyword && nt.Literal == "in" {
			return "not in", binaryPrecedence["not in"], 2
		}
		return "", 0, 0
	}
	if t.Type != TokenPunct && t.Type != TokenKeyword {
		return "", 0, 0
	}
	prec, ok := binaryPrecedence[t.Literal]
	if !ok {
		return "", 0, 0
	}
	return t.Literal, prec, 1
}

func (p *Parser) parseBinary(minPrec int) Node {
	left := p.parseUnary()
	for {
		op, prec, width := p.binaryOp()
		if prec == 0 || prec < minPrec {
			return left
		}
		for i := 0; i < width; i++ {
			p.next()
		}
		right := p.parseBinary(prec + 1)
		left = makeBinary(op, left, right)
	}
}

var operatorAliases = map[string]string{
	"or": "||", "and": "&&",
	"is": "===", "==": "===",
	"isnt": "!==", "!=": "!==",
}

func makeBinary(op string, left, right Node) Node {
	switch op {
	case "in":
		return &In{Value: left, List: right}
	case "not in":
		return &Unary{Op: "!", Operand: &In{Value: left, List: right}}
	}
	if alias, ok := operatorAliases[op]; ok {
		op = alias
	}
	return &Binary{Op: op, Left: left, Right: right}
}

func (p *Parser) parseUnary() Node {
	t := p.peek()
	switch {
	case t.Type == TokenPunct && t.Literal == "!",
		t.Type == TokenKeyword && t.Literal == "not":
		p.next()
		return &Unary{Op: "!", Operand: p.parseUnary()}
	case t.Type == TokenPunct && (t.Literal == "-" || t.Literal == "+"):
		p.next()
		return &Unary{Op: t.Literal, Operand: p.parseUnary()}
	case t.Type == TokenKeyword && t.Literal == "typeof":
		p.next()
		return &Unary{Op: "typeof", Operand: p.parseUnary()}
	case t.Type == TokenKeyword && t.Literal == "new":
		return p.parseNew()
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *Parser) parseNew() Node {
	p.next()
	callee := p.parsePrimary()
	for {
		n, ok := p.accessor(callee)
		if !ok {
			break
		}
		callee = n
	}

	call := &Call{Callee: callee, New: true}
	switch {
	case p.atPunct("(") && !p.peek().Spaced:
		call.Args = p.parseArgs()
	case p.canStartImplicitArg():
		call.Args = p.parseImplicitArgs()
		return call
	}
	return p.parsePostfix(call)
}

// accessor parses one of .name, ::name or [index].
func (p *Parser) accessor(node Node) (Node, bool) {
	t := p.peek()
	if t.Type != TokenPunct {
		return node, false
	}
	switch t.Literal {
	case ".":
		p.next()
		name := p.peek()
		if name.Type != TokenIdentifier && name.Type != TokenKeyword {
			p.unexpected()
		}
		p.next()
		return &Member{Object: node, Name: name.Literal}, true
	case "::":
		p.next()
		proto := &Member{Object: node, Name: "prototype"}
		if nt := p.peek(); (nt.Type == TokenIdentifier || nt.Type == TokenKeyword) && !nt.Spaced {
			p.next()
			return &Member{Object: proto, Name: nt.Literal}, true
		}
		return proto, true
	case "[":
		if t.Spaced {
			return node, false
		}
		p.next()
		idx := p.parseExpression()
		p.expectPunct("]")
		return &Index{Object: node, Index: idx}, true
	}
	return node, false
}

func (p *Parser) parsePostfix(node Node) Node {
	for {
		if n, ok := p.accessor(node); ok {
			node = n
			continue
		}

		t := p.peek()
		switch {
		case t.Type == TokenPunct && t.Literal == "(" && !t.Spaced:
			node = &Call{Callee: node, Args: p.parseArgs()}
		case t.Type == TokenPunct && t.Literal == "?" && !t.Spaced:
			p.next()
			node = &Existence{Value: node}
		case callable(node) && p.canStartImplicitArg():
			return &Call{Callee: node, Args: p.parseImplicitArgs()}
		default:
			return node
		}
	}
}

func callable(n Node) bool {
	switch n.(type) {
	case *Ident, *Member, *Index:
		return true
	}
	return false
}

// canStartImplicitArg reports whether the token after a callee begins an
// argument list without parentheses, as in `print x` or `f -1`.
func (p *Parser) canStartImplicitArg() bool {
	t := p.peek()
	if !t.Spaced {
		return false
	}
	switch t.Type {
	case TokenIdentifier, TokenNumber, TokenString:
		return true
	case TokenKeyword:
		switch t.Literal {
		case "true", "false", "yes", "no", "on", "off", "null", "undefined",
			"this", "new", "typeof":
			return true
		case "not":
			nt := p.peekAt(1)
			return nt.Type != TokenKeyword || (nt.Literal != "in" && nt.Literal != "instanceof")
		}
	case TokenPunct:
		switch t.Literal {
		case "@", "->", "=>", "[", "{", "(", "!":
			return true
		case "-", "+":
			nt := p.peekAt(1)
			if nt.Spaced {
				return false
			}
			return nt.Type == TokenIdentifier || nt.Type == TokenNumber || (nt.Type == TokenPunct && nt.Literal == "(")
		}
	}
	return false
}

func (p *Parser) parseArgs() []Node {
	p.expectPunct("(")
	var args []Node
	for !p.atPunct(")") {
		args = append(args, p.parseExpression())
		if p.atPunct(",") {
			p.next()
			continue
		}
		if !p.atPunct(")") {
			p.unexpected()
		}
	}
	p.next()
	return args
}

func (p *Parser) parseImplicitArgs() []Node {
	var args []Node
	for {
		args = append(args, p.parseExpression())
		if !p.atPunct(",") {
			return args
		}
		p.next()
	}
}

func (p *Parser) parsePrimary() Node {
	t := p.peek()
	switch t.Type {
	case TokenNumber:
		p.next()
		return &Literal{Value: t.Literal}
	case TokenString:
		p.next()
		return p.stringNode(t)
	case TokenIdentifier:
		p.next()
		return &Ident{Name: t.Literal}
	case TokenKeyword:
		switch t.Literal {
		case "true", "yes", "on":
			p.next()
			return &Literal{Value: "true"}
		case "false", "no", "off":
			p.next()
			return &Literal{Value: "false"}
		case "null":
			p.next()
			return &Literal{Value: "null"}
		case "undefined":
			p.next()
			return &Literal{Value: "void 0"}
		case "this":
			p.next()
			return &This{}
		case "if", "unless":
			return &IfExpr{If: p.parseIf()}
		}
	case TokenPunct:
		switch t.Literal {
		case "@":
			p.next()
			if nt := p.peek(); (nt.Type == TokenIdentifier || nt.Type == TokenKeyword) && !nt.Spaced {
				p.next()
				return &Member{Object: &This{}, Name: nt.Literal}
			}
			return &This{}
		case "(":
			if p.isParamList() {
				return p.parseFunc()
			}
			p.next()
			inner := p.parseExpression()
			p.expectPunct(")")
			return &Paren{Inner: inner}
		case "->", "=>":
			return p.parseFunc()
		case "[":
			return p.parseArray()
		case "{":
			return p.parseObject()
		}
	}
	p.unexpected()
	return nil
}

// isParamList reports whether the ( at the cursor opens a parameter list,
// which is the case when its matching ) is followed by an arrow.
func (p *Parser) isParamList() bool {
	depth := 0
	for i := p.pos; i < len(p.tokens); i++ {
		t := p.tokens[i]
		if t.Type != TokenPunct {
			continue
		}
		switch t.Literal {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth == 0 {
				return i+1 < len(p.tokens) && isArrow(p.tokens[i+1])
			}
		}
	}
	return false
}

func (p *Parser) parseFunc() *Func {
	var params []Param
	if p.atPunct("(") {
		p.next()
		for !p.atPunct(")") {
			params = append(params, p.parseParam())
			if p.atPunct(",") {
				p.next()
				continue
			}
			if !p.atPunct(")") {
				p.unexpected()
			}
		}
		p.next()
	}

	arrow := p.peek()
	if !isArrow(arrow) {
		p.unexpected()
	}
	p.next()

	fn := &Func{Params: params, Bound: arrow.Literal == "=>"}
	switch {
	case p.at(TokenIndent):
		fn.Body = p.parseBlock()
	case p.atFuncEnd():
		fn.Body = &Block{}
	default:
		fn.Body = &Block{Statements: []Node{p.parseStatement()}}
	}
	return fn
}

func (p *Parser) atFuncEnd() bool {
	t := p.peek()
	switch t.Type {
	case TokenNewline, TokenOutdent, TokenEOF:
		return true
	case TokenPunct:
		switch t.Literal {
		case ")", "]", "}", ",":
			return true
		}
	}
	return false
}

func (p *Parser) parseParam() Param {
	var param Param
	if p.atPunct("@") {
		p.next()
		param.This = true
	}
	param.Name = p.expectIdent()
	if p.atPunct("=") {
		p.next()
		param.Default = p.parseExpression()
	}
	return param
}

func (p *Parser) parseArray() *Array {
	p.next()
	arr := &Array{}
	for !p.atPunct("]") {
		arr.Elements = append(arr.Elements, p.parseExpression())
		if p.atPunct(",") {
			p.next()
			continue
		}
		if !p.atPunct("]") {
			p.unexpected()
		}
	}
	p.next()
	return arr
}

func (p *Parser) parseObject() *Object {
	p.next()
	obj := &Object{}
	for !p.atPunct("}") {
		t := p.next()
		var key string
		switch t.Type {
		case TokenIdentifier, TokenKeyword, TokenNumber:
			key = t.Literal
		case TokenString:
			if len(t.Parts) != 1 || t.Parts[0].IsCode {
				p.fail(t.Line, "interpolated keys are not supported")
			}
			key = string(t.Quote) + t.Parts[0].Text + string(t.Quote)
		default:
			p.failToken(t)
		}

		var value Node
		switch {
		case p.atPunct(":"):
			p.next()
			value = p.parseExpression()
		case t.Type == TokenIdentifier:
			value = &Ident{Name: key}
		default:
			p.unexpected()
		}
		obj.Props = append(obj.Props, Prop{Key: key, Value: value})

		if p.atPunct(",") {
			p.next()
			continue
		}
		if !p.atPunct("}") {
			p.unexpected()
		}
	}
	p.next()
	return obj
}

func (p *Parser) stringNode(t Token) *Str {
	s := &Str{Quote: t.Quote}
	for _, part := range t.Parts {
		if !part.IsCode {
			s.Parts = append(s.Parts, StrPart{Text: part.Text})
			continue
		}
		s.Parts = append(s.Parts, StrPart{Expr: parseInterpolation(part)})
	}
	return s
}

// parseInterpolation parses the expression inside #{...}. Errors panic
// with a *SyntaxError so they surface through the enclosing Parse.
func parseInterpolation(part StringPart) Node {
	tokens, err := NewLexer(part.Code, part.Line).Tokenize()
	if err != nil {
		panic(err)
	}
	sub := NewParser(tokens)
	if sub.at(TokenNewline) || sub.at(TokenEOF) {
		sub.fail(part.Line, "empty string interpolation")
	}
	expr := sub.parseExpression()
	for sub.at(TokenNewline) {
		sub.next()
	}
	if !sub.at(TokenEOF) {
		sub.unexpected()
	}
	return expr
}
