package coffee

import (
	"fmt"
	"strings"
)

// bracket records an open (, [ or { together with the indentation depth at
// which it was opened.
type bracket struct {
	open  byte
	line  int
	depth int
}

var closers = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// Lexer turns CoffeeScript source into a token stream with explicit
// INDENT, OUTDENT and TERMINATOR tokens.
type Lexer struct {
	src      string
	pos      int
	line     int
	tokens   []Token
	indents  []int
	brackets []bracket
	spaced   bool
}

// NewLexer creates a lexer whose first line is numbered startLine.
func NewLexer(src string, startLine int) *Lexer {
	return &Lexer{
		src:     strings.ReplaceAll(src, "\r\n", "\n"),
		line:    startLine,
		indents: []int{0},
	}
}

// Tokenize scans the whole input.
func (l *Lexer) Tokenize() ([]Token, error) {
	atLineStart := true
	for {
		if atLineStart {
			if err := l.lineStart(); err != nil {
				return nil, err
			}
			atLineStart = false
		}
		if l.pos >= len(l.src) {
			break
		}

		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
			l.spaced = true
		case c == '\n':
			l.pos++
			l.line++
			l.spaced = false
			atLineStart = true
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '\\' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\n':
			l.pos += 2
			l.line++
			l.spaced = true
		case c == ';':
			l.pos++
			l.newline()
			l.spaced = true
		case isIdentStart(c):
			l.identifier()
		case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
			l.number()
		case c == '"' || c == '\'':
			if err := l.str(c); err != nil {
				return nil, err
			}
		case c == '`':
			return nil, l.errorf(l.line, "embedded JavaScript is not supported")
		default:
			if err := l.punct(); err != nil {
				return nil, err
			}
		}
	}

	if len(l.brackets) > 0 {
		b := l.brackets[len(l.brackets)-1]
		return nil, l.errorf(b.line, "missing %c", closers[b.open])
	}

	l.newline()
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(Token{Type: TokenOutdent})
		l.newline()
	}
	l.emit(Token{Type: TokenEOF})
	return l.tokens, nil
}

func (l *Lexer) errorf(line int, format string, args ...interface{}) error {
	return &SyntaxError{Line: line, Message: fmt.Sprintf(format, args...)}
}

func (l *Lexer) emit(t Token) {
	if t.Line == 0 {
		t.Line = l.line
	}
	l.tokens = append(l.tokens, t)
	l.spaced = false
}

func (l *Lexer) last() (Token, bool) {
	if len(l.tokens) == 0 {
		return Token{}, false
	}
	return l.tokens[len(l.tokens)-1], true
}

// newline emits a TERMINATOR unless the stream already ends in one.
func (l *Lexer) newline() {
	prev, ok := l.last()
	if !ok || prev.Type == TokenNewline || prev.Type == TokenIndent {
		return
	}
	l.emit(Token{Type: TokenNewline, Line: prev.Line})
}

// lineStart consumes blank and comment-only lines, then measures the
// indentation of the next line holding code.
func (l *Lexer) lineStart() error {
	for {
		n := 0
		p := l.pos
		for p < len(l.src) && (l.src[p] == ' ' || l.src[p] == '\t') {
			p++
			n++
		}
		if p >= len(l.src) {
			l.pos = p
			return nil
		}

		switch l.src[p] {
		case '\n', '\r':
			for p < len(l.src) && l.src[p] != '\n' {
				p++
			}
			l.pos = p + 1
			l.line++
			continue
		case '#':
			if strings.HasPrefix(l.src[p:], "###") && !strings.HasPrefix(l.src[p:], "####") {
				if err := l.blockComment(p); err != nil {
					return err
				}
				continue
			}
			for p < len(l.src) && l.src[p] != '\n' {
				p++
			}
			l.pos = p
			if p < len(l.src) {
				l.pos++
				l.line++
			}
			continue
		}

		l.pos = p
		l.spaced = n > 0
		return l.indentTo(n)
	}
}

func (l *Lexer) blockComment(start int) error {
	startLine := l.line
	end := strings.Index(l.src[start+3:], "###")
	if end < 0 {
		return l.errorf(startLine, "missing ###")
	}
	body := l.src[start : start+3+end+3]
	l.line += strings.Count(body, "\n")
	p := start + len(body)
	for p < len(l.src) && l.src[p] != '\n' {
		p++
	}
	l.pos = p
	if p < len(l.src) {
		l.pos++
		l.line++
	}
	return nil
}

func (l *Lexer) indentTo(n int) error {
	prev, ok := l.last()
	if !ok {
		l.indents[0] = n
		return nil
	}

	floor := 1
	inBracket := len(l.brackets) > 0
	if inBracket {
		floor = l.brackets[len(l.brackets)-1].depth
	}
	atFloor := inBracket && len(l.indents) == floor

	if isArrow(prev) {
		atFloor = false
	} else if continuesLine(prev) || (atFloor && n >= l.indents[len(l.indents)-1]) {
		l.implicitComma(prev)
		return nil
	}

	cur := l.indents[len(l.indents)-1]
	switch {
	case n > cur:
		l.indents = append(l.indents, n)
		l.emit(Token{Type: TokenIndent})
	case n == cur:
		if atFloor {
			l.implicitComma(prev)
			return nil
		}
		l.newline()
	default:
		for len(l.indents) > floor && l.indents[len(l.indents)-1] > n {
			l.indents = l.indents[:len(l.indents)-1]
			l.emit(Token{Type: TokenOutdent})
		}
		if len(l.brackets) > 0 && len(l.indents) == floor {
			l.implicitComma(l.tokens[len(l.tokens)-1])
			return nil
		}
		if l.indents[len(l.indents)-1] != n {
			return l.errorf(l.line, "inconsistent indentation")
		}
		// `, arg` after a block continues the call that opened it
		if l.pos < len(l.src) && l.src[l.pos] == ',' {
			return nil
		}
		l.newline()
	}
	return nil
}

// implicitComma separates array elements and object properties written
// one per line inside [] or {}.
func (l *Lexer) implicitComma(prev Token) {
	if len(l.brackets) == 0 {
		return
	}
	open := l.brackets[len(l.brackets)-1].open
	if open != '[' && open != '{' {
		return
	}
	if prev.Type == TokenPunct && (prev.Literal == "," || prev.Literal == string(open)) {
		return
	}
	if prev.Type == TokenIndent {
		return
	}
	if l.pos < len(l.src) && l.src[l.pos] == closers[open] {
		return
	}
	l.emit(Token{Type: TokenPunct, Literal: ",", Line: prev.Line})
}

func isArrow(t Token) bool {
	return t.Type == TokenPunct && (t.Literal == "->" || t.Literal == "=>")
}

var continuationPuncts = map[string]bool{
	",": true, "+": true, "-": true, "*": true, "/": true, "%": true,
	"&&": true, "||": true, "=": true, "==": true, "!=": true,
	"<": true, ">": true, "<=": true, ">=": true, ".": true,
	"+=": true, "-=": true, "*=": true, "/=": true, "||=": true, "&&=": true,
	"(": true, "[": true, "{": true, ":": true,
}

var continuationKeywords = map[string]bool{
	"and": true, "or": true, "is": true, "isnt": true, "not": true,
	"in": true, "of": true, "instanceof": true,
}

func continuesLine(t Token) bool {
	switch t.Type {
	case TokenPunct:
		return continuationPuncts[t.Literal]
	case TokenKeyword:
		return continuationKeywords[t.Literal]
	}
	return false
}

func (l *Lexer) identifier() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.pos++
	}
	word := l.src[start:l.pos]
	typ := TokenIdentifier
	if keywords[word] && !l.afterAccessor() {
		typ = TokenKeyword
	}
	l.emit(Token{Type: typ, Literal: word, Spaced: l.spaced})
}

// afterAccessor reports whether the next word is a property name, where
// keywords are plain identifiers.
func (l *Lexer) afterAccessor() bool {
	prev, ok := l.last()
	if !ok || prev.Type != TokenPunct || l.spaced {
		return false
	}
	return prev.Literal == "." || prev.Literal == "::" || prev.Literal == "@"
}

func (l *Lexer) number() {
	start := l.pos
	if strings.HasPrefix(l.src[l.pos:], "0x") || strings.HasPrefix(l.src[l.pos:], "0X") {
		l.pos += 2
		for l.pos < len(l.src) && isHexDigit(l.src[l.pos]) {
			l.pos++
		}
		l.emit(Token{Type: TokenNumber, Literal: l.src[start:l.pos], Spaced: l.spaced})
		return
	}
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && isDigit(l.src[l.pos+1]) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		p := l.pos + 1
		if p < len(l.src) && (l.src[p] == '+' || l.src[p] == '-') {
			p++
		}
		if p < len(l.src) && isDigit(l.src[p]) {
			l.pos = p
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
		}
	}
	l.emit(Token{Type: TokenNumber, Literal: l.src[start:l.pos], Spaced: l.spaced})
}

// str scans a quoted string. Lines of a multi-line string are joined by a
// single space. Double quoted strings are split into interpolation parts.
func (l *Lexer) str(quote byte) error {
	startLine := l.line
	spaced := l.spaced
	if strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3)) {
		return l.errorf(startLine, "block strings are not supported")
	}
	l.pos++

	var parts []StringPart
	var text strings.Builder
	for {
		if l.pos >= len(l.src) {
			return l.errorf(startLine, "missing %c", quote)
		}
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			if text.Len() > 0 || len(parts) == 0 {
				parts = append(parts, StringPart{Text: text.String()})
			}
			l.emit(Token{Type: TokenString, Quote: quote, Parts: parts, Line: startLine, Spaced: spaced})
			return nil
		case c == '\\' && l.pos+1 < len(l.src):
			if l.src[l.pos+1] == '\n' {
				l.pos += 2
				l.line++
				l.skipIndent()
				continue
			}
			text.WriteString(l.src[l.pos : l.pos+2])
			l.pos += 2
		case c == '\n':
			l.pos++
			l.line++
			l.skipIndent()
			text.WriteByte(' ')
		case quote == '"' && c == '#' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '{':
			codeLine := l.line
			code, err := l.interpolation()
			if err != nil {
				return err
			}
			if text.Len() > 0 {
				parts = append(parts, StringPart{Text: text.String()})
				text.Reset()
			}
			parts = append(parts, StringPart{Code: code, Line: codeLine, IsCode: true})
		default:
			text.WriteByte(c)
			l.pos++
		}
	}
}

func (l *Lexer) skipIndent() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t') {
		l.pos++
	}
}

// interpolation returns the source between #{ and its matching }.
func (l *Lexer) interpolation() (string, error) {
	startLine := l.line
	l.pos += 2
	start := l.pos
	depth := 1
	var inString byte
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case inString != 0:
			if c == '\\' {
				l.pos++
			} else if c == inString {
				inString = 0
			}
		case c == '"' || c == '\'':
			inString = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				code := l.src[start:l.pos]
				l.pos++
				return code, nil
			}
		case c == '\n':
			l.line++
		}
		l.pos++
	}
	return "", l.errorf(startLine, "missing } in string interpolation")
}

func (l *Lexer) punct() error {
	rest := l.src[l.pos:]
	var lit string
	for _, p := range puncts {
		if strings.HasPrefix(rest, p) {
			lit = p
			break
		}
	}
	if lit == "" {
		return l.errorf(l.line, "unexpected character %q", rest[0])
	}
	spaced := l.spaced

	switch lit {
	case "(", "[", "{":
		l.brackets = append(l.brackets, bracket{open: lit[0], line: l.line, depth: len(l.indents)})
	case ")", "]", "}":
		if len(l.brackets) == 0 || closers[l.brackets[len(l.brackets)-1].open] != lit[0] {
			return l.errorf(l.line, "unmatched %s", lit)
		}
		b := l.brackets[len(l.brackets)-1]
		l.brackets = l.brackets[:len(l.brackets)-1]
		for len(l.indents) > b.depth {
			l.indents = l.indents[:len(l.indents)-1]
			l.emit(Token{Type: TokenOutdent})
		}
	}

	l.pos += len(lit)
	l.emit(Token{Type: TokenPunct, Literal: lit, Spaced: spaced})
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
