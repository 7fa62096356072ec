package coffee

import "fmt"

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNewline
	TokenIndent
	TokenOutdent
	TokenIdentifier
	TokenKeyword
	TokenNumber
	TokenString
	TokenPunct
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenNewline:    "TERMINATOR",
	TokenIndent:     "INDENT",
	TokenOutdent:    "OUTDENT",
	TokenIdentifier: "IDENTIFIER",
	TokenKeyword:    "KEYWORD",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenPunct:      "PUNCT",
}

// String returns the name of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is a lexical token. Spaced is set when whitespace precedes the
// token on its line, which decides implicit calls such as `f -1`.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Spaced  bool
	Quote   byte
	Parts   []StringPart
}

// StringPart is a literal run or an interpolated #{...} expression of a
// double quoted string.
type StringPart struct {
	Text   string
	Code   string
	Line   int
	IsCode bool
}

// describe renders the token for an "unexpected ..." message.
func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline, TokenIndent, TokenOutdent:
		return t.Type.String()
	case TokenString:
		return "string"
	default:
		return "'" + t.Literal + "'"
	}
}

var keywords = map[string]bool{
	"if": true, "unless": true, "else": true, "then": true,
	"while": true, "until": true, "for": true, "in": true, "of": true, "when": true,
	"return": true, "break": true, "continue": true, "throw": true,
	"try": true, "catch": true, "finally": true,
	"and": true, "or": true, "not": true, "is": true, "isnt": true,
	"new": true, "typeof": true, "instanceof": true, "delete": true,
	"true": true, "false": true, "yes": true, "no": true, "on": true, "off": true,
	"null": true, "undefined": true, "this": true,
	// recognised but not compiled
	"class": true, "extends": true, "super": true, "switch": true, "loop": true,
	"do": true, "by": true, "yield": true, "await": true,
}

var unsupportedKeywords = map[string]bool{
	"class": true, "extends": true, "super": true, "switch": true, "loop": true,
	"do": true, "by": true, "yield": true, "await": true, "delete": true,
}

// puncts is ordered longest first so the lexer takes the longest match.
var puncts = []string{
	"||=", "&&=", "...",
	"->", "=>", "==", "!=", "<=", ">=", "&&", "||", "+=", "-=", "*=", "/=",
	"?=", "::", "?.", "..", "++", "--", "**",
	"+", "-", "*", "/", "%", "=", "<", ">", "!", "?", ".", ",", ":",
	"(", ")", "[", "]", "{", "}", "@", "&", "|", "^", "~",
}

// unsupportedPuncts maps operators outside the supported subset to the
// message reported for them.
var unsupportedPuncts = map[string]string{
	"...": "splats are not supported",
	"..":  "ranges are not supported",
	"?.":  "soaked access is not supported",
	"?=":  "existential assignment is not supported",
	"++":  "increment operators are not supported",
	"--":  "decrement operators are not supported",
	"**":  "exponentiation is not supported",
	"&":   "bitwise operators are not supported",
	"|":   "bitwise operators are not supported",
	"^":   "bitwise operators are not supported",
	"~":   "bitwise operators are not supported",
}
