// Package coffee is an embedded compiler for the commonly used subset of
// CoffeeScript: assignments, functions and bound functions, implicit calls
// and returns, conditionals in block, inline, postfix and value position,
// while and for loops, try/catch, string interpolation, array and object
// literals. Classes, switch, ranges, splats, destructuring, regular
// expressions, block strings and implicit objects are rejected with a
// SyntaxError naming the offending line.
package coffee

import "fmt"

// SyntaxError is a compile failure at a 1-based source line. Its message
// uses the "line N" form the rest of the pipeline extracts lines from.
type SyntaxError struct {
	Line    int
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("Parse error on line %d: %s", e.Line, e.Message)
}

// Options controls code generation.
type Options struct {
	// Bare omits the top-level function safety wrapper.
	Bare bool
}

// Option configures a Compiler.
type Option func(*Options)

// WithBare disables the top-level safety wrapper.
func WithBare() Option {
	return func(o *Options) { o.Bare = true }
}

// Compiler turns CoffeeScript source into JavaScript. A Compiler keeps
// generator state between calls and must not be used by more than one
// goroutine at a time.
type Compiler struct {
	opts Options
	gen  generator
}

// NewCompiler creates a compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// Compile compiles one source file. Failures are returned as *SyntaxError.
func (c *Compiler) Compile(src string) (js string, err error) {
	tokens, err := NewLexer(src, 1).Tokenize()
	if err != nil {
		return "", err
	}

	program, err := NewParser(tokens).Parse()
	if err != nil {
		return "", err
	}

	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			js, err = "", se
		}
		c.gen.scope = nil
	}()

	return c.gen.program(program, c.opts.Bare), nil
}

// Compile compiles src with a fresh Compiler.
func Compile(src string, opts ...Option) (string, error) {
	return NewCompiler(opts...).Compile(src)
}
