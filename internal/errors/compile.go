// Package errors defines the error taxonomy shared by the compile pipeline
// and the HTTP layer: CompileError for source failures that are shown to the
// requester, AssetError for filesystem, subprocess and configuration
// failures, and best-effort line number extraction from compiler messages.
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var lineNumberPattern = regexp.MustCompile(`line ([0-9]+)`)

// LineNumber returns the 1-based line number from the first "line N" in a
// compiler message. It returns 0 when the message carries no line, which
// means unknown rather than line zero.
func LineNumber(message string) int {
	m := lineNumberPattern.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// CompileError is a failed compilation of a single source file.
// Columns are always -1: the compilers in use do not report them.
type CompileError struct {
	SourcePath  string
	Message     string
	Line        int
	ColumnStart int
	ColumnEnd   int
	Cause       error
}

// NewCompileError builds a CompileError, extracting the line from message.
func NewCompileError(sourcePath, message string, cause error) *CompileError {
	return &CompileError{
		SourcePath:  sourcePath,
		Message:     message,
		Line:        LineNumber(message),
		ColumnStart: -1,
		ColumnEnd:   -1,
		Cause:       cause,
	}
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.SourcePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.SourcePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// AsCompileError returns the CompileError in err's chain, if any.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
