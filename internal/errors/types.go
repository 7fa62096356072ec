package errors

import (
	"context"
	"errors"
	"io/fs"
	"strconv"
	"strings"
)

// ErrorType is the category of an AssetError. It decides whether the
// failure is recoverable and how loudly it is logged.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeProcess    ErrorType = "process"
	ErrorTypeInternal   ErrorType = "internal"
)

// Recoverable reports whether a failure of this type leaves the server
// able to keep serving: the request fails, the process does not.
func (t ErrorType) Recoverable() bool {
	return t == ErrorTypeValidation || t == ErrorTypeProcess
}

// Error codes shared across packages.
const (
	ErrCodeInvalidPath    = "ERR_INVALID_PATH"
	ErrCodePathTraversal  = "ERR_PATH_TRAVERSAL"
	ErrCodeSourceRead     = "ERR_SOURCE_READ"
	ErrCodeSourceNotFound = "ERR_SOURCE_NOT_FOUND"
	ErrCodeArtifactWrite  = "ERR_ARTIFACT_WRITE"
	ErrCodeArtifactRead   = "ERR_ARTIFACT_READ"
	ErrCodePurgeFailed    = "ERR_PURGE_FAILED"
	ErrCodeProcessFailed  = "ERR_PROCESS_FAILED"
	ErrCodeProcessTimeout = "ERR_PROCESS_TIMEOUT"
	ErrCodeInternalError  = "ERR_INTERNAL"
)

// AssetError is a categorised failure while reading a source, running an
// external tool or touching the artifact store.
type AssetError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	FilePath string
	Line     int
}

// Error renders "[CODE] path:line message: cause", omitting empty parts.
func (e *AssetError) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString("[" + e.Code + "] ")
	}
	if e.FilePath != "" {
		b.WriteString(e.FilePath)
		if e.Line > 0 {
			b.WriteString(":" + strconv.Itoa(e.Line))
		}
		b.WriteByte(' ')
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *AssetError) Unwrap() error {
	return e.Cause
}

// Is matches any AssetError with the same type and code.
func (e *AssetError) Is(target error) bool {
	t, ok := target.(*AssetError)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// WithContext records a key/value pair and returns e.
func (e *AssetError) WithContext(key string, value interface{}) *AssetError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// WithLocation records the file, and line when positive, the error is
// about and returns e.
func (e *AssetError) WithLocation(filePath string, line int) *AssetError {
	e.FilePath, e.Line = filePath, line
	return e
}

func newAssetError(t ErrorType, code, message string, cause error) *AssetError {
	return &AssetError{Type: t, Code: code, Message: message, Cause: cause}
}

func NewValidationError(code, message string) *AssetError {
	return newAssetError(ErrorTypeValidation, code, message, nil)
}

func NewIOError(code, message string, cause error) *AssetError {
	return newAssetError(ErrorTypeIO, code, message, cause)
}

// NewProcessError reports a failed or misbehaving external executable.
func NewProcessError(code, message string, cause error) *AssetError {
	return newAssetError(ErrorTypeProcess, code, message, cause)
}

func NewInternalError(code, message string, cause error) *AssetError {
	return newAssetError(ErrorTypeInternal, code, message, cause)
}

// ErrPathTraversal rejects a request path that escapes the source tree.
func ErrPathTraversal(path string) *AssetError {
	return newAssetError(ErrorTypeSecurity, ErrCodePathTraversal, "path traversal attempt: "+path, nil)
}

// ErrInvalidPath rejects a malformed request path.
func ErrInvalidPath(path string) *AssetError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// IsRecoverable reports whether err should fail only the request that hit
// it. Compile errors always are.
func IsRecoverable(err error) bool {
	if _, ok := AsCompileError(err); ok {
		return true
	}
	var ae *AssetError
	return errors.As(err, &ae) && ae.Type.Recoverable()
}

// IsNotExist reports whether err wraps a missing-file error.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// IsType reports whether err is an AssetError of the given type.
func IsType(err error, t ErrorType) bool {
	var ae *AssetError
	return errors.As(err, &ae) && ae.Type == t
}

// Logger is the part of logging.Logger the handler needs.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler logs errors at a level matching their category:
// recoverable failures warn, everything else is an error.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err. A nil err or a nil logger is a no-op.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	if ce, ok := AsCompileError(err); ok {
		h.logger.Warn(ctx, err, "Compilation failed", "file", ce.SourcePath, "line", ce.Line)
		return
	}

	var ae *AssetError
	if !errors.As(err, &ae) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	fields := []interface{}{"type", ae.Type, "code", ae.Code, "file", ae.FilePath}
	if ae.Type.Recoverable() {
		h.logger.Warn(ctx, err, "Asset error occurred", fields...)
	} else {
		h.logger.Error(ctx, err, "Error occurred", fields...)
	}
}
