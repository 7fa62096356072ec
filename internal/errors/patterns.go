package errors

import (
	"errors"
	"fmt"
)

// Service Layer Error Patterns

// ServiceError creates a service error whose code names the service and
// the operation that failed.
func ServiceError(service, operation, message string, cause error) *AssetError {
	code := fmt.Sprintf("ERR_%s_%s", service, operation)
	return NewInternalError(code, fmt.Sprintf("%s service %s failed: %s", service, operation, message), cause).
		WithContext("service", service)
}

// InitError creates project initialization errors
func InitError(operation, message string, cause error) *AssetError {
	return ServiceError("INIT", operation, message, cause)
}

// PrecompileServiceError creates precompilation service errors
func PrecompileServiceError(operation, message string, cause error) *AssetError {
	return ServiceError("PRECOMPILE", operation, message, cause)
}

// ServeServiceError creates serve service errors
func ServeServiceError(operation, message string, cause error) *AssetError {
	return ServiceError("SERVE", operation, message, cause)
}

// FileOperationError creates file operation errors
func FileOperationError(operation, filePath, message string, cause error) *AssetError {
	return NewIOError(fmt.Sprintf("ERR_FILE_%s", operation), message, cause).
		WithLocation(filePath, 0)
}

// CLIError creates command line errors
func CLIError(command, message string, cause error) *AssetError {
	err := NewValidationError("ERR_CLI", fmt.Sprintf("%s: %s", command, message)).
		WithContext("command", command)
	err.Cause = cause
	return err
}

// Error Chain Utilities

// GetRootCause returns the deepest underlying error in the chain
func GetRootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// HasErrorCode checks if any error in the chain has the specified code
func HasErrorCode(err error, code string) bool {
	for err != nil {
		var ae *AssetError
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Cause
	}
	return false
}
