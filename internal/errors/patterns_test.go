package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceError(t *testing.T) {
	err := ServiceError("PRECOMPILE", "WALK", "cannot list sources", fmt.Errorf("original error"))

	assert.NotNil(t, err)
	assert.Equal(t, ErrorTypeInternal, err.Type)
	assert.Equal(t, "ERR_PRECOMPILE_WALK", err.Code)
	assert.Contains(t, err.Message, "PRECOMPILE service WALK failed")
	assert.Contains(t, err.Message, "cannot list sources")
	assert.Equal(t, "PRECOMPILE", err.Context["service"])
	assert.NotNil(t, err.Cause)
}

func TestServiceErrorHelpers(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name string
		err  *AssetError
		code string
	}{
		{name: "init", err: InitError("CREATE_CONFIG", "cannot write config", cause), code: "ERR_INIT_CREATE_CONFIG"},
		{name: "precompile", err: PrecompileServiceError("RUN", "run failed", cause), code: "ERR_PRECOMPILE_RUN"},
		{name: "serve", err: ServeServiceError("START_SERVER", "startup failed", cause), code: "ERR_SERVE_START_SERVER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, cause, tt.err.Cause)
			assert.True(t, errors.Is(tt.err, cause))
		})
	}
}

func TestFileOperationError(t *testing.T) {
	err := FileOperationError("WRITE", ".roaster.yml", "cannot write config", fmt.Errorf("disk full"))

	assert.Equal(t, ErrorTypeIO, err.Type)
	assert.Equal(t, "ERR_FILE_WRITE", err.Code)
	assert.Equal(t, ".roaster.yml", err.FilePath)
}

func TestCLIError(t *testing.T) {
	cause := fmt.Errorf("no such file")
	err := CLIError("compile", "cannot read source", cause)

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Contains(t, err.Error(), "compile: cannot read source")
	assert.ErrorIs(t, err, cause)
}

func TestGetRootCause(t *testing.T) {
	root := fmt.Errorf("root")
	wrapped := NewIOError(ErrCodeSourceRead, "read", fmt.Errorf("middle: %w", root))

	assert.Equal(t, root, GetRootCause(wrapped))
	assert.Nil(t, GetRootCause(nil))
}

func TestHasErrorCode(t *testing.T) {
	inner := NewProcessError(ErrCodeProcessTimeout, "timeout", nil)
	outer := PrecompileServiceError("RUN", "run failed", inner)

	assert.True(t, HasErrorCode(outer, "ERR_PRECOMPILE_RUN"))
	assert.True(t, HasErrorCode(outer, ErrCodeProcessTimeout))
	assert.False(t, HasErrorCode(outer, ErrCodeSourceRead))
	assert.False(t, HasErrorCode(fmt.Errorf("plain"), ErrCodeSourceRead))
}

func TestServerStartError(t *testing.T) {
	suggestions := ServerStartError(fmt.Errorf("listen tcp :9000: bind: address already in use"), 9000)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "roaster serve --port 9001", suggestions[1].Command)

	privileged := ServerStartError(fmt.Errorf("listen tcp :80: bind: permission denied"), 80)
	require.Len(t, privileged, 1)
	assert.Equal(t, "Use unprivileged port", privileged[0].Title)

	assert.Empty(t, ServerStartError(fmt.Errorf("something else"), 9000))
}

func TestConfigurationError(t *testing.T) {
	suggestions := ConfigurationError(fmt.Errorf(`mode "staging" must be "dev" or "prod"`), ".roaster.yml")
	require.Len(t, suggestions, 2)
	assert.Equal(t, "roaster init --force", suggestions[1].Command)

	assert.Empty(t, ConfigurationError(fmt.Errorf("port 70000 is not in valid range"), ""))
}

func TestCompileFailureSuggestions(t *testing.T) {
	unsupported := NewCompileError("a.coffee", "Parse error on line 3: classes are not supported", nil)
	suggestions := CompileFailureSuggestions(unsupported)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "Use the native compiler", suggestions[0].Title)
	assert.Equal(t, "a.coffee line 3", suggestions[1].Description)

	assert.Empty(t, CompileFailureSuggestions(NewCompileError("a.coffee", "crashed", nil)))
}

func TestEnhancedError(t *testing.T) {
	cause := fmt.Errorf("bind failed")
	err := NewEnhancedError("Failed to start server", cause, []ErrorSuggestion{
		{Title: "Use a different port", Command: "roaster serve --port 9001"},
	})

	assert.ErrorIs(t, err, cause)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Failed to start server\n\nSuggestions:\n"))
	assert.Contains(t, msg, "  1. Use a different port\n")
	assert.Contains(t, msg, "     Run: roaster serve --port 9001\n")

	assert.Equal(t, "plain title", FormatSuggestions("plain title", nil))
}
