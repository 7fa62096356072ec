package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// ServerStartError suggests fixes for a listener that could not bind.
func ServerStartError(err error, port int) []ErrorSuggestion {
	var out []ErrorSuggestion
	msg := err.Error()

	switch {
	case strings.Contains(msg, "address already in use"):
		out = append(out,
			ErrorSuggestion{
				Title:       "Port already in use",
				Description: fmt.Sprintf("Port %d is already being used by another process", port),
				Command:     fmt.Sprintf("lsof -i :%d", port),
			},
			ErrorSuggestion{
				Title:       "Use a different port",
				Description: "Start the server on a different port",
				Command:     fmt.Sprintf("roaster serve --port %d", port+1),
			})
	case strings.Contains(msg, "permission denied") && port < 1024:
		out = append(out, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "roaster serve --port 9000",
		})
	}
	return out
}

// ConfigurationError generates suggestions for a configuration that does
// not load or validate.
func ConfigurationError(err error, configPath string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}
	errStr := err.Error()

	if strings.Contains(errStr, "mode") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use a supported mode",
			Description: "mode must be dev or prod",
			Example:     "mode: dev",
		})
	}

	if configPath != "" {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check the configuration file",
			Description: fmt.Sprintf("Review %s or regenerate it", configPath),
			Command:     "roaster init --force",
		})
	}

	return suggestions
}

// CompileFailureSuggestions generates suggestions for a failed compilation.
func CompileFailureSuggestions(ce *CompileError) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}

	if strings.Contains(ce.Message, "not supported") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use the native compiler",
			Description: "The embedded compiler covers a subset of CoffeeScript; the coffee executable supports the full language",
			Example:     "coffee:\n       native: /usr/local/bin/coffee",
		})
	}

	if ce.Line > 0 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check the reported line",
			Description: fmt.Sprintf("%s line %d", ce.SourcePath, ce.Line),
		})
	}

	return suggestions
}

// FormatSuggestions renders title followed by a numbered suggestion list.
// Without suggestions the title is returned as is.
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nSuggestions:\n", title)
	for i, s := range suggestions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, s.Title)
		for _, line := range [][2]string{
			{"", s.Description},
			{"Run: ", s.Command},
			{"Example: ", s.Example},
		} {
			if line[1] != "" {
				fmt.Fprintf(&b, "     %s%s\n", line[0], line[1])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// EnhancedError is a user facing error: a title plus suggestions, with
// the underlying failure still reachable through Unwrap.
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

func (e *EnhancedError) Error() string {
	return FormatSuggestions(e.Title, e.Suggestions)
}

func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
