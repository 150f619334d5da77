// Package errors provides structured CLI error types for the Jenkins CLI.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes for CLI errors.
const (
	ExitSuccess = 0  // Successful execution
	ExitGeneral = 1  // General error
	ExitAuth    = 2  // Authentication error
	ExitNetwork = 3  // Network/API error
	ExitConfig  = 4  // Configuration error
	ExitTimeout = 5  // Execution timeout
	ExitBuild   = 6  // Build failure
	ExitUsage   = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// NoServices returns an error when the config names no Jenkins services.
func NoServices(configPath string) *CLIError {
	return &CLIError{
		Message: "No Jenkins services configured",
		Hint:    fmt.Sprintf("Add a [[jenkins]] section to %s", configPath),
		Code:    ExitConfig,
	}
}

// ServiceNotFound returns an error for an unknown service name or URL.
func ServiceNotFound(name string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Jenkins service not found: %s", name),
		Hint:    "Check the service name/URL against your config file",
		Code:    ExitConfig,
	}
}

// AuthFailed returns an error for failed authentication.
func AuthFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Authentication failed",
		Hint:    "Check the user and API token for this Jenkins service",
		Cause:   cause,
		Code:    ExitAuth,
	}
}

// CannotPrompt returns an error when interactive prompts are unavailable.
func CannotPrompt(command string) *CLIError {
	return &CLIError{
		Message: "Cannot prompt in non-interactive mode",
		Hint:    fmt.Sprintf("Run %s from an interactive terminal", command),
		Code:    ExitUsage,
	}
}

// NoProjects returns an error when the server offers no buildable jobs.
func NoProjects() *CLIError {
	return &CLIError{
		Message: "No buildable projects found",
		Hint:    "Check your permissions and the include/exclude filters in your config",
		Code:    ExitGeneral,
	}
}

// ProjectNotFound returns an error for an unknown job name.
func ProjectNotFound(name string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Project not found: %s", name),
		Hint:    "The job may have been renamed or removed on the server",
		Code:    ExitGeneral,
	}
}

// TriggerFailed returns an error when the build trigger request fails.
func TriggerFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Failed to trigger build",
		Cause:   cause,
		Code:    classifyNetworkCause(cause),
	}
}

// BuildFailed returns an error for a build that finished unsuccessfully.
func BuildFailed(result string) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Build finished with result %s", result),
		Code:    ExitBuild,
	}
}

// ConfigFailed returns an error for configuration load/save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for ~/.jenkins.toml and ~/.jenkins-cli",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// RequestFailed classifies a transport or HTTP error into a CLIError.
func RequestFailed(cause error) *CLIError {
	msg := "Request failed"
	switch {
	case containsAny(cause.Error(), "unauthorized", "401"):
		return AuthFailed(cause)
	case containsAny(cause.Error(), "timed out", "timeout"):
		msg = "Request timed out"
		return &CLIError{Message: msg, Cause: cause, Code: ExitTimeout}
	case containsAny(cause.Error(), "connection", "connect"):
		msg = "Could not connect to Jenkins"
		return &CLIError{
			Message: msg,
			Hint:    "Check the service URL and your network connection",
			Cause:   cause,
			Code:    ExitNetwork,
		}
	}
	return &CLIError{Message: msg, Cause: cause, Code: ExitNetwork}
}

func classifyNetworkCause(cause error) int {
	if cause == nil {
		return ExitGeneral
	}
	if containsAny(cause.Error(), "unauthorized", "401", "forbidden", "403") {
		return ExitAuth
	}
	return ExitNetwork
}

// containsAny checks if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
