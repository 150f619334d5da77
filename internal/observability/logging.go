// Package observability wires structured logging for the CLI.
//
// Logs go to stderr by default, or to a file when --log-file is set.
// Values under credential-like keys (token, cookie, password, ...) are
// redacted before they reach any sink.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const redactedValue = "[REDACTED]"

// Log rotation bounds for --log-file sinks.
const (
	maxLogFileSize = 5 * 1024 * 1024
	maxLogBackups  = 3
)

type contextKey struct{}

// Config holds the logger configuration.
type Config struct {
	// Level is one of error, warn, info, debug. Empty means info.
	Level string
	// LogFile, when set, sends log output to a file instead of stderr.
	LogFile string
	// SessionID tags every record of one CLI run.
	SessionID string
	// Version is the CLI version.
	Version string
}

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from ctx, falling back to slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}

// NewLogger creates a structured logger from the given configuration.
// The returned cleanup closes the log file, if any.
func NewLogger(cfg *Config) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var sink io.Writer = os.Stderr

	cleanup := func() error { return nil }

	if path := strings.TrimSpace(cfg.LogFile); path != "" {
		file, openErr := openLogFile(path)
		if openErr != nil {
			return nil, nil, openErr
		}

		sink = file
		cleanup = file.Close
	}

	handler := slog.NewTextHandler(sink, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	})

	logger := slog.New(handler).With(
		slog.String("session.id", cfg.SessionID),
		slog.String("cli.version", cfg.Version),
	)

	return logger, cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(path))

	if mkErr := os.MkdirAll(filepath.Dir(cleanPath), 0o700); mkErr != nil {
		return nil, fmt.Errorf("create log file directory: %w", mkErr)
	}

	if err := rotateLogFile(cleanPath, maxLogFileSize, maxLogBackups); err != nil {
		return nil, fmt.Errorf("rotate log file: %w", err)
	}

	file, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// rotateLogFile shifts path to path.1, path.1 to path.2, and so on, once
// the current file reaches maxSize bytes. At most backups rotated files
// are kept.
func rotateLogFile(path string, maxSize int64, backups int) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	_ = os.Remove(fmt.Sprintf("%s.%d", path, backups))

	for i := backups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		if _, statErr := os.Stat(from); statErr != nil {
			continue
		}
		if renameErr := os.Rename(from, fmt.Sprintf("%s.%d", path, i+1)); renameErr != nil {
			return renameErr
		}
	}

	return os.Rename(path, path+".1")
}

func parseLevel(level string) (slog.Leveler, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("invalid log level: %q (allowed: error, warn, info, debug)", level)
	}
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if isSensitiveKey(key) {
		return slog.String(attr.Key, redactedValue)
	}

	return attr
}

func isSensitiveKey(key string) bool {
	if key == "authorization" {
		return true
	}

	sensitiveSubstrings := []string{"token", "cookie", "secret", "credential", "password"}
	for _, pattern := range sensitiveSubstrings {
		if strings.Contains(key, pattern) {
			return true
		}
	}

	return false
}
