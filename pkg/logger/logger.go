// Package logger constructs the module's slog.Logger, following the
// teacher's newLogger() convention but adding the file-plus-stderr-echo
// behavior the original implementation's logging.rs carries: every
// record goes to the configured log file (if any), and error-level
// records are additionally echoed to stderr so an operator watching a
// foreground agent still sees failures without tailing the file.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Options configures logger construction; fields mirror the
// log_file/log_level config options from spec §6.
type Options struct {
	// File, if non-empty, is opened (created if missing, appended to) and
	// used as the primary log sink. If empty, stderr is used directly.
	File string
	// Level is one of "debug", "info", "warn" (or "warning"), "error",
	// matched in lower case only. Defaults to "info" on any other value.
	Level string
}

// New builds a slog.Logger per Options. The returned closer (nil if no
// file was opened) should be closed by the caller on shutdown.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := parseLevel(opts.Level)

	if opts.File == "" {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		return slog.New(handler), nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// Fall back to stderr rather than fail daemon startup over a log
		// file we can't open.
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		logger := slog.New(handler)
		logger.Error("logger: could not open log file, falling back to stderr", "file", opts.File, "error", err)
		return logger, nil
	}

	handler := &echoingHandler{
		inner: slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}),
		echo:  slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	return slog.New(handler), f
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
