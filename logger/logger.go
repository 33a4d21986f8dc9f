package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Options control where and how logs are written.
type Options struct {
	File   string // Append JSON logs to this file instead of stderr
	Pretty bool   // Human-readable console output; ignored when File is set
	Level  string // Overrides LOG_LEVEL when set
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the process logger. Logs go to stderr by default so stdout stays
// free for the final answer. The returned closer releases the log file, if any.
// Log level comes from opts.Level or the LOG_LEVEL environment variable (debug, info, warn, error).
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	levelName := opts.Level
	if levelName == "" {
		levelName = os.Getenv("LOG_LEVEL")
	}
	level := ParseLevel(levelName)

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch {
	case opts.File != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		output = file
		closer = file
	case opts.Pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		output = os.Stderr
	}

	log := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	if opts.File != "" {
		log.Debug().Str("path", opts.File).Str("level", level.String()).Msg("Logger initialized")
	} else {
		log.Debug().Bool("pretty", opts.Pretty).Str("level", level.String()).Msg("Logger initialized")
	}
	return log, closer, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
