// Package logger builds the zerolog root logger every component derives
// its sub-loggers from.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects verbosity and output format
type Config struct {
	Level  string // debug, info, warn, error; anything else means info
	Pretty bool   // human-readable console output instead of JSON
}

// New returns a timestamped, caller-annotated root logger writing to
// stdout. The level also applies globally, so sub-loggers inherit it.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).With().Timestamp().Caller().Logger()
}
