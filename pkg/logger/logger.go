// Package logger wraps zerolog behind the package-level helpers the rest of
// the codebase logs through.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
	With().Timestamp().Logger()

// Init sets the global level and switches to structured JSON output when
// console is false (serve mode).
func Init(level string, console bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if !console {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// L exposes the underlying logger for callers that attach structured fields.
func L() *zerolog.Logger {
	return &log
}

func Infof(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func Warnf(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func Errorf(format string, v ...any) {
	log.Error().Msgf(format, v...)
}
