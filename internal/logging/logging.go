// Package logging configures the process-wide zerolog.Logger, generalizing
// the teacher's two-mode main() branch (`if *daemonMode { log.SetOutput...
// log.SetFlags(0) } else { log.SetOutput(os.Stdout); log.SetFlags(...) }`)
// from the stdlib log package to zerolog: a human-readable console writer
// in interactive mode, newline-delimited JSON in daemon mode.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a Logger writing to stderr as JSON when daemon is true
// (matching the teacher's daemon branch writing to os.Stderr), or to
// stdout through zerolog's ConsoleWriter with microsecond timestamps
// otherwise (matching the teacher's log.LstdFlags|log.Lmicroseconds).
func New(daemon bool) zerolog.Logger {
	if daemon {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000000"}
	return zerolog.New(writer).With().Timestamp().Logger()
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
