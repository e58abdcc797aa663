// Package logging configures the adapter's structured logger. Standard
// error is the only permitted diagnostic sink -- nothing non-JSON-RPC ever
// reaches standard output, since stdout is the ACP wire.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stderr, tagged with the given
// component name. Level defaults to info when levelName doesn't parse.
func New(component, levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(stderrWriter()).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// stderrWriter returns the log sink, which is always standard error.
func stderrWriter() io.Writer {
	return os.Stderr
}
