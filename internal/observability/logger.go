package observability

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a plain console logger tagged with app for request logging.
func NewLogger(out io.Writer, app string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	return zerolog.New(output).With().Timestamp().Str("app", app).Logger()
}
