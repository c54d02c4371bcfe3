// Package logs is the process-wide printf-style logger used across hostbridge.
//
// It is a thin layer over zerolog: one global logger, configured once, with
// helpers shaped like the call sites want them (pkg.Type.Method key=value ...).
package logs

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Level mirrors zerolog levels so callers never import zerolog directly.
type Level = zerolog.Level

const (
	TraceLevel = zerolog.TraceLevel
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// Config controls output shape.
type Config struct {
	Level     Level
	Timestamp bool
	NoColor   bool
	// Bypass writes raw JSON lines instead of the console formatter.
	Bypass bool
	Out    io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:     InfoLevel,
		Timestamp: true,
		Out:       os.Stderr,
	}
}

var current atomic.Pointer[zerolog.Logger]

func init() {
	Configure(DefaultConfig())
}

// Configure replaces the global logger.
func Configure(cfg Config) {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.Bypass {
		cw := zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	l := ctx.Logger()
	current.Store(&l)
}

// Logger returns the configured zerolog logger for structured call sites.
func Logger() *zerolog.Logger {
	return current.Load()
}

func Tracef(format string, args ...any) { emit(Logger().Trace(), format, args) }
func Debugf(format string, args ...any) { emit(Logger().Debug(), format, args) }
func Infof(format string, args ...any)  { emit(Logger().Info(), format, args) }
func Warnf(format string, args ...any)  { emit(Logger().Warn(), format, args) }
func Errf(format string, args ...any)   { emit(Logger().Error(), format, args) }

func emit(ev *zerolog.Event, format string, args []any) {
	if ev == nil {
		return
	}
	if len(args) == 0 {
		ev.Msg(format)
		return
	}
	ev.Msg(fmt.Sprintf(format, args...))
}
