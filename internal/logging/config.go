// Package logging picks the process log profile once at startup and applies
// HOSTBRIDGE_LOG_* environment overrides on top of it.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/hostbridge/internal/logs"
)

const (
	EnvLogLevel     = "HOSTBRIDGE_LOG_LEVEL"
	EnvLogTimestamp = "HOSTBRIDGE_LOG_TIMESTAMP"
	EnvLogNoColor   = "HOSTBRIDGE_LOG_NOCOLOR"
	EnvLogBypass    = "HOSTBRIDGE_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Option adjusts the profile defaults before env overrides are applied.
type Option func(*logs.Config)

// WithLevel sets the level by name; unknown names keep the profile default.
func WithLevel(raw string) Option {
	return func(cfg *logs.Config) {
		if lvl, ok := ParseLevel(raw); ok {
			cfg.Level = lvl
		}
	}
}

// WithOutput sends logs to out without color, for runs where stderr belongs
// to a full-screen terminal UI.
func WithOutput(out io.Writer) Option {
	return func(cfg *logs.Config) {
		if out == nil {
			return
		}
		cfg.Out = out
		cfg.NoColor = true
	}
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the global logger. Only the first call in a process has
// any effect; env overrides always win over opts.
func Configure(profile Profile, opts ...Option) {
	configureOnce.Do(func() {
		cfg := profileConfig(profile)
		for _, opt := range opts {
			opt(&cfg)
		}
		applyEnv(&cfg)
		logs.Configure(cfg)
	})
}

func profileConfig(profile Profile) logs.Config {
	cfg := logs.DefaultConfig()
	if profile == ProfileTest {
		cfg.Level = logs.DebugLevel
		cfg.Timestamp = false
		cfg.NoColor = true
	}
	return cfg
}

func applyEnv(cfg *logs.Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	flags := []struct {
		env string
		dst *bool
	}{
		{EnvLogTimestamp, &cfg.Timestamp},
		{EnvLogNoColor, &cfg.NoColor},
		{EnvLogBypass, &cfg.Bypass},
	}
	for _, f := range flags {
		raw := strings.TrimSpace(os.Getenv(f.env))
		if raw == "" {
			continue
		}
		if v, err := strconv.ParseBool(raw); err == nil {
			*f.dst = v
		}
	}
}

var levelNames = map[string]logs.Level{
	"trace":       logs.TraceLevel,
	"diagnostics": logs.TraceLevel,
	"debug":       logs.DebugLevel,
	"info":        logs.InfoLevel,
	"warn":        logs.WarnLevel,
	"warning":     logs.WarnLevel,
	"error":       logs.ErrorLevel,
	"disabled":    logs.Disabled,
	"off":         logs.Disabled,
	"none":        logs.Disabled,
}

// ParseLevel reports whether raw names a known level.
func ParseLevel(raw string) (logs.Level, bool) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(raw))]
	return lvl, ok
}
