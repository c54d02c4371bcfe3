package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/hostbridge/internal/bridge"
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/logging"
	"github.com/danmuck/hostbridge/internal/protocol/session"
	"github.com/danmuck/hostbridge/internal/windowmode"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the full hostbridge configuration.
type Config struct {
	LogLevel string
	// LogFile receives logs while the terminal UI owns the screen.
	LogFile  string
	Host     HostConfig
	Relay    session.Config
	Admin    AdminConfig
	Notify   NotifyConfig
	Windows  map[string]windowmode.Config
}

type HostConfig struct {
	// TickInterval arms the host loop adapter: > 0 seconds, < 0 loops.
	TickInterval   float32
	Frame          time.Duration
	Strict         bool
	StartupWindows []string
}

type AdminConfig struct {
	Enabled     bool
	Listen      string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on action routes.
	Token       string
}

type NotifyConfig struct {
	Enabled bool
	Volume  float64
}

func Default() Config {
	return Config{
		LogLevel: "",
		LogFile:  "hostbridge.log",
		Host: HostConfig{
			TickInterval:   -1,
			Frame:          16 * time.Millisecond,
			StartupWindows: []string{bridge.WindowConsole},
		},
		Relay: session.DefaultConfig(),
		Admin: AdminConfig{
			Enabled:     true,
			Listen:      "127.0.0.1:7020",
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Notify:  NotifyConfig{Enabled: true, Volume: 0.6},
		Windows: bridge.DefaultWindowConfigs(),
	}
}

type fileConfig struct {
	Log     rawLog               `toml:"log"`
	Host    rawHost              `toml:"host"`
	Relay   rawRelay             `toml:"relay"`
	Admin   rawAdmin             `toml:"admin"`
	Notify  rawNotify            `toml:"notify"`
	Windows map[string]rawWindow `toml:"windows"`
}

type rawLog struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type rawHost struct {
	TickInterval   float64  `toml:"tick_interval"`
	Frame          string   `toml:"frame"`
	Strict         bool     `toml:"strict"`
	StartupWindows []string `toml:"startup_windows"`
}

type rawRelay struct {
	Address            string     `toml:"address"`
	Client             string     `toml:"client"`
	ConnectTimeout     string     `toml:"connect_timeout"`
	ReceiveTimeout     string     `toml:"receive_timeout"`
	WriteTimeout       string     `toml:"write_timeout"`
	HeartbeatInterval  string     `toml:"heartbeat_interval"`
	MaxConnectAttempts int        `toml:"max_connect_attempts"`
	MaxPayloadBytes    int64      `toml:"max_payload_bytes"`
	Backoff            rawBackoff `toml:"backoff"`
}

type rawBackoff struct {
	Initial    string  `toml:"initial"`
	Multiplier float64 `toml:"multiplier"`
	Max        string  `toml:"max"`
	Jitter     bool    `toml:"jitter"`
}

type rawAdmin struct {
	Enabled     bool     `toml:"enabled"`
	Listen      string   `toml:"listen"`
	CorsOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

type rawNotify struct {
	Enabled bool    `toml:"enabled"`
	Volume  float64 `toml:"volume"`
}

type rawWindow struct {
	Mode  string `toml:"mode"`
	Style string `toml:"style"`
	Rect  []int  `toml:"rect"`
}

// Load reads path over the defaults: only keys present in the file change
// anything.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}
	cfg, err := apply(Default(), raw, meta)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	var err error
	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.LogFile = strings.TrimSpace(raw.Log.File)
	}

	if meta.IsDefined("host", "tick_interval") {
		cfg.Host.TickInterval = float32(raw.Host.TickInterval)
	}
	if meta.IsDefined("host", "frame") {
		if cfg.Host.Frame, err = parseDuration("host.frame", raw.Host.Frame); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("host", "strict") {
		cfg.Host.Strict = raw.Host.Strict
	}
	if meta.IsDefined("host", "startup_windows") {
		cfg.Host.StartupWindows = normalizeNames(raw.Host.StartupWindows)
	}

	r := raw.Relay
	if meta.IsDefined("relay", "address") {
		cfg.Relay.Address = strings.TrimSpace(r.Address)
	}
	if meta.IsDefined("relay", "client") {
		cfg.Relay.Client = strings.TrimSpace(r.Client)
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", r.ConnectTimeout, &cfg.Relay.ConnectTimeout},
		{"receive_timeout", r.ReceiveTimeout, &cfg.Relay.ReceiveTimeout},
		{"write_timeout", r.WriteTimeout, &cfg.Relay.WriteTimeout},
		{"heartbeat_interval", r.HeartbeatInterval, &cfg.Relay.HeartbeatInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined("relay", d.key) {
			continue
		}
		if *d.dst, err = parseDuration("relay."+d.key, d.raw); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("relay", "max_connect_attempts") {
		cfg.Relay.MaxConnectAttempts = r.MaxConnectAttempts
	}
	if meta.IsDefined("relay", "max_payload_bytes") {
		if r.MaxPayloadBytes <= 0 || r.MaxPayloadBytes > 1<<31 {
			return Config{}, fmt.Errorf("%w: relay.max_payload_bytes out of range", ErrInvalid)
		}
		cfg.Relay.MaxPayloadBytes = uint32(r.MaxPayloadBytes)
	}
	if meta.IsDefined("relay", "backoff", "initial") {
		if cfg.Relay.Backoff.InitialDelay, err = parseDuration("relay.backoff.initial", r.Backoff.Initial); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("relay", "backoff", "multiplier") {
		cfg.Relay.Backoff.Multiplier = r.Backoff.Multiplier
	}
	if meta.IsDefined("relay", "backoff", "max") {
		if cfg.Relay.Backoff.MaxDelay, err = parseDuration("relay.backoff.max", r.Backoff.Max); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("relay", "backoff", "jitter") {
		cfg.Relay.Backoff.Jitter = r.Backoff.Jitter
	}

	if meta.IsDefined("admin", "enabled") {
		cfg.Admin.Enabled = raw.Admin.Enabled
	}
	if meta.IsDefined("admin", "listen") {
		cfg.Admin.Listen = strings.TrimSpace(raw.Admin.Listen)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeNames(raw.Admin.CorsOrigins)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}

	if meta.IsDefined("notify", "enabled") {
		cfg.Notify.Enabled = raw.Notify.Enabled
	}
	if meta.IsDefined("notify", "volume") {
		cfg.Notify.Volume = raw.Notify.Volume
	}

	cfg.Windows = maps.Clone(cfg.Windows)
	for name, w := range raw.Windows {
		wc, ok := cfg.Windows[name]
		if !ok {
			wc = windowmode.Config{Name: name, Style: windowmode.StyleSolid, InitialMode: windowmode.ModeFloat}
		}
		if meta.IsDefined("windows", name, "mode") {
			if wc.InitialMode, err = windowmode.ParseMode(w.Mode); err != nil {
				return Config{}, fmt.Errorf("%w: windows.%s.mode: %w", ErrInvalid, name, err)
			}
		}
		if meta.IsDefined("windows", name, "style") {
			if wc.Style, err = windowmode.ParseStyle(w.Style); err != nil {
				return Config{}, fmt.Errorf("%w: windows.%s.style: %w", ErrInvalid, name, err)
			}
		}
		if meta.IsDefined("windows", name, "rect") {
			if len(w.Rect) != 4 {
				return Config{}, fmt.Errorf("%w: windows.%s.rect wants [left, top, right, bottom]", ErrInvalid, name)
			}
			wc.InitialRect = host.NewRect(w.Rect[0], w.Rect[1], w.Rect[2], w.Rect[3])
		}
		cfg.Windows[name] = wc
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: unknown log.level %q", ErrInvalid, c.LogLevel)
		}
	}
	if c.Host.Frame <= 0 {
		return fmt.Errorf("%w: host.frame must be > 0", ErrInvalid)
	}
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Admin.Enabled && c.Admin.Listen == "" {
		return fmt.Errorf("%w: admin.listen required when admin is enabled", ErrInvalid)
	}
	if c.Notify.Volume < 0 || c.Notify.Volume > 1 {
		return fmt.Errorf("%w: notify.volume must be within [0, 1]", ErrInvalid)
	}
	for name, w := range c.Windows {
		if w.InitialRect.Empty() {
			return fmt.Errorf("%w: windows.%s.rect is required", ErrInvalid, name)
		}
		if w.InitialRect.Width() <= 0 || w.InitialRect.Height() <= 0 {
			return fmt.Errorf("%w: windows.%s.rect has no area", ErrInvalid, name)
		}
		if w.InitialMode == windowmode.ModeClose {
			return fmt.Errorf("%w: windows.%s.mode cannot be close", ErrInvalid, name)
		}
	}
	for _, name := range c.Host.StartupWindows {
		if _, ok := c.Windows[name]; !ok {
			return fmt.Errorf("%w: host.startup_windows names unknown window %q", ErrInvalid, name)
		}
	}
	return nil
}

// WindowNames lists configured windows in a stable order.
func (c Config) WindowNames() []string {
	return slices.Sorted(maps.Keys(c.Windows))
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %w", ErrInvalid, key, err)
	}
	return d, nil
}

func normalizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
