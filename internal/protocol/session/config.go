package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines the relay connection.
type Config struct {
	Address            string
	Client             string
	ConnectTimeout     time.Duration
	ReceiveTimeout     time.Duration
	WriteTimeout       time.Duration
	HeartbeatInterval  time.Duration
	MaxConnectAttempts int
	MaxPayloadBytes    uint32
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Address:            "127.0.0.1:45001",
		Client:             "hostbridge",
		ConnectTimeout:     5 * time.Second,
		ReceiveTimeout:     100 * time.Millisecond,
		WriteTimeout:       2 * time.Second,
		HeartbeatInterval:  5 * time.Second,
		MaxConnectAttempts: 5,
		MaxPayloadBytes:    1024 * 1024,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if c.ReceiveTimeout <= 0 {
		return fmt.Errorf("%w: receive_timeout must be > 0", ErrInvalidConfig)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be > 0", ErrInvalidConfig)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: write_timeout must be > 0", ErrInvalidConfig)
	}
	if c.MaxConnectAttempts < 1 {
		return fmt.Errorf("%w: max_connect_attempts must be >= 1", ErrInvalidConfig)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat_interval must be >= 0", ErrInvalidConfig)
	}
	return nil
}
