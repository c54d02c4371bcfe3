package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "hostbridge", "":
		return hostbridgeTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const hostbridgeTemplate = `[log]
level = "info"
file = "hostbridge.log"

[host]
tick_interval = -1.0
frame = "16ms"
strict = false
startup_windows = ["console"]

[relay]
address = "127.0.0.1:45001"
client = "hostbridge"
connect_timeout = "5s"
receive_timeout = "100ms"
write_timeout = "2s"
heartbeat_interval = "5s"
max_connect_attempts = 5
max_payload_bytes = 1048576

[relay.backoff]
initial = "250ms"
multiplier = 2.0
max = "5s"
jitter = true

[admin]
enabled = true
listen = "127.0.0.1:7020"
cors_origins = ["http://localhost:3000"]
token = ""

[notify]
enabled = true
volume = 0.6

[windows.console]
mode = "float"
style = "solid"
rect = [100, 700, 700, 400]

[windows.notifications]
mode = "float"
style = "hud"
rect = [900, 780, 1280, 680]
`
