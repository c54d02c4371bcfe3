package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/hostbridge/internal/protocol/session"
)

// step is one scripted relay push, sent After the previous one.
type step struct {
	After     time.Duration
	Message   session.Message
	Describes string
}

type scriptFile struct {
	Steps []rawStep `toml:"step"`
}

type rawStep struct {
	After     string `toml:"after"`
	Type      string `toml:"type"`
	Callsign  string `toml:"callsign"`
	Text      string `toml:"text"`
	Color     uint32 `toml:"color"`
	Recipient string `toml:"recipient"`
	Window    string `toml:"window"`
	Mode      string `toml:"mode"`
	Enabled   bool   `toml:"enabled"`
	Reason    string `toml:"reason"`
}

func loadScript(path string) ([]step, error) {
	var raw scriptFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	return parseScript(raw, meta)
}

func decodeScript(body string) ([]step, error) {
	var raw scriptFile
	meta, err := toml.Decode(body, &raw)
	if err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	return parseScript(raw, meta)
}

func parseScript(raw scriptFile, meta toml.MetaData) ([]step, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("script: unknown key %s", undecoded[0])
	}
	out := make([]step, 0, len(raw.Steps))
	for i, rs := range raw.Steps {
		s, err := rs.build()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (rs rawStep) build() (step, error) {
	var s step
	if rs.After != "" {
		d, err := time.ParseDuration(strings.TrimSpace(rs.After))
		if err != nil {
			return step{}, fmt.Errorf("parse after: %w", err)
		}
		s.After = d
	}
	color := session.White
	if rs.Color != 0 {
		color = session.RGB(rs.Color & 0xFFFFFF)
	}
	switch strings.TrimSpace(rs.Type) {
	case "network_connected":
		s.Message = session.NetworkConnected{Callsign: rs.Callsign}
	case "network_disconnected":
		s.Message = session.NetworkDisconnected{Reason: rs.Reason}
	case "console_message":
		s.Message = session.ConsoleMessage{Text: rs.Text, Color: color, Recipient: rs.Recipient}
	case "notification":
		s.Message = session.Notification{Text: rs.Text, Color: color}
	case "aircraft_added":
		s.Message = session.AircraftAdded{Callsign: rs.Callsign}
	case "aircraft_removed":
		s.Message = session.AircraftRemoved{Callsign: rs.Callsign}
	case "window_mode":
		s.Message = session.WindowMode{Window: rs.Window, Mode: rs.Mode}
	case "default_atis":
		s.Message = session.DefaultATIS{Enabled: rs.Enabled}
	default:
		return step{}, fmt.Errorf("unknown step type %q", rs.Type)
	}
	s.Describes = rs.Type
	return s, nil
}

// defaultScript walks through a short session: login, traffic, chat, a
// window change, and logout.
const defaultScript = `
[[step]]
after = "1s"
type = "network_connected"
callsign = "N123AB"

[[step]]
after = "500ms"
type = "aircraft_added"
callsign = "DAL42"

[[step]]
after = "500ms"
type = "aircraft_added"
callsign = "UAL7"

[[step]]
after = "1s"
type = "console_message"
text = "Welcome to the network"
color = 0x00FF00

[[step]]
after = "1s"
type = "console_message"
text = "Contact approach on 124.35"
recipient = "N123AB"

[[step]]
after = "1s"
type = "notification"
text = "Server restart in 10 minutes"
color = 0xFFCC00

[[step]]
after = "1s"
type = "window_mode"
window = "nearby_atc"
mode = "float_centered_or_vr"

[[step]]
after = "2s"
type = "aircraft_removed"
callsign = "UAL7"

[[step]]
after = "5s"
type = "network_disconnected"
reason = "session ended"
`
