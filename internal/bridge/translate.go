package bridge

import (
	"time"

	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/protocol/session"
	"github.com/danmuck/hostbridge/internal/windowmode"
)

// Translate maps an inbound relay message to a host command. It runs on the
// relay goroutine: everything the command needs is copied out of msg here.
func (p *Plugin) Translate(msg session.Message) deferred.Command {
	switch m := msg.(type) {
	case session.NetworkConnected:
		callsign := m.Callsign
		return func() { p.OnNetworkConnected(callsign) }
	case session.NetworkDisconnected:
		reason := m.Reason
		return func() { p.OnNetworkDisconnected(reason) }
	case session.ConsoleMessage:
		l := Line{Text: m.Text, Color: m.Color, Recipient: m.Recipient, At: time.Now()}
		return func() { p.AddConsoleMessage(l) }
	case session.Notification:
		l := Line{Text: m.Text, Color: m.Color, At: time.Now()}
		return func() { p.AddNotification(l) }
	case session.AircraftAdded:
		return p.IncrementAircraftCount
	case session.AircraftRemoved:
		return p.DecrementAircraftCount
	case session.DefaultATIS:
		disabled := !m.Enabled
		return func() { p.DisableDefaultATIS(disabled) }
	case session.WindowMode:
		mode, err := windowmode.ParseMode(m.Mode)
		if err != nil {
			logs.Warnf("bridge.Plugin.Translate window=%s err=%v", m.Window, err)
			return nil
		}
		name := m.Window
		return func() {
			if err := p.ShowWindow(name, mode); err != nil {
				logs.Warnf("bridge.Plugin.ShowWindow window=%s err=%v", name, err)
			}
		}
	case session.Hello, session.Heartbeat:
		return nil
	default:
		logs.Debugf("bridge.Plugin.Translate unhandled type=%T", msg)
		return nil
	}
}

// Disconnected builds the single notification for a lost relay connection.
func (p *Plugin) Disconnected(cause error) deferred.Command {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return func() { p.OnRelayLost(reason) }
}
