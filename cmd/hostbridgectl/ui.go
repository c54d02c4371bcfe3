package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/danmuck/hostbridge/internal/bridge"
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/notify"
	"github.com/danmuck/hostbridge/internal/termhost"
	"github.com/danmuck/hostbridge/internal/windowmode"
)

// ui binds the plugin to the terminal desktop: window bodies, the status row,
// and keys. Everything here runs on the host thread.
type ui struct {
	plugin  *bridge.Plugin
	desktop *termhost.Desktop
	player  notify.Player
	quit    func()
	muted   bool
}

func newUI(p *bridge.Plugin, d *termhost.Desktop, player notify.Player, quit func()) *ui {
	return &ui{plugin: p, desktop: d, player: player, quit: quit}
}

func (u *ui) install(sim *host.Sim) {
	u.desktop.SetBody(bridge.WindowConsole, func() []termhost.BodyLine { return lines(u.plugin.Console()) })
	u.desktop.SetBody(bridge.WindowNotifications, func() []termhost.BodyLine { return lines(u.plugin.Notifications()) })
	u.desktop.SetBody(bridge.WindowNearbyATC, u.nearbyBody)
	u.desktop.SetBody(bridge.WindowPreferences, u.preferencesBody)
	u.desktop.SetStatus(u.statusLine)
	sim.SetDrawHook(u.desktop.Draw)

	u.toggle('c', bridge.WindowConsole)
	u.toggle('n', bridge.WindowNearbyATC)
	u.toggle('p', bridge.WindowPreferences)
	u.toggle('a', bridge.WindowNotifications)

	u.mode('f', windowmode.ModeFloat)
	u.mode('o', windowmode.ModePopOut)
	u.mode('r', windowmode.ModeFloatOrVR)
	u.mode('g', windowmode.ModeFloatCentered)
	u.mode('x', windowmode.ModeClose)

	u.desktop.Bind('v', "ui.toggle_vr", func() { u.desktop.ToggleVR() })
	u.desktop.Bind(' ', "ui.ptt", func() { u.plugin.PressPTT(!u.plugin.Status().PTT) })
	u.desktop.Bind('d', "ui.force_disconnect", func() { u.plugin.ForceDisconnect("disconnected by operator") })
	u.desktop.Bind('t', "ui.default_atis", func() { u.plugin.DisableDefaultATIS(!u.plugin.Status().DefaultATISDisabled) })
	u.desktop.Bind('h', "ui.panel_visible", func() {
		u.plugin.SetNotificationPanelAlwaysVisible(!u.plugin.Status().NotificationPanelAlwaysVisible)
	})
	u.desktop.Bind('m', "ui.mute", u.toggleMute)
	u.desktop.Bind('q', "ui.quit", u.quit)
	u.desktop.BindKey(tcell.KeyEscape, "ui.quit", u.quit)
	u.desktop.BindKey(tcell.KeyCtrlC, "ui.quit", u.quit)
}

func (u *ui) toggle(r rune, name string) {
	u.desktop.Bind(r, "ui.toggle."+name, func() {
		if err := u.plugin.ToggleWindow(name); err != nil {
			logs.Warnf("ui.toggle window=%s err=%v", name, err)
		}
	})
}

// mode keys act on the console window.
func (u *ui) mode(r rune, m windowmode.Mode) {
	u.desktop.Bind(r, "ui.mode."+m.String(), func() {
		if err := u.plugin.ShowWindow(bridge.WindowConsole, m); err != nil {
			logs.Warnf("ui.mode mode=%s err=%v", m, err)
		}
	})
}

func (u *ui) toggleMute() {
	sp, ok := u.player.(*notify.StreamPlayer)
	if !ok {
		return
	}
	u.muted = !u.muted
	sp.SetMuted(u.muted)
}

func (u *ui) statusLine() string {
	st := u.plugin.Status()
	who := "offline"
	if st.Connected {
		who = st.Callsign
	}
	ptt := ""
	if st.PTT {
		ptt = " | PTT"
	}
	return fmt.Sprintf(" %s | relay %s | aircraft %d%s | q quit", who, st.Relay, st.AircraftCount, ptt)
}

func (u *ui) nearbyBody() []termhost.BodyLine {
	st := u.plugin.Status()
	if !st.Connected {
		return []termhost.BodyLine{{Text: "Not connected", Color: tcell.ColorGray}}
	}
	return []termhost.BodyLine{
		{Text: "Callsign: " + st.Callsign},
		{Text: fmt.Sprintf("Aircraft in range: %d", st.AircraftCount)},
	}
}

func (u *ui) preferencesBody() []termhost.BodyLine {
	st := u.plugin.Status()
	return []termhost.BodyLine{
		{Text: "[t] default ATIS disabled: " + onOff(st.DefaultATISDisabled)},
		{Text: "[h] notifications always visible: " + onOff(st.NotificationPanelAlwaysVisible)},
		{Text: "[m] chimes muted: " + onOff(u.muted)},
		{Text: "[v] VR: " + onOff(u.desktop.VREnabled())},
	}
}

func lines(in []bridge.Line) []termhost.BodyLine {
	out := make([]termhost.BodyLine, 0, len(in))
	for _, l := range in {
		text := l.At.Format(time.TimeOnly) + " " + l.Text
		if l.Recipient != "" {
			text = l.At.Format(time.TimeOnly) + " [" + l.Recipient + "] " + l.Text
		}
		out = append(out, termhost.BodyLine{Text: text, Color: tcell.NewHexColor(int32(l.Color))})
	}
	return out
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
