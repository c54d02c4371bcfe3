package bridge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/hostthread"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/notify"
	"github.com/danmuck/hostbridge/internal/protocol/session"
	"github.com/danmuck/hostbridge/internal/relay"
	"github.com/danmuck/hostbridge/internal/windowmode"
)

var (
	ErrUnknownWindow = errors.New("bridge: unknown window")
	ErrNotEnabled    = errors.New("bridge: plugin not enabled")
)

// Window names known to the plugin.
const (
	WindowConsole       = "console"
	WindowNearbyATC     = "nearby_atc"
	WindowPreferences   = "preferences"
	WindowNotifications = "notifications"
)

// Relay is the network side the plugin drives. *relay.Worker satisfies it.
type Relay interface {
	Start(ctx context.Context) error
	Stop()
	Post(msg session.Message) error
	State() relay.State
}

// Line is one console or notification panel entry.
type Line struct {
	Text      string
	Color     session.RGB
	Recipient string
	At        time.Time
}

type Options struct {
	Guard     *hostthread.Guard
	Queue     *deferred.Queue
	Scheduler host.Scheduler
	Windows   host.WindowFactory
	VR        host.VRSource
	Player    notify.Player

	// Adapter interval in host units; zero means every loop.
	Interval float32
	// Known windows by name.
	WindowConfigs map[string]windowmode.Config
	// Windows opened by deferred startup.
	StartupWindows []string
	ConsoleLimit   int
}

// DefaultWindowConfigs are the plugin's windows and where they first appear.
func DefaultWindowConfigs() map[string]windowmode.Config {
	return map[string]windowmode.Config{
		WindowConsole: {
			Name: WindowConsole, Style: windowmode.StyleSolid, InitialMode: windowmode.ModeFloat,
			InitialRect: host.NewRect(100, 700, 700, 400),
		},
		WindowNearbyATC: {
			Name: WindowNearbyATC, Style: windowmode.StyleSolid, InitialMode: windowmode.ModeFloatCentered,
			InitialRect: host.NewRect(200, 600, 600, 300),
		},
		WindowPreferences: {
			Name: WindowPreferences, Style: windowmode.StyleSolid, InitialMode: windowmode.ModeFloatCenteredOrVR,
			InitialRect: host.NewRect(250, 650, 750, 250),
		},
		WindowNotifications: {
			Name: WindowNotifications, Style: windowmode.StyleHUD, InitialMode: windowmode.ModeFloat,
			InitialRect: host.NewRect(900, 780, 1280, 680),
		},
	}
}

// Plugin owns host-side plugin state.
type Plugin struct {
	guard   *hostthread.Guard
	queue   *deferred.Queue
	sched   host.Scheduler
	factory host.WindowFactory
	vr      host.VRSource
	player  notify.Player
	adapter *Adapter

	windowCfgs     map[string]windowmode.Config
	startupWindows []string
	consoleLimit   int

	relay Relay
	ctx   context.Context

	// Host thread only.
	enabled            bool
	connected          bool
	callsign           string
	aircraft           int
	ptt                bool
	atisDisabled       bool
	panelAlwaysVisible bool
	console            []Line
	notifications      []Line
	adapterID          host.LoopID
	startupID          host.LoopID

	winMu       sync.Mutex
	controllers map[string]*windowmode.Controller

	statusMu sync.RWMutex
	status   Status
}

func NewPlugin(opts Options) *Plugin {
	if opts.Guard == nil {
		opts.Guard = hostthread.NewGuard()
	}
	if opts.Queue == nil {
		opts.Queue = deferred.NewQueue(opts.Guard)
	}
	if opts.Player == nil {
		opts.Player = notify.Silent{}
	}
	if opts.WindowConfigs == nil {
		opts.WindowConfigs = DefaultWindowConfigs()
	}
	if opts.ConsoleLimit <= 0 {
		opts.ConsoleLimit = 500
	}
	p := &Plugin{
		guard:          opts.Guard,
		queue:          opts.Queue,
		sched:          opts.Scheduler,
		factory:        opts.Windows,
		vr:             opts.VR,
		player:         opts.Player,
		adapter:        NewAdapter(opts.Queue, opts.Interval),
		windowCfgs:     maps.Clone(opts.WindowConfigs),
		startupWindows: opts.StartupWindows,
		consoleLimit:   opts.ConsoleLimit,
		aircraft:       1,
		controllers:    make(map[string]*windowmode.Controller),
	}
	p.publish()
	return p
}

// SetRelay attaches the network side. Must be called before Enable.
func (p *Plugin) SetRelay(r Relay) {
	p.relay = r
}

func (p *Plugin) Queue() *deferred.Queue {
	return p.queue
}

func (p *Plugin) Guard() *hostthread.Guard {
	return p.guard
}

// Enable captures the host thread, registers the host loop adapter and arms
// the deferred startup callback for the first host loop. Host thread only.
func (p *Plugin) Enable(ctx context.Context) error {
	if err := p.guard.CaptureHost(); err != nil {
		return err
	}
	if p.sched == nil {
		return fmt.Errorf("bridge: scheduler is required")
	}
	id, err := p.adapter.Register(p.sched)
	if err != nil {
		return err
	}
	p.adapterID = id
	p.ctx = ctx
	p.startupID = p.sched.Register(p.deferredStartup, nil)
	if err := p.sched.Schedule(p.startupID, -1); err != nil {
		return err
	}
	p.enabled = true
	p.publish()
	logs.Infof("bridge.Plugin.Enable adapter=%d startup=%d", p.adapterID, p.startupID)
	return nil
}

// deferredStartup finishes initialization once the host is fully up.
func (p *Plugin) deferredStartup(_, _ float32, _ int, _ any) float32 {
	if p.relay != nil {
		if err := p.relay.Start(p.ctx); err != nil {
			logs.Errf("bridge.Plugin.deferredStartup relay start err=%v", err)
			p.AddConsoleMessage(Line{Text: "Relay failed to start: " + err.Error(), Color: colorError})
		}
	}
	for _, name := range p.startupWindows {
		if err := p.OpenWindow(name); err != nil {
			logs.Warnf("bridge.Plugin.deferredStartup window=%s err=%v", name, err)
		}
	}
	logs.Infof("bridge.Plugin.deferredStartup done windows=%d", len(p.startupWindows))
	return 0
}

// Disable stops the relay, runs what is already queued, then tears down.
// Host thread only.
func (p *Plugin) Disable() {
	if !p.assert("bridge.Plugin.Disable") || !p.enabled {
		return
	}
	if p.relay != nil {
		p.relay.Stop()
	}
	p.queue.DrainAndExecuteAll()
	dropped := p.queue.Close()

	p.winMu.Lock()
	open := make([]*windowmode.Controller, 0, len(p.controllers))
	for _, c := range p.controllers {
		open = append(open, c)
	}
	p.winMu.Unlock()
	for _, c := range open {
		_ = c.Request(windowmode.ModeClose)
		c.Tick()
	}

	p.sched.Unregister(p.startupID)
	p.sched.Unregister(p.adapterID)
	p.enabled = false
	p.publish()
	logs.Infof("bridge.Plugin.Disable dropped=%d windows=%d", dropped, len(open))
}

var (
	colorInfo  = session.NewRGB(255, 255, 255)
	colorOK    = session.NewRGB(0, 255, 0)
	colorError = session.NewRGB(235, 64, 52)
)

// OnNetworkConnected records the network login. Host thread only.
func (p *Plugin) OnNetworkConnected(callsign string) {
	if !p.assert("bridge.Plugin.OnNetworkConnected") {
		return
	}
	p.connected = true
	p.callsign = callsign
	p.appendConsole(Line{Text: "Connected to network as " + callsign, Color: colorOK, At: time.Now()})
	p.player.Play(notify.SoundConnected)
	p.publish()
	logs.Infof("bridge.Plugin.OnNetworkConnected callsign=%s", callsign)
}

// OnNetworkDisconnected resets network state. Host thread only.
func (p *Plugin) OnNetworkDisconnected(reason string) {
	if !p.assert("bridge.Plugin.OnNetworkDisconnected") {
		return
	}
	p.resetNetwork()
	text := "Disconnected from network"
	if reason != "" {
		text += ": " + reason
	}
	p.appendConsole(Line{Text: text, Color: colorError, At: time.Now()})
	p.player.Play(notify.SoundDisconnected)
	p.publish()
	logs.Infof("bridge.Plugin.OnNetworkDisconnected reason=%q", reason)
}

// OnRelayLost is the single notification for a failed relay connection.
// Host thread only.
func (p *Plugin) OnRelayLost(cause string) {
	if !p.assert("bridge.Plugin.OnRelayLost") {
		return
	}
	wasConnected := p.connected
	p.resetNetwork()
	p.appendConsole(Line{Text: "Lost connection to relay: " + cause, Color: colorError, At: time.Now()})
	p.appendNotification(Line{Text: "Relay connection lost", Color: colorError, At: time.Now()})
	if wasConnected {
		p.player.Play(notify.SoundDisconnected)
	}
	p.publish()
	logs.Warnf("bridge.Plugin.OnRelayLost cause=%q", cause)
}

func (p *Plugin) resetNetwork() {
	p.connected = false
	p.callsign = ""
	p.aircraft = 1
	p.ptt = false
}

// AddConsoleMessage appends to the console. Host thread only.
func (p *Plugin) AddConsoleMessage(l Line) {
	if !p.assert("bridge.Plugin.AddConsoleMessage") {
		return
	}
	if l.At.IsZero() {
		l.At = time.Now()
	}
	p.appendConsole(l)
	if l.Recipient != "" {
		p.player.Play(notify.SoundMessage)
	}
	p.publish()
}

// AddNotification shows l on the notification panel and in the console.
// Host thread only.
func (p *Plugin) AddNotification(l Line) {
	if !p.assert("bridge.Plugin.AddNotification") {
		return
	}
	if l.At.IsZero() {
		l.At = time.Now()
	}
	p.appendNotification(l)
	p.appendConsole(l)
	p.publish()
}

func (p *Plugin) appendConsole(l Line) {
	p.console = appendBounded(p.console, l, p.consoleLimit)
}

func (p *Plugin) appendNotification(l Line) {
	p.notifications = appendBounded(p.notifications, l, p.consoleLimit)
}

func appendBounded(lines []Line, l Line, limit int) []Line {
	lines = append(lines, l)
	if over := len(lines) - limit; over > 0 {
		lines = append(lines[:0], lines[over:]...)
	}
	return lines
}

// IncrementAircraftCount counts a newly added network aircraft. Host thread only.
func (p *Plugin) IncrementAircraftCount() {
	if !p.assert("bridge.Plugin.IncrementAircraftCount") {
		return
	}
	p.aircraft++
	p.publish()
}

// DecrementAircraftCount never drops below our own aircraft. Host thread only.
func (p *Plugin) DecrementAircraftCount() {
	if !p.assert("bridge.Plugin.DecrementAircraftCount") {
		return
	}
	if p.aircraft > 1 {
		p.aircraft--
	}
	p.publish()
}

// DisableDefaultATIS mutes the host's own ATIS playback. Host thread only.
func (p *Plugin) DisableDefaultATIS(disabled bool) {
	if !p.assert("bridge.Plugin.DisableDefaultATIS") {
		return
	}
	p.atisDisabled = disabled
	p.publish()
}

// SetNotificationPanelAlwaysVisible keeps the panel open when empty. Host
// thread only.
func (p *Plugin) SetNotificationPanelAlwaysVisible(visible bool) {
	if !p.assert("bridge.Plugin.SetNotificationPanelAlwaysVisible") {
		return
	}
	p.panelAlwaysVisible = visible
	p.publish()
}

// PressPTT records the push-to-talk state and tells the relay. Host thread only.
func (p *Plugin) PressPTT(pressed bool) {
	if !p.assert("bridge.Plugin.PressPTT") {
		return
	}
	if p.ptt == pressed {
		return
	}
	p.ptt = pressed
	p.publish()
	p.post(session.PTT{Pressed: pressed})
}

// ForceDisconnect asks the relay to drop the network session. Host thread only.
func (p *Plugin) ForceDisconnect(reason string) {
	if !p.assert("bridge.Plugin.ForceDisconnect") {
		return
	}
	p.post(session.ForceDisconnect{Reason: reason})
	if reason != "" {
		p.appendConsole(Line{Text: "Forcibly disconnected: " + reason, Color: colorError, At: time.Now()})
		p.publish()
	}
}

// RequestControllerATIS asks the relay for a controller's ATIS. Any goroutine.
func (p *Plugin) RequestControllerATIS(callsign string) error {
	return p.relayPost(session.RequestATIS{Callsign: callsign})
}

// PostConsole queues a console line from any goroutine.
func (p *Plugin) PostConsole(text string, color session.RGB) {
	l := Line{Text: text, Color: color, At: time.Now()}
	p.queue.EnqueueNamed("bridge.console", func() { p.AddConsoleMessage(l) })
}

func (p *Plugin) post(msg session.Message) {
	if err := p.relayPost(msg); err != nil {
		logs.Warnf("bridge.Plugin.post type=%T err=%v", msg, err)
	}
}

func (p *Plugin) relayPost(msg session.Message) error {
	if p.relay == nil {
		return relay.ErrNotConnected
	}
	return p.relay.Post(msg)
}

// OpenWindow creates a known window if it is not already open. Host thread only.
func (p *Plugin) OpenWindow(name string) error {
	_, err := p.openWindow(name)
	return err
}

func (p *Plugin) openWindow(name string) (*windowmode.Controller, error) {
	if !p.assert("bridge.Plugin.OpenWindow") {
		return nil, hostthread.ErrAffinityViolation
	}
	if c := p.controller(name); c != nil {
		return c, nil
	}
	cfg, ok := p.windowCfgs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWindow, name)
	}
	if p.factory == nil {
		return nil, fmt.Errorf("bridge: no window factory")
	}
	win, err := p.factory.CreateWindow(name, cfg.InitialRect)
	if err != nil {
		return nil, fmt.Errorf("bridge: create window %s: %w", name, err)
	}
	c := windowmode.NewController(cfg, win, p.vr, p.guard)
	c.OnClose(func() {
		p.winMu.Lock()
		if p.controllers[name] == c {
			delete(p.controllers, name)
		}
		p.winMu.Unlock()
		p.adapter.Remove(c)
		p.publish()
	})
	p.winMu.Lock()
	p.controllers[name] = c
	p.winMu.Unlock()
	c.Init()
	if p.sched != nil {
		c.AttachScheduler(p.sched)
	}
	p.adapter.Add(c)
	p.publish()
	logs.Infof("bridge.Plugin.OpenWindow window=%s", name)
	return c, nil
}

// ToggleWindow closes an open window or opens a closed one. Host thread only.
func (p *Plugin) ToggleWindow(name string) error {
	if !p.assert("bridge.Plugin.ToggleWindow") {
		return hostthread.ErrAffinityViolation
	}
	if c := p.controller(name); c != nil {
		return c.Request(windowmode.ModeClose)
	}
	return p.OpenWindow(name)
}

// ShowWindow opens name if needed and requests mode. Host thread only.
func (p *Plugin) ShowWindow(name string, mode windowmode.Mode) error {
	c, err := p.openWindow(name)
	if err != nil {
		return err
	}
	return c.Request(mode)
}

// RequestWindowMode is safe from any goroutine. An open window gets the
// request directly; otherwise opening is queued for the host.
func (p *Plugin) RequestWindowMode(name string, mode windowmode.Mode) error {
	if _, ok := p.windowCfgs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWindow, name)
	}
	if c := p.controller(name); c != nil {
		if err := c.Request(mode); !errors.Is(err, windowmode.ErrWindowClosed) {
			return err
		}
	}
	if mode == windowmode.ModeClose {
		return nil
	}
	p.queue.EnqueueNamed("bridge.show_window", func() {
		if err := p.ShowWindow(name, mode); err != nil {
			logs.Warnf("bridge.Plugin.RequestWindowMode window=%s err=%v", name, err)
		}
	})
	return nil
}

func (p *Plugin) controller(name string) *windowmode.Controller {
	p.winMu.Lock()
	defer p.winMu.Unlock()
	c := p.controllers[name]
	if c != nil && c.Closed() {
		return nil
	}
	return c
}

// Console returns a copy of the console. Host thread only.
func (p *Plugin) Console() []Line {
	if !p.assert("bridge.Plugin.Console") {
		return nil
	}
	return append([]Line(nil), p.console...)
}

// Notifications returns a copy of the notification panel. Host thread only.
func (p *Plugin) Notifications() []Line {
	if !p.assert("bridge.Plugin.Notifications") {
		return nil
	}
	return append([]Line(nil), p.notifications...)
}

func (p *Plugin) assert(site string) bool {
	return p.guard.Assert(site)
}

// Status is a point-in-time view of the plugin, safe to read anywhere.
type Status struct {
	Enabled                        bool              `json:"enabled"`
	Connected                      bool              `json:"connected"`
	Callsign                       string            `json:"callsign"`
	AircraftCount                  int               `json:"aircraft_count"`
	PTT                            bool              `json:"ptt"`
	DefaultATISDisabled            bool              `json:"default_atis_disabled"`
	NotificationPanelAlwaysVisible bool              `json:"notification_panel_always_visible"`
	ConsoleLines                   int               `json:"console_lines"`
	LastConsole                    string            `json:"last_console,omitempty"`
	Notifications                  int               `json:"notifications"`
	Windows                        map[string]string `json:"windows"`
	Relay                          string            `json:"relay"`
	QueueDepth                     int               `json:"queue_depth"`
}

// publish snapshots host state for Status. Host thread only.
func (p *Plugin) publish() {
	s := Status{
		Enabled:                        p.enabled,
		Connected:                      p.connected,
		Callsign:                       p.callsign,
		AircraftCount:                  p.aircraft,
		PTT:                            p.ptt,
		DefaultATISDisabled:            p.atisDisabled,
		NotificationPanelAlwaysVisible: p.panelAlwaysVisible,
		ConsoleLines:                   len(p.console),
		Notifications:                  len(p.notifications),
	}
	if n := len(p.console); n > 0 {
		s.LastConsole = p.console[n-1].Text
	}
	p.statusMu.Lock()
	p.status = s
	p.statusMu.Unlock()
}

// Status is safe from any goroutine.
func (p *Plugin) Status() Status {
	p.statusMu.RLock()
	s := p.status
	p.statusMu.RUnlock()
	s.Windows = make(map[string]string)
	p.winMu.Lock()
	for name, c := range p.controllers {
		if !c.Closed() {
			s.Windows[name] = c.Mode().String()
		}
	}
	p.winMu.Unlock()
	s.Relay = relay.StateDisconnected.String()
	if p.relay != nil {
		s.Relay = p.relay.State().String()
	}
	s.QueueDepth = p.queue.Len()
	return s
}

// WindowNames lists the known windows in a stable order.
func (p *Plugin) WindowNames() []string {
	names := make([]string, 0, len(p.windowCfgs))
	for name := range p.windowCfgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
