package windowmode

import (
	"errors"
	"sync"

	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/observability"
)

var ErrWindowClosed = errors.New("windowmode: window closed")

// Affinity is the host-thread check the controller needs. *hostthread.Guard
// satisfies it.
type Affinity interface {
	Assert(site string) bool
}

// Config describes one window.
type Config struct {
	Name        string
	Style       Style
	InitialMode Mode
	InitialRect host.Rect
}

// Controller applies mode changes for one window. Request is safe from any
// goroutine; Init and Tick run on the host thread.
type Controller struct {
	cfg   Config
	win   host.WindowAPI
	vr    host.VRSource
	guard Affinity

	sched  host.Scheduler
	loopID host.LoopID

	mu            sync.Mutex
	next          Mode
	current       Mode
	lastFloatRect host.Rect
	knownRect     host.Rect
	closed        bool
	onClose       func()
}

// NewController does not touch the window; call Init on the host thread.
func NewController(cfg Config, win host.WindowAPI, vr host.VRSource, guard Affinity) *Controller {
	if vr == nil {
		vr = host.VRFlag(func() bool { return false })
	}
	return &Controller{cfg: cfg, win: win, vr: vr, guard: guard}
}

func (c *Controller) Name() string {
	return c.cfg.Name
}

// Init applies style and initial geometry. The window starts floating; a
// different initial mode is requested and applied on the next tick, since the
// host refuses mode changes while the window is being set up.
func (c *Controller) Init() {
	if !c.assert("windowmode.Controller.Init") {
		return
	}
	c.win.SetDecoration(c.cfg.Style.Decoration())
	c.win.SetLayer(c.cfg.Style.Layer())
	if !c.cfg.InitialRect.Empty() {
		c.win.SetGeometry(c.cfg.InitialRect)
	}
	c.mu.Lock()
	c.current = ModeFloat
	c.knownRect = c.cfg.InitialRect
	c.mu.Unlock()
	logs.Infof("windowmode.Controller.Init window=%s style=%s", c.cfg.Name, c.cfg.Style)

	switch c.cfg.InitialMode {
	case ModeNone, ModeFloat:
	default:
		c.Request(c.cfg.InitialMode)
	}
}

// AttachScheduler registers a one-shot host callback that runs Tick. Every
// Request re-arms it for the next host loop.
func (c *Controller) AttachScheduler(s host.Scheduler) {
	id := s.Register(func(_, _ float32, _ int, _ any) float32 {
		c.Tick()
		return 0
	}, c.cfg.Name)
	c.mu.Lock()
	c.sched = s
	c.loopID = id
	pending := c.next != ModeNone
	c.mu.Unlock()
	if pending {
		c.arm()
	}
}

// OnClose installs a hook run on the host thread after the window is destroyed.
func (c *Controller) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

// Request records intent as the next mode. Newer requests replace older ones;
// a pending close is never replaced.
func (c *Controller) Request(intent Mode) error {
	if intent == ModeNone {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logs.Debugf("windowmode.Controller.Request ignored window=%s intent=%s closed", c.cfg.Name, intent)
		return ErrWindowClosed
	}
	if c.next == ModeClose && intent != ModeClose {
		c.mu.Unlock()
		logs.Debugf("windowmode.Controller.Request ignored window=%s intent=%s close pending", c.cfg.Name, intent)
		return nil
	}
	if c.current == ModeFloat {
		// The window itself may only be asked on the host thread; Tick keeps
		// knownRect current and re-reads it when the window leaves floating.
		c.lastFloatRect = c.knownRect
	}
	prev := c.next
	c.next = intent
	c.mu.Unlock()

	observability.RecordModeRequest(c.cfg.Name, intent.String())
	if prev != ModeNone {
		logs.Debugf("windowmode.Controller.Request coalesced window=%s prev=%s next=%s", c.cfg.Name, prev, intent)
	}
	c.arm()
	return nil
}

// Tick applies the pending request, if any. It reports whether the windowing
// API was called.
func (c *Controller) Tick() bool {
	if !c.assert("windowmode.Controller.Tick") {
		return false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	intent := c.next
	c.next = ModeNone
	current := c.current
	rect := c.lastFloatRect
	c.mu.Unlock()

	if intent == ModeNone {
		if current == ModeFloat {
			g := c.win.Geometry()
			c.mu.Lock()
			c.knownRect = g
			c.mu.Unlock()
		}
		return false
	}
	if intent == ModeClose {
		c.close()
		return true
	}

	vr := c.vr.VREnabled()
	target, centered := Resolve(intent, vr)
	if target == current && !centered {
		logs.Debugf("windowmode.Controller.Tick no-op window=%s mode=%s", c.cfg.Name, target)
		return false
	}
	if current == ModeFloat {
		rect = c.win.Geometry()
	}
	pos := ToPositioningMode(intent, vr)
	c.win.SetPositioningMode(pos)
	if target == ModeFloat && !centered && current != ModeFloat && !rect.Empty() {
		c.win.SetGeometry(rect)
	}

	c.mu.Lock()
	c.current = target
	c.lastFloatRect = rect
	if target == ModeFloat {
		c.knownRect = c.win.Geometry()
	}
	c.mu.Unlock()

	observability.RecordModeTransition(c.cfg.Name, target.String())
	logs.Infof("windowmode.Controller.Tick window=%s from=%s to=%s positioning=%s vr=%v", c.cfg.Name, current, target, pos, vr)
	return true
}

func (c *Controller) close() {
	c.win.Destroy()
	c.mu.Lock()
	c.closed = true
	c.current = ModeNone
	sched, id := c.sched, c.loopID
	c.sched = nil
	onClose := c.onClose
	c.mu.Unlock()
	if sched != nil {
		sched.Unregister(id)
	}
	observability.RecordModeTransition(c.cfg.Name, ModeClose.String())
	logs.Infof("windowmode.Controller.Tick window=%s closed", c.cfg.Name)
	if onClose != nil {
		onClose()
	}
}

// Mode is the concrete mode last applied.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Pending is the intent waiting for the next tick.
func (c *Controller) Pending() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

func (c *Controller) LastFloatRect() host.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFloatRect
}

func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) arm() {
	c.mu.Lock()
	sched, id := c.sched, c.loopID
	c.mu.Unlock()
	if sched == nil {
		return
	}
	if err := sched.Schedule(id, -1); err != nil {
		logs.Warnf("windowmode.Controller.arm window=%s err=%v", c.cfg.Name, err)
	}
}

func (c *Controller) assert(site string) bool {
	return c.guard == nil || c.guard.Assert(site)
}
