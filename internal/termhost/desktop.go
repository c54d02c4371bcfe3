package termhost

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/logs"
)

var ErrWindowExists = errors.New("termhost: window already exists")

// Scale is how many host pixels one terminal cell covers.
type Scale struct {
	CellW int
	CellH int
}

var DefaultScale = Scale{CellW: 8, CellH: 16}

// BodyLine is one line of window content.
type BodyLine struct {
	Text  string
	Color tcell.Color
}

// Enqueuer receives key actions for the host thread. *deferred.Queue
// satisfies it.
type Enqueuer interface {
	EnqueueNamed(name string, cmd deferred.Command)
}

type binding struct {
	name string
	fn   func()
}

// Desktop owns the screen and every window drawn on it. Window calls and Draw
// run on the host thread; VR state and Pump are safe anywhere.
type Desktop struct {
	screen tcell.Screen
	scale  Scale
	vr     atomic.Bool

	mu      sync.Mutex
	windows []*Window
	bodies  map[string]func() []BodyLine
	status  func() string

	keys  map[tcell.Key]binding
	runes map[rune]binding
}

func NewDesktop(screen tcell.Screen, scale Scale) *Desktop {
	if scale.CellW <= 0 || scale.CellH <= 0 {
		scale = DefaultScale
	}
	return &Desktop{
		screen: screen,
		scale:  scale,
		bodies: make(map[string]func() []BodyLine),
		keys:   make(map[tcell.Key]binding),
		runes:  make(map[rune]binding),
	}
}

// CreateWindow implements host.WindowFactory.
func (d *Desktop) CreateWindow(name string, rect host.Rect) (host.WindowAPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.windows {
		if w.name == name {
			return nil, fmt.Errorf("%w: %s", ErrWindowExists, name)
		}
	}
	w := &Window{desktop: d, name: name, rect: rect, deco: host.DecorationRoundRectangle, layer: host.LayerFloatingWindows}
	d.windows = append(d.windows, w)
	logs.Debugf("termhost.Desktop.CreateWindow name=%s rect=%v", name, rect)
	return w, nil
}

// Window looks up a live window by name.
func (d *Desktop) Window(name string) (*Window, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.windows {
		if w.name == name {
			return w, true
		}
	}
	return nil, false
}

func (d *Desktop) remove(w *Window) {
	d.mu.Lock()
	d.windows = slices.DeleteFunc(d.windows, func(o *Window) bool { return o == w })
	d.mu.Unlock()
}

// SetBody installs the content provider for the window called name. The
// provider runs during Draw, on the host thread.
func (d *Desktop) SetBody(name string, fn func() []BodyLine) {
	d.mu.Lock()
	d.bodies[name] = fn
	d.mu.Unlock()
}

// SetStatus installs the provider for the bottom status row.
func (d *Desktop) SetStatus(fn func() string) {
	d.mu.Lock()
	d.status = fn
	d.mu.Unlock()
}

func (d *Desktop) VREnabled() bool {
	return d.vr.Load()
}

func (d *Desktop) SetVR(enabled bool) {
	d.vr.Store(enabled)
}

func (d *Desktop) ToggleVR() bool {
	for {
		old := d.vr.Load()
		if d.vr.CompareAndSwap(old, !old) {
			logs.Infof("termhost.Desktop.ToggleVR enabled=%v", !old)
			return !old
		}
	}
}

// PixelSize is the host desktop size in pixels, excluding the status row.
func (d *Desktop) PixelSize() (int, int) {
	cols, rows := d.screen.Size()
	if rows > 0 {
		rows--
	}
	return cols * d.scale.CellW, rows * d.scale.CellH
}

// Bind maps a rune key to an action run on the host thread. Must be called
// before Pump.
func (d *Desktop) Bind(r rune, name string, fn func()) {
	d.runes[r] = binding{name: name, fn: fn}
}

func (d *Desktop) BindKey(k tcell.Key, name string, fn func()) {
	d.keys[k] = binding{name: name, fn: fn}
}

// Pump reads terminal events until ctx is done or the screen is finalized.
// Bound keys are handed to q; nothing here touches windows directly.
func (d *Desktop) Pump(ctx context.Context, q Enqueuer) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = d.screen.PostEvent(tcell.NewEventInterrupt(nil))
		case <-stop:
		}
	}()

	for {
		ev := d.screen.PollEvent()
		if ev == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		switch ev := ev.(type) {
		case *tcell.EventResize:
			q.EnqueueNamed("termhost.resize", func() { d.screen.Sync() })
		case *tcell.EventKey:
			b, ok := d.lookup(ev)
			if !ok {
				logs.Tracef("termhost.Desktop.Pump unbound key=%s", ev.Name())
				continue
			}
			q.EnqueueNamed(b.name, b.fn)
		}
	}
}

func (d *Desktop) lookup(ev *tcell.EventKey) (binding, bool) {
	if ev.Key() == tcell.KeyRune {
		b, ok := d.runes[ev.Rune()]
		return b, ok
	}
	b, ok := d.keys[ev.Key()]
	return b, ok
}
