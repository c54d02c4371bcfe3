package bridge

import (
	"context"
	"sync"

	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/notify"
	"github.com/danmuck/hostbridge/internal/protocol/session"
	"github.com/danmuck/hostbridge/internal/relay"
)

type fakeWindow struct {
	name      string
	rect      host.Rect
	pos       host.PositioningMode
	destroyed bool

	// inDraw, when set, reports the host draw phase; calls made during it
	// are counted in duringDraw.
	inDraw     func() bool
	duringDraw int
}

func (w *fakeWindow) touch() {
	if w.inDraw != nil && w.inDraw() {
		w.duringDraw++
	}
}

func (w *fakeWindow) Geometry() host.Rect                   { return w.rect }
func (w *fakeWindow) SetGeometry(r host.Rect)               { w.touch(); w.rect = r }
func (w *fakeWindow) PositioningMode() host.PositioningMode { return w.pos }
func (w *fakeWindow) SetPositioningMode(m host.PositioningMode) {
	w.touch()
	w.pos = m
}
func (w *fakeWindow) SetDecoration(host.Decoration) { w.touch() }
func (w *fakeWindow) SetLayer(host.Layer)           { w.touch() }
func (w *fakeWindow) Destroy()                      { w.touch(); w.destroyed = true }

type fakeFactory struct {
	created []*fakeWindow
	inDraw  func() bool
}

func (f *fakeFactory) CreateWindow(name string, rect host.Rect) (host.WindowAPI, error) {
	w := &fakeWindow{name: name, rect: rect, inDraw: f.inDraw}
	f.created = append(f.created, w)
	return w, nil
}

func (f *fakeFactory) last(name string) *fakeWindow {
	for i := len(f.created) - 1; i >= 0; i-- {
		if f.created[i].name == name {
			return f.created[i]
		}
	}
	return nil
}

type fakeRelay struct {
	mu      sync.Mutex
	started bool
	stopped bool
	state   relay.State
	posted  []session.Message
}

func (r *fakeRelay) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	r.state = relay.StateConnected
	return nil
}

func (r *fakeRelay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.state = relay.StateDisconnected
}

func (r *fakeRelay) Post(msg session.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != relay.StateConnected {
		return relay.ErrNotConnected
	}
	r.posted = append(r.posted, msg)
	return nil
}

func (r *fakeRelay) State() relay.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRelay) sent() []session.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Message(nil), r.posted...)
}

type fakePlayer struct {
	played []notify.Sound
}

func (p *fakePlayer) Play(s notify.Sound) {
	p.played = append(p.played, s)
}
