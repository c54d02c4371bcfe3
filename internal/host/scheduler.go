package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/hostbridge/internal/logs"
)

var ErrUnknownLoop = errors.New("host: unknown flight loop")

// FlightLoopFunc is a periodic host callback. The return value arms the next
// call: > 0 seconds from now, < 0 that many host loops from now, 0 deactivates.
type FlightLoopFunc func(sinceLastCall, sinceLastLoop float32, counter int, refcon any) float32

// LoopID identifies a registered callback.
type LoopID int

// Scheduler is the host's periodic callback facility. Schedule and Unregister
// are safe from any goroutine; callbacks always run on the host thread.
type Scheduler interface {
	Register(fn FlightLoopFunc, refcon any) LoopID
	Schedule(id LoopID, interval float32) error
	Unregister(id LoopID)
}

type loop struct {
	id       LoopID
	fn       FlightLoopFunc
	refcon   any
	active   bool
	byLoops  bool
	dueAt    float64
	dueLoop  uint64
	lastCall float64
	rearmed  bool
}

// Sim is a single-threaded host driven by Step or Run on the caller's goroutine.
type Sim struct {
	mu      sync.Mutex
	loops   []*loop
	nextID  LoopID
	now     float64
	counter uint64
	drawing bool
	draw    func()
}

func NewSim() *Sim {
	return &Sim{}
}

// Register adds an inactive callback; Schedule arms it.
func (s *Sim) Register(fn FlightLoopFunc, refcon any) LoopID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.loops = append(s.loops, &loop{id: s.nextID, fn: fn, refcon: refcon, lastCall: s.now})
	return s.nextID
}

func (s *Sim) Schedule(id LoopID, interval float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.find(id)
	if l == nil {
		return ErrUnknownLoop
	}
	s.arm(l, interval)
	l.rearmed = true
	return nil
}

func (s *Sim) Unregister(id LoopID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.loops {
		if l.id == id {
			s.loops = append(s.loops[:i], s.loops[i+1:]...)
			return
		}
	}
}

// SetDrawHook installs the draw phase that runs after callbacks each loop.
func (s *Sim) SetDrawHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draw = fn
}

// InDraw reports whether the draw phase is running. Windowing calls that
// change modes are not allowed while it is.
func (s *Sim) InDraw() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawing
}

// Active reports whether id is armed for a future call.
func (s *Sim) Active(id LoopID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.find(id)
	return l != nil && l.active
}

func (s *Sim) Counter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Step advances host time by dt seconds and runs one host loop: due callbacks
// in registration order, then the draw phase.
func (s *Sim) Step(dt float32) {
	s.mu.Lock()
	s.now += float64(dt)
	s.counter++
	now, counter := s.now, s.counter
	due := make([]*loop, 0, len(s.loops))
	for _, l := range s.loops {
		if !l.active {
			continue
		}
		if (l.byLoops && counter >= l.dueLoop) || (!l.byLoops && now >= l.dueAt) {
			due = append(due, l)
		}
	}
	s.mu.Unlock()

	for _, l := range due {
		s.mu.Lock()
		sinceLast := float32(now - l.lastCall)
		l.lastCall = now
		l.active = false
		l.rearmed = false
		s.mu.Unlock()

		next := l.fn(sinceLast, dt, int(counter), l.refcon)

		s.mu.Lock()
		// A Schedule call that landed while the callback ran survives a zero
		// return; any non-zero return wins.
		if s.find(l.id) != nil && (next != 0 || !l.rearmed) {
			s.arm(l, next)
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	draw := s.draw
	s.drawing = draw != nil
	s.mu.Unlock()
	if draw != nil {
		draw()
		s.mu.Lock()
		s.drawing = false
		s.mu.Unlock()
	}
}

// Run steps the host every frame until ctx is done. The calling goroutine is
// the host thread for the duration.
func (s *Sim) Run(ctx context.Context, frame time.Duration) error {
	if frame <= 0 {
		frame = 16 * time.Millisecond
	}
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	last := time.Now()
	logs.Infof("host.Sim.Run start frame=%s", frame)
	for {
		select {
		case <-ctx.Done():
			logs.Infof("host.Sim.Run stop loops=%d", s.Counter())
			return nil
		case t := <-ticker.C:
			s.Step(float32(t.Sub(last).Seconds()))
			last = t
		}
	}
}

func (s *Sim) find(id LoopID) *loop {
	for _, l := range s.loops {
		if l.id == id {
			return l
		}
	}
	return nil
}

func (s *Sim) arm(l *loop, interval float32) {
	switch {
	case interval > 0:
		l.active = true
		l.byLoops = false
		l.dueAt = s.now + float64(interval)
	case interval < 0:
		l.active = true
		l.byLoops = true
		l.dueLoop = s.counter + uint64(-interval)
	default:
		l.active = false
	}
}
