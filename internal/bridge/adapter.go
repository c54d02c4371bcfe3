package bridge

import (
	"slices"
	"sync"

	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/observability"
)

// Ticker is anything the adapter advances once per host callback.
type Ticker interface {
	Tick() bool
}

// Adapter is the periodic host callback.
type Adapter struct {
	queue    *deferred.Queue
	interval float32

	mu      sync.Mutex
	tickers []Ticker
}

// NewAdapter returns an adapter re-armed with interval after every call,
// using the host's convention: > 0 seconds, < 0 loops. Zero means every loop.
func NewAdapter(queue *deferred.Queue, interval float32) *Adapter {
	if interval == 0 {
		interval = -1
	}
	return &Adapter{queue: queue, interval: interval}
}

func (a *Adapter) Add(t Ticker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tickers = append(a.tickers, t)
}

func (a *Adapter) Remove(t Ticker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tickers = slices.DeleteFunc(a.tickers, func(x Ticker) bool { return x == t })
}

// Register installs the adapter with s and arms it.
func (a *Adapter) Register(s host.Scheduler) (host.LoopID, error) {
	id := s.Register(a.FlightLoop, nil)
	if err := s.Schedule(id, a.interval); err != nil {
		s.Unregister(id)
		return 0, err
	}
	logs.Infof("bridge.Adapter.Register loop=%d interval=%v", id, a.interval)
	return id, nil
}

// FlightLoop drains the queue, then ticks every registered ticker. Elapsed
// times are not used, so zero or negative values are harmless.
func (a *Adapter) FlightLoop(sinceLastCall, _ float32, counter int, _ any) float32 {
	observability.RecordHostTick()
	executed := a.queue.DrainAndExecuteAll()

	a.mu.Lock()
	tickers := slices.Clone(a.tickers)
	a.mu.Unlock()
	applied := 0
	for _, t := range tickers {
		if t.Tick() {
			applied++
		}
	}
	if executed > 0 || applied > 0 {
		logs.Tracef("bridge.Adapter.FlightLoop counter=%d since=%.3f executed=%d transitions=%d", counter, sinceLastCall, executed, applied)
	}
	return a.interval
}
