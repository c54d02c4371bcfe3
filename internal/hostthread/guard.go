package hostthread

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/danmuck/hostbridge/internal/logs"
)

var (
	ErrHostAlreadyCaptured = errors.New("hostthread: host thread already captured")
	ErrAffinityViolation   = errors.New("hostthread: host-only state touched off the host thread")
)

// Token identifies one OS thread. Zero means "not captured".
type Token int64

// Guard records the host thread once and answers affinity queries from any
// goroutine.
type Guard struct {
	host       atomic.Int64
	strict     atomic.Bool
	violations atomic.Uint64
}

func NewGuard() *Guard {
	g := &Guard{}
	g.strict.Store(defaultStrict)
	return g
}

// CaptureHost marks the calling goroutine's thread as the host thread and
// locks the goroutine to it. Must run on the goroutine that will drive the
// host loop. Repeating the call from the host thread is a no-op.
func (g *Guard) CaptureHost() error {
	runtime.LockOSThread()
	tok := currentToken()
	if g.host.CompareAndSwap(0, int64(tok)) {
		logs.Infof("hostthread.Guard.CaptureHost host=%d", tok)
		return nil
	}
	// Balance the lock taken above; the first capture keeps its own.
	runtime.UnlockOSThread()
	host := Token(g.host.Load())
	if host == tok {
		return nil
	}
	err := fmt.Errorf("%w: host=%d caller=%d", ErrHostAlreadyCaptured, host, tok)
	logs.Errf("hostthread.Guard.CaptureHost rejected host=%d caller=%d", host, tok)
	if g.strict.Load() {
		panic(err)
	}
	return err
}

// IsHostThread never blocks and never allocates.
func (g *Guard) IsHostThread() bool {
	host := g.host.Load()
	return host != 0 && Token(host) == currentToken()
}

// Assert checks affinity at a host-state mutation site. Strict guards panic on
// a violation; others log it and report false.
func (g *Guard) Assert(site string) bool {
	if g.IsHostThread() {
		return true
	}
	g.violations.Add(1)
	host := Token(g.host.Load())
	logs.Errf("hostthread.Guard.Assert violation site=%q host=%d caller=%d", site, host, currentToken())
	if g.strict.Load() {
		panic(fmt.Errorf("%w: site=%s", ErrAffinityViolation, site))
	}
	return false
}

func (g *Guard) Host() Token {
	return Token(g.host.Load())
}

func (g *Guard) Captured() bool {
	return g.host.Load() != 0
}

// SetStrict switches between panic-on-violation and log-only.
func (g *Guard) SetStrict(strict bool) {
	g.strict.Store(strict)
}

func (g *Guard) Strict() bool {
	return g.strict.Load()
}

// Violations counts failed Assert calls since construction.
func (g *Guard) Violations() uint64 {
	return g.violations.Load()
}
