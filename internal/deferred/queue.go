package deferred

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/observability"
)

var ErrCommandFailed = errors.New("deferred: command failed")

// Command is one unit of deferred work. Everything it needs is captured when
// it is built; it runs at most once, on the host thread.
type Command func()

// AffinityChecker guards host-only entry points. *hostthread.Guard satisfies it.
type AffinityChecker interface {
	Assert(site string) bool
}

// CommandError describes one command that panicked during a drain.
type CommandError struct {
	Name  string
	Seq   uint64
	Cause any
}

func (e CommandError) Error() string {
	return fmt.Sprintf("%s: name=%q seq=%d cause=%v", ErrCommandFailed, e.Name, e.Seq, e.Cause)
}

func (e CommandError) Unwrap() error {
	return ErrCommandFailed
}

type entry struct {
	name string
	seq  uint64
	run  Command
}

// Queue is a mutex-guarded FIFO of commands. The lock is held only to append
// or swap, never while a command runs.
type Queue struct {
	mu      sync.Mutex
	pending []entry
	seq     uint64
	closed  bool

	guard     AffinityChecker
	onFailure func(CommandError)
}

// NewQueue builds a queue whose drains are checked against guard. A nil guard
// disables the check.
func NewQueue(guard AffinityChecker) *Queue {
	return &Queue{guard: guard}
}

// SetFailureHandler installs a hook called on the host thread for every
// command that panics. Must be set before the first drain.
func (q *Queue) SetFailureHandler(fn func(CommandError)) {
	q.onFailure = fn
}

// Enqueue appends cmd. Safe from any goroutine, including the host itself.
func (q *Queue) Enqueue(cmd Command) {
	q.EnqueueNamed("", cmd)
}

// EnqueueNamed appends cmd with a label used in logs.
func (q *Queue) EnqueueNamed(name string, cmd Command) {
	if cmd == nil {
		logs.Warnf("deferred.Queue.Enqueue nil command name=%q", name)
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		logs.Debugf("deferred.Queue.Enqueue dropped after close name=%q", name)
		observability.RecordDropped()
		return
	}
	q.seq++
	q.pending = append(q.pending, entry{name: name, seq: q.seq, run: cmd})
	depth := len(q.pending)
	q.mu.Unlock()
	observability.RecordEnqueue(depth)
}

// DrainAndExecuteAll runs every command pending at the moment of the call, in
// FIFO order, on the calling (host) thread. It returns how many ran.
func (q *Queue) DrainAndExecuteAll() int {
	if q.guard != nil && !q.guard.Assert("deferred.Queue.DrainAndExecuteAll") {
		return 0
	}
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	failed := 0
	for i := range batch {
		if !q.execute(batch[i]) {
			failed++
		}
		batch[i].run = nil
	}
	observability.RecordDrain(len(batch), failed)
	if failed > 0 {
		logs.Warnf("deferred.Queue.DrainAndExecuteAll batch=%d failed=%d", len(batch), failed)
	}
	return len(batch)
}

func (q *Queue) execute(e entry) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			cerr := CommandError{Name: e.name, Seq: e.seq, Cause: r}
			logs.Errf("deferred.Queue.execute %v", cerr)
			if q.onFailure != nil {
				q.onFailure(cerr)
			}
		}
	}()
	e.run()
	return true
}

// Len reports the commands waiting for the next drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting commands and discards anything still pending, since no
// drain will run again. It returns the number discarded.
func (q *Queue) Close() int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()
	if dropped > 0 {
		logs.Debugf("deferred.Queue.Close discarded=%d", dropped)
	}
	return dropped
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
