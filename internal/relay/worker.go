package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/observability"
	"github.com/danmuck/hostbridge/internal/protocol/frame"
	"github.com/danmuck/hostbridge/internal/protocol/schema"
	"github.com/danmuck/hostbridge/internal/protocol/session"
)

var (
	ErrConnection     = errors.New("relay: connection error")
	ErrNotConnected   = errors.New("relay: not connected")
	ErrAlreadyStarted = errors.New("relay: worker already started")
	ErrOutboxFull     = errors.New("relay: outbox full")

	errStopped = errors.New("relay: stopped")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Enqueuer is the producer side of the deferred queue.
type Enqueuer interface {
	EnqueueNamed(name string, cmd deferred.Command)
}

// Translator turns relay traffic into host commands. It runs on the worker
// goroutine, so it must only capture values, never touch host state. A nil
// command means nothing to do.
type Translator interface {
	Translate(msg session.Message) deferred.Command
	Disconnected(cause error) deferred.Command
}

// OutboxSize bounds messages queued by Post while the writer catches up.
const OutboxSize = 64

// DialFunc opens the relay connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Worker owns the relay socket and its goroutines.
type Worker struct {
	cfg    session.Config
	limits frame.Limits
	queue  Enqueuer
	tr     Translator
	dial   DialFunc

	sessionID string
	state     atomic.Int32
	keepAlive atomic.Bool
	writerUp  atomic.Bool
	protoErrs atomic.Uint64
	nextMsgID atomic.Uint64

	outbox chan session.Message

	mu       sync.Mutex
	conn     net.Conn
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	writeMu    sync.Mutex
	notifyOnce sync.Once
}

// NewWorker validates cfg; it does not connect.
func NewWorker(cfg session.Config, queue Enqueuer, tr Translator) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if queue == nil || tr == nil {
		return nil, fmt.Errorf("relay: queue and translator are required")
	}
	limits := frame.DefaultLimits()
	if cfg.MaxPayloadBytes > 0 {
		limits.MaxPayloadBytes = cfg.MaxPayloadBytes
	}
	d := &net.Dialer{Timeout: cfg.ConnectTimeout}
	return &Worker{
		cfg:       cfg,
		limits:    limits,
		queue:     queue,
		tr:        tr,
		dial:      d.DialContext,
		sessionID: uuid.NewString(),
		outbox:    make(chan session.Message, OutboxSize),
		stop:      make(chan struct{}),
	}, nil
}

// SetDialer replaces the dialer. Must be called before Start.
func (w *Worker) SetDialer(d DialFunc) {
	w.dial = d
}

func (w *Worker) SessionID() string {
	return w.sessionID
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// ProtocolErrors counts inbound messages dropped as malformed.
func (w *Worker) ProtocolErrors() uint64 {
	return w.protoErrs.Load()
}

// Start spawns the worker goroutine and returns immediately; connecting
// happens in the background so the host thread never waits on the network.
// The worker runs until Stop, ctx cancellation or a connection failure.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	w.keepAlive.Store(true)
	w.setState(StateConnecting)
	w.wg.Add(1)
	go w.run(ctx)
	logs.Infof("relay.Worker.Start session=%s address=%s", w.sessionID, w.cfg.Address)
	return nil
}

// Stop clears keep-alive and waits for the worker goroutines to exit. The
// receive loop notices within one receive timeout. Blocking; shutdown only.
func (w *Worker) Stop() {
	w.keepAlive.Store(false)
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	w.setState(StateDisconnected)
	logs.Infof("relay.Worker.Stop session=%s protocol_errors=%d", w.sessionID, w.protoErrs.Load())
}

// Post queues msg for the writer goroutine and never blocks, so the host
// thread can use it. Once a write has failed it returns ErrNotConnected.
func (w *Worker) Post(msg session.Message) error {
	if w.State() != StateConnected || !w.writerUp.Load() {
		return ErrNotConnected
	}
	select {
	case w.outbox <- msg:
		return nil
	default:
		logs.Warnf("relay.Worker.Post outbox full type=%s", schema.Name(msg.Type()))
		return ErrOutboxFull
	}
}

// Send writes one outbound message and waits for the write. Safe from any
// goroutine.
func (w *Worker) Send(msg session.Message) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil || w.State() != StateConnected {
		return ErrNotConnected
	}
	return w.write(conn, msg)
}

func (w *Worker) write(conn net.Conn, msg session.Message) error {
	b, err := session.EncodeFrame(w.nextMsgID.Add(1), msg, w.limits)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrConnection, err)
	}
	if _, err := conn.Write(b); err != nil {
		logs.Warnf("relay.Worker.Send type=%s err=%v", schema.Name(msg.Type()), err)
		// The receive loop sees the closed socket and reports the disconnect.
		w.setState(StateDisconnected)
		_ = conn.Close()
		return fmt.Errorf("%w: write: %w", ErrConnection, err)
	}
	observability.RecordRelayFrame("out", schema.Name(msg.Type()))
	return nil
}

func (w *Worker) running(ctx context.Context) bool {
	return w.keepAlive.Load() && ctx.Err() == nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	conn, err := w.connect(ctx)
	if err != nil {
		if !errors.Is(err, errStopped) {
			w.fail(err)
		}
		w.setState(StateDisconnected)
		return
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.Close()
	}()

	if err := w.write(conn, session.Hello{SessionID: w.sessionID, Client: w.cfg.Client}); err != nil {
		w.fail(err)
		return
	}

	// Connected is published only once Post has a live writer behind it.
	writerDone := make(chan struct{})
	w.writerUp.Store(true)
	w.wg.Add(1)
	go w.writer(ctx, conn, writerDone)
	defer close(writerDone)
	w.setState(StateConnected)

	err = w.receive(ctx, conn)
	if errors.Is(err, errStopped) {
		logs.Debugf("relay.Worker.run stopped session=%s", w.sessionID)
		return
	}
	w.fail(err)
}

func (w *Worker) connect(ctx context.Context) (net.Conn, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxConnectAttempts; attempt++ {
		if !w.running(ctx) {
			return nil, errStopped
		}
		dialCtx, cancel := context.WithTimeout(ctx, w.cfg.ConnectTimeout)
		conn, err := w.dial(dialCtx, "tcp", w.cfg.Address)
		cancel()
		if err == nil {
			logs.Infof("relay.Worker.connect ok address=%s attempt=%d", w.cfg.Address, attempt)
			return conn, nil
		}
		lastErr = err
		logs.Warnf("relay.Worker.connect failed address=%s attempt=%d/%d err=%v", w.cfg.Address, attempt, w.cfg.MaxConnectAttempts, err)
		if attempt == w.cfg.MaxConnectAttempts {
			break
		}
		delay := w.cfg.Backoff.Delay(attempt, rng)
		select {
		case <-time.After(delay):
		case <-w.stop:
			return nil, errStopped
		case <-ctx.Done():
			return nil, errStopped
		}
	}
	return nil, fmt.Errorf("%w: dial %s after %d attempts: %w", ErrConnection, w.cfg.Address, w.cfg.MaxConnectAttempts, lastErr)
}

func (w *Worker) receive(ctx context.Context, conn net.Conn) error {
	r := &wakeReader{conn: conn, timeout: w.cfg.ReceiveTimeout, alive: func() bool { return w.running(ctx) }}
	for {
		f, err := frame.ReadFrame(r, w.limits)
		if errors.Is(err, frame.ErrDiscarded) {
			w.protocolError(err)
			continue
		}
		if err != nil {
			if errors.Is(err, errStopped) {
				return errStopped
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: relay closed the connection", ErrConnection)
			}
			return fmt.Errorf("%w: read: %w", ErrConnection, err)
		}
		name := schema.Name(f.Header.MessageType)
		observability.RecordRelayFrame("in", name)
		msg, err := session.Decode(f)
		if err != nil {
			w.protocolError(fmt.Errorf("id=%d: %w", f.Header.MessageID, err))
			continue
		}
		cmd := w.tr.Translate(msg)
		if cmd == nil {
			logs.Tracef("relay.Worker.receive no command type=%s", name)
			continue
		}
		w.queue.EnqueueNamed("relay."+name, cmd)
	}
}

// protocolError drops one inbound message; the connection stays up.
func (w *Worker) protocolError(err error) {
	w.protoErrs.Add(1)
	observability.RecordRelayProtocolError()
	logs.Warnf("relay.Worker.receive dropped err=%v", err)
}

// writer drains the outbox and sends heartbeats.
func (w *Worker) writer(ctx context.Context, conn net.Conn, done <-chan struct{}) {
	defer w.wg.Done()
	defer func() {
		w.writerUp.Store(false)
		if n := len(w.outbox); n > 0 {
			logs.Warnf("relay.Worker.writer exit dropped=%d", n)
		}
	}()
	var tick <-chan time.Time
	if w.cfg.HeartbeatInterval > 0 {
		ticker := time.NewTicker(w.cfg.HeartbeatInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-done:
			return
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case msg := <-w.outbox:
			if err := w.write(conn, msg); err != nil {
				return
			}
		case now := <-tick:
			if err := w.write(conn, session.Heartbeat{TimestampMS: uint64(now.UnixMilli())}); err != nil {
				return
			}
		}
	}
}

// fail reports the connection loss to the host exactly once.
func (w *Worker) fail(cause error) {
	w.setState(StateDisconnected)
	w.notifyOnce.Do(func() {
		observability.RecordRelayDisconnect()
		logs.Errf("relay.Worker disconnected session=%s err=%v", w.sessionID, cause)
		if cmd := w.tr.Disconnected(cause); cmd != nil {
			w.queue.EnqueueNamed("relay.disconnected", cmd)
		}
	})
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	observability.RecordRelayState(int(s))
}

// wakeReader turns read deadlines into periodic keep-alive checks without
// losing bytes of a partially read frame.
type wakeReader struct {
	conn    net.Conn
	timeout time.Duration
	alive   func() bool
}

func (r *wakeReader) Read(p []byte) (int, error) {
	for {
		if !r.alive() {
			return 0, errStopped
		}
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
		n, err := r.conn.Read(p)
		if n > 0 {
			return n, nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		return 0, err
	}
}
