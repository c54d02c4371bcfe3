package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/protocol/frame"
	"github.com/danmuck/hostbridge/internal/protocol/schema"
	"github.com/danmuck/hostbridge/internal/protocol/session"
	"github.com/danmuck/hostbridge/internal/protocol/tlv"
	"github.com/danmuck/hostbridge/internal/testutil/testlog"
)

// recordingTranslator turns messages into commands that append to a log owned
// by the draining goroutine.
type recordingTranslator struct {
	log *[]string
}

func (tr recordingTranslator) Translate(msg session.Message) deferred.Command {
	switch m := msg.(type) {
	case session.NetworkConnected:
		callsign := m.Callsign
		return func() { *tr.log = append(*tr.log, "connected "+callsign) }
	case session.ConsoleMessage:
		text := m.Text
		return func() { *tr.log = append(*tr.log, "console "+text) }
	default:
		return nil
	}
}

func (tr recordingTranslator) Disconnected(cause error) deferred.Command {
	return func() { *tr.log = append(*tr.log, "disconnected") }
}

type fakeRelay struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &fakeRelay{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			r.conns <- c
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return r
}

func (r *fakeRelay) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-r.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("worker never connected")
		return nil
	}
}

func readMessage(t *testing.T, c net.Conn) session.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := frame.ReadFrame(c, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("relay read: %v", err)
	}
	msg, err := session.Decode(f)
	if err != nil {
		t.Fatalf("relay decode: %v", err)
	}
	return msg
}

func sendMessage(t *testing.T, c net.Conn, id uint64, msg session.Message) {
	t.Helper()
	b, err := session.EncodeFrame(id, msg, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Write(b); err != nil {
		t.Fatalf("relay write: %v", err)
	}
}

func testConfig(addr string) session.Config {
	cfg := session.DefaultConfig()
	cfg.Address = addr
	cfg.ConnectTimeout = time.Second
	cfg.ReceiveTimeout = 50 * time.Millisecond
	cfg.HeartbeatInterval = 0
	cfg.MaxConnectAttempts = 2
	cfg.Backoff = session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startWorker(t *testing.T, cfg session.Config) (*Worker, *deferred.Queue, *[]string) {
	t.Helper()
	var log []string
	q := deferred.NewQueue(nil)
	w, err := NewWorker(cfg, q, recordingTranslator{log: &log})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, q, &log
}

func TestWorkerTranslatesInboundMessages(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	w, q, log := startWorker(t, testConfig(relay.ln.Addr().String()))
	c := relay.accept(t)

	hello, ok := readMessage(t, c).(session.Hello)
	if !ok || hello.SessionID != w.SessionID() || hello.Client == "" {
		t.Fatalf("unexpected hello: %+v", hello)
	}
	waitFor(t, "connected state", func() bool { return w.State() == StateConnected })

	sendMessage(t, c, 1, session.NetworkConnected{Callsign: "DAL123"})
	sendMessage(t, c, 2, session.Heartbeat{TimestampMS: 1})
	sendMessage(t, c, 3, session.ConsoleMessage{Text: "hello", Color: session.White})
	waitFor(t, "two commands", func() bool { return q.Len() == 2 })

	if len(*log) != 0 {
		t.Fatalf("commands ran before drain: %v", *log)
	}
	q.DrainAndExecuteAll()
	if len(*log) != 2 || (*log)[0] != "connected DAL123" || (*log)[1] != "console hello" {
		t.Fatalf("unexpected host log: %v", *log)
	}
}

func TestWorkerDropsMalformedMessageAndKeepsConnection(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	w, q, log := startWorker(t, testConfig(relay.ln.Addr().String()))
	c := relay.accept(t)
	readMessage(t, c)

	bad, err := frame.Encode(frame.Frame{
		Header:  frame.Header{MessageID: 1, MessageType: schema.MsgConsoleMessage},
		Payload: tlv.EncodeFields([]tlv.Field{tlv.String(schema.FieldText, "missing colour")}),
	}, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode bad frame: %v", err)
	}
	if _, err := c.Write(bad); err != nil {
		t.Fatalf("write bad frame: %v", err)
	}
	sendMessage(t, c, 2, session.NetworkConnected{Callsign: "N1"})
	waitFor(t, "valid command after malformed one", func() bool { return q.Len() == 1 })

	if w.ProtocolErrors() != 1 {
		t.Fatalf("expected 1 protocol error, got %d", w.ProtocolErrors())
	}
	if w.State() != StateConnected {
		t.Fatalf("connection dropped on protocol error: %s", w.State())
	}
	q.DrainAndExecuteAll()
	if len(*log) != 1 || (*log)[0] != "connected N1" {
		t.Fatalf("unexpected host log: %v", *log)
	}
}

func TestWorkerSkipsUnreadableFrameAndKeepsConnection(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	cfg := testConfig(relay.ln.Addr().String())
	cfg.MaxPayloadBytes = 128
	w, q, log := startWorker(t, cfg)
	c := relay.accept(t)
	readMessage(t, c)
	waitFor(t, "connected state", func() bool { return w.State() == StateConnected })

	big := frame.EncodeHeader(frame.Header{Magic: frame.Magic, Version: frame.Version, MessageID: 1, PayloadLen: 256})
	future := frame.EncodeHeader(frame.Header{Magic: frame.Magic, Version: frame.Version + 1, MessageID: 2, PayloadLen: 3})
	var raw []byte
	raw = append(raw, big[:]...)
	raw = append(raw, make([]byte, 256)...)
	raw = append(raw, future[:]...)
	raw = append(raw, 'a', 'b', 'c')
	if _, err := c.Write(raw); err != nil {
		t.Fatalf("write unreadable frames: %v", err)
	}
	sendMessage(t, c, 3, session.NetworkConnected{Callsign: "N2"})
	waitFor(t, "command after skipped frames", func() bool { return q.Len() == 1 })

	if w.ProtocolErrors() != 2 {
		t.Fatalf("expected 2 protocol errors, got %d", w.ProtocolErrors())
	}
	if w.State() != StateConnected {
		t.Fatalf("connection dropped on skipped frame: %s", w.State())
	}
	q.DrainAndExecuteAll()
	if len(*log) != 1 || (*log)[0] != "connected N2" {
		t.Fatalf("unexpected host log: %v", *log)
	}
}

// brokenWriteConn fails every Write once broken is set.
type brokenWriteConn struct {
	net.Conn
	broken *atomic.Bool
}

func (c brokenWriteConn) Write(p []byte) (int, error) {
	if c.broken.Load() {
		return 0, errors.New("broken pipe")
	}
	return c.Conn.Write(p)
}

func TestWorkerPostAfterWriteFailureIsNotConnected(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	var broken atomic.Bool
	var log []string
	q := deferred.NewQueue(nil)
	w, err := NewWorker(testConfig(relay.ln.Addr().String()), q, recordingTranslator{log: &log})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	w.SetDialer(func(ctx context.Context, network, address string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return brokenWriteConn{Conn: conn, broken: &broken}, nil
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(w.Stop)
	c := relay.accept(t)
	readMessage(t, c)
	waitFor(t, "connected state", func() bool { return w.State() == StateConnected })

	broken.Store(true)
	if err := w.Post(session.PTT{Pressed: true}); err != nil {
		t.Fatalf("first post should be accepted: %v", err)
	}
	waitFor(t, "writer failure", func() bool { return w.State() == StateDisconnected })
	if err := w.Post(session.PTT{Pressed: false}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after write failure, got %v", err)
	}
	waitFor(t, "disconnect notification", func() bool { return q.Len() == 1 })
	time.Sleep(50 * time.Millisecond)
	if q.Len() != 1 {
		t.Fatalf("expected one disconnect notification, got %d", q.Len())
	}
}

func TestWorkerReportsDisconnectOnceWithoutReconnecting(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	w, q, log := startWorker(t, testConfig(relay.ln.Addr().String()))
	c := relay.accept(t)
	readMessage(t, c)
	_ = c.Close()

	waitFor(t, "disconnect command", func() bool { return q.Len() == 1 })
	waitFor(t, "disconnected state", func() bool { return w.State() == StateDisconnected })
	if err := w.Send(session.PTT{Pressed: true}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	select {
	case <-relay.conns:
		t.Fatalf("worker reconnected on its own")
	case <-time.After(150 * time.Millisecond):
	}
	if q.Len() != 1 {
		t.Fatalf("expected exactly one disconnect notification, got %d", q.Len())
	}
	q.DrainAndExecuteAll()
	if len(*log) != 1 || (*log)[0] != "disconnected" {
		t.Fatalf("unexpected host log: %v", *log)
	}
}

func TestWorkerStopJoinsWithinReceiveTimeout(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	cfg := testConfig(relay.ln.Addr().String())
	w, q, _ := startWorker(t, cfg)
	c := relay.accept(t)
	readMessage(t, c)
	waitFor(t, "connected state", func() bool { return w.State() == StateConnected })

	start := time.Now()
	w.Stop()
	if took := time.Since(start); took > cfg.ReceiveTimeout+500*time.Millisecond {
		t.Fatalf("stop took too long: %s", took)
	}
	if w.State() != StateDisconnected {
		t.Fatalf("unexpected state after stop: %s", w.State())
	}

	// Anything the relay says after the join must never reach the queue.
	b, _ := session.EncodeFrame(9, session.NetworkConnected{Callsign: "LATE"}, frame.DefaultLimits())
	_, _ = c.Write(b)
	time.Sleep(2 * cfg.ReceiveTimeout)
	if q.Len() != 0 {
		t.Fatalf("worker enqueued after stop: %d", q.Len())
	}
}

func TestWorkerConnectFailureNotifiesOnce(t *testing.T) {
	testlog.Start(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	var mu sync.Mutex
	attempts := 0
	var log []string
	q := deferred.NewQueue(nil)
	w, err := NewWorker(testConfig(addr), q, recordingTranslator{log: &log})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	w.SetDialer(func(ctx context.Context, network, address string) (net.Conn, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		var d net.Dialer
		return d.DialContext(ctx, network, address)
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	waitFor(t, "disconnect notification", func() bool { return q.Len() == 1 })
	waitFor(t, "disconnected state", func() bool { return w.State() == StateDisconnected })
	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected bounded attempts, got %d", attempts)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestWorkerSendReachesRelay(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	w, _, _ := startWorker(t, testConfig(relay.ln.Addr().String()))
	c := relay.accept(t)
	readMessage(t, c)
	waitFor(t, "connected state", func() bool { return w.State() == StateConnected })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Send(session.PTT{Pressed: true}); err != nil {
				t.Errorf("send: %v", err)
			}
		}()
	}
	wg.Wait()
	for i := 0; i < 4; i++ {
		if msg, ok := readMessage(t, c).(session.PTT); !ok || !msg.Pressed {
			t.Fatalf("unexpected outbound message: %+v", msg)
		}
	}
}

func TestWorkerHeartbeat(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	cfg := testConfig(relay.ln.Addr().String())
	cfg.HeartbeatInterval = 20 * time.Millisecond
	startWorker(t, cfg)
	c := relay.accept(t)
	readMessage(t, c)
	if hb, ok := readMessage(t, c).(session.Heartbeat); !ok || hb.TimestampMS == 0 {
		t.Fatalf("expected heartbeat, got %+v", hb)
	}
}

func TestWorkerPostIsWrittenInOrder(t *testing.T) {
	testlog.Start(t)

	relay := newFakeRelay(t)
	w, _, _ := startWorker(t, testConfig(relay.ln.Addr().String()))
	c := relay.accept(t)
	readMessage(t, c)
	waitFor(t, "connected state", func() bool { return w.State() == StateConnected })

	if err := w.Post(session.RequestATIS{Callsign: "KSEA_ATIS"}); err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := w.Post(session.ForceDisconnect{Reason: "bye"}); err != nil {
		t.Fatalf("post: %v", err)
	}
	if m, ok := readMessage(t, c).(session.RequestATIS); !ok || m.Callsign != "KSEA_ATIS" {
		t.Fatalf("unexpected first message: %+v", m)
	}
	if m, ok := readMessage(t, c).(session.ForceDisconnect); !ok || m.Reason != "bye" {
		t.Fatalf("unexpected second message: %+v", m)
	}
}
