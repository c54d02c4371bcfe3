package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/hostbridge/internal/logging"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/protocol/frame"
	"github.com/danmuck/hostbridge/internal/protocol/schema"
	"github.com/danmuck/hostbridge/internal/protocol/session"
)

// relaysim is a stand-in relay: it accepts plugin connections, logs what the
// plugin sends, and plays a script of pushes back.
func main() {
	addr := flag.String("addr", session.DefaultConfig().Address, "listen address")
	scriptPath := flag.String("script", "", "TOML script of pushes (built-in script when empty)")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.Configure(logging.ProfileRuntime, logging.WithLevel(*level))

	steps, err := decodeScript(defaultScript)
	if *scriptPath != "" {
		steps, err = loadScript(*scriptPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaysim: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, *addr, steps); err != nil {
		fmt.Fprintf(os.Stderr, "relaysim: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr string, steps []step) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	logs.Infof("relaysim.serve listen=%s steps=%d", ln.Addr(), len(steps))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		// One plugin at a time, like the real relay.
		handle(ctx, conn, steps)
	}
}

type peer struct {
	conn   net.Conn
	limits frame.Limits
	mu     sync.Mutex
	nextID uint64
}

func (p *peer) send(m session.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	b, err := session.EncodeFrame(p.nextID, m, p.limits)
	if err != nil {
		return err
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = p.conn.Write(b)
	return err
}

func handle(ctx context.Context, conn net.Conn, steps []step) {
	defer conn.Close()
	p := &peer{conn: conn, limits: frame.DefaultLimits()}
	logs.Infof("relaysim.handle plugin connected remote=%s", conn.RemoteAddr())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		p.readLoop()
	}()

	for _, s := range steps {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			logs.Infof("relaysim.handle plugin left before script finished")
			return
		case <-time.After(s.After):
		}
		if err := p.send(s.Message); err != nil {
			logs.Warnf("relaysim.handle send step=%s err=%v", s.Describes, err)
			return
		}
		logs.Infof("relaysim.handle pushed %s", s.Describes)
	}
	select {
	case <-ctx.Done():
	case <-readDone:
	}
}

func (p *peer) readLoop() {
	for {
		f, err := frame.ReadFrame(p.conn, p.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logs.Warnf("relaysim.readLoop err=%v", err)
			}
			return
		}
		msg, err := session.Decode(f)
		if err != nil {
			logs.Warnf("relaysim.readLoop drop type=%s err=%v", schema.Name(f.Header.MessageType), err)
			continue
		}
		p.reply(msg)
	}
}

// reply answers plugin requests the way a relay would.
func (p *peer) reply(msg session.Message) {
	switch m := msg.(type) {
	case session.Hello:
		logs.Infof("relaysim hello session=%s client=%s", m.SessionID, m.Client)
	case session.Heartbeat:
		logs.Debugf("relaysim heartbeat ts=%d", m.TimestampMS)
	case session.PTT:
		logs.Infof("relaysim ptt pressed=%v", m.Pressed)
	case session.DefaultATIS:
		logs.Infof("relaysim default_atis enabled=%v", m.Enabled)
	case session.ForceDisconnect:
		logs.Infof("relaysim force_disconnect reason=%q", m.Reason)
		_ = p.send(session.NetworkDisconnected{Reason: m.Reason})
	case session.RequestATIS:
		logs.Infof("relaysim request_atis callsign=%s", m.Callsign)
		_ = p.send(session.ConsoleMessage{
			Text:      m.Callsign + " ATIS information Alpha, wind calm, altimeter 2992",
			Color:     session.NewRGB(0, 191, 255),
			Recipient: m.Callsign,
		})
	default:
		logs.Debugf("relaysim unhandled %T", msg)
	}
}
