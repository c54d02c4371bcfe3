package main

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/hostbridge/internal/protocol/frame"
	"github.com/danmuck/hostbridge/internal/protocol/session"
	"github.com/danmuck/hostbridge/internal/testutil/testlog"
)

func TestDefaultScriptDecodes(t *testing.T) {
	testlog.Start(t)

	steps, err := decodeScript(defaultScript)
	if err != nil {
		t.Fatalf("decode default script: %v", err)
	}
	if len(steps) == 0 {
		t.Fatalf("expected steps")
	}
	first, ok := steps[0].Message.(session.NetworkConnected)
	if !ok || first.Callsign != "N123AB" || steps[0].After != time.Second {
		t.Fatalf("unexpected first step: %+v", steps[0])
	}
	last, ok := steps[len(steps)-1].Message.(session.NetworkDisconnected)
	if !ok || last.Reason == "" {
		t.Fatalf("expected script to end with a logout, got %+v", steps[len(steps)-1])
	}
}

func TestScriptRejectsBadSteps(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"type":  "[[step]]\ntype = \"teleport\"\n",
		"after": "[[step]]\nafter = \"later\"\ntype = \"notification\"\n",
		"key":   "[[step]]\ntype = \"notification\"\ncolour = 1\n",
	}
	for name, body := range cases {
		if _, err := decodeScript(body); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func readMessage(t *testing.T, conn net.Conn) session.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := frame.ReadFrame(conn, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	msg, err := session.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func TestHandlePlaysScriptAndAnswersATIS(t *testing.T) {
	testlog.Start(t)

	server, client := net.Pipe()
	defer client.Close()
	steps := []step{
		{Message: session.NetworkConnected{Callsign: "N1"}, Describes: "network_connected"},
		{Message: session.Notification{Text: "hi", Color: session.White}, Describes: "notification"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		handle(ctx, server, steps)
	}()

	if m, ok := readMessage(t, client).(session.NetworkConnected); !ok || m.Callsign != "N1" {
		t.Fatalf("unexpected first push: %#v", m)
	}
	if m, ok := readMessage(t, client).(session.Notification); !ok || m.Text != "hi" {
		t.Fatalf("unexpected second push: %#v", m)
	}

	b, err := session.EncodeFrame(1, session.RequestATIS{Callsign: "KSFO_TWR"}, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_ = client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write(b); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, ok := readMessage(t, client).(session.ConsoleMessage)
	if !ok || reply.Recipient != "KSFO_TWR" || !strings.Contains(reply.Text, "ATIS") {
		t.Fatalf("unexpected ATIS reply: %#v", reply)
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return after the plugin left")
	}
}
