package termhost

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/danmuck/hostbridge/internal/deferred"
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/testutil/testlog"
)

// 80x25 cells at the default scale is a 640x384 pixel desktop plus the
// status row.
func newDesktop(t *testing.T) (*Desktop, tcell.SimulationScreen) {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	if err := s.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	s.SetSize(80, 25)
	t.Cleanup(s.Fini)
	return NewDesktop(s, DefaultScale), s
}

func cell(s tcell.Screen, x, y int) rune {
	r, _, _, _ := s.GetContent(x, y)
	return r
}

func row(s tcell.Screen, y int) string {
	return rowFrom(s, 0, y)
}

func rowFrom(s tcell.Screen, x0, y int) string {
	cols, _ := s.Size()
	var b strings.Builder
	for x := x0; x < cols; x++ {
		b.WriteRune(cell(s, x, y))
	}
	return b.String()
}

// consoleRect lands at cell (10,2) and is 20x6 cells.
var consoleRect = host.NewRect(80, 352, 240, 256)

func TestDrawWindowFrameTitleAndBody(t *testing.T) {
	testlog.Start(t)

	d, s := newDesktop(t)
	if _, err := d.CreateWindow("console", consoleRect); err != nil {
		t.Fatalf("create: %v", err)
	}
	d.SetBody("console", func() []BodyLine {
		return []BodyLine{{Text: "one", Color: tcell.ColorDefault}, {Text: "two", Color: tcell.NewHexColor(0xFF0000)}}
	})
	d.SetStatus(func() string { return "relay connected" })
	d.Draw()

	if got := cell(s, 10, 2); got != '╭' {
		t.Fatalf("expected top-left corner, got %q", got)
	}
	if got := cell(s, 29, 7); got != '╯' {
		t.Fatalf("expected bottom-right corner, got %q", got)
	}
	if !strings.Contains(row(s, 2), "console") {
		t.Fatalf("expected title on top border: %q", row(s, 2))
	}
	if !strings.HasPrefix(rowFrom(s, 11, 3), "one") || !strings.HasPrefix(rowFrom(s, 11, 4), "two") {
		t.Fatalf("unexpected body rows: %q %q", row(s, 3), row(s, 4))
	}
	status := row(s, 24)
	if !strings.Contains(status, "relay connected") || !strings.Contains(status, "vr off") {
		t.Fatalf("unexpected status row: %q", status)
	}
}

func TestBodyKeepsNewestLines(t *testing.T) {
	testlog.Start(t)

	d, s := newDesktop(t)
	if _, err := d.CreateWindow("console", consoleRect); err != nil {
		t.Fatalf("create: %v", err)
	}
	d.SetBody("console", func() []BodyLine {
		var out []BodyLine
		for _, txt := range []string{"l1", "l2", "l3", "l4", "l5", "l6"} {
			out = append(out, BodyLine{Text: txt})
		}
		return out
	})
	d.Draw()
	// Four interior rows: l3..l6.
	if !strings.HasPrefix(rowFrom(s, 11, 3), "l3") || !strings.HasPrefix(rowFrom(s, 11, 6), "l6") {
		t.Fatalf("expected newest lines, got %q .. %q", row(s, 3), row(s, 6))
	}
}

func TestCreateWindowRejectsDuplicateUntilDestroyed(t *testing.T) {
	testlog.Start(t)

	d, _ := newDesktop(t)
	w, err := d.CreateWindow("console", consoleRect)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := d.CreateWindow("console", consoleRect); !errors.Is(err, ErrWindowExists) {
		t.Fatalf("expected ErrWindowExists, got %v", err)
	}
	w.Destroy()
	if _, ok := d.Window("console"); ok {
		t.Fatalf("destroyed window still listed")
	}
	if _, err := d.CreateWindow("console", consoleRect); err != nil {
		t.Fatalf("recreate after destroy: %v", err)
	}
}

func TestVRWindowsMoveToStatusRow(t *testing.T) {
	testlog.Start(t)

	d, s := newDesktop(t)
	w, _ := d.CreateWindow("console", consoleRect)
	d.SetVR(true)
	w.SetPositioningMode(host.PositionVR)
	d.Draw()

	if got := cell(s, 10, 2); got == '╭' {
		t.Fatalf("VR window drawn on the desktop")
	}
	if status := row(s, 24); !strings.Contains(status, "vr on: console") {
		t.Fatalf("expected VR window on status row: %q", status)
	}
	if w.Geometry() != consoleRect {
		t.Fatalf("VR mode should keep desktop geometry")
	}
	if on := d.ToggleVR(); on || d.VREnabled() {
		t.Fatalf("expected VR off after toggle")
	}
}

func TestCenterAndFullscreenRewriteGeometry(t *testing.T) {
	testlog.Start(t)

	d, _ := newDesktop(t)
	w, _ := d.CreateWindow("prefs", host.NewRect(0, 96, 160, 0))
	w.SetPositioningMode(host.PositionCenterOnMonitor)
	if got, want := w.Geometry(), host.NewRect(240, 240, 400, 144); got != want {
		t.Fatalf("centered geometry = %+v, want %+v", got, want)
	}
	if w.PositioningMode() != host.PositionCenterOnMonitor {
		t.Fatalf("unexpected positioning mode %s", w.PositioningMode())
	}
	w.SetPositioningMode(host.PositionFullScreenOnMonitor)
	if got, want := w.Geometry(), host.NewRect(0, 384, 640, 0); got != want {
		t.Fatalf("fullscreen geometry = %+v, want %+v", got, want)
	}
	w.SetPositioningMode(host.PositionFree)
	w.SetGeometry(consoleRect)
	if w.Geometry() != consoleRect {
		t.Fatalf("free window should accept geometry")
	}
}

func TestPopOutUsesDoubleFrame(t *testing.T) {
	testlog.Start(t)

	d, s := newDesktop(t)
	w, _ := d.CreateWindow("console", consoleRect)
	w.SetPositioningMode(host.PositionPopOut)
	d.Draw()
	if got := cell(s, 10, 2); got != '╔' {
		t.Fatalf("expected double frame, got %q", got)
	}
	if !strings.Contains(row(s, 2), " cons… [popout] ") {
		t.Fatalf("expected shortened name and popout tag: %q", row(s, 2))
	}
}

func TestTitleKeepsPopoutTag(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name   string
		popout bool
		width  int
		want   string
	}{
		{"console", false, 16, " console "},
		{"console", true, 20, " console [popout] "},
		{"console", true, 16, " cons… [popout] "},
		{"console", true, 12, " c [popout] "},
		{"console", true, 8, " [popout] "},
		{"nearby_atc", false, 6, " nea… "},
	}
	for _, tc := range cases {
		got := title(tc.name, tc.popout, tc.width)
		if got != tc.want {
			t.Fatalf("title(%q, %v, %d) = %q, want %q", tc.name, tc.popout, tc.width, got, tc.want)
		}
		if tc.popout && !strings.Contains(got, "[popout]") {
			t.Fatalf("popout tag dropped at width %d: %q", tc.width, got)
		}
	}
}

func TestDrawOrdersByLayer(t *testing.T) {
	testlog.Start(t)

	d, s := newDesktop(t)
	top, _ := d.CreateWindow("console", consoleRect)
	top.SetLayer(host.LayerFloatingWindows)
	hud, _ := d.CreateWindow("notifications", consoleRect)
	hud.SetLayer(host.LayerFlightOverlay)
	hud.SetDecoration(host.DecorationNone)
	d.Draw()
	if got := cell(s, 10, 2); got != '╭' {
		t.Fatalf("overlay layer drawn above floating window: %q", got)
	}
}

type recordingQueue struct {
	names chan string
}

func (q *recordingQueue) EnqueueNamed(name string, cmd deferred.Command) {
	q.names <- name
}

func TestPumpEnqueuesBoundKeys(t *testing.T) {
	testlog.Start(t)

	d, s := newDesktop(t)
	d.Bind('c', "termhost.toggle_console", func() {})
	d.BindKey(tcell.KeyEscape, "termhost.quit", func() {})
	q := &recordingQueue{names: make(chan string, 8)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Pump(ctx, q)
	}()

	s.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	s.InjectKey(tcell.KeyRune, 'c', tcell.ModNone)
	s.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)

	var got []string
	for len(got) < 2 {
		select {
		case name := <-q.names:
			if strings.HasPrefix(name, "termhost.resize") {
				continue
			}
			got = append(got, name)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for key actions, got %v", got)
		}
	}
	if got[0] != "termhost.toggle_console" || got[1] != "termhost.quit" {
		t.Fatalf("unexpected actions: %v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pump did not stop after cancel")
	}
}

func TestPumpRunsActionsThroughQueue(t *testing.T) {
	testlog.Start(t)

	d, s := newDesktop(t)
	q := deferred.NewQueue(nil)
	toggled := make(chan struct{}, 1)
	d.Bind('v', "termhost.toggle_vr", func() {
		d.ToggleVR()
		toggled <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Pump(ctx, q)
	s.InjectKey(tcell.KeyRune, 'v', tcell.ModNone)

	deadline := time.Now().Add(2 * time.Second)
	for q.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("key action never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if d.VREnabled() {
		t.Fatalf("action ran before the host drained the queue")
	}
	q.DrainAndExecuteAll()
	<-toggled
	if !d.VREnabled() {
		t.Fatalf("expected VR enabled after drain")
	}
}
