package termhost

import (
	"github.com/danmuck/hostbridge/internal/host"
	"github.com/danmuck/hostbridge/internal/logs"
)

// Window is one host window on the desktop. Host thread only.
type Window struct {
	desktop   *Desktop
	name      string
	rect      host.Rect
	pos       host.PositioningMode
	deco      host.Decoration
	layer     host.Layer
	destroyed bool
}

func (w *Window) Name() string { return w.name }

func (w *Window) Geometry() host.Rect {
	return w.rect
}

func (w *Window) SetGeometry(r host.Rect) {
	if w.destroyed {
		return
	}
	w.rect = r
}

func (w *Window) PositioningMode() host.PositioningMode {
	return w.pos
}

// SetPositioningMode moves the window the way a desktop host would: centering
// and fullscreen rewrite the geometry, the others keep it.
func (w *Window) SetPositioningMode(m host.PositioningMode) {
	if w.destroyed {
		return
	}
	width, height := w.desktop.PixelSize()
	switch m {
	case host.PositionCenterOnMonitor:
		ww, wh := w.rect.Width(), w.rect.Height()
		left := (width - ww) / 2
		top := (height + wh) / 2
		w.rect = host.NewRect(left, top, left+ww, top-wh)
	case host.PositionFullScreenOnMonitor, host.PositionFullScreenOnAllMonitors:
		w.rect = host.NewRect(0, height, width, 0)
	}
	w.pos = m
	logs.Debugf("termhost.Window.SetPositioningMode name=%s mode=%s rect=%v", w.name, m, w.rect)
}

func (w *Window) Decoration() host.Decoration { return w.deco }

func (w *Window) SetDecoration(d host.Decoration) {
	w.deco = d
}

func (w *Window) Layer() host.Layer { return w.layer }

func (w *Window) SetLayer(l host.Layer) {
	w.layer = l
}

func (w *Window) Destroy() {
	if w.destroyed {
		return
	}
	w.destroyed = true
	w.desktop.remove(w)
	logs.Debugf("termhost.Window.Destroy name=%s", w.name)
}

func (w *Window) Destroyed() bool {
	return w.destroyed
}
