package termhost

import (
	"cmp"
	"slices"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/danmuck/hostbridge/internal/host"
)

type frame struct {
	h, v, tl, tr, bl, br rune
}

var (
	roundFrame  = frame{h: '─', v: '│', tl: '╭', tr: '╮', bl: '╰', br: '╯'}
	squareFrame = frame{h: '─', v: '│', tl: '┌', tr: '┐', bl: '└', br: '┘'}
	doubleFrame = frame{h: '═', v: '║', tl: '╔', tr: '╗', bl: '╚', br: '╝'}
)

var (
	styleDefault = tcell.StyleDefault
	styleTitle   = tcell.StyleDefault.Bold(true)
	styleStatus  = tcell.StyleDefault.Reverse(true)
)

// Draw renders every window and the status row. Installed as the host draw
// hook, so it runs on the host thread.
func (d *Desktop) Draw() {
	d.mu.Lock()
	windows := slices.Clone(d.windows)
	bodies := make(map[string]func() []BodyLine, len(d.bodies))
	for k, v := range d.bodies {
		bodies[k] = v
	}
	status := d.status
	d.mu.Unlock()

	// Lower layers first; stable keeps creation order inside a layer.
	slices.SortStableFunc(windows, func(a, b *Window) int { return cmp.Compare(a.layer, b.layer) })

	d.screen.Clear()
	var inVR []string
	for _, w := range windows {
		if w.pos == host.PositionVR {
			inVR = append(inVR, w.name)
			continue
		}
		var lines []BodyLine
		if fn := bodies[w.name]; fn != nil {
			lines = fn()
		}
		d.drawWindow(w, lines)
	}
	d.drawStatus(status, inVR)
	d.screen.Show()
}

// cells maps a window rect to terminal cells.
func (d *Desktop) cells(r host.Rect) (x, y, w, h int) {
	_, height := d.PixelSize()
	x = r.Left() / d.scale.CellW
	y = (height - r.Top()) / d.scale.CellH
	w = r.Width() / d.scale.CellW
	h = r.Height() / d.scale.CellH
	return x, y, w, h
}

func (d *Desktop) drawWindow(w *Window, lines []BodyLine) {
	x, y, cw, ch := d.cells(w.rect)
	if cw <= 0 || ch <= 0 {
		return
	}
	bordered := w.deco != host.DecorationNone
	fr := roundFrame
	switch {
	case w.pos == host.PositionPopOut:
		fr = doubleFrame
	case w.deco == host.DecorationSelfDecorated || w.deco == host.DecorationSelfDecoratedResizable:
		fr = squareFrame
	}

	inner := struct{ x, y, w, h int }{x, y, cw, ch}
	if bordered && cw >= 2 && ch >= 2 {
		d.box(x, y, cw, ch, fr)
		inner.x, inner.y, inner.w, inner.h = x+1, y+1, cw-2, ch-2
		d.text(x+2, y, cw-4, title(w.name, w.pos == host.PositionPopOut, cw-4), styleTitle)
	} else {
		d.fill(x, y, cw, ch)
	}

	// Newest lines stay visible.
	if len(lines) > inner.h {
		lines = lines[len(lines)-inner.h:]
	}
	for i, l := range lines {
		st := styleDefault
		if l.Color != tcell.ColorDefault {
			st = st.Foreground(l.Color)
		}
		d.text(inner.x, inner.y+i, inner.w, l.Text, st)
	}
}

const popoutTag = " [popout] "

// title fits a window name into width cells. The pop-out tag is kept whole;
// the name is cut short with an ellipsis instead.
func title(name string, popout bool, width int) string {
	tag := " "
	if popout {
		tag = popoutTag
	}
	room := width - 1 - len(tag)
	if n := []rune(name); len(n) > room {
		switch {
		case room <= 0:
			name = ""
		case room == 1:
			name = string(n[:1])
		default:
			name = string(n[:room-1]) + "…"
		}
	}
	return " " + name + tag
}

func (d *Desktop) box(x, y, w, h int, fr frame) {
	d.fill(x, y, w, h)
	for i := 1; i < w-1; i++ {
		d.screen.SetContent(x+i, y, fr.h, nil, styleDefault)
		d.screen.SetContent(x+i, y+h-1, fr.h, nil, styleDefault)
	}
	for j := 1; j < h-1; j++ {
		d.screen.SetContent(x, y+j, fr.v, nil, styleDefault)
		d.screen.SetContent(x+w-1, y+j, fr.v, nil, styleDefault)
	}
	d.screen.SetContent(x, y, fr.tl, nil, styleDefault)
	d.screen.SetContent(x+w-1, y, fr.tr, nil, styleDefault)
	d.screen.SetContent(x, y+h-1, fr.bl, nil, styleDefault)
	d.screen.SetContent(x+w-1, y+h-1, fr.br, nil, styleDefault)
}

// fill blanks the area so lower layers do not show through.
func (d *Desktop) fill(x, y, w, h int) {
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			d.screen.SetContent(x+i, y+j, ' ', nil, styleDefault)
		}
	}
}

func (d *Desktop) text(x, y, width int, s string, st tcell.Style) {
	i := 0
	for _, r := range s {
		if i >= width {
			return
		}
		d.screen.SetContent(x+i, y, r, nil, st)
		i++
	}
}

func (d *Desktop) drawStatus(status func() string, inVR []string) {
	cols, rows := d.screen.Size()
	if rows <= 0 {
		return
	}
	row := rows - 1
	var b strings.Builder
	if status != nil {
		b.WriteString(status())
	}
	if d.VREnabled() {
		b.WriteString(" | vr on")
		if len(inVR) > 0 {
			b.WriteString(": " + strings.Join(inVR, ","))
		}
	} else {
		b.WriteString(" | vr off")
	}
	line := b.String()
	for i := 0; i < cols; i++ {
		d.screen.SetContent(i, row, ' ', nil, styleStatus)
	}
	d.text(0, row, cols, line, styleStatus)
}
