package host

// Pos is a 2D window position.
type Pos struct {
	X int
	Y int
}

// Rect is window geometry in host screen coordinates, y growing upward:
// TL is the top-left corner and BR the bottom-right one.
type Rect struct {
	TL Pos
	BR Pos
}

func NewRect(left, top, right, bottom int) Rect {
	return Rect{TL: Pos{X: left, Y: top}, BR: Pos{X: right, Y: bottom}}
}

func (r Rect) Left() int   { return r.TL.X }
func (r Rect) Top() int    { return r.TL.Y }
func (r Rect) Right() int  { return r.BR.X }
func (r Rect) Bottom() int { return r.BR.Y }

func (r Rect) Width() int  { return r.Right() - r.Left() }
func (r Rect) Height() int { return r.Top() - r.Bottom() }

// Empty reports the all-zero rect, used as "no geometry known".
func (r Rect) Empty() bool {
	return r == Rect{}
}

func (r *Rect) Clear() {
	*r = Rect{}
}

// PositioningMode is the host's concrete window placement.
type PositioningMode int

const (
	PositionFree PositioningMode = iota
	PositionCenterOnMonitor
	PositionFullScreenOnMonitor
	PositionFullScreenOnAllMonitors
	PositionPopOut
	PositionVR
)

func (m PositioningMode) String() string {
	switch m {
	case PositionFree:
		return "free"
	case PositionCenterOnMonitor:
		return "center_on_monitor"
	case PositionFullScreenOnMonitor:
		return "fullscreen_on_monitor"
	case PositionFullScreenOnAllMonitors:
		return "fullscreen_on_all_monitors"
	case PositionPopOut:
		return "pop_out"
	case PositionVR:
		return "vr"
	default:
		return "unknown"
	}
}

// Decoration is the host-drawn window chrome.
type Decoration int

const (
	DecorationNone Decoration = iota
	DecorationRoundRectangle
	DecorationSelfDecorated
	DecorationSelfDecoratedResizable
)

// Layer is the host window stacking layer.
type Layer int

const (
	LayerFlightOverlay Layer = iota
	LayerFloatingWindows
	LayerModal
	LayerGrowlNotifications
)

// WindowAPI is the host windowing surface for one window. Every method must be
// called on the host thread, outside the draw phase.
type WindowAPI interface {
	Geometry() Rect
	SetGeometry(Rect)
	PositioningMode() PositioningMode
	SetPositioningMode(PositioningMode)
	SetDecoration(Decoration)
	SetLayer(Layer)
	Destroy()
}

// VRSource reports whether VR is currently enabled. Polled at apply time.
type VRSource interface {
	VREnabled() bool
}

// VRFlag adapts a func to VRSource.
type VRFlag func() bool

func (f VRFlag) VREnabled() bool {
	return f()
}

// WindowFactory creates host windows. Host thread only.
type WindowFactory interface {
	CreateWindow(name string, rect Rect) (WindowAPI, error)
}
