package windowmode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/hostbridge/internal/host"
)

var ErrUnknownMode = errors.New("windowmode: unknown mode")

// Mode is a window mode or a mode intent.
type Mode int

const (
	ModeNone Mode = iota
	ModeFloat
	ModePopOut
	ModeVR
	// Intents resolved at apply time.
	ModeFloatOrVR
	ModeFloatCentered
	ModeFloatCenteredOrVR
	// Tears the window down instead of changing mode.
	ModeClose
)

var modeNames = map[Mode]string{
	ModeNone:              "none",
	ModeFloat:             "float",
	ModePopOut:            "popout",
	ModeVR:                "vr",
	ModeFloatOrVR:         "float_or_vr",
	ModeFloatCentered:     "float_centered",
	ModeFloatCenteredOrVR: "float_centered_or_vr",
	ModeClose:             "close",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode accepts the names produced by String.
func ParseMode(raw string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for m, name := range modeNames {
		if name == key {
			return m, nil
		}
	}
	return ModeNone, fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

// Concrete reports whether m is a mode a window can actually be in.
func (m Mode) Concrete() bool {
	return m == ModeFloat || m == ModePopOut || m == ModeVR
}

// Resolve turns an intent into a concrete mode using the VR flag read at apply
// time. centered reports a request to center a floating window.
func Resolve(intent Mode, vrEnabled bool) (mode Mode, centered bool) {
	switch intent {
	case ModeFloatOrVR:
		if vrEnabled {
			return ModeVR, false
		}
		return ModeFloat, false
	case ModeFloatCentered:
		return ModeFloat, true
	case ModeFloatCenteredOrVR:
		if vrEnabled {
			return ModeVR, false
		}
		return ModeFloat, true
	default:
		return intent, false
	}
}

// ToPositioningMode maps an intent to the host positioning mode.
func ToPositioningMode(intent Mode, vrEnabled bool) host.PositioningMode {
	switch intent {
	case ModeFloat:
		return host.PositionFree
	case ModePopOut:
		return host.PositionPopOut
	case ModeVR:
		return host.PositionVR
	case ModeFloatOrVR:
		if vrEnabled {
			return host.PositionVR
		}
		return host.PositionFree
	case ModeFloatCentered:
		return host.PositionCenterOnMonitor
	case ModeFloatCenteredOrVR:
		if vrEnabled {
			return host.PositionVR
		}
		return host.PositionCenterOnMonitor
	default:
		return host.PositionFree
	}
}

// Style selects window chrome and stacking.
type Style int

const (
	StyleNone Style = iota
	StyleSolid
	// HUD windows are transparent and sit in the flight overlay layer.
	StyleHUD
)

func (s Style) String() string {
	switch s {
	case StyleSolid:
		return "solid"
	case StyleHUD:
		return "hud"
	default:
		return "none"
	}
}

func ParseStyle(raw string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return StyleNone, nil
	case "solid":
		return StyleSolid, nil
	case "hud":
		return StyleHUD, nil
	default:
		return StyleNone, fmt.Errorf("windowmode: unknown style %q", raw)
	}
}

func (s Style) Decoration() host.Decoration {
	if s == StyleHUD {
		return host.DecorationSelfDecorated
	}
	return host.DecorationRoundRectangle
}

func (s Style) Layer() host.Layer {
	if s == StyleHUD {
		return host.LayerFlightOverlay
	}
	return host.LayerFloatingWindows
}
