// Package termhost is a terminal rendition of the host windowing API. Windows
// live in host pixel coordinates (y growing upward) and are drawn as boxes on
// a tcell screen during the host draw phase. Windows in VR mode are listed on
// the status row instead of being drawn.
package termhost
