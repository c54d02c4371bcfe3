// Package notify synthesizes the short chimes played on relay events.
package notify

import (
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/danmuck/hostbridge/internal/logs"
)

const SampleRate = beep.SampleRate(44100)

type Sound int

const (
	SoundConnected Sound = iota
	SoundDisconnected
	SoundMessage
)

func (s Sound) String() string {
	switch s {
	case SoundConnected:
		return "connected"
	case SoundDisconnected:
		return "disconnected"
	default:
		return "message"
	}
}

// Player plays a sound without blocking the caller.
type Player interface {
	Play(Sound)
}

type note struct {
	freq float64
	dur  time.Duration
}

var chimes = map[Sound][]note{
	SoundConnected:    {{523.25, 90 * time.Millisecond}, {783.99, 140 * time.Millisecond}},
	SoundDisconnected: {{783.99, 90 * time.Millisecond}, {392.00, 180 * time.Millisecond}},
	SoundMessage:      {{880.00, 70 * time.Millisecond}},
}

// Chime builds the streamer for s at volume in [0,1].
func Chime(s Sound, rate beep.SampleRate, volume float64) beep.Streamer {
	notes := chimes[s]
	parts := make([]beep.Streamer, 0, len(notes))
	for _, n := range notes {
		parts = append(parts, envelope(tone(n.freq, n.dur, rate), rate.N(n.dur), rate.N(8*time.Millisecond)))
	}
	return withVolume(beep.Seq(parts...), volume)
}

// Duration is the length of the chime for s.
func Duration(s Sound) time.Duration {
	var d time.Duration
	for _, n := range chimes[s] {
		d += n.dur
	}
	return d
}

// sine is a fixed-length sine oscillator.
type sine struct {
	step  float64
	phase float64
	left  int
}

func tone(freq float64, dur time.Duration, rate beep.SampleRate) beep.Streamer {
	return &sine{step: freq / float64(rate), left: rate.N(dur)}
}

func (o *sine) Stream(samples [][2]float64) (int, bool) {
	if o.left <= 0 {
		return 0, false
	}
	n := min(len(samples), o.left)
	for i := 0; i < n; i++ {
		v := math.Sin(2 * math.Pi * o.phase)
		samples[i][0], samples[i][1] = v, v
		o.phase += o.step
		o.phase -= math.Floor(o.phase)
	}
	o.left -= n
	return n, true
}

func (o *sine) Err() error { return nil }

// envelope ramps the first and last ramp samples to avoid clicks.
func envelope(s beep.Streamer, total, ramp int) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		n, ok := s.Stream(samples)
		for i := 0; i < n; i++ {
			g := 1.0
			switch {
			case pos < ramp:
				g = float64(pos) / float64(ramp)
			case total-pos < ramp:
				g = float64(total-pos) / float64(ramp)
			}
			samples[i][0] *= g
			samples[i][1] *= g
			pos++
		}
		return n, ok
	})
}

func withVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(math.Min(vol, 1))}
}

// Sink receives finished streamers; speaker.Play fits.
type Sink func(...beep.Streamer)

// StreamPlayer renders chimes into a sink, typically the speaker mixer.
type StreamPlayer struct {
	sink   Sink
	rate   beep.SampleRate
	volume float64

	mu    sync.Mutex
	muted bool
}

func NewStreamPlayer(sink Sink, rate beep.SampleRate, volume float64) *StreamPlayer {
	return &StreamPlayer{sink: sink, rate: rate, volume: volume}
}

func (p *StreamPlayer) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

func (p *StreamPlayer) Play(s Sound) {
	p.mu.Lock()
	muted := p.muted
	p.mu.Unlock()
	if muted || p.sink == nil {
		return
	}
	logs.Debugf("notify.StreamPlayer.Play sound=%s", s)
	p.sink(Chime(s, p.rate, p.volume))
}

// Silent drops every sound.
type Silent struct{}

func (Silent) Play(Sound) {}
