// Package analysis derives live musical features from a playing audio source:
// band energies, transient hints, perceptual characteristics, classified
// elements and a coarse arrangement timeline.
package analysis

import (
	"errors"
	"time"
)

// ErrSourceUnavailable is returned by Engine.Start when the source cannot be attached
var ErrSourceUnavailable = errors.New("analysis source unavailable")

// Source is a live audio signal the engine can sample
type Source interface {
	// IsReady reports whether sampling may be attempted
	IsReady() bool
	// SampleFrequency returns byte frequency magnitudes covering 0..SampleRate/2
	SampleFrequency() []uint8
	// SampleWaveform returns time-domain bytes centered at 128
	SampleWaveform() []uint8
	SampleRate() int
	// CurrentTime is the playback position in seconds
	CurrentTime() float64
	// Duration is the track length in seconds
	Duration() float64
	IsPlaying() bool
}

// Binder is implemented by sources that allow only one engine at a time
type Binder interface {
	Bind() error
	Release()
}

// FrameClock delivers the host's frame cadence
type FrameClock interface {
	C() <-chan time.Time
	Stop()
}

type tickerClock struct {
	ticker *time.Ticker
}

// NewTickerClock returns a FrameClock firing fps times per second
func NewTickerClock(fps int) FrameClock {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	return &tickerClock{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

func (c *tickerClock) C() <-chan time.Time {
	return c.ticker.C
}

func (c *tickerClock) Stop() {
	c.ticker.Stop()
}
