// Package audio decodes tracks, plays them through an output and exposes
// the live signal to the analysis engine.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/austinkregel/local-media/arrangerd/internal/analysis"
)

// ErrNotPlaying is returned by transport commands when no track is loaded
var ErrNotPlaying = errors.New("no track loaded")

// PlaybackState represents the current state of the player
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// Status represents the current playback status
type Status struct {
	State    PlaybackState `json:"state"`
	Path     string        `json:"path,omitempty"`
	Position int64         `json:"position"` // milliseconds
	Duration int64         `json:"duration"` // milliseconds
	Volume   float64       `json:"volume"`   // 0.0 - 1.0
}

// TrackEndCallback is called when a track finishes playing naturally. It
// runs on the playback goroutine and must not call Play or Stop directly.
type TrackEndCallback func(path string)

// drainPoll is how often the end of a track checks whether the output has
// played out its buffer
const drainPoll = 20 * time.Millisecond

// Player plays one track at a time and is the live source for analysis.
// Position is derived from the bytes the output has actually consumed, so it
// tracks what the sampler has seen rather than what has been decoded.
type Player struct {
	mu         sync.RWMutex
	playbackMu sync.Mutex // Serializes Play and Stop

	state       PlaybackState
	currentPath string
	duration    time.Duration
	volume      float64

	sessionID   uint64
	sessionDone chan struct{}
	cancelFunc  context.CancelFunc

	onTrackEnd TrackEndCallback

	output   Output
	registry *Registry
}

// NewPlayer creates a player on the given output
func NewPlayer(output Output, registry *Registry) *Player {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Player{
		state:    StateStopped,
		volume:   1.0,
		output:   output,
		registry: registry,
	}
}

// SetOnTrackEnd sets a callback to be called when a track finishes playing naturally
func (p *Player) SetOnTrackEnd(callback TrackEndCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrackEnd = callback
}

// Play stops any current track, waits for it to wind down and starts path
func (p *Player) Play(ctx context.Context, path string) error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()

	p.stopAndWait()

	stream, err := p.registry.Open(path, p.output.SampleRate(), p.output.Channels())
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	p.mu.Lock()
	p.sessionID++
	p.sessionDone = make(chan struct{})
	session := p.sessionID
	done := p.sessionDone

	p.currentPath = path
	p.duration = stream.Duration()
	p.state = StatePlaying

	playbackCtx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.playbackLoop(playbackCtx, stream, path, session)
	}()

	return nil
}

func (p *Player) playbackLoop(ctx context.Context, stream Stream, path string, session uint64) {
	defer stream.Close()
	log.Printf("[PLAYER] Starting playback (session %d): %s", session, path)

	err := Pump(ctx, stream, p.output)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[PLAYER] Decode error: %v", err)
	}

	// Let the output play out what is buffered
	if err == nil {
		ticker := time.NewTicker(drainPoll)
	wait:
		for p.output.Buffered() > 0 {
			select {
			case <-ctx.Done():
				break wait
			case <-ticker.C:
			}
		}
		ticker.Stop()
	}

	p.mu.Lock()
	if p.sessionID != session || ctx.Err() != nil {
		p.mu.Unlock()
		log.Printf("[PLAYER] Session %d ended early", session)
		return
	}
	p.state = StateStopped
	p.cancelFunc = nil
	callback := p.onTrackEnd
	p.mu.Unlock()

	log.Printf("[PLAYER] Playback finished: %s", path)
	if callback != nil {
		callback(path)
	}
}

// Pause pauses playback. Pausing while paused is a no-op.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateStopped:
		return ErrNotPlaying
	case StatePaused:
		return nil
	}

	p.state = StatePaused
	p.output.Pause()
	log.Printf("[PLAYER] Paused at %.3fs", p.currentTimeLocked())
	return nil
}

// Resume resumes playback. Resuming while playing is a no-op.
func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateStopped:
		return ErrNotPlaying
	case StatePlaying:
		return nil
	}

	p.state = StatePlaying
	p.output.Resume()
	log.Printf("[PLAYER] Resumed at %.3fs", p.currentTimeLocked())
	return nil
}

// Stop ends playback and waits for the decode goroutine to exit
func (p *Player) Stop() error {
	p.playbackMu.Lock()
	defer p.playbackMu.Unlock()
	p.stopAndWait()
	return nil
}

// stopAndWait cancels the current session, waits for it and clears the
// output. Caller holds playbackMu.
func (p *Player) stopAndWait() {
	p.mu.Lock()
	if p.cancelFunc != nil {
		p.cancelFunc()
		p.cancelFunc = nil
	}
	wasActive := p.state != StateStopped
	p.state = StateStopped
	p.currentPath = ""
	p.duration = 0
	done := p.sessionDone
	p.mu.Unlock()

	// Unblocks a decoder waiting on a full buffer
	p.output.Stop()
	if done != nil {
		<-done
	}
	// Drop anything written between the first Stop and the decoder exiting
	p.output.Stop()

	if wasActive {
		log.Printf("[PLAYER] Stopped playback")
	}
}

// SetVolume sets the output volume
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.New("volume must be between 0.0 and 1.0")
	}

	p.mu.Lock()
	p.volume = volume
	p.output.SetVolume(volume)
	p.mu.Unlock()
	return nil
}

// Status returns the current playback status
func (p *Player) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Status{
		State:    p.state,
		Path:     p.currentPath,
		Position: int64(p.currentTimeLocked() * 1000),
		Duration: p.duration.Milliseconds(),
		Volume:   p.volume,
	}
}

// Close stops playback and releases the output
func (p *Player) Close() error {
	p.Stop()
	return p.output.Close()
}

// IsReady reports whether the live signal can be sampled
func (p *Player) IsReady() bool {
	p.mu.RLock()
	playing := p.state == StatePlaying
	p.mu.RUnlock()
	return playing && p.output.Sampler().IsReady()
}

func (p *Player) SampleFrequency() []uint8 { return p.output.Sampler().SampleFrequency() }
func (p *Player) SampleWaveform() []uint8  { return p.output.Sampler().SampleWaveform() }
func (p *Player) SampleRate() int          { return p.output.SampleRate() }

// CurrentTime is the position in seconds of the audio consumed by the output
func (p *Player) CurrentTime() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentTimeLocked()
}

func (p *Player) currentTimeLocked() float64 {
	if p.state == StateStopped {
		return 0
	}
	perSecond := p.output.SampleRate() * p.output.Channels() * bytesPerSample
	return float64(p.output.Played()) / float64(perSecond)
}

// Duration is the track length in seconds
func (p *Player) Duration() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duration.Seconds()
}

func (p *Player) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StatePlaying
}

// Bind claims the live signal for one analysis engine
func (p *Player) Bind() error { return p.output.Sampler().Bind() }

// Release frees the live signal
func (p *Player) Release() { p.output.Sampler().Release() }

var (
	_ analysis.Source = (*Player)(nil)
	_ analysis.Binder = (*Player)(nil)
)
