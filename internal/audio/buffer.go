package audio

import (
	"bytes"
	"errors"
	"sync"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	bytesPerSample    = 2 // 16-bit

	// DefaultBufferMs bounds how far decoding may run ahead of what has
	// been played, which keeps the sampler in step with the listener
	DefaultBufferMs = 100
)

// ErrOutputClosed is returned when writing to a closed output
var ErrOutputClosed = errors.New("audio output closed")

// Output is the interface for audio output backends. Bytes are interleaved
// signed 16-bit little-endian PCM.
type Output interface {
	Write(data []byte) (int, error)
	Close() error
	SampleRate() int
	Channels() int
	Pause()
	Resume()
	// Stop discards buffered audio and resets the played counter
	Stop()
	// Played returns the bytes consumed since the last Stop
	Played() int64
	// Buffered returns the bytes queued but not yet consumed
	Buffered() int
	SetVolume(v float64)
	Sampler() *Sampler
}

// pcmBuffer is the bounded queue shared by the outputs. Writers block while
// it is full; the consumer taps every drained chunk into the sampler before
// volume is applied.
type pcmBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buffer bytes.Buffer
	limit  int

	sampleRate int
	channels   int
	volume     float64
	paused     bool
	closed     bool
	played     int64
	// Bumped by Stop so that writers blocked across a Stop drop their data
	generation uint64

	sampler *Sampler
}

func newPCMBuffer(sampleRate, channels, bufferMs int) *pcmBuffer {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if channels <= 0 {
		channels = defaultChannels
	}
	if bufferMs <= 0 {
		bufferMs = DefaultBufferMs
	}
	b := &pcmBuffer{
		limit:      sampleRate * channels * bytesPerSample * bufferMs / 1000,
		sampleRate: sampleRate,
		channels:   channels,
		volume:     1.0,
		sampler:    NewSampler(sampleRate, channels),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write queues PCM, blocking while the buffer is full
func (b *pcmBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	for b.buffer.Len() >= b.limit && !b.closed && gen == b.generation {
		b.cond.Wait()
	}
	if b.closed {
		return 0, ErrOutputClosed
	}
	if gen != b.generation {
		return len(data), nil
	}
	return b.buffer.Write(data)
}

// drain moves up to len(p) buffered bytes into p. It blocks while paused
// unless wait is false, in which case it returns 0.
func (b *pcmBuffer) drain(p []byte, wait bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for wait && b.paused && !b.closed {
		b.cond.Wait()
	}
	if b.closed || b.paused || b.buffer.Len() == 0 {
		return 0
	}

	n, _ := b.buffer.Read(p)
	// Make room for blocked writers
	b.cond.Broadcast()

	b.played += int64(n)
	b.sampler.ProcessSamples(p[:n])
	if b.volume < 1.0 {
		applyVolume(p[:n], b.volume)
	}
	return n
}

// applyVolume scales 16-bit PCM samples in place
func applyVolume(data []byte, vol float64) {
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * vol)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

// SetVolume sets the playback volume (0.0 - 1.0)
func (b *pcmBuffer) SetVolume(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	b.volume = v
}

func (b *pcmBuffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = true
}

func (b *pcmBuffer) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paused = false
	b.cond.Broadcast()
}

func (b *pcmBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.paused = false
	b.buffer.Reset()
	b.played = 0
	b.generation++
	b.sampler.Reset()
	b.cond.Broadcast()
}

// close wakes every blocked reader and writer. Reports whether this call closed it.
func (b *pcmBuffer) close() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	b.cond.Broadcast()
	return true
}

func (b *pcmBuffer) Played() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.played
}

// Buffered returns the number of queued bytes
func (b *pcmBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Len()
}

func (b *pcmBuffer) SampleRate() int   { return b.sampleRate }
func (b *pcmBuffer) Channels() int     { return b.channels }
func (b *pcmBuffer) Sampler() *Sampler { return b.sampler }

// bytesPerSecond is the PCM data rate
func (b *pcmBuffer) bytesPerSecond() int {
	return b.sampleRate * b.channels * bytesPerSample
}
