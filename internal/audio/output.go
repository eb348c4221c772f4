package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/oto/v2"
)

// OtoOutput plays PCM on the default audio device. The device pulls from
// Read, which is where the sampler sees the audio.
type OtoOutput struct {
	*pcmBuffer

	context *oto.Context
	player  oto.Player
}

// NewOtoOutput creates a device output with the default format
func NewOtoOutput() (*OtoOutput, error) {
	return NewOtoOutputWithConfig(defaultSampleRate, defaultChannels, DefaultBufferMs)
}

// NewOtoOutputWithConfig creates a device output. Only one oto context can
// exist per process.
func NewOtoOutputWithConfig(sampleRate, channels, bufferMs int) (*OtoOutput, error) {
	buf := newPCMBuffer(sampleRate, channels, bufferMs)

	ctx, ready, err := oto.NewContext(buf.sampleRate, buf.channels, bytesPerSample)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	o := &OtoOutput{
		pcmBuffer: buf,
		context:   ctx,
	}
	o.player = ctx.NewPlayer(o)
	return o, nil
}

// Read implements io.Reader for the oto player. It blocks while paused and
// feeds silence on underrun to keep the stream alive.
func (o *OtoOutput) Read(p []byte) (int, error) {
	n := o.drain(p, true)
	if n > 0 {
		return n, nil
	}

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// Write queues PCM and starts the device if needed
func (o *OtoOutput) Write(data []byte) (int, error) {
	n, err := o.pcmBuffer.Write(data)
	if err != nil {
		return n, err
	}

	o.mu.Lock()
	paused := o.paused
	o.mu.Unlock()
	// Only auto-start if not explicitly paused
	if !paused && !o.player.IsPlaying() {
		o.player.Play()
	}
	return n, nil
}

func (o *OtoOutput) Pause() {
	o.pcmBuffer.Pause()
	if o.player.IsPlaying() {
		o.player.Pause()
	}
}

func (o *OtoOutput) Resume() {
	o.pcmBuffer.Resume()
	if !o.player.IsPlaying() {
		o.player.Play()
	}
}

func (o *OtoOutput) Stop() {
	o.player.Pause()
	o.pcmBuffer.Stop()
}

// IsPlaying returns whether the device is pulling audio
func (o *OtoOutput) IsPlaying() bool {
	return o.player.IsPlaying()
}

// Close releases the device player
func (o *OtoOutput) Close() error {
	if !o.close() {
		return nil
	}
	return o.player.Close()
}

var (
	_ io.Reader = (*OtoOutput)(nil)
	_ Output    = (*OtoOutput)(nil)
)
