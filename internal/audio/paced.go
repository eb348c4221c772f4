package audio

import (
	"sync"
	"time"
)

const pacedTick = 10 * time.Millisecond

// PacedOutput consumes PCM at real-time rate times speed without an audio
// device. It lets the analysis run headless against a file.
type PacedOutput struct {
	*pcmBuffer

	speed float64
	tick  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPacedOutput creates a paced output and starts its drain loop
func NewPacedOutput(sampleRate, channels, bufferMs int, speed float64) *PacedOutput {
	if speed <= 0 {
		speed = 1
	}
	buf := newPCMBuffer(sampleRate, channels, bufferMs)

	// The buffer must hold at least one tick's worth at the chosen speed
	perTick := int(float64(buf.bytesPerSecond())*speed*pacedTick.Seconds()) + 1
	if buf.limit < 2*perTick {
		buf.limit = 2 * perTick
	}

	o := &PacedOutput{
		pcmBuffer: buf,
		speed:     speed,
		tick:      pacedTick,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *PacedOutput) run() {
	defer close(o.done)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	frameBytes := o.channels * bytesPerSample
	rate := float64(o.bytesPerSecond()) * o.speed
	scratch := make([]byte, 0)
	last := time.Now()
	var credit float64

	for {
		select {
		case <-o.stop:
			return
		case now := <-ticker.C:
			credit += now.Sub(last).Seconds() * rate
			last = now

			want := int(credit) / frameBytes * frameBytes
			if want == 0 {
				continue
			}
			if cap(scratch) < want {
				scratch = make([]byte, want)
			}
			n := o.drain(scratch[:want], false)
			if n < want {
				// Underrun or paused: drop the unused credit
				credit = 0
			} else {
				credit -= float64(n)
			}
		}
	}
}

// Close stops the drain loop
func (o *PacedOutput) Close() error {
	o.close()
	o.stopOnce.Do(func() { close(o.stop) })
	<-o.done
	return nil
}

var _ Output = (*PacedOutput)(nil)
