package audio

import (
	"errors"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

const (
	// FFTSize matches the Web Audio AnalyserNode default
	FFTSize = 2048
	// FrequencyBinCount is the number of magnitudes returned per sample
	FrequencyBinCount = FFTSize / 2

	smoothingTimeConstant = 0.8
	minDecibels           = -100.0
	maxDecibels           = -30.0
)

// ErrSamplerBound is returned when a second consumer tries to bind the sampler
var ErrSamplerBound = errors.New("sampler already bound")

// Sampler keeps the most recent FFTSize mono samples of the PCM stream and
// produces byte spectra and waveforms on demand, the way an AnalyserNode does.
// PCM is written from the audio goroutine while samples are read by the
// analysis loop.
type Sampler struct {
	mu sync.Mutex

	fft    *fourier.FFT
	window []float64

	// Circular buffer of mono samples in [-1, 1]
	samples []float64
	pos     int
	filled  int

	// Scratch space reused across FFTs
	windowed []float64
	coeffs   []complex128
	smoothed []float64

	sampleRate int
	channels   int
	bound      bool
}

// NewSampler creates a sampler for interleaved 16-bit PCM
func NewSampler(sampleRate, channels int) *Sampler {
	if channels <= 0 {
		channels = 1
	}
	return &Sampler{
		fft:        fourier.NewFFT(FFTSize),
		window:     window.Hann(FFTSize),
		samples:    make([]float64, FFTSize),
		windowed:   make([]float64, FFTSize),
		coeffs:     make([]complex128, FFTSize/2+1),
		smoothed:   make([]float64, FrequencyBinCount),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// ProcessSamples mixes 16-bit little-endian PCM down to mono and appends it
func (s *Sampler) ProcessSamples(data []byte) {
	frameBytes := 2 * s.channels

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i+frameBytes <= len(data); i += frameBytes {
		var sum float64
		for ch := 0; ch < s.channels; ch++ {
			offset := i + 2*ch
			sample := int16(data[offset]) | int16(data[offset+1])<<8
			sum += float64(sample) / 32768.0
		}
		s.samples[s.pos] = sum / float64(s.channels)
		s.pos = (s.pos + 1) % FFTSize
		if s.filled < FFTSize {
			s.filled++
		}
	}
}

// IsReady reports whether a full window has been collected
func (s *Sampler) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled == FFTSize
}

// SampleRate returns the PCM sample rate
func (s *Sampler) SampleRate() int {
	return s.sampleRate
}

// SampleFrequency returns FrequencyBinCount smoothed magnitudes mapped from
// [-100 dB, -30 dB] to 0..255. Each call advances the smoothing, like
// getByteFrequencyData. Returns zeros until the sampler is ready.
func (s *Sampler) SampleFrequency() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint8, FrequencyBinCount)
	if s.filled < FFTSize {
		return out
	}

	s.orderedInto(s.windowed)
	floats.Mul(s.windowed, s.window)
	s.coeffs = s.fft.Coefficients(s.coeffs, s.windowed)

	for i := range s.smoothed {
		magnitude := cmplx.Abs(s.coeffs[i]) / FFTSize
		s.smoothed[i] = smoothingTimeConstant*s.smoothed[i] + (1-smoothingTimeConstant)*magnitude
		out[i] = decibelsToByte(20 * math.Log10(s.smoothed[i]))
	}
	return out
}

// SampleWaveform returns the latest FFTSize samples as bytes centered at 128
func (s *Sampler) SampleWaveform() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]float64, FFTSize)
	s.orderedInto(ordered)

	out := make([]uint8, FFTSize)
	for i, x := range ordered {
		out[i] = clampByte(128 * (1 + x))
	}
	return out
}

// Bind claims the sampler for a single analysis engine
func (s *Sampler) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound {
		return ErrSamplerBound
	}
	s.bound = true
	return nil
}

// Release frees the sampler for the next Bind
func (s *Sampler) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound = false
}

// Reset discards collected samples and smoothing state. The binding is kept.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pos = 0
	s.filled = 0
	for i := range s.samples {
		s.samples[i] = 0
	}
	for i := range s.smoothed {
		s.smoothed[i] = 0
	}
}

// orderedInto copies the circular buffer oldest first. Caller holds mu.
func (s *Sampler) orderedInto(dst []float64) {
	n := copy(dst, s.samples[s.pos:])
	copy(dst[n:], s.samples[:s.pos])
}

func decibelsToByte(db float64) uint8 {
	if math.IsInf(db, -1) || math.IsNaN(db) {
		return 0
	}
	return clampByte((db - minDecibels) / (maxDecibels - minDecibels) * 255)
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
