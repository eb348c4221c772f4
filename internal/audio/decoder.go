package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for files no registered decoder handles
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Stream is a decoded track delivering interleaved 16-bit little-endian PCM
type Stream interface {
	io.ReadCloser
	SampleRate() int
	Channels() int
	Duration() time.Duration
}

// Decoder opens one family of audio files
type Decoder interface {
	Extensions() []string
	Open(path string) (Stream, error)
}

// Registry picks a decoder by file extension
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry returns a registry with the WAV, FLAC and MP3 decoders
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	r.Register(WAVDecoder{})
	r.Register(FLACDecoder{})
	r.Register(MP3Decoder{})
	return r
}

// Register adds d for each of its extensions, replacing earlier entries
func (r *Registry) Register(d Decoder) {
	for _, ext := range d.Extensions() {
		r.decoders[strings.ToLower(ext)] = d
	}
}

// Extensions lists the supported file extensions
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.decoders))
	for ext := range r.decoders {
		out = append(out, ext)
	}
	return out
}

// Open decodes path and converts it to the given rate and channel count
func (r *Registry) Open(path string, sampleRate, channels int) (Stream, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	d, ok := r.decoders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	s, err := d.Open(path)
	if err != nil {
		return nil, err
	}
	return Convert(s, sampleRate, channels), nil
}

// Pump copies s into out until EOF or ctx is cancelled
func Pump(ctx context.Context, s Stream, out io.Writer) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := s.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write to output: %w", writeErr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to decode: %w", err)
		}
	}
}

// frameSource yields interleaved int16 frames, returning io.EOF at the end
type frameSource interface {
	next() ([]int16, error)
}

// pcmStream adapts a frameSource into a byte Stream
type pcmStream struct {
	src        frameSource
	pending    []byte
	sampleRate int
	channels   int
	duration   time.Duration
	closer     io.Closer
	err        error
}

func (s *pcmStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		frames, err := s.src.next()
		s.pending = appendPCM(s.pending[:0], frames)
		s.err = err
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *pcmStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *pcmStream) SampleRate() int         { return s.sampleRate }
func (s *pcmStream) Channels() int           { return s.channels }
func (s *pcmStream) Duration() time.Duration { return s.duration }

func appendPCM(dst []byte, samples []int16) []byte {
	for _, v := range samples {
		dst = append(dst, byte(v), byte(v>>8))
	}
	return dst
}

// toInt16 rescales a signed sample of the given bit depth to 16 bits
func toInt16(v int, bitDepth int) int16 {
	switch {
	case bitDepth == 16:
		return int16(v)
	case bitDepth > 16:
		return int16(v >> uint(bitDepth-16))
	default:
		return int16(v << uint(16-bitDepth))
	}
}
