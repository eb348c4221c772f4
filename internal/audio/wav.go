package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVDecoder decodes integer PCM WAV files
type WAVDecoder struct{}

func (WAVDecoder) Extensions() []string {
	return []string{"wav", "wave"}
}

func (WAVDecoder) Open(path string) (Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}

	d := wav.NewDecoder(file)
	if !d.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: invalid wav file %s", ErrUnsupportedFormat, path)
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		file.Close()
		return nil, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	if err := d.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to find wav pcm data: %w", err)
	}

	channels := int(d.NumChans)
	sampleRate := int(d.SampleRate)
	bitDepth := int(d.BitDepth)
	if channels == 0 || sampleRate == 0 || bitDepth == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: incomplete wav header", ErrUnsupportedFormat)
	}

	frameBytes := channels * ((bitDepth + 7) / 8)
	frames := d.PCMLen() / int64(frameBytes)
	duration := time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))

	src := &wavFrames{
		decoder:  d,
		bitDepth: bitDepth,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:           make([]int, 4096*channels),
			SourceBitDepth: bitDepth,
		},
	}

	return &pcmStream{
		src:        src,
		sampleRate: sampleRate,
		channels:   channels,
		duration:   duration,
		closer:     file,
	}, nil
}

type wavFrames struct {
	decoder  *wav.Decoder
	bitDepth int
	buf      *audio.IntBuffer
}

func (w *wavFrames) next() ([]int16, error) {
	n, err := w.decoder.PCMBuffer(w.buf)
	if n == 0 && err == nil {
		err = io.EOF
	}

	out := make([]int16, n)
	for i, v := range w.buf.Data[:n] {
		if w.bitDepth == 8 {
			// 8-bit WAV is unsigned
			v -= 128
		}
		out[i] = toInt16(v, w.bitDepth)
	}
	return out, err
}
