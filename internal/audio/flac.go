package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC files
type FLACDecoder struct{}

func (FLACDecoder) Extensions() []string {
	return []string{"flac"}
}

func (FLACDecoder) Open(path string) (Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flac file: %w", err)
	}

	stream, err := flac.New(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to parse flac file: %w", err)
	}

	info := stream.Info
	if info == nil || info.SampleRate == 0 || info.NChannels == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: missing flac stream info", ErrUnsupportedFormat)
	}

	var duration time.Duration
	if info.NSamples > 0 {
		duration = time.Duration(float64(info.NSamples) / float64(info.SampleRate) * float64(time.Second))
	}

	return &pcmStream{
		src: &flacFrames{
			stream:   stream,
			channels: int(info.NChannels),
			bitDepth: int(info.BitsPerSample),
		},
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		duration:   duration,
		closer:     file,
	}, nil
}

type flacFrames struct {
	stream   *flac.Stream
	channels int
	bitDepth int
}

func (f *flacFrames) next() ([]int16, error) {
	frame, err := f.stream.ParseNext()
	if err != nil {
		// io.EOF after the last frame
		return nil, err
	}

	n := len(frame.Subframes[0].Samples)
	out := make([]int16, 0, n*f.channels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < f.channels; ch++ {
			out = append(out, toInt16(int(frame.Subframes[ch].Samples[i]), f.bitDepth))
		}
	}
	return out, nil
}
