package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16-bit stereo
const mp3Channels = 2

// MP3Decoder decodes MPEG-1/2 layer III files
type MP3Decoder struct{}

func (MP3Decoder) Extensions() []string {
	return []string{"mp3"}
}

func (MP3Decoder) Open(path string) (Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3 file: %w", err)
	}

	d, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to parse mp3 file: %w", err)
	}

	var duration time.Duration
	if length := d.Length(); length > 0 {
		frames := length / (mp3Channels * bytesPerSample)
		duration = time.Duration(float64(frames) / float64(d.SampleRate()) * float64(time.Second))
	}

	return &mp3Stream{
		decoder:  d,
		file:     file,
		duration: duration,
	}, nil
}

// mp3Stream passes the decoder's PCM through untouched
type mp3Stream struct {
	decoder  *mp3.Decoder
	file     *os.File
	duration time.Duration
}

func (s *mp3Stream) Read(p []byte) (int, error) { return s.decoder.Read(p) }
func (s *mp3Stream) Close() error               { return s.file.Close() }
func (s *mp3Stream) SampleRate() int            { return s.decoder.SampleRate() }
func (s *mp3Stream) Channels() int              { return mp3Channels }
func (s *mp3Stream) Duration() time.Duration    { return s.duration }
