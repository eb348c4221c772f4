package audio

// Convert returns s resampled and remixed to the given format. s is returned
// unchanged when it already matches.
func Convert(s Stream, sampleRate, channels int) Stream {
	if sampleRate <= 0 {
		sampleRate = s.SampleRate()
	}
	if channels <= 0 {
		channels = s.Channels()
	}
	if s.SampleRate() == sampleRate && s.Channels() == channels {
		return s
	}

	c := &converter{
		in:    s,
		inCh:  s.Channels(),
		outCh: channels,
		buf:   make([]byte, 4096*s.Channels()),
	}
	if s.SampleRate() != sampleRate {
		c.rs = newResampler(channels, float64(s.SampleRate())/float64(sampleRate))
	}
	return &pcmStream{
		src:        c,
		sampleRate: sampleRate,
		channels:   channels,
		duration:   s.Duration(),
		closer:     s,
	}
}

type converter struct {
	in    Stream
	inCh  int
	outCh int
	buf   []byte
	carry int // bytes of a partial frame kept at the start of buf
	rs    *resampler
}

func (c *converter) next() ([]int16, error) {
	n, err := c.in.Read(c.buf[c.carry:])
	n += c.carry

	frameBytes := 2 * c.inCh
	whole := n - n%frameBytes
	samples := make([]int16, whole/2)
	for i := range samples {
		samples[i] = int16(c.buf[2*i]) | int16(c.buf[2*i+1])<<8
	}
	c.carry = copy(c.buf, c.buf[whole:n])

	out := remix(samples, c.inCh, c.outCh)
	if c.rs != nil {
		out = c.rs.process(out)
	}
	return out, err
}

// remix maps interleaved frames between channel counts. Downmixing to mono
// averages; other layouts reuse input channels cyclically.
func remix(in []int16, inCh, outCh int) []int16 {
	if inCh == outCh {
		return in
	}
	frames := len(in) / inCh
	out := make([]int16, frames*outCh)
	for f := 0; f < frames; f++ {
		frame := in[f*inCh : (f+1)*inCh]
		if outCh == 1 {
			var sum int
			for _, v := range frame {
				sum += int(v)
			}
			out[f] = int16(sum / inCh)
			continue
		}
		for c := 0; c < outCh; c++ {
			out[f*outCh+c] = frame[c%inCh]
		}
	}
	return out
}

// resampler converts sample rate by linear interpolation, carrying the last
// input frame across chunks so boundaries stay continuous
type resampler struct {
	channels int
	step     float64 // input frames per output frame
	pos      float64 // read position, frame 0 being the carried frame
	last     []int16
}

func newResampler(channels int, step float64) *resampler {
	return &resampler{channels: channels, step: step}
}

func (r *resampler) process(in []int16) []int16 {
	ch := r.channels
	buf := in
	if r.last != nil {
		buf = make([]int16, 0, len(r.last)+len(in))
		buf = append(buf, r.last...)
		buf = append(buf, in...)
	}
	frames := len(buf) / ch
	if frames == 0 {
		return nil
	}

	var out []int16
	for r.pos+1 < float64(frames) {
		i := int(r.pos)
		frac := r.pos - float64(i)
		for c := 0; c < ch; c++ {
			a := float64(buf[i*ch+c])
			b := float64(buf[(i+1)*ch+c])
			out = append(out, int16(a+(b-a)*frac))
		}
		r.pos += r.step
	}

	r.pos -= float64(frames - 1)
	r.last = append(r.last[:0], buf[(frames-1)*ch:frames*ch]...)
	return out
}
