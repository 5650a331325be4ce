package audio

// Resampler performs linear-interpolation sample rate conversion while
// preserving the fractional read position and the trailing sample across
// calls, so a continuous stream can be converted chunk by chunk without
// phase discontinuities at chunk boundaries.
type Resampler struct {
	inRate  int
	outRate int
	step    float64

	// pos is the fractional read position relative to the start of the next
	// input chunk. A negative position points into the previous chunk's
	// trailing sample.
	pos    float64
	prev   int16
	primed bool
}

// NewResampler creates a resampler converting from inRate to outRate.
func NewResampler(inRate, outRate int) *Resampler {
	return &Resampler{
		inRate:  inRate,
		outRate: outRate,
		step:    float64(inRate) / float64(outRate),
	}
}

// Process converts one chunk of input samples. The returned slice length
// varies by one sample around len(input)*outRate/inRate depending on the
// carried fractional position.
func (r *Resampler) Process(input []int16) []int16 {
	if len(input) == 0 {
		return nil
	}
	if r.inRate == r.outRate {
		out := make([]int16, len(input))
		copy(out, input)
		r.prev = input[len(input)-1]
		r.primed = true
		return out
	}

	n := len(input)
	output := make([]int16, 0, int(float64(n)/r.step)+2)

	for ; r.pos <= float64(n-1); r.pos += r.step {
		idx := int(r.pos)
		frac := r.pos - float64(idx)
		if r.pos < 0 {
			// Interpolate between the previous chunk's last sample and the
			// first sample of this chunk.
			if !r.primed {
				r.pos = 0
				idx, frac = 0, 0
			} else {
				s0 := float64(r.prev)
				s1 := float64(input[0])
				t := r.pos + 1 // distance from prev sample, in (0,1)
				output = append(output, int16(s0+(s1-s0)*t))
				continue
			}
		}

		s0 := float64(input[idx])
		s1 := s0
		if idx+1 < n {
			s1 = float64(input[idx+1])
		}
		output = append(output, int16(s0+(s1-s0)*frac))
	}

	r.pos -= float64(n)
	r.prev = input[n-1]
	r.primed = true

	return output
}

// Reset clears the carried conversion state.
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
	r.primed = false
}

// ProcessBytes converts little-endian PCM16 bytes, discarding a trailing odd
// byte if present.
func (r *Resampler) ProcessBytes(data []byte) []byte {
	if len(data) < 2 {
		return nil
	}
	pcm, err := BytesToPCM(data[:len(data)&^1])
	if err != nil {
		return nil
	}
	return PCMToBytes(r.Process(pcm))
}
