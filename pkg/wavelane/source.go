package wavelane

import "math"

// SampleSource produces interleaved signed 16-bit PCM for the player to
// stream into a session's buffer leases.
type SampleSource interface {
	// Channels returns the source's channel count.
	Channels() int

	// SampleRate returns the source's sample rate in Hz.
	SampleRate() int

	// ReadSamples fills dst with interleaved samples and returns how many
	// were written. It returns io.EOF once the source is exhausted.
	ReadSamples(dst []int16) (int, error)

	// Close releases any resources backing the source.
	Close() error
}

// toneSource is an endless sine wave generator, identical on all channels.
type toneSource struct {
	channels   int
	sampleRate int
	frequency  float64
	phase      float64
}

// NewToneSource creates a sine wave source at the given frequency. It never
// reaches EOF; playback ends when the caller stops pulling samples.
func NewToneSource(channels, sampleRate int, frequency float64) SampleSource {
	return &toneSource{
		channels:   channels,
		sampleRate: sampleRate,
		frequency:  frequency,
	}
}

func (t *toneSource) Channels() int   { return t.channels }
func (t *toneSource) SampleRate() int { return t.sampleRate }
func (t *toneSource) Close() error    { return nil }

func (t *toneSource) ReadSamples(dst []int16) (int, error) {
	step := 2 * math.Pi * t.frequency / float64(t.sampleRate)

	frames := len(dst) / t.channels
	for i := 0; i < frames; i++ {
		// Headroom below full scale keeps the raw tone from clipping after
		// any downstream mixing.
		value := int16(math.Sin(t.phase) * 0.8 * math.MaxInt16)

		for ch := 0; ch < t.channels; ch++ {
			dst[i*t.channels+ch] = value
		}

		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}

	return frames * t.channels, nil
}
