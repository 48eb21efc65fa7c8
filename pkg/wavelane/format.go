package wavelane

import "fmt"

// SampleFormat identifies the in-memory representation of a single sample.
type SampleFormat int

const (
	// SampleI16 is interleaved signed 16-bit little-endian PCM. This is the
	// only representation the library currently recognizes.
	SampleI16 SampleFormat = iota
)

// ByteSize returns the width of a single sample in bytes.
func (sf SampleFormat) ByteSize() int {
	switch sf {
	case SampleI16:
		return 2
	default:
		return 0
	}
}

func (sf SampleFormat) String() string {
	switch sf {
	case SampleI16:
		return "i16"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(sf))
	}
}

// Format describes the stream a caller asks the device for. The device may
// substitute a different format during negotiation; the session's accessors
// always reflect the resolved format, not the request.
type Format struct {
	Channels   int
	SampleRate int
	Sample     SampleFormat
}

func (f Format) String() string {
	return fmt.Sprintf("%dch/%dHz/%s", f.Channels, f.SampleRate, f.Sample)
}

// wavePCM is the PCM format tag of the wire-level format structure.
const wavePCM = 1

// WireFormat is the wire-level format descriptor exchanged with the device
// transport. It mirrors the fields of a plain (non-extensible) PCM
// WAVEFORMATEX structure.
type WireFormat struct {
	Tag            uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
}

// wireFormat derives the candidate wire format from a requested format,
// exactly as the device expects it: block align = channels x sample size,
// average byte rate = channels x rate x sample size, 8 bits per sample byte.
func (f Format) wireFormat() WireFormat {
	sampleSize := f.Sample.ByteSize()

	return WireFormat{
		Tag:            wavePCM,
		Channels:       uint16(f.Channels),
		SamplesPerSec:  uint32(f.SampleRate),
		AvgBytesPerSec: uint32(f.Channels) * uint32(f.SampleRate) * uint32(sampleSize),
		BlockAlign:     uint16(f.Channels * sampleSize),
		BitsPerSample:  uint16(8 * sampleSize),
	}
}
