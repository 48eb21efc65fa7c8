package wavelane

import (
	"fmt"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// mp3Channels is fixed: the decoder always emits interleaved stereo.
const mp3Channels = 2

// mp3Source streams interleaved 16-bit PCM out of an MP3 file. The decoder
// emits 16-bit little-endian stereo regardless of the encoded layout.
type mp3Source struct {
	file *os.File
	dec  *gomp3.Decoder
	buf  []byte
}

// NewMP3Source opens an MP3 file as a sample source.
func NewMP3Source(path string) (SampleSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mp3 file: %w", err)
	}

	dec, err := gomp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("create mp3 decoder: %w", err)
	}

	return &mp3Source{file: file, dec: dec}, nil
}

func (m *mp3Source) Channels() int   { return mp3Channels }
func (m *mp3Source) SampleRate() int { return m.dec.SampleRate() }

func (m *mp3Source) ReadSamples(dst []int16) (int, error) {
	bytesNeeded := len(dst) * 2
	if cap(m.buf) < bytesNeeded {
		m.buf = make([]byte, bytesNeeded)
	}
	m.buf = m.buf[:bytesNeeded]

	n, err := io.ReadFull(m.dec, m.buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("decode mp3 samples: %w", err)
	}

	samples := n / 2
	for i := 0; i < samples; i++ {
		low := uint16(m.buf[2*i])
		high := uint16(m.buf[2*i+1])
		dst[i] = int16(low | high<<8)
	}

	return samples, nil
}

func (m *mp3Source) Close() error {
	return m.file.Close()
}
