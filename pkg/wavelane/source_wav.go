package wavelane

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

// wavSource streams interleaved 16-bit PCM out of a WAV file.
type wavSource struct {
	file *os.File
	dec  *wav.Decoder
	buf  *audio.IntBuffer
}

// NewWAVSource opens a 16-bit PCM WAV file as a sample source.
func NewWAVSource(path string) (SampleSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav file: %w", err)
	}

	dec := wav.NewDecoder(file)
	dec.ReadInfo()

	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("not a valid wav file: %s", path)
	}

	if dec.WavAudioFormat != wavPCMFormat || dec.BitDepth != 16 {
		file.Close()
		return nil, fmt.Errorf("%w: wav format %d, %d-bit",
			ErrSampleFormatUnsupported, dec.WavAudioFormat, dec.BitDepth)
	}

	return &wavSource{file: file, dec: dec}, nil
}

func (w *wavSource) Channels() int   { return int(w.dec.NumChans) }
func (w *wavSource) SampleRate() int { return int(w.dec.SampleRate) }

func (w *wavSource) ReadSamples(dst []int16) (int, error) {
	if w.buf == nil || len(w.buf.Data) < len(dst) {
		w.buf = &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: w.Channels(),
				SampleRate:  w.SampleRate(),
			},
			Data:           make([]int, len(dst)),
			SourceBitDepth: 16,
		}
	}
	w.buf.Data = w.buf.Data[:len(dst)]

	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil {
		return 0, fmt.Errorf("decode wav samples: %w", err)
	}

	if n == 0 {
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		dst[i] = int16(w.buf.Data[i])
	}

	return n, nil
}

func (w *wavSource) Close() error {
	return w.file.Close()
}
