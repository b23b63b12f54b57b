package encoder

import (
	"errors"
	"fmt"
	"io"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const wavPCM = 1

// ErrWavFormat is returned for WAV files that are not 16 kHz mono PCM16.
var ErrWavFormat = errors.New("unsupported wav format")

var pcmFormat = &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate}

// WavEncoder streams PCM into an in-memory RIFF file. The whole file is
// emitted on Close, once the header sizes are final.
type WavEncoder struct {
	mu          sync.Mutex
	buf         *writerseeker.WriterSeeker
	enc         *wav.Encoder
	out         []byte
	totalFrames uint64
	closed      bool
}

func NewWav() *WavEncoder {
	buf := &writerseeker.WriterSeeker{}
	return &WavEncoder{
		buf: buf,
		enc: wav.NewEncoder(buf, SampleRate, BitsPerSample, Channels, wavPCM),
	}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	data := make([]int, len(block))
	for i, s := range block {
		data[i] = int(s)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("wav encoder closed")
	}
	if err := e.enc.Write(&goaudio.IntBuffer{Format: pcmFormat, Data: data, SourceBitDepth: BitsPerSample}); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Drain() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.out
	e.out = nil
	return out
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.totalFrames == 0 {
		return nil
	}
	if err := e.enc.Close(); err != nil {
		return fmt.Errorf("wav finalize: %w", err)
	}
	out, err := io.ReadAll(e.buf.Reader())
	if err != nil {
		return err
	}
	e.out = out
	return nil
}

func (e *WavEncoder) MediaType() string { return "audio/wav" }

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

// EncodeWav wraps samples in a complete WAV file.
func EncodeWav(samples []int16) ([]byte, error) {
	enc := NewWav()
	if err := enc.EncodeBlock(samples); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Drain(), nil
}

// DecodeWav reads the samples of a 16 kHz mono PCM16 WAV file. Any other
// layout is rejected with ErrWavFormat rather than resampled.
func DecodeWav(r io.ReadSeeker) ([]int16, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("not a wav file: %w", err)
		}
		return nil, errors.New("not a wav file or no audio")
	}
	if d.WavAudioFormat != wavPCM || d.NumChans != Channels || d.SampleRate != SampleRate || d.BitDepth != BitsPerSample {
		return nil, fmt.Errorf("%w: format %d, %d channel(s), %d Hz, %d-bit; want PCM mono %d Hz 16-bit",
			ErrWavFormat, d.WavAudioFormat, d.NumChans, d.SampleRate, d.BitDepth, SampleRate)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav samples: %w", err)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, nil
}
