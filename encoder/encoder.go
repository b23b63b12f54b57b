package encoder

import (
	"errors"
	"fmt"
	"strings"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	FormatFLAC = "flac"
	FormatWAV  = "wav"
)

// ErrUnsupported is wrapped by Negotiate when the requested format could
// not be set up and the WAV encoder was substituted.
var ErrUnsupported = errors.New("encoding unsupported")

// Encoder turns PCM16 blocks into a container stream. Drain returns the
// bytes produced since the previous drain, so callers can accumulate the
// stream as ordered chunks while capture is still running.
type Encoder interface {
	EncodeBlock(block []int16) error
	Drain() []byte
	Close() error
	MediaType() string
	TotalFrames() uint64
}

// Negotiate returns an encoder for format. When format is unknown or its
// encoder cannot be created, the WAV encoder is returned together with an
// error wrapping ErrUnsupported; the encoder is usable in both cases.
func Negotiate(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatWAV:
		return NewWav(), nil
	case FormatFLAC, "":
		enc, err := NewFlac()
		if err != nil {
			return NewWav(), fmt.Errorf("%w: flac: %v", ErrUnsupported, err)
		}
		return enc, nil
	default:
		return NewWav(), fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
}
