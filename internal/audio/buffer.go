package audio

import (
	"errors"
	"fmt"
	"time"
)

// Canonical format accepted by the frame transform
const (
	CanonicalSampleRate  = 48000
	CanonicalSampleWidth = 2 // bytes per sample (signed 16-bit LE)
	CanonicalChannels    = 1
	FrameDurationMs      = 10

	// FrameSamples is the number of samples in one canonical frame (480)
	FrameSamples = CanonicalSampleRate * FrameDurationMs / 1000
	// FrameWidth is the size in bytes of one canonical frame (960)
	FrameWidth = FrameSamples * CanonicalSampleWidth
)

var (
	// ErrFormat reports input whose container, channel layout, bit depth or
	// sample rate cannot be interpreted.
	ErrFormat = errors.New("audio: unsupported format")

	// ErrIO reports a read or write failure in a codec collaborator.
	ErrIO = errors.New("audio: i/o failure")
)

// Payload is audio handed to the pipeline. It has exactly two cases:
// Buffer (structured, carries full format metadata) and RawPCM (bytes in the
// canonical layout plus an explicit sample rate).
type Payload interface {
	payload()
}

// Buffer is PCM audio with its format metadata
type Buffer struct {
	Data        []byte `json:"-"`
	SampleRate  int    `json:"sample_rate"`
	SampleWidth int    `json:"sample_width"` // bytes per sample
	Channels    int    `json:"channels"`
}

// RawPCM is mono signed 16-bit little-endian PCM without a header. The sample
// rate is required.
type RawPCM struct {
	Data       []byte
	SampleRate int
}

func (Buffer) payload() {}
func (RawPCM) payload() {}

// NewCanonicalBuffer wraps canonical PCM bytes
func NewCanonicalBuffer(data []byte) Buffer {
	return Buffer{
		Data:        data,
		SampleRate:  CanonicalSampleRate,
		SampleWidth: CanonicalSampleWidth,
		Channels:    CanonicalChannels,
	}
}

// IsCanonical reports whether the buffer is mono 16-bit 48 kHz
func (b Buffer) IsCanonical() bool {
	return b.SampleRate == CanonicalSampleRate &&
		b.SampleWidth == CanonicalSampleWidth &&
		b.Channels == CanonicalChannels
}

// BlockAlign returns the number of bytes per multi-channel sample frame
func (b Buffer) BlockAlign() int {
	return b.SampleWidth * b.Channels
}

// NumSamples returns the number of samples per channel
func (b Buffer) NumSamples() int {
	if b.BlockAlign() <= 0 {
		return 0
	}
	return len(b.Data) / b.BlockAlign()
}

// Duration returns the playback duration of the buffer
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.NumSamples()) * time.Second / time.Duration(b.SampleRate)
}

// Validate checks that the metadata describes a layout this package can convert
func (b Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrFormat, b.SampleRate)
	}

	if b.Channels < 1 {
		return fmt.Errorf("%w: channel count must be at least 1, got %d", ErrFormat, b.Channels)
	}

	switch b.SampleWidth {
	case 1, 2, 3, 4:
	default:
		return fmt.Errorf("%w: unsupported sample width %d bytes", ErrFormat, b.SampleWidth)
	}

	if len(b.Data)%b.BlockAlign() != 0 {
		return fmt.Errorf("%w: data length %d is not a multiple of block size %d",
			ErrFormat, len(b.Data), b.BlockAlign())
	}

	return nil
}

// Buffer converts raw PCM into a structured buffer
func (r RawPCM) Buffer() (Buffer, error) {
	if r.SampleRate <= 0 {
		return Buffer{}, fmt.Errorf("%w: raw PCM requires an explicit sample rate", ErrFormat)
	}

	return Buffer{
		Data:        r.Data,
		SampleRate:  r.SampleRate,
		SampleWidth: CanonicalSampleWidth,
		Channels:    CanonicalChannels,
	}, nil
}

// Canonicalize converts either payload case into a canonical buffer. The
// returned source rate is the sample rate before resampling.
func Canonicalize(p Payload) (Buffer, int, error) {
	var buf Buffer
	switch v := p.(type) {
	case Buffer:
		buf = v
	case RawPCM:
		b, err := v.Buffer()
		if err != nil {
			return Buffer{}, 0, err
		}
		buf = b
	case nil:
		return Buffer{}, 0, fmt.Errorf("%w: nil payload", ErrFormat)
	default:
		return Buffer{}, 0, fmt.Errorf("%w: unknown payload type %T", ErrFormat, p)
	}

	if err := buf.Validate(); err != nil {
		return Buffer{}, 0, err
	}

	sourceRate := buf.SampleRate
	if buf.IsCanonical() {
		return buf, sourceRate, nil
	}

	pcm := buf.Data
	if buf.SampleWidth != CanonicalSampleWidth {
		pcm = ToPCM16(pcm, buf.SampleWidth)
	}
	if buf.Channels != CanonicalChannels {
		pcm = DownmixPCM16(pcm, buf.Channels)
	}
	if buf.SampleRate != CanonicalSampleRate {
		pcm = ResampleMono16(pcm, buf.SampleRate, CanonicalSampleRate)
	}

	return NewCanonicalBuffer(pcm), sourceRate, nil
}
