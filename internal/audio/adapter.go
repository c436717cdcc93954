package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// ContainerWAV is the only container handled without a subprocess
const ContainerWAV = "wav"

// Codec decodes a container into PCM and encodes PCM back into it
type Codec interface {
	Decode(ctx context.Context, r io.Reader) (Buffer, error)
	Encode(ctx context.Context, w io.Writer, buf Buffer) error
}

// WAVCodec handles RIFF/WAVE files in-process
type WAVCodec struct{}

// Decode implements Codec
func (WAVCodec) Decode(_ context.Context, r io.Reader) (Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: failed to read WAV input: %v", ErrIO, err)
	}
	return DecodeWAV(data)
}

// Encode implements Codec
func (WAVCodec) Encode(_ context.Context, w io.Writer, buf Buffer) error {
	data, err := EncodeWAV(buf)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: failed to write WAV output: %v", ErrIO, err)
	}
	return nil
}

// AdapterConfig selects the codecs available to an Adapter
type AdapterConfig struct {
	FFmpegEnabled bool
	FFmpegPath    string
}

// Adapter converts between encoded containers and PCM buffers
type Adapter struct {
	config AdapterConfig
	wav    Codec
	logger *slog.Logger
}

// NewAdapter creates a format adapter
func NewAdapter(config AdapterConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		config: config,
		wav:    WAVCodec{},
		logger: logger.With(slog.String("component", "audio.adapter")),
	}
}

// ContainerFromFilename returns the lower-case extension of name without the dot
func ContainerFromFilename(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Supports reports whether the container can be decoded
func (a *Adapter) Supports(container string) bool {
	_, err := a.codec(container)
	return err == nil
}

func (a *Adapter) codec(container string) (Codec, error) {
	container = strings.ToLower(strings.TrimSpace(container))
	if container == ContainerWAV {
		return a.wav, nil
	}

	if container == "" {
		return nil, fmt.Errorf("%w: container type is unknown", ErrFormat)
	}

	if !a.config.FFmpegEnabled {
		return nil, fmt.Errorf("%w: container %q requires ffmpeg, which is disabled", ErrFormat, container)
	}

	return FFmpegCodec{Path: a.config.FFmpegPath, Container: container}, nil
}

// Decode reads a container and returns its PCM in the source format
func (a *Adapter) Decode(ctx context.Context, r io.Reader, container string) (Buffer, error) {
	codec, err := a.codec(container)
	if err != nil {
		return Buffer{}, err
	}

	buf, err := codec.Decode(ctx, r)
	if err != nil {
		return Buffer{}, err
	}

	a.logger.Debug("Decoded audio",
		slog.String("container", container),
		slog.Int("sample_rate", buf.SampleRate),
		slog.Int("channels", buf.Channels),
		slog.Int("bytes", len(buf.Data)),
	)

	return buf, nil
}

// Normalize decodes a container into the canonical format
func (a *Adapter) Normalize(ctx context.Context, r io.Reader, container string) (Buffer, error) {
	buf, err := a.Decode(ctx, r, container)
	if err != nil {
		return Buffer{}, err
	}

	canonical, _, err := Canonicalize(buf)
	return canonical, err
}

// Denormalize optionally resamples buf to targetRate (0 keeps the current
// rate) and encodes it into the container.
func (a *Adapter) Denormalize(ctx context.Context, w io.Writer, buf Buffer, targetRate int, container string) error {
	codec, err := a.codec(container)
	if err != nil {
		return err
	}

	if targetRate > 0 && targetRate != buf.SampleRate {
		canonical, _, err := Canonicalize(buf)
		if err != nil {
			return err
		}
		if buf, err = RestoreRate(canonical, targetRate); err != nil {
			return err
		}
	}

	return codec.Encode(ctx, w, buf)
}
