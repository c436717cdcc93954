package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/denoise"
)

type options struct {
	Input     string
	Output    string
	Threshold float32
	Canonical bool
	// ChunkMs > 0 feeds the input in fixed-size chunks, in order, to one session
	ChunkMs int
	Logger  *slog.Logger
}

type result struct {
	Output          string
	SampleRate      int
	Duration        time.Duration
	FramesProcessed uint64
	FramesKept      uint64
}

// outputPath appends .wav unless the name already ends with it
func outputPath(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".wav") {
		return name
	}
	return name + ".wav"
}

func run(ctx context.Context, engine denoise.Engine, adapter *audio.Adapter, opts options) (result, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ChunkMs < 0 {
		return result{}, fmt.Errorf("chunk size must not be negative, got %d ms", opts.ChunkMs)
	}

	in, err := os.Open(opts.Input)
	if err != nil {
		return result{}, fmt.Errorf("%w: %v", audio.ErrIO, err)
	}
	defer in.Close()

	buf, err := adapter.Decode(ctx, in, audio.ContainerFromFilename(opts.Input))
	if err != nil {
		return result{}, err
	}

	session, err := denoise.NewSession(engine, denoise.WithLogger(opts.Logger))
	if err != nil {
		return result{}, err
	}
	defer session.Close()

	var out audio.Buffer
	if opts.ChunkMs > 0 {
		out, err = filterChunked(session, buf, opts)
	} else {
		out, err = filterWhole(session, buf, opts)
	}
	if err != nil {
		return result{}, err
	}

	var encoded bytes.Buffer
	if err := adapter.Denormalize(ctx, &encoded, out, 0, audio.ContainerWAV); err != nil {
		return result{}, err
	}

	path := outputPath(opts.Output)
	if err := os.WriteFile(path, encoded.Bytes(), 0644); err != nil {
		return result{}, fmt.Errorf("%w: %v", audio.ErrIO, err)
	}

	stats := session.Stats()
	opts.Logger.Debug("Wrote output",
		slog.String("path", path),
		slog.Uint64("frames_processed", stats.FramesProcessed),
		slog.Uint64("frames_kept", stats.FramesKept),
	)

	return result{
		Output:          path,
		SampleRate:      out.SampleRate,
		Duration:        out.Duration(),
		FramesProcessed: stats.FramesProcessed,
		FramesKept:      stats.FramesKept,
	}, nil
}

func filterWhole(session *denoise.Session, buf audio.Buffer, opts options) (audio.Buffer, error) {
	filtered, err := session.Filter(buf, denoise.FilterOptions{
		Threshold:         opts.Threshold,
		RestoreSourceRate: !opts.Canonical,
	})
	if err != nil {
		return audio.Buffer{}, err
	}
	return filtered.(audio.Buffer), nil
}

// filterChunked canonicalizes buf once, then streams it through the session
// as raw chunks. Every chunk's last frame is zero-padded on its own.
func filterChunked(session *denoise.Session, buf audio.Buffer, opts options) (audio.Buffer, error) {
	canonical, sourceRate, err := audio.Canonicalize(buf)
	if err != nil {
		return audio.Buffer{}, err
	}

	chunkBytes := audio.CanonicalSampleRate * opts.ChunkMs / 1000 * audio.CanonicalSampleWidth
	filterOpts := denoise.FilterOptions{Threshold: opts.Threshold}

	var joined []byte
	for offset := 0; offset < len(canonical.Data); offset += chunkBytes {
		end := min(offset+chunkBytes, len(canonical.Data))

		filtered, err := session.Filter(audio.RawPCM{
			Data:       canonical.Data[offset:end],
			SampleRate: audio.CanonicalSampleRate,
		}, filterOpts)
		if err != nil {
			return audio.Buffer{}, fmt.Errorf("chunk at byte %d: %w", offset, err)
		}
		joined = append(joined, filtered.(audio.RawPCM).Data...)
	}

	out := audio.NewCanonicalBuffer(joined)
	if opts.Canonical {
		return out, nil
	}
	return audio.RestoreRate(out, sourceRate)
}
