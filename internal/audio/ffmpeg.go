package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultFFmpegPath is used when no explicit binary is configured
const DefaultFFmpegPath = "ffmpeg"

// ffmpegMuxers maps containers ffmpeg can write to a pipe to muxer names
var ffmpegMuxers = map[string]string{
	"mp3":  "mp3",
	"ogg":  "ogg",
	"opus": "opus",
	"flac": "flac",
}

// FFmpegCodec transcodes containers through an ffmpeg subprocess. Decoding
// asks ffmpeg for canonical PCM directly, so the source rate of a transcoded
// file is reported as the canonical rate.
type FFmpegCodec struct {
	Path      string
	Container string
}

// Decode pipes r through ffmpeg and returns canonical PCM
func (c FFmpegCodec) Decode(ctx context.Context, r io.Reader) (Buffer, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"pipe:1",
	}

	var stdout bytes.Buffer
	if err := c.run(ctx, args, r, &stdout); err != nil {
		return Buffer{}, err
	}

	return NewCanonicalBuffer(stdout.Bytes()), nil
}

// Encode writes 16-bit PCM to w in the codec's container
func (c FFmpegCodec) Encode(ctx context.Context, w io.Writer, buf Buffer) error {
	muxer, ok := ffmpegMuxers[c.Container]
	if !ok {
		return fmt.Errorf("%w: cannot encode %q through ffmpeg", ErrFormat, c.Container)
	}

	if buf.SampleWidth != CanonicalSampleWidth {
		return fmt.Errorf("%w: only 16-bit PCM can be encoded, got %d bytes per sample", ErrFormat, buf.SampleWidth)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(buf.SampleRate),
		"-ac", strconv.Itoa(buf.Channels),
		"-i", "pipe:0",
		"-f", muxer,
		"pipe:1",
	}

	return c.run(ctx, args, bytes.NewReader(buf.Data), w)
}

func (c FFmpegCodec) run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	path := c.Path
	if path == "" {
		path = DefaultFFmpegPath
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return fmt.Errorf("%w: ffmpeg rejected %q input: %s", ErrFormat, c.Container,
				strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: ffmpeg: %v", ErrIO, err)
	}

	return nil
}
