// Command denoise runs one audio file through RNNoise and writes a WAV file.
//
//	denoise --lib /usr/local/lib/librnnoise.so [--threshold 0.5] in.wav out
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/denoise"
)

func main() {
	app := &cli.App{
		Name:      "denoise",
		Usage:     "Remove background noise from an audio file with RNNoise",
		ArgsUsage: "INPUT OUTPUT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "lib",
				Usage:    "Path to the RNNoise shared library",
				EnvVars:  []string{"DENOISE_LIBRARY_PATH"},
				Required: true,
			},
			&cli.Float64Flag{
				Name:  "threshold",
				Usage: "Drop frames whose voice score is below this value (0 keeps every frame)",
			},
			&cli.BoolFlag{
				Name:  "canonical",
				Usage: "Write 48 kHz output instead of restoring the input sample rate",
			},
			&cli.IntFlag{
				Name:  "chunk-ms",
				Usage: "Feed the input to one session in chunks of this many milliseconds",
			},
			&cli.BoolFlag{
				Name:    "ffmpeg",
				Usage:   "Decode non-WAV inputs with ffmpeg",
				EnvVars: []string{"FFMPEG_ENABLED"},
			},
			&cli.StringFlag{
				Name:    "ffmpeg-path",
				Usage:   "ffmpeg binary",
				Value:   "ffmpeg",
				EnvVars: []string{"FFMPEG_PATH"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log each processing step",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("expected INPUT and OUTPUT arguments", 2)
			}

			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			engine, err := denoise.LoadRNNoise(c.String("lib"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer engine.Close()

			adapter := audio.NewAdapter(audio.AdapterConfig{
				FFmpegEnabled: c.Bool("ffmpeg"),
				FFmpegPath:    c.String("ffmpeg-path"),
			}, logger)

			result, err := run(c.Context, engine, adapter, options{
				Input:     c.Args().Get(0),
				Output:    c.Args().Get(1),
				Threshold: float32(c.Float64("threshold")),
				Canonical: c.Bool("canonical"),
				ChunkMs:   c.Int("chunk-ms"),
				Logger:    logger,
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			fmt.Fprintf(c.App.Writer, "Wrote %s (%d Hz, %.2fs, %d/%d frames kept)\n",
				result.Output, result.SampleRate, result.Duration.Seconds(), result.FramesKept, result.FramesProcessed)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "denoise: %v\n", err)
		os.Exit(1)
	}
}
