package denoise_test

import (
	"errors"
	"math"
	"testing"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/denoise"
	"github.com/skypro1111/rnnoise-service/internal/denoise/mock"
)

// fixedHandle overwrites the frame with out and returns score
type fixedHandle struct {
	out   []float32
	score float32
	in    [audio.FrameSamples]float32
}

func (h *fixedHandle) ProcessFrame(buf *[audio.FrameSamples]float32) float32 {
	h.in = *buf
	copy(buf[:], h.out)
	return h.score
}

func (h *fixedHandle) Destroy() {}

func TestProcessFrameSizeGuard(t *testing.T) {
	eng := &mock.Engine{}
	h, err := eng.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, size := range []int{0, 1, audio.FrameWidth - 1, audio.FrameWidth + 1, 2 * audio.FrameWidth} {
		_, err := denoise.ProcessFrame(h, make(audio.Frame, size))
		if !errors.Is(err, denoise.ErrFrameSize) {
			t.Fatalf("size %d: expected ErrFrameSize, got %v", size, err)
		}

		var sizeErr *denoise.FrameSizeError
		if !errors.As(err, &sizeErr) {
			t.Fatalf("size %d: expected *FrameSizeError, got %T", size, err)
		}
		if sizeErr.Got != size || sizeErr.Want != audio.FrameWidth {
			t.Errorf("size %d: unexpected error fields %+v", size, sizeErr)
		}
	}

	if n := eng.LastHandle().FrameCount(); n != 0 {
		t.Errorf("Expected native handle to be untouched, got %d calls", n)
	}
}

func TestProcessFrameConversion(t *testing.T) {
	samples := make([]int16, audio.FrameSamples)
	samples[0] = 1000
	samples[1] = -1000
	samples[2] = math.MaxInt16
	samples[3] = math.MinInt16
	samples[4] = 3

	eng := &mock.Engine{Score: 0.25}
	h, _ := eng.Create()

	result, err := denoise.ProcessFrame(h, audio.SamplesToBytes(samples))
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	in := eng.LastHandle().ProcessFrameCalls[0].Input
	if in[0] != 1000 || in[3] != -32768 {
		t.Errorf("Samples must reach the model unscaled, got %v, %v", in[0], in[3])
	}

	out := audio.BytesToSamples(result.Frame)
	want := []int16{500, -500, 16383, -16384, 1}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("Sample %d: expected %d, got %d", i, w, out[i])
		}
	}

	if result.Score != 0.25 {
		t.Errorf("Expected score 0.25, got %f", result.Score)
	}
}

func TestProcessFrameClamps(t *testing.T) {
	nan := float32(math.NaN())
	h := &fixedHandle{out: []float32{1e6, -1e6, nan, -2.7, 2.7, 32767.9}, score: 1.7}

	result, err := denoise.ProcessFrame(h, make(audio.Frame, audio.FrameWidth))
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	out := audio.BytesToSamples(result.Frame)
	want := []int16{32767, -32768, 0, -2, 2, 32767}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("Sample %d: expected %d, got %d", i, w, out[i])
		}
	}

	if result.Score != 1 {
		t.Errorf("Expected score clamped to 1, got %f", result.Score)
	}

	h.score = -0.3
	result, _ = denoise.ProcessFrame(h, make(audio.Frame, audio.FrameWidth))
	if result.Score != 0 {
		t.Errorf("Expected score clamped to 0, got %f", result.Score)
	}

	h.score = nan
	result, _ = denoise.ProcessFrame(h, make(audio.Frame, audio.FrameWidth))
	if result.Score != 0 {
		t.Errorf("Expected NaN score mapped to 0, got %f", result.Score)
	}
}

func TestLoadRNNoiseConfiguration(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", "/nonexistent/librnnoise.so"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := denoise.LoadRNNoise(tt.path)
			if !errors.Is(err, denoise.ErrConfiguration) {
				t.Errorf("Expected ErrConfiguration, got %v", err)
			}
			if eng != nil {
				t.Error("Expected no engine on failure")
			}
		})
	}
}
