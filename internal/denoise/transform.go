package denoise

import (
	"encoding/binary"
	"math"

	"github.com/skypro1111/rnnoise-service/internal/audio"
)

// ProcessFrame runs one canonical frame through h. Frames of the wrong size
// are rejected before h is touched. Samples are passed to the model in int16
// amplitude (no scaling) and the output is clamped back into int16 and
// truncated toward zero. The score is clamped to [0, 1].
func ProcessFrame(h Handle, frame audio.Frame) (audio.FrameResult, error) {
	if len(frame) != audio.FrameWidth {
		return audio.FrameResult{}, &FrameSizeError{Got: len(frame), Want: audio.FrameWidth}
	}

	var buf [audio.FrameSamples]float32
	for i := range buf {
		buf[i] = float32(int16(binary.LittleEndian.Uint16(frame[i*2:])))
	}

	score := h.ProcessFrame(&buf)

	out := make(audio.Frame, audio.FrameWidth)
	for i, v := range buf {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(v)))
	}

	return audio.FrameResult{Score: clampScore(score), Frame: out}, nil
}

func floatToInt16(v float32) int16 {
	switch {
	case v != v:
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

func clampScore(s float32) float32 {
	switch {
	case !(s >= 0):
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
