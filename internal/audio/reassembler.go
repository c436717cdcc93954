package audio

import "fmt"

// Concat joins frames, in order, into one canonical buffer
func Concat(frames []Frame) Buffer {
	data := make([]byte, 0, len(frames)*FrameWidth)
	for _, f := range frames {
		data = append(data, f...)
	}
	return NewCanonicalBuffer(data)
}

// RestoreRate resamples a canonical buffer to targetRate. A targetRate of 0
// leaves the buffer at the canonical rate.
func RestoreRate(buf Buffer, targetRate int) (Buffer, error) {
	if targetRate < 0 {
		return Buffer{}, fmt.Errorf("%w: target sample rate must not be negative, got %d", ErrFormat, targetRate)
	}

	if !buf.IsCanonical() {
		return Buffer{}, fmt.Errorf("%w: restore expects canonical audio, got %d Hz/%d bytes/%d channels",
			ErrFormat, buf.SampleRate, buf.SampleWidth, buf.Channels)
	}

	if targetRate == 0 || targetRate == CanonicalSampleRate {
		return buf, nil
	}

	return Buffer{
		Data:        ResampleMono16(buf.Data, CanonicalSampleRate, targetRate),
		SampleRate:  targetRate,
		SampleWidth: CanonicalSampleWidth,
		Channels:    CanonicalChannels,
	}, nil
}
