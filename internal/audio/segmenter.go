package audio

// Frame is exactly FrameWidth bytes of canonical PCM (10 ms at 48 kHz).
// Frames produced by Segment own their bytes; treat them as immutable.
type Frame []byte

// FrameResult pairs a denoised frame with the voice-activity score the
// transform produced for it.
type FrameResult struct {
	Score float32 `json:"score"`
	Frame Frame   `json:"-"`
}

// Segmentation is the output of Segment
type Segmentation struct {
	Frames []Frame
	// SourceSampleRate is the rate of the input before it was resampled to
	// the canonical rate. Pass it to RestoreRate to round-trip the rate.
	SourceSampleRate int
	// PaddedBytes is the number of zero bytes appended to the last frame
	PaddedBytes int
}

// DurationMs returns the duration in milliseconds covered by the frames,
// padding included.
func (s Segmentation) DurationMs() int {
	return len(s.Frames) * FrameDurationMs
}

// Segment canonicalizes the payload and slices it into frames. A raw payload
// must carry its sample rate.
func Segment(p Payload) (Segmentation, error) {
	buf, sourceRate, err := Canonicalize(p)
	if err != nil {
		return Segmentation{}, err
	}

	frames, padded := SegmentCanonical(buf.Data)
	return Segmentation{
		Frames:           frames,
		SourceSampleRate: sourceRate,
		PaddedBytes:      padded,
	}, nil
}

// SegmentCanonical splits canonical PCM into consecutive non-overlapping
// frames. A short final chunk is padded with zero bytes (digital silence) up
// to FrameWidth rather than dropped, so the output may run up to one frame
// longer than the input. Each call pads independently.
func SegmentCanonical(pcm []byte) ([]Frame, int) {
	count := (len(pcm) + FrameWidth - 1) / FrameWidth
	frames := make([]Frame, 0, count)
	padded := 0

	for offset := 0; offset < len(pcm); offset += FrameWidth {
		frame := make(Frame, FrameWidth)
		n := copy(frame, pcm[offset:])
		if n < FrameWidth {
			padded = FrameWidth - n
		}
		frames = append(frames, frame)
	}

	return frames, padded
}
