package audio

import (
	"bytes"
	"errors"
	"testing"
)

func patternPCM(n int) []byte {
	pcm := make([]byte, n)
	for i := range pcm {
		pcm[i] = byte(i%251 + 1)
	}
	return pcm
}

func TestFrameConstants(t *testing.T) {
	if FrameSamples != 480 {
		t.Errorf("Expected 480 samples per frame, got %d", FrameSamples)
	}
	if FrameWidth != 960 {
		t.Errorf("Expected 960 bytes per frame, got %d", FrameWidth)
	}
}

func TestSegmentAligned(t *testing.T) {
	for _, frames := range []int{1, 2, 7, 100} {
		pcm := patternPCM(frames * FrameWidth)

		seg, err := Segment(NewCanonicalBuffer(pcm))
		if err != nil {
			t.Fatalf("Segment failed: %v", err)
		}

		if len(seg.Frames) != frames {
			t.Errorf("Expected %d frames, got %d", frames, len(seg.Frames))
		}

		if seg.PaddedBytes != 0 {
			t.Errorf("Expected no padding, got %d bytes", seg.PaddedBytes)
		}

		for i, f := range seg.Frames {
			if !bytes.Equal(f, pcm[i*FrameWidth:(i+1)*FrameWidth]) {
				t.Fatalf("Frame %d differs from source slice", i)
			}
		}
	}
}

func TestSegmentPadsFinalFrame(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		wantCount int
		wantPad   int
	}{
		{"shorter than one frame", 100, 1, FrameWidth - 100},
		{"one frame and a bit", FrameWidth + 2, 2, FrameWidth - 2},
		{"almost three frames", 3*FrameWidth - 2, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := patternPCM(tt.size)

			seg, err := Segment(RawPCM{Data: pcm, SampleRate: CanonicalSampleRate})
			if err != nil {
				t.Fatalf("Segment failed: %v", err)
			}

			if len(seg.Frames) != tt.wantCount {
				t.Fatalf("Expected %d frames, got %d", tt.wantCount, len(seg.Frames))
			}

			if seg.PaddedBytes != tt.wantPad {
				t.Errorf("Expected %d padded bytes, got %d", tt.wantPad, seg.PaddedBytes)
			}

			for i, f := range seg.Frames {
				if len(f) != FrameWidth {
					t.Fatalf("Frame %d has %d bytes, want %d", i, len(f), FrameWidth)
				}
			}

			for i := 0; i < tt.wantCount-1; i++ {
				if !bytes.Equal(seg.Frames[i], pcm[i*FrameWidth:(i+1)*FrameWidth]) {
					t.Errorf("Frame %d differs from source slice", i)
				}
			}

			last := seg.Frames[tt.wantCount-1]
			remaining := tt.size - (tt.wantCount-1)*FrameWidth
			if !bytes.Equal(last[:remaining], pcm[(tt.wantCount-1)*FrameWidth:]) {
				t.Error("Last frame does not start with the remaining source bytes")
			}
			for i, b := range last[remaining:] {
				if b != 0 {
					t.Fatalf("Padding byte %d is %d, want 0", i, b)
				}
			}
		})
	}
}

func TestSegmentOneSecondSilence(t *testing.T) {
	silence := make([]byte, CanonicalSampleRate*CanonicalSampleWidth)

	seg, err := Segment(NewCanonicalBuffer(silence))
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if len(seg.Frames) != 100 {
		t.Errorf("Expected 100 frames, got %d", len(seg.Frames))
	}

	if seg.PaddedBytes != 0 {
		t.Errorf("Expected no padding, got %d", seg.PaddedBytes)
	}

	if seg.DurationMs() != 1000 {
		t.Errorf("Expected 1000 ms of frames, got %d", seg.DurationMs())
	}
}

func TestSegmentChunkedStream(t *testing.T) {
	// 10 ms, 20 ms and 15 ms chunks of one recording, segmented independently
	chunkMs := []int{10, 20, 15}
	total := 0
	frames := 0
	for _, ms := range chunkMs {
		size := CanonicalSampleRate * ms / 1000 * CanonicalSampleWidth
		total += size

		seg, err := Segment(RawPCM{Data: patternPCM(size), SampleRate: CanonicalSampleRate})
		if err != nil {
			t.Fatalf("Segment failed: %v", err)
		}
		frames += len(seg.Frames)
	}

	if frames != 5 {
		t.Errorf("Expected 5 frames, got %d", frames)
	}

	if total != 45*FrameWidth/10 {
		t.Errorf("Expected 45 ms of input, got %d bytes", total)
	}

	if frames*FrameWidth < total {
		t.Errorf("Frames cover %d bytes, less than the %d byte input", frames*FrameWidth, total)
	}
}

func TestSegmentRecordsSourceRate(t *testing.T) {
	pcm := patternPCM(16000 * 2 / 10) // 100 ms at 16 kHz

	seg, err := Segment(RawPCM{Data: pcm, SampleRate: 16000})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if seg.SourceSampleRate != 16000 {
		t.Errorf("Expected source rate 16000, got %d", seg.SourceSampleRate)
	}

	if len(seg.Frames) != 10 {
		t.Errorf("Expected 10 frames after resampling to 48 kHz, got %d", len(seg.Frames))
	}
}

func TestSegmentRawRequiresRate(t *testing.T) {
	_, err := Segment(RawPCM{Data: patternPCM(FrameWidth)})
	if !errors.Is(err, ErrFormat) {
		t.Errorf("Expected ErrFormat, got %v", err)
	}
}

func TestSegmentEmpty(t *testing.T) {
	seg, err := Segment(NewCanonicalBuffer(nil))
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if len(seg.Frames) != 0 {
		t.Errorf("Expected no frames, got %d", len(seg.Frames))
	}
}

func TestSegmentDoesNotAliasInput(t *testing.T) {
	pcm := patternPCM(FrameWidth)
	frames, _ := SegmentCanonical(pcm)

	pcm[0] = 0xFF
	if frames[0][0] == 0xFF {
		t.Error("Frame shares memory with the input buffer")
	}
}
