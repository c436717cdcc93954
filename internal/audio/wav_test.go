package audio

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func sineBuffer(sampleRate int, seconds float64, frequency float64) Buffer {
	numSamples := int(float64(sampleRate) * seconds)
	samples := make([]int16, numSamples)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(16383.0 * math.Sin(2*math.Pi*frequency*t))
	}
	return Buffer{
		Data:        SamplesToBytes(samples),
		SampleRate:  sampleRate,
		SampleWidth: 2,
		Channels:    1,
	}
}

func TestEncodeWAV(t *testing.T) {
	buf := sineBuffer(8000, 0.1, 440)

	wavData, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := 44 + len(buf.Data)
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	info, err := GetWAVInfo(bytes.NewReader(wavData))
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}

	if math.Abs(info.Duration-0.1) > 0.001 {
		t.Errorf("Expected duration 0.100, got %.3f", info.Duration)
	}
}

func TestDecodeWAV(t *testing.T) {
	original := []int16{100, -200, 300, -400, 500}
	wavData, err := EncodeWAV(Buffer{Data: SamplesToBytes(original), SampleRate: 16000, SampleWidth: 2, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	buf, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if buf.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", buf.SampleRate)
	}

	decoded := BytesToSamples(buf.Data)
	if len(decoded) != len(original) {
		t.Fatalf("Expected %d samples, got %d", len(original), len(decoded))
	}

	for i := range original {
		if decoded[i] != original[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, original[i], decoded[i])
		}
	}
}

func TestDecodeWAVStereo(t *testing.T) {
	stereo := SamplesToBytes([]int16{100, 300, -100, -300})
	wavData, err := EncodeWAV(Buffer{Data: stereo, SampleRate: 44100, SampleWidth: 2, Channels: 2})
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	buf, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if buf.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", buf.Channels)
	}

	if !bytes.Equal(buf.Data, stereo) {
		t.Errorf("Stereo samples changed: got %v", BytesToSamples(buf.Data))
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	_, err := DecodeWAV([]byte("definitely not a riff file, just some bytes here......"))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("Expected ErrFormat, got %v", err)
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	wavData, err := EncodeWAV(NewCanonicalBuffer(nil))
	if err != nil {
		t.Fatalf("EncodeWAV failed for empty audio: %v", err)
	}

	if len(wavData) != 44 {
		t.Errorf("Expected header-only file of 44 bytes, got %d", len(wavData))
	}
}

func TestEncodeWAVInvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		buf  Buffer
	}{
		{"zero sample rate", Buffer{Data: []byte{0, 0}, SampleRate: 0, SampleWidth: 2, Channels: 1}},
		{"negative sample rate", Buffer{Data: []byte{0, 0}, SampleRate: -1000, SampleWidth: 2, Channels: 1}},
		{"24-bit samples", Buffer{Data: []byte{0, 0, 0}, SampleRate: 8000, SampleWidth: 3, Channels: 1}},
		{"no channels", Buffer{Data: []byte{0, 0}, SampleRate: 8000, SampleWidth: 2, Channels: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeWAV(tt.buf); !errors.Is(err, ErrFormat) {
				t.Errorf("Expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestGetWAVInfoInvalid(t *testing.T) {
	if _, err := GetWAVInfo(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Error("Expected error for too short WAV data")
	}
}
