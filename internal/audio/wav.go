package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavHeaderSize       = 44
)

// WAVHeader represents the header structure of a canonical 44-byte WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVInfo describes a WAV file without its sample data
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	AudioFormat   uint16  `json:"audio_format"`
	Duration      float64 `json:"duration_seconds"`
}

// EncodeWAV wraps 16-bit PCM in a WAV container. Empty audio produces a valid
// file with an empty data chunk.
func EncodeWAV(buf Buffer) ([]byte, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrFormat, buf.SampleRate)
	}

	if buf.SampleWidth != CanonicalSampleWidth {
		return nil, fmt.Errorf("%w: only 16-bit PCM can be encoded, got %d bytes per sample", ErrFormat, buf.SampleWidth)
	}

	if buf.Channels < 1 {
		return nil, fmt.Errorf("%w: channel count must be at least 1, got %d", ErrFormat, buf.Channels)
	}

	numChannels := uint16(buf.Channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(buf.Data))

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(buf.SampleRate),
		ByteRate:      uint32(buf.SampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	out := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(buf.Data)))
	if err := binary.Write(out, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	out.Write(buf.Data)

	return out.Bytes(), nil
}

// DecodeWAV decodes an integer PCM WAV file of any bit depth and channel
// count into a 16-bit buffer at the file's own sample rate.
func DecodeWAV(data []byte) (Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Buffer{}, fmt.Errorf("%w: not a valid WAV file", ErrFormat)
	}

	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return Buffer{}, fmt.Errorf("%w: unsupported WAV audio format %d (only integer PCM is supported)",
			ErrFormat, dec.WavAudioFormat)
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return Buffer{}, fmt.Errorf("%w: unsupported bit depth %d", ErrFormat, dec.BitDepth)
	}

	if dec.NumChans == 0 {
		return Buffer{}, fmt.Errorf("%w: WAV file declares no channels", ErrFormat)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: failed to read WAV samples: %v", ErrIO, err)
	}

	out := make([]byte, len(pcm.Data)*2)
	for i, v := range pcm.Data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sampleTo16(v, int(dec.BitDepth))))
	}

	return Buffer{
		Data:        out,
		SampleRate:  int(dec.SampleRate),
		SampleWidth: CanonicalSampleWidth,
		Channels:    int(dec.NumChans),
	}, nil
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(r io.ReadSeeker) (*WAVInfo, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrFormat)
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: failed to locate WAV data chunk: %v", ErrFormat, err)
	}

	info := &WAVInfo{
		SampleRate:    dec.SampleRate,
		Channels:      dec.NumChans,
		BitsPerSample: dec.BitDepth,
		AudioFormat:   dec.WavAudioFormat,
	}

	byteRate := int64(dec.SampleRate) * int64(dec.NumChans) * int64(dec.BitDepth) / 8
	if byteRate > 0 {
		info.Duration = float64(dec.PCMLen()) / float64(byteRate)
	}

	return info, nil
}

// sampleTo16 scales a decoded integer sample to the signed 16-bit range.
// 8-bit WAV samples are unsigned.
func sampleTo16(v, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}
