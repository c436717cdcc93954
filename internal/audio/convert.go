package audio

import (
	"encoding/binary"
	"math"
)

// ToPCM16 converts little-endian PCM of the given sample width to signed
// 16-bit. 8-bit input is treated as unsigned (WAV convention); 24 and 32-bit
// input keep the two most significant bytes.
func ToPCM16(pcm []byte, width int) []byte {
	if width == CanonicalSampleWidth {
		return pcm
	}

	samples := len(pcm) / width
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		src := pcm[i*width : (i+1)*width]
		var s int16
		switch width {
		case 1:
			s = int16(int(src[0])-128) << 8
		case 3:
			s = int16(uint16(src[1]) | uint16(src[2])<<8)
		case 4:
			s = int16(uint16(src[2]) | uint16(src[3])<<8)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DownmixPCM16 averages interleaved 16-bit channels into mono
func DownmixPCM16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}

	block := channels * 2
	frames := len(pcm) / block
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			off := i*block + ch*2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(sum/int32(channels))))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The output length is rounded up, so a resample never
// drops the tail of the input. Same-rate input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcSamples := len(pcm) / 2
	if srcSamples == 0 {
		return []byte{}
	}

	dstSamples := int((int64(srcSamples)*int64(dstRate) + int64(srcRate) - 1) / int64(srcRate))
	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	last := srcSamples - 1

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx > last {
			srcIdx = last
		}
		frac := srcPos - float64(srcIdx)
		if frac > 1 {
			frac = 1
		}

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*2:]))
		s1 := s0
		if srcIdx < last {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*2:]))
		}

		v := float64(s0)*(1-frac) + float64(s1)*frac
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v))))
	}
	return out
}

// BytesToSamples decodes little-endian int16 samples
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes int16 samples as little-endian bytes
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
