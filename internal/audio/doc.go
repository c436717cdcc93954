// Package audio handles PCM format conversion, framing and reassembly.
// It canonicalizes arbitrary PCM to mono 16-bit 48 kHz, slices it into
// zero-padded 10 ms frames for the denoiser, joins surviving frames back
// together and converts WAV (in-process) and other containers (ffmpeg).
package audio
