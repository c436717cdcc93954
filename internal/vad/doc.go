// Package vad gates denoised frames by the voice-activity score the denoiser
// reports for each of them. Frames scoring below the threshold are dropped
// whole; the survivors keep their original order.
package vad
