package denoise

import "github.com/skypro1111/rnnoise-service/internal/audio"

// Engine is a loaded denoiser library. One engine is shared by every session
// in the process; it only hands out independent handles.
type Engine interface {
	// Create allocates fresh denoiser state
	Create() (Handle, error)
	// Close unloads the library. Every handle must be destroyed first.
	Close() error
}

// Handle is one native denoiser state. It is recurrent: the output for a
// frame depends on every frame processed before it, so calls must be
// sequential and in stream order.
type Handle interface {
	// ProcessFrame denoises buf in place and returns the voice probability
	// the model assigned to it.
	ProcessFrame(buf *[audio.FrameSamples]float32) float32
	// Destroy frees the native state. The handle must not be used afterwards.
	Destroy()
}
