//go:build linux || darwin

package denoise

import (
	"fmt"
	"os"
	"sync"

	"github.com/ebitengine/purego"

	"github.com/skypro1111/rnnoise-service/internal/audio"
)

// NativeAvailable reports whether LoadRNNoise can load a library on this platform
func NativeAvailable() bool { return true }

// rnnoiseEngine binds the RNNoise C API through purego, without cgo
type rnnoiseEngine struct {
	path string
	lib  uintptr

	create       func(model uintptr) uintptr
	destroy      func(state uintptr)
	processFrame func(state uintptr, out, in *float32) float32

	mu     sync.Mutex
	live   int
	closed bool
}

// LoadRNNoise opens the RNNoise shared library at path. The path is used as
// given; the loader search path is never consulted for a missing file.
func LoadRNNoise(path string) (Engine, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: rnnoise library path is empty", ErrConfiguration)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: rnnoise library not found: %v", ErrConfiguration, err)
	}

	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load %s: %v", ErrConfiguration, path, err)
	}

	e := &rnnoiseEngine{path: path, lib: lib}

	bindings := []struct {
		name string
		fn   any
	}{
		{"rnnoise_create", &e.create},
		{"rnnoise_destroy", &e.destroy},
		{"rnnoise_process_frame", &e.processFrame},
	}
	for _, b := range bindings {
		sym, err := purego.Dlsym(lib, b.name)
		if err != nil {
			purego.Dlclose(lib)
			return nil, fmt.Errorf("%w: %s does not export %s: %v", ErrConfiguration, path, b.name, err)
		}
		purego.RegisterFunc(b.fn, sym)
	}

	// Older builds do not export the frame size; the 480 sample frame is then assumed.
	if sym, err := purego.Dlsym(lib, "rnnoise_get_frame_size"); err == nil {
		var frameSize func() int32
		purego.RegisterFunc(&frameSize, sym)
		if n := int(frameSize()); n != audio.FrameSamples {
			purego.Dlclose(lib)
			return nil, fmt.Errorf("%w: %s uses %d-sample frames, expected %d",
				ErrConfiguration, path, n, audio.FrameSamples)
		}
	}

	return e, nil
}

func (e *rnnoiseEngine) Create() (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("%w: rnnoise library %s is unloaded", ErrConfiguration, e.path)
	}

	// A NULL model selects the model compiled into the library.
	state := e.create(0)
	if state == 0 {
		return nil, fmt.Errorf("%w: rnnoise_create returned NULL", ErrConfiguration)
	}

	e.live++
	return &rnnoiseHandle{engine: e, state: state}, nil
}

func (e *rnnoiseEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	if e.live > 0 {
		return fmt.Errorf("denoise: cannot unload %s with %d live handles", e.path, e.live)
	}

	e.closed = true
	if err := purego.Dlclose(e.lib); err != nil {
		return fmt.Errorf("failed to unload %s: %w", e.path, err)
	}
	return nil
}

func (e *rnnoiseEngine) release() {
	e.mu.Lock()
	e.live--
	e.mu.Unlock()
}

type rnnoiseHandle struct {
	engine *rnnoiseEngine
	state  uintptr
}

func (h *rnnoiseHandle) ProcessFrame(buf *[audio.FrameSamples]float32) float32 {
	return h.engine.processFrame(h.state, &buf[0], &buf[0])
}

func (h *rnnoiseHandle) Destroy() {
	if h.state == 0 {
		return
	}
	h.engine.destroy(h.state)
	h.state = 0
	h.engine.release()
}
