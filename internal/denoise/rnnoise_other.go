//go:build !(linux || darwin)

package denoise

import (
	"fmt"
	"runtime"
)

// NativeAvailable reports whether LoadRNNoise can load a library on this platform
func NativeAvailable() bool { return false }

// LoadRNNoise always fails on platforms without dynamic loading support
func LoadRNNoise(path string) (Engine, error) {
	return nil, fmt.Errorf("%w: loading %s is not supported on %s", ErrConfiguration, path, runtime.GOOS)
}
