package denoise

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a native engine that is missing, cannot be
	// loaded or cannot create denoiser state. It is fatal for the process.
	ErrConfiguration = errors.New("denoise: engine configuration error")

	// ErrFrameSize is matched by every *FrameSizeError
	ErrFrameSize = errors.New("denoise: invalid frame size")

	// ErrState reports an operation on a closed session
	ErrState = errors.New("denoise: session is destroyed")
)

// FrameSizeError is returned when a frame handed to the transform is not
// exactly one canonical frame long.
type FrameSizeError struct {
	Got  int
	Want int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("denoise: frame must be %d bytes, got %d", e.Want, e.Got)
}

// Is makes errors.Is(err, ErrFrameSize) true
func (e *FrameSizeError) Is(target error) bool {
	return target == ErrFrameSize
}
