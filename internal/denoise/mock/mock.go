// Package mock provides test doubles for the denoise package interfaces.
//
// Handles are deterministic and recurrent: each output sample is half the
// input plus a carry derived from the previous frame, so output depends on
// call order and a fresh handle reproduces a fresh handle's output exactly.
//
// Example:
//
//	eng := &mock.Engine{Score: 0.8}
//	sess, _ := denoise.NewSession(eng)
//	_, _ = sess.Filter(payload, denoise.DefaultFilterOptions())
//	h := eng.LastHandle()
//	_ = len(h.ProcessFrameCalls)
package mock

import (
	"sync"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/denoise"
)

// ScoreFunc computes the voice score for the n-th frame (0-based) a handle
// processes, given the input samples.
type ScoreFunc func(n int, in *[audio.FrameSamples]float32) float32

// Engine is a mock implementation of denoise.Engine.
type Engine struct {
	mu sync.Mutex

	// Score is returned for every frame unless ScoreFunc is set.
	Score float32

	// ScoreFunc, if non-nil, overrides Score.
	ScoreFunc ScoreFunc

	// CreateErr, if non-nil, is returned as the error from Create.
	CreateErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// Handles records every handle returned by Create, in order.
	Handles []*Handle

	// CreateCallCount is the number of times Create was called.
	CreateCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Create records the call and returns a new Handle, or CreateErr.
func (e *Engine) Create() (denoise.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.CreateCallCount++
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}

	h := &Handle{score: e.Score, scoreFunc: e.ScoreFunc}
	e.Handles = append(e.Handles, h)
	return h, nil
}

// Close records the call and returns CloseErr.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// LastHandle returns the most recently created handle, or nil.
func (e *Engine) LastHandle() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Handles) == 0 {
		return nil
	}
	return e.Handles[len(e.Handles)-1]
}

// LiveHandles returns the number of created handles not yet destroyed.
func (e *Engine) LiveHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := 0
	for _, h := range e.Handles {
		if !h.Destroyed() {
			live++
		}
	}
	return live
}

// Ensure Engine implements denoise.Engine at compile time.
var _ denoise.Engine = (*Engine)(nil)

// ProcessFrameCall records a single invocation of Handle.ProcessFrame.
type ProcessFrameCall struct {
	// Input is a copy of the samples passed to ProcessFrame.
	Input [audio.FrameSamples]float32
}

// Handle is a mock implementation of denoise.Handle.
type Handle struct {
	mu sync.Mutex

	score     float32
	scoreFunc ScoreFunc
	carry     float32

	// --- Call records ---

	// ProcessFrameCalls records every call to ProcessFrame in order.
	ProcessFrameCalls []ProcessFrameCall

	// DestroyCallCount is the number of times Destroy was called.
	DestroyCallCount int
}

// ProcessFrame records the call, rewrites buf and returns the configured score.
func (h *Handle) ProcessFrame(buf *[audio.FrameSamples]float32) float32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ProcessFrameCalls = append(h.ProcessFrameCalls, ProcessFrameCall{Input: *buf})
	n := len(h.ProcessFrameCalls) - 1

	score := h.score
	if h.scoreFunc != nil {
		score = h.scoreFunc(n, buf)
	}

	for i := range buf {
		buf[i] = buf[i]/2 + h.carry
	}
	h.carry = buf[len(buf)-1] / 4

	return score
}

// Destroy records the call.
func (h *Handle) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.DestroyCallCount++
}

// Destroyed reports whether Destroy was called at least once.
func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.DestroyCallCount > 0
}

// FrameCount returns the number of frames processed so far.
func (h *Handle) FrameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ProcessFrameCalls)
}

// Ensure Handle implements denoise.Handle at compile time.
var _ denoise.Handle = (*Handle)(nil)
