package denoise

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/vad"
)

// State is the lifecycle state of a Session
type State int

const (
	StateActive State = iota + 1
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Recorder receives per-frame and per-call measurements from a Session
type Recorder interface {
	RecordFrame(score float32, elapsed time.Duration)
	RecordFilter(kept, dropped int, elapsed time.Duration)
	RecordReset()
}

type nopRecorder struct{}

func (nopRecorder) RecordFrame(float32, time.Duration) {}
func (nopRecorder) RecordFilter(int, int, time.Duration) {}
func (nopRecorder) RecordReset() {}

// FilterOptions control one Filter call
type FilterOptions struct {
	// Threshold is the minimum voice score a frame needs to be kept. 0 keeps
	// every frame.
	Threshold float32
	// RestoreSourceRate resamples the output back to the input's sample rate
	// instead of returning canonical 48 kHz audio.
	RestoreSourceRate bool
}

// DefaultFilterOptions keeps every frame and restores the source rate
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{Threshold: 0, RestoreSourceRate: true}
}

// SessionStats represents session statistics
type SessionStats struct {
	State           string    `json:"state"`
	FramesProcessed uint64    `json:"frames_processed"`
	FramesKept      uint64    `json:"frames_kept"`
	FramesDropped   uint64    `json:"frames_dropped"`
	FilterCalls     uint64    `json:"filter_calls"`
	Resets          uint64    `json:"resets"`
	CreatedAt       time.Time `json:"created_at"`
	LastProcessed   time.Time `json:"last_processed"`
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Session owns one native denoiser state and runs whole payloads through it.
// Calls are serialized, but the state is recurrent: feeding two independent
// streams through one Session corrupts both. Use one Session per stream.
type Session struct {
	engine   Engine
	handle   Handle
	state    State
	gate     *vad.Gate
	logger   *slog.Logger
	recorder Recorder

	framesProcessed uint64
	filterCalls     uint64
	resets          uint64
	createdAt       time.Time
	lastProcessed   time.Time

	mu sync.Mutex
}

// NewSession creates a session with fresh native state from engine
func NewSession(engine Engine, opts ...Option) (*Session, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: no engine", ErrConfiguration)
	}

	gate, err := vad.NewGate(0)
	if err != nil {
		return nil, err
	}

	s := &Session{
		engine:    engine,
		state:     StateActive,
		gate:      gate,
		logger:    slog.Default(),
		recorder:  nopRecorder{},
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	handle, err := createHandle(engine)
	if err != nil {
		return nil, err
	}
	s.handle = handle

	return s, nil
}

func createHandle(engine Engine) (Handle, error) {
	handle, err := engine.Create()
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to create denoiser state: %v", ErrConfiguration, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: engine returned no denoiser state", ErrConfiguration)
	}
	return handle, nil
}

// Filter denoises p, drops frames scoring below opts.Threshold and returns
// the survivors as the same payload case it was given. With a threshold of 0
// the output is never shorter than the input.
func (s *Session) Filter(p audio.Payload, opts FilterOptions) (audio.Payload, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return nil, ErrState
	}

	if err := vad.ValidateThreshold(opts.Threshold); err != nil {
		return nil, err
	}

	seg, err := audio.Segment(p)
	if err != nil {
		return nil, err
	}

	results := make([]audio.FrameResult, 0, len(seg.Frames))
	for i, frame := range seg.Frames {
		r, err := s.processLocked(frame)
		if err != nil {
			return nil, fmt.Errorf("failed to process frame %d: %w", i, err)
		}
		results = append(results, r)
	}

	kept, gateStats, err := s.gate.FilterWith(results, opts.Threshold)
	if err != nil {
		return nil, err
	}

	buf := audio.Concat(kept)
	if opts.RestoreSourceRate {
		if buf, err = audio.RestoreRate(buf, seg.SourceSampleRate); err != nil {
			return nil, err
		}
	}

	s.filterCalls++
	elapsed := time.Since(start)
	s.recorder.RecordFilter(int(gateStats.Kept), int(gateStats.Dropped), elapsed)

	s.logger.Debug("Filtered payload",
		slog.Int("frames", len(results)),
		slog.Uint64("kept", gateStats.Kept),
		slog.Uint64("dropped", gateStats.Dropped),
		slog.Int("padded_bytes", seg.PaddedBytes),
		slog.Int("source_rate", seg.SourceSampleRate),
		slog.Duration("elapsed", elapsed),
	)

	if _, raw := p.(audio.RawPCM); raw {
		return audio.RawPCM{Data: buf.Data, SampleRate: buf.SampleRate}, nil
	}
	return buf, nil
}

// FilterFrame runs a single canonical frame through the session's state
func (s *Session) FilterFrame(frame audio.Frame) (audio.FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return audio.FrameResult{}, ErrState
	}

	return s.processLocked(frame)
}

func (s *Session) processLocked(frame audio.Frame) (audio.FrameResult, error) {
	start := time.Now()

	r, err := ProcessFrame(s.handle, frame)
	if err != nil {
		return audio.FrameResult{}, err
	}

	s.framesProcessed++
	s.lastProcessed = time.Now()
	s.recorder.RecordFrame(r.Score, time.Since(start))

	return r, nil
}

// Reset replaces the native state with a fresh one, so the next frame is
// processed as the start of a new stream. If new state cannot be created
// the old state is kept and an error is returned.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrState
	}

	handle, err := createHandle(s.engine)
	if err != nil {
		return err
	}

	s.handle.Destroy()
	s.handle = handle
	s.resets++
	s.recorder.RecordReset()

	return nil
}

// Close destroys the native state. Every later call fails with ErrState;
// closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return nil
	}

	s.handle.Destroy()
	s.handle = nil
	s.state = StateDestroyed

	s.logger.Debug("Session closed",
		slog.Uint64("frames_processed", s.framesProcessed),
		slog.Uint64("filter_calls", s.filterCalls),
	)

	return nil
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns current session statistics
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	gate := s.gate.GetStats()
	return SessionStats{
		State:           s.state.String(),
		FramesProcessed: s.framesProcessed,
		FramesKept:      gate.Kept,
		FramesDropped:   gate.Dropped,
		FilterCalls:     s.filterCalls,
		Resets:          s.resets,
		CreatedAt:       s.createdAt,
		LastProcessed:   s.lastProcessed,
	}
}
