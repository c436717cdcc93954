package vad

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skypro1111/rnnoise-service/internal/audio"
)

// ErrThreshold reports a voice threshold outside [0, 1]
var ErrThreshold = errors.New("vad: threshold out of range")

// FilterByThreshold keeps, in order, every frame whose voice score is at
// least threshold. A threshold of 0 keeps every frame.
func FilterByThreshold(results []audio.FrameResult, threshold float32) ([]audio.Frame, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	frames := make([]audio.Frame, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			frames = append(frames, r.Frame)
		}
	}
	return frames, nil
}

// ValidateThreshold checks that threshold lies in [0, 1]
func ValidateThreshold(threshold float32) error {
	if !(threshold >= 0 && threshold <= 1) {
		return fmt.Errorf("%w: must be between 0 and 1, got %f", ErrThreshold, threshold)
	}
	return nil
}

// GateStats represents the outcome of one or more gate passes
type GateStats struct {
	Kept    uint64 `json:"kept"`
	Dropped uint64 `json:"dropped"`
}

// VoicePercentage returns the share of kept frames in percent
func (s GateStats) VoicePercentage() float64 {
	total := s.Kept + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Kept) / float64(total) * 100
}

// Gate drops frames whose voice score falls below a threshold and keeps
// running totals. Dropping is frame-granular with no cross-fade, so a cut
// between kept and dropped frames may click.
type Gate struct {
	threshold float32

	totals        GateStats
	lastProcessed time.Time

	mu sync.RWMutex
}

// NewGate creates a gate with the given default threshold
func NewGate(threshold float32) (*Gate, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	return &Gate{threshold: threshold}, nil
}

// Filter applies the gate's threshold to results
func (g *Gate) Filter(results []audio.FrameResult) ([]audio.Frame, GateStats, error) {
	return g.FilterWith(results, g.GetThreshold())
}

// FilterWith applies an explicit threshold, for per-request overrides
func (g *Gate) FilterWith(results []audio.FrameResult, threshold float32) ([]audio.Frame, GateStats, error) {
	frames, err := FilterByThreshold(results, threshold)
	if err != nil {
		return nil, GateStats{}, err
	}

	stats := GateStats{
		Kept:    uint64(len(frames)),
		Dropped: uint64(len(results) - len(frames)),
	}

	g.mu.Lock()
	g.totals.Kept += stats.Kept
	g.totals.Dropped += stats.Dropped
	g.lastProcessed = time.Now()
	g.mu.Unlock()

	return frames, stats, nil
}

// GetStats returns the totals across every pass since the last Reset
func (g *Gate) GetStats() GateStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.totals
}

// LastProcessed returns when the gate last ran
func (g *Gate) LastProcessed() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastProcessed
}

// UpdateThreshold updates the default threshold
func (g *Gate) UpdateThreshold(threshold float32) error {
	if err := ValidateThreshold(threshold); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.threshold = threshold
	return nil
}

// GetThreshold returns the default threshold
func (g *Gate) GetThreshold() float32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// Reset clears the running totals
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.totals = GateStats{}
	g.lastProcessed = time.Time{}
}
