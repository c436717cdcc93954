package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/skypro1111/rnnoise-service/internal/denoise"
)

var (
	// ErrPoolTimeout is returned when no session frees up within the acquire timeout
	ErrPoolTimeout = errors.New("stream: no denoiser session available")

	// ErrPoolClosed is returned by Acquire after Close
	ErrPoolClosed = errors.New("stream: pool is closed")
)

const defaultCleanupInterval = 30 * time.Second

// Observer receives pool occupancy and acquire measurements
type Observer interface {
	ObserveAcquire(wait time.Duration, err error)
	SetSessions(inUse, idle int)
}

type nopObserver struct{}

func (nopObserver) ObserveAcquire(time.Duration, error) {}
func (nopObserver) SetSessions(int, int) {}

// PoolConfig contains configuration for the session pool
type PoolConfig struct {
	// Size is the maximum number of sessions alive at once
	Size int
	// AcquireTimeout bounds how long Acquire waits for a free session; 0 waits
	// until the caller's context ends
	AcquireTimeout time.Duration
	// IdleTimeout closes sessions unused for this long; 0 keeps them forever
	IdleTimeout time.Duration
	// CleanupInterval is how often idle sessions are checked (default 30s)
	CleanupInterval time.Duration

	Observer       Observer
	SessionOptions []denoise.Option
}

// Lease is exclusive use of one session until Release
type Lease struct {
	ID         string
	Session    *denoise.Session
	AcquiredAt time.Time

	pool *Pool
}

// Release returns the session to its pool
func (l *Lease) Release() {
	l.pool.Release(l)
}

type idleSession struct {
	session  *denoise.Session
	lastUsed time.Time
}

// Pool hands out denoiser sessions that share one loaded engine. A session is
// reset before it is handed out again, so two leases never share recurrent
// state.
type Pool struct {
	engine   denoise.Engine
	config   PoolConfig
	sem      *semaphore.Weighted
	logger   *slog.Logger
	observer Observer

	idle   []idleSession
	leases map[string]*Lease
	closed bool

	created  uint64
	acquired uint64
	timeouts uint64
	evicted  uint64

	mu sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// PoolStats represents pool statistics
type PoolStats struct {
	Size     int         `json:"size"`
	InUse    int         `json:"in_use"`
	Idle     int         `json:"idle"`
	Created  uint64      `json:"created"`
	Acquired uint64      `json:"acquired"`
	Timeouts uint64      `json:"timeouts"`
	Evicted  uint64      `json:"evicted"`
	Leases   []LeaseInfo `json:"leases"`
}

// LeaseInfo describes one outstanding lease for monitoring
type LeaseInfo struct {
	ID              string        `json:"id"`
	AcquiredAt      time.Time     `json:"acquired_at"`
	Duration        time.Duration `json:"duration"`
	FramesProcessed uint64        `json:"frames_processed"`
}

// NewPool creates a session pool over engine
func NewPool(logger *slog.Logger, engine denoise.Engine, config PoolConfig) (*Pool, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: pool requires an engine", denoise.ErrConfiguration)
	}

	if config.Size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", config.Size)
	}

	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaultCleanupInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		engine:   engine,
		config:   config,
		sem:      semaphore.NewWeighted(int64(config.Size)),
		logger:   logger.With(slog.String("component", "stream.pool")),
		observer: observer,
		leases:   make(map[string]*Lease),
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go p.startCleanupRoutine()

	return p, nil
}

// Warm creates up to n idle sessions ahead of the first request. It fails
// fast when the engine cannot create denoiser state.
func (p *Pool) Warm(n int) error {
	if n > p.config.Size {
		n = p.config.Size
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.idle)+len(p.leases) < n {
		session, err := p.newSessionLocked()
		if err != nil {
			return err
		}
		p.idle = append(p.idle, idleSession{session: session, lastUsed: time.Now()})
	}

	p.observer.SetSessions(len(p.leases), len(p.idle))
	return nil
}

// Acquire waits for a free session. It fails with ErrPoolTimeout when the
// acquire timeout passes first.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	start := time.Now()

	waitCtx := ctx
	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrPoolTimeout, p.config.AcquireTimeout)
			p.mu.Lock()
			p.timeouts++
			p.mu.Unlock()
		}
		p.observer.ObserveAcquire(time.Since(start), err)
		return nil, err
	}

	lease, err := p.lease()
	if err != nil {
		p.sem.Release(1)
	}
	p.observer.ObserveAcquire(time.Since(start), err)
	return lease, err
}

func (p *Pool) lease() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	var session *denoise.Session
	if n := len(p.idle); n > 0 {
		session = p.idle[n-1].session
		p.idle = p.idle[:n-1]
	} else {
		s, err := p.newSessionLocked()
		if err != nil {
			return nil, err
		}
		session = s
	}

	lease := &Lease{
		ID:         uuid.NewString(),
		Session:    session,
		AcquiredAt: time.Now(),
		pool:       p,
	}
	p.leases[lease.ID] = lease
	p.acquired++
	p.observer.SetSessions(len(p.leases), len(p.idle))

	return lease, nil
}

func (p *Pool) newSessionLocked() (*denoise.Session, error) {
	session, err := denoise.NewSession(p.engine, p.config.SessionOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create denoiser session: %w", err)
	}
	p.created++
	return session, nil
}

// Release resets the lease's session and makes it available again.
// Releasing a lease twice is a no-op.
func (p *Pool) Release(l *Lease) {
	if l == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.leases[l.ID]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.leases, l.ID)
	closed := p.closed
	p.mu.Unlock()

	keep := !closed
	if keep {
		if err := l.Session.Reset(); err != nil {
			p.logger.Warn("Discarding session that failed to reset",
				slog.String("lease_id", l.ID),
				slog.String("error", err.Error()),
			)
			keep = false
		}
	}

	p.mu.Lock()
	if keep && !p.closed {
		p.idle = append(p.idle, idleSession{session: l.Session, lastUsed: time.Now()})
	} else {
		l.Session.Close()
	}
	p.observer.SetSessions(len(p.leases), len(p.idle))
	p.mu.Unlock()

	p.sem.Release(1)

	p.logger.Debug("Session released",
		slog.String("lease_id", l.ID),
		slog.Duration("held", time.Since(l.AcquiredAt)),
	)
}

// GetStats returns current pool statistics
func (p *Pool) GetStats() PoolStats {
	p.mu.Lock()
	stats := PoolStats{
		Size:     p.config.Size,
		InUse:    len(p.leases),
		Idle:     len(p.idle),
		Created:  p.created,
		Acquired: p.acquired,
		Timeouts: p.timeouts,
		Evicted:  p.evicted,
	}
	leases := make([]*Lease, 0, len(p.leases))
	for _, l := range p.leases {
		leases = append(leases, l)
	}
	p.mu.Unlock()

	// Session stats wait for an in-flight Filter, so they are read without the pool lock
	stats.Leases = make([]LeaseInfo, 0, len(leases))
	for _, l := range leases {
		stats.Leases = append(stats.Leases, LeaseInfo{
			ID:              l.ID,
			AcquiredAt:      l.AcquiredAt,
			Duration:        time.Since(l.AcquiredAt),
			FramesProcessed: l.Session.Stats().FramesProcessed,
		})
	}

	return stats
}

// Close stops the cleanup routine and destroys every session. Leases still
// outstanding are destroyed too; their holders get ErrState on the next call.
func (p *Pool) Close() {
	p.logger.Info("Stopping session pool...")

	p.cancel()
	<-p.cleanup

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for _, s := range p.idle {
		s.session.Close()
	}
	for _, l := range p.leases {
		l.Session.Close()
	}

	p.logger.Info("Session pool stopped",
		slog.Int("idle_closed", len(p.idle)),
		slog.Int("leases_closed", len(p.leases)),
		slog.Uint64("total_acquired", p.acquired),
		slog.Uint64("total_timeouts", p.timeouts),
	)

	p.idle = nil
	p.observer.SetSessions(len(p.leases), 0)
}

// startCleanupRoutine runs in a separate goroutine to close idle sessions
func (p *Pool) startCleanupRoutine() {
	defer close(p.cleanup)

	if p.config.IdleTimeout <= 0 {
		<-p.ctx.Done()
		return
	}

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	p.logger.Info("Session cleanup routine started",
		slog.Duration("idle_timeout", p.config.IdleTimeout),
		slog.Duration("check_interval", p.config.CleanupInterval),
	)

	for {
		select {
		case <-p.ctx.Done():
			return

		case <-ticker.C:
			p.evictIdle(time.Now())
		}
	}
}

// evictIdle closes sessions that have been idle longer than the idle timeout
func (p *Pool) evictIdle(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.idle[:0]
	evicted := 0
	for _, s := range p.idle {
		if now.Sub(s.lastUsed) > p.config.IdleTimeout {
			s.session.Close()
			evicted++
			continue
		}
		kept = append(kept, s)
	}
	p.idle = kept

	if evicted > 0 {
		p.evicted += uint64(evicted)
		p.logger.Info("Closed idle sessions", slog.Int("evicted_count", evicted))
		p.observer.SetSessions(len(p.leases), len(p.idle))
	}

	return evicted
}
