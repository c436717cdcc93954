package stream

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/denoise"
	"github.com/skypro1111/rnnoise-service/internal/denoise/mock"
)

func newTestPool(t *testing.T, eng *mock.Engine, config PoolConfig) *Pool {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pool, err := NewPool(logger, eng, config)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

type recordingObserver struct {
	mu       sync.Mutex
	acquires int
	failures int
	inUse    int
	idle     int
}

func (o *recordingObserver) ObserveAcquire(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acquires++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) SetSessions(inUse, idle int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inUse = inUse
	o.idle = idle
}

func TestNewPoolValidation(t *testing.T) {
	if _, err := NewPool(nil, nil, PoolConfig{Size: 1}); !errors.Is(err, denoise.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration for nil engine, got %v", err)
	}

	if _, err := NewPool(nil, &mock.Engine{}, PoolConfig{Size: 0}); err == nil {
		t.Error("Expected error for zero pool size")
	}
}

func TestAcquireRelease(t *testing.T) {
	eng := &mock.Engine{}
	obs := &recordingObserver{}
	pool := newTestPool(t, eng, PoolConfig{Size: 2, Observer: obs})

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if lease.ID == "" {
		t.Error("Expected lease ID to be set")
	}

	stats := pool.GetStats()
	if stats.InUse != 1 || stats.Idle != 0 || stats.Created != 1 {
		t.Errorf("Unexpected stats after acquire: %+v", stats)
	}

	if len(stats.Leases) != 1 || stats.Leases[0].ID != lease.ID {
		t.Errorf("Expected lease %s in stats, got %+v", lease.ID, stats.Leases)
	}

	lease.Release()

	stats = pool.GetStats()
	if stats.InUse != 0 || stats.Idle != 1 {
		t.Errorf("Unexpected stats after release: %+v", stats)
	}

	// second release is a no-op
	lease.Release()
	if pool.GetStats().Idle != 1 {
		t.Error("Double release must not duplicate the idle session")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.acquires != 1 || obs.failures != 0 || obs.inUse != 0 || obs.idle != 1 {
		t.Errorf("Unexpected observer state %+v", obs)
	}
}

func TestReleaseResetsSession(t *testing.T) {
	eng := &mock.Engine{}
	pool := newTestPool(t, eng, PoolConfig{Size: 1})

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	pcm := make([]byte, audio.FrameWidth)
	if _, err := lease.Session.Filter(audio.RawPCM{Data: pcm, SampleRate: audio.CanonicalSampleRate}, denoise.DefaultFilterOptions()); err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	first := lease.Session
	lease.Release()

	next, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer next.Release()

	if next.Session != first {
		t.Error("Expected the idle session to be reused")
	}

	if eng.CreateCallCount != 2 {
		t.Errorf("Expected a fresh handle after release, got %d creates", eng.CreateCallCount)
	}

	if eng.LastHandle().FrameCount() != 0 {
		t.Error("Expected the reused session to start from fresh state")
	}
}

func TestAcquireTimeout(t *testing.T) {
	obs := &recordingObserver{}
	pool := newTestPool(t, &mock.Engine{}, PoolConfig{Size: 1, AcquireTimeout: 20 * time.Millisecond, Observer: obs})

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lease.Release()

	_, err = pool.Acquire(context.Background())
	if !errors.Is(err, ErrPoolTimeout) {
		t.Fatalf("Expected ErrPoolTimeout, got %v", err)
	}

	if pool.GetStats().Timeouts != 1 {
		t.Errorf("Expected 1 timeout, got %d", pool.GetStats().Timeouts)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.failures != 1 {
		t.Errorf("Expected 1 failed acquire observed, got %d", obs.failures)
	}
}

func TestAcquireCallerCancel(t *testing.T) {
	pool := newTestPool(t, &mock.Engine{}, PoolConfig{Size: 1})

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrPoolTimeout) {
		t.Error("Caller cancellation must not be reported as a pool timeout")
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	pool := newTestPool(t, &mock.Engine{}, PoolConfig{Size: 1, AcquireTimeout: 2 * time.Second})

	lease, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		next, err := pool.Acquire(context.Background())
		if err == nil {
			next.Release()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	lease.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Waiting acquire failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Waiting acquire did not complete after release")
	}
}

func TestConcurrentLeases(t *testing.T) {
	eng := &mock.Engine{}
	pool := newTestPool(t, eng, PoolConfig{Size: 3, AcquireTimeout: 5 * time.Second})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := pool.Acquire(context.Background())
			if err != nil {
				errs <- err
				return
			}
			defer lease.Release()

			pcm := make([]byte, 2*audio.FrameWidth)
			if _, err := lease.Session.Filter(audio.NewCanonicalBuffer(pcm), denoise.DefaultFilterOptions()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent lease failed: %v", err)
	}

	stats := pool.GetStats()
	if stats.Created > 3 {
		t.Errorf("Expected at most 3 sessions, created %d", stats.Created)
	}
	if stats.Acquired != 20 {
		t.Errorf("Expected 20 acquires, got %d", stats.Acquired)
	}
}

func TestWarm(t *testing.T) {
	eng := &mock.Engine{}
	pool := newTestPool(t, eng, PoolConfig{Size: 2})

	if err := pool.Warm(5); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if pool.GetStats().Idle != 2 {
		t.Errorf("Expected warm to stop at pool size, got %d idle", pool.GetStats().Idle)
	}

	failing := newTestPool(t, &mock.Engine{CreateErr: errors.New("boom")}, PoolConfig{Size: 1})
	if err := failing.Warm(1); !errors.Is(err, denoise.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}

func TestEvictIdle(t *testing.T) {
	eng := &mock.Engine{}
	pool := newTestPool(t, eng, PoolConfig{Size: 2, IdleTimeout: time.Minute})

	if err := pool.Warm(2); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	if n := pool.evictIdle(time.Now()); n != 0 {
		t.Errorf("Expected no eviction of fresh sessions, got %d", n)
	}

	if n := pool.evictIdle(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Errorf("Expected 2 evictions, got %d", n)
	}

	if eng.LiveHandles() != 0 {
		t.Errorf("Expected evicted sessions to free their handles, %d live", eng.LiveHandles())
	}

	if pool.GetStats().Evicted != 2 {
		t.Errorf("Expected evicted counter 2, got %d", pool.GetStats().Evicted)
	}
}

func TestClose(t *testing.T) {
	eng := &mock.Engine{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	pool, err := NewPool(logger, eng, PoolConfig{Size: 2})
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := pool.Warm(2); err != nil {
		t.Fatalf("Warm failed: %v", err)
	}

	pool.Close()
	pool.Close()

	if eng.LiveHandles() != 0 {
		t.Errorf("Expected every handle destroyed, %d live", eng.LiveHandles())
	}

	if held.Session.State() != denoise.StateDestroyed {
		t.Error("Expected outstanding lease session to be destroyed")
	}
	held.Release()

	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
}
