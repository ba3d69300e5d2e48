package readiness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestGate_EnsureInitDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	g := New(func(ctx context.Context) error { <-release; return nil })
	defer close(release)
	start := time.Now()
	g.EnsureInit()
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("EnsureInit blocked")
	}
	if g.State() != StateLoading {
		t.Fatalf("state=%s", g.State())
	}
	if g.Ready() {
		t.Fatalf("should not be ready while loading")
	}
}

func TestGate_LoadsOnce(t *testing.T) {
	var calls int32
	g := New(func(ctx context.Context) error { atomic.AddInt32(&calls, 1); return nil })
	for i := 0; i < 10; i++ {
		g.EnsureInit()
	}
	if err := g.WaitForInit(testCtx(t)); err != nil {
		t.Fatalf("wait: %v", err)
	}
	g.EnsureInit()
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("load called %d times", n)
	}
	if !g.Ready() || g.State() != StateReady {
		t.Fatalf("expected ready, state=%s", g.State())
	}
}

func TestGate_ManyWaitersReleased(t *testing.T) {
	release := make(chan struct{})
	g := New(func(ctx context.Context) error { <-release; return nil })
	g.EnsureInit()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.WaitForInit(testCtx(t))
		}()
	}
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("waiter: %v", err)
		}
	}
}

func TestGate_LateWaiterNotBlocked(t *testing.T) {
	g := New(func(ctx context.Context) error { return nil })
	g.EnsureInit()
	<-g.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.WaitForInit(ctx); err != nil {
		t.Fatalf("late waiter: %v", err)
	}
}

func TestGate_FailureReportedToEveryCaller(t *testing.T) {
	cause := errors.New("model file missing")
	g := New(func(ctx context.Context) error { return cause })
	g.EnsureInit()
	for i := 0; i < 3; i++ {
		err := g.WaitForInit(testCtx(t))
		if !IsBackendUnavailable(err) {
			t.Fatalf("call %d: expected backend unavailable, got %v", i, err)
		}
		if !errors.Is(err, cause) {
			t.Fatalf("call %d: cause not wrapped: %v", i, err)
		}
	}
	if g.Ready() || g.State() != StateFailed {
		t.Fatalf("state=%s", g.State())
	}
	if g.Err() == nil {
		t.Fatalf("expected recorded error")
	}
}

func TestGate_PanicBecomesFailure(t *testing.T) {
	g := New(func(ctx context.Context) error { panic("boom") })
	g.EnsureInit()
	if err := g.WaitForInit(testCtx(t)); !IsBackendUnavailable(err) {
		t.Fatalf("expected backend unavailable, got %v", err)
	}
}

func TestGate_SignalIdempotent(t *testing.T) {
	g := New(nil)
	g.signal(nil)
	g.signal(errors.New("late"))
	if err := g.WaitForInit(testCtx(t)); err != nil {
		t.Fatalf("second signal must not override first: %v", err)
	}
}

func TestGate_WaitRespectsContext(t *testing.T) {
	g := New(func(ctx context.Context) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// never started: waiter must return on ctx instead of hanging
	if err := g.WaitForInit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if g.Err() != nil {
		t.Fatalf("unexpected err before resolution")
	}
}

func TestGate_NilLoaderFails(t *testing.T) {
	g := New(nil)
	g.EnsureInit()
	if err := g.WaitForInit(testCtx(t)); !IsBackendUnavailable(err) {
		t.Fatalf("expected failure, got %v", err)
	}
}
