package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBrowser struct {
	id     int
	closed atomic.Bool
	dead   atomic.Bool
}

func (b *fakeBrowser) Render(ctx context.Context, url, _ string) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}
	return fmt.Sprintf("<html>%d %s</html>", b.id, url), nil
}

func (b *fakeBrowser) Alive() bool  { return !b.closed.Load() && !b.dead.Load() }
func (b *fakeBrowser) Close() error { b.closed.Store(true); return nil }

type fakeLauncher struct {
	mu       sync.Mutex
	launched []*fakeBrowser
	err      error
}

func (l *fakeLauncher) Launch(ctx context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	b := &fakeBrowser{id: len(l.launched) + 1}
	l.launched = append(l.launched, b)
	return b, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

type countingRecorder struct {
	mu        sync.Mutex
	launches  int
	teardowns map[string]int
}

func (r *countingRecorder) BrowserLaunched() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launches++
}

func (r *countingRecorder) BrowserTornDown(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.teardowns == nil {
		r.teardowns = map[string]int{}
	}
	r.teardowns[reason]++
}

func (r *countingRecorder) BrowserQueueWait(time.Duration) {}

func (r *countingRecorder) teardown(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardowns[reason]
}

func newTestCoordinator(l Launcher, rec Recorder) *Coordinator {
	return NewCoordinator(l, Options{
		IdleTimeout:   time.Hour,
		CheckInterval: time.Hour,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:       rec,
	})
}

func render(c *Coordinator, url string) (string, error) {
	var html string
	err := c.Do(context.Background(), func(ctx context.Context, b Browser) error {
		var err error
		html, err = b.Render(ctx, url, "")
		return err
	})
	return html, err
}

func TestCoordinatorLaunchesLazilyAndReuses(t *testing.T) {
	launcher := &fakeLauncher{}
	c := newTestCoordinator(launcher, nil)
	defer c.Close()

	if launcher.count() != 0 {
		t.Fatal("browser must not launch before first use")
	}
	for i := 0; i < 3; i++ {
		if _, err := render(c, "https://example.test"); err != nil {
			t.Fatalf("render %d: %v", i, err)
		}
	}
	if launcher.count() != 1 {
		t.Fatalf("expected one launch, got %d", launcher.count())
	}
}

func TestCoordinatorSerializesInArrivalOrder(t *testing.T) {
	launcher := &fakeLauncher{}
	c := newTestCoordinator(launcher, nil)
	defer c.Close()

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = c.Do(context.Background(), func(ctx context.Context, b Browser) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	var (
		mu     sync.Mutex
		order  []int
		active int32
		maxAct int32
		wg     sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Do(context.Background(), func(ctx context.Context, b Browser) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxAct)
					if n <= m || atomic.CompareAndSwapInt32(&maxAct, m, n) {
						break
					}
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}(i)
		waitForWaiters(t, c, i+1)
	}

	close(release)
	wg.Wait()

	if maxAct != 1 {
		t.Errorf("expected at most one render at a time, saw %d", maxAct)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
	if launcher.count() != 1 {
		t.Errorf("concurrent callers must share one browser, got %d launches", launcher.count())
	}
}

func waitForWaiters(t *testing.T, c *Coordinator, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := c.waiters.Len()
		c.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued callers", n)
}

func TestCoordinatorDiscardsDeadHandles(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(ctx context.Context, b Browser) error
		reason string
	}{
		{
			name:   "closed error",
			fn:     func(ctx context.Context, b Browser) error { return fmt.Errorf("render: %w", ErrClosed) },
			reason: ReasonClosed,
		},
		{
			name:   "timeout",
			fn:     func(ctx context.Context, b Browser) error { return fmt.Errorf("render: %w", context.DeadlineExceeded) },
			reason: ReasonTimeout,
		},
		{
			name: "not alive",
			fn: func(ctx context.Context, b Browser) error {
				b.(*fakeBrowser).dead.Store(true)
				return nil
			},
			reason: ReasonDead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &fakeLauncher{}
			rec := &countingRecorder{}
			c := newTestCoordinator(launcher, rec)
			defer c.Close()

			_ = c.Do(context.Background(), tt.fn)
			if _, err := render(c, "https://example.test"); err != nil {
				t.Fatalf("render after discard: %v", err)
			}

			if launcher.count() != 2 {
				t.Errorf("expected a fresh browser after discard, got %d launches", launcher.count())
			}
			if !launcher.launched[0].closed.Load() {
				t.Error("discarded browser should be closed")
			}
			if rec.teardown(tt.reason) != 1 {
				t.Errorf("expected teardown reason %q to be recorded", tt.reason)
			}
		})
	}
}

func TestCoordinatorOrdinaryErrorKeepsBrowser(t *testing.T) {
	launcher := &fakeLauncher{}
	c := newTestCoordinator(launcher, nil)
	defer c.Close()

	boom := errors.New("parse failure")
	if err := c.Do(context.Background(), func(context.Context, Browser) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
	if _, err := render(c, "https://example.test"); err != nil {
		t.Fatal(err)
	}
	if launcher.count() != 1 {
		t.Errorf("expected browser reuse, got %d launches", launcher.count())
	}
}

func TestCoordinatorReapsIdleBrowser(t *testing.T) {
	launcher := &fakeLauncher{}
	rec := &countingRecorder{}
	c := NewCoordinator(launcher, Options{
		IdleTimeout:   20 * time.Millisecond,
		CheckInterval: 5 * time.Millisecond,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:       rec,
	})
	defer c.Close()

	if _, err := render(c, "https://example.test"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rec.teardown(ReasonIdle) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle browser was not reaped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !launcher.launched[0].closed.Load() {
		t.Error("reaped browser should be closed")
	}

	if _, err := render(c, "https://example.test"); err != nil {
		t.Fatal(err)
	}
	if launcher.count() != 2 {
		t.Errorf("expected relaunch after reaping, got %d launches", launcher.count())
	}
}

func TestCoordinatorQueuedCallerHonorsContext(t *testing.T) {
	c := newTestCoordinator(&fakeLauncher{}, nil)
	defer c.Close()

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = c.Do(context.Background(), func(context.Context, Browser) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Do(ctx, func(context.Context, Browser) error {
		t.Error("cancelled caller must not run")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	close(release)
	if _, err := render(c, "https://example.test"); err != nil {
		t.Fatalf("queue should recover after a cancelled waiter: %v", err)
	}
}

func TestCoordinatorLaunchFailure(t *testing.T) {
	c := newTestCoordinator(&fakeLauncher{err: errors.New("no chrome")}, nil)
	defer c.Close()

	if _, err := render(c, "https://example.test"); err == nil {
		t.Fatal("expected launch error")
	}
	if _, err := render(c, "https://example.test"); err == nil {
		t.Fatal("ticket must be released after a failed launch")
	}
}

func TestCoordinatorClose(t *testing.T) {
	launcher := &fakeLauncher{}
	c := newTestCoordinator(launcher, nil)

	if _, err := render(c, "https://example.test"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if !launcher.launched[0].closed.Load() {
		t.Error("Close should close the browser")
	}
	if _, err := render(c, "https://example.test"); !errors.Is(err, ErrShutdown) {
		t.Fatalf("expected ErrShutdown after Close, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}
