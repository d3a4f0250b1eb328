// Package browser owns the single shared headless browser. All page renders go
// through a Coordinator, which serializes them in arrival order, launches the
// browser on first use and tears it down once it has been idle.
package browser

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrClosed reports that the browser handle died underneath a render.
	ErrClosed = errors.New("browser: instance closed")

	// ErrShutdown is returned by Do once the Coordinator has been closed.
	ErrShutdown = errors.New("browser: coordinator shut down")
)

// Teardown reasons recorded in metrics and logs.
const (
	ReasonIdle     = "idle"
	ReasonClosed   = "closed"
	ReasonTimeout  = "timeout"
	ReasonDead     = "dead"
	ReasonShutdown = "shutdown"
)

// Browser renders pages. Implementations need not be safe for concurrent use;
// the Coordinator never shares one between callers.
type Browser interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
	Alive() bool
	Close() error
}

// Launcher creates Browser instances.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Browser, error)

func (f LauncherFunc) Launch(ctx context.Context) (Browser, error) { return f(ctx) }

// Recorder receives coordinator metrics.
type Recorder interface {
	BrowserLaunched()
	BrowserTornDown(reason string)
	BrowserQueueWait(d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) BrowserLaunched()               {}
func (noopRecorder) BrowserTornDown(string)         {}
func (noopRecorder) BrowserQueueWait(time.Duration) {}

// Options configures a Coordinator.
type Options struct {
	IdleTimeout    time.Duration
	CheckInterval  time.Duration
	StartupTimeout time.Duration
	Logger         *slog.Logger
	Metrics        Recorder
}

// Coordinator serializes access to one lazily created Browser.
type Coordinator struct {
	launcher       Launcher
	logger         *slog.Logger
	metrics        Recorder
	idleTimeout    time.Duration
	startupTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	busy     bool
	waiters  *list.List // of chan struct{}
	browser  Browser
	lastUsed time.Time
	closed   bool

	stop chan struct{}
	done chan struct{}
}

// NewCoordinator starts the idle reaper. Close must be called to stop it.
func NewCoordinator(launcher Launcher, opts Options) *Coordinator {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Minute
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 45 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopRecorder{}
	}

	c := &Coordinator{
		launcher:       launcher,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		idleTimeout:    opts.IdleTimeout,
		startupTimeout: opts.StartupTimeout,
		now:            time.Now,
		waiters:        list.New(),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go c.reap(opts.CheckInterval)
	return c
}

// Do waits for its turn, then runs fn with the shared browser. The browser is
// discarded when fn reports ErrClosed, a deadline, or leaves it not alive.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context, b Browser) error) error {
	start := c.now()
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	c.metrics.BrowserQueueWait(c.now().Sub(start))

	b, err := c.ensureBrowser(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, b)

	switch {
	case errors.Is(err, ErrClosed):
		c.discard(b, ReasonClosed)
	case errors.Is(err, context.DeadlineExceeded):
		c.discard(b, ReasonTimeout)
	case !b.Alive():
		c.discard(b, ReasonDead)
	default:
		c.mu.Lock()
		c.lastUsed = c.now()
		c.mu.Unlock()
	}
	return err
}

// Close stops the reaper and closes the browser if one is running.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for e := c.waiters.Front(); e != nil; e = c.waiters.Front() {
		close(c.waiters.Remove(e).(chan struct{}))
	}
	b := c.browser
	c.browser = nil
	c.mu.Unlock()

	close(c.stop)
	<-c.done

	if b != nil {
		c.metrics.BrowserTornDown(ReasonShutdown)
		return b.Close()
	}
	return nil
}

// acquire takes the single ticket, queueing behind earlier callers.
func (c *Coordinator) acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrShutdown
	}
	if !c.busy && c.waiters.Len() == 0 {
		c.busy = true
		c.mu.Unlock()
		return nil
	}
	ticket := make(chan struct{})
	elem := c.waiters.PushBack(ticket)
	c.mu.Unlock()

	select {
	case <-ticket:
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return ErrShutdown
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		select {
		case <-ticket:
			// Handed the ticket while giving up; pass it on.
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.release()
			}
		default:
			c.waiters.Remove(elem)
			c.mu.Unlock()
		}
		return fmt.Errorf("waiting for browser: %w", ctx.Err())
	}
}

// release hands the ticket to the oldest waiter, or frees it.
func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if front := c.waiters.Front(); front != nil {
		close(c.waiters.Remove(front).(chan struct{}))
		return
	}
	c.busy = false
}

// ensureBrowser returns a live handle, launching one if needed. Called with the ticket held.
func (c *Coordinator) ensureBrowser(ctx context.Context) (Browser, error) {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()

	if b != nil && b.Alive() {
		return b, nil
	}
	if b != nil {
		c.discard(b, ReasonDead)
	}

	launchCtx, cancel := context.WithTimeout(ctx, c.startupTimeout)
	defer cancel()

	b, err := c.launcher.Launch(launchCtx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	c.metrics.BrowserLaunched()
	c.logger.Info("browser launched")

	c.mu.Lock()
	c.browser = b
	c.lastUsed = c.now()
	c.mu.Unlock()
	return b, nil
}

func (c *Coordinator) discard(b Browser, reason string) {
	c.mu.Lock()
	if c.browser == b {
		c.browser = nil
	}
	c.mu.Unlock()

	c.metrics.BrowserTornDown(reason)
	if err := b.Close(); err != nil {
		c.logger.Debug("browser close failed", "reason", reason, "error", err)
	}
	c.logger.Info("browser discarded", "reason", reason)
}

func (c *Coordinator) reap(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.reapIdle()
		}
	}
}

func (c *Coordinator) reapIdle() {
	c.mu.Lock()
	if c.busy || c.browser == nil || c.now().Sub(c.lastUsed) < c.idleTimeout {
		c.mu.Unlock()
		return
	}
	b := c.browser
	c.browser = nil
	c.mu.Unlock()

	c.metrics.BrowserTornDown(ReasonIdle)
	if err := b.Close(); err != nil {
		c.logger.Debug("browser close failed", "reason", ReasonIdle, "error", err)
	}
	c.logger.Info("browser closed after idle period", "idle_timeout", c.idleTimeout)
}
