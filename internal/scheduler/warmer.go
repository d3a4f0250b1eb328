package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/econcal/internal/ingestion"
)

// CacheWarmer refreshes every adapter on a fixed interval so subscriber
// requests are served from cache.
type CacheWarmer struct {
	adapters    []ingestion.Adapter
	interval    time.Duration
	concurrency int
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewCacheWarmer creates a warmer. concurrency bounds parallel refreshes.
func NewCacheWarmer(adapters []ingestion.Adapter, interval time.Duration, concurrency int, logger *slog.Logger) *CacheWarmer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &CacheWarmer{
		adapters:    adapters,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger.With("component", "cache_warmer"),
	}
}

// Start refreshes immediately and then on every tick until ctx is done.
func (w *CacheWarmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("cache warmer already running")
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("starting cache warmer", "adapters", len(w.adapters), "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RefreshAll(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cache warmer shutting down")
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			w.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every adapter and returns how many failed.
func (w *CacheWarmer) RefreshAll(ctx context.Context) int {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		failed    int
		semaphore = make(chan struct{}, w.concurrency)
	)

	for _, adapter := range w.adapters {
		wg.Add(1)
		go func(a ingestion.Adapter) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			start := time.Now()
			if err := a.Refresh(ctx); err != nil {
				w.logger.Warn("adapter refresh failed", "source", a.Name(), "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			w.logger.Debug("adapter refreshed", "source", a.Name(), "duration", time.Since(start))
		}(adapter)
	}

	wg.Wait()
	return failed
}
