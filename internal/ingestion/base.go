package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/metrics"
	"github.com/STRATINT/econcal/internal/models"
	"github.com/STRATINT/econcal/internal/quality"
)

// FetchRecorder receives per-call fetch outcomes.
type FetchRecorder interface {
	ObserveFetch(source, outcome string, d time.Duration)
}

// Deps are the collaborators shared by every adapter.
type Deps struct {
	Logger  *slog.Logger
	Issues  issuelog.Sink
	Metrics FetchRecorder
	Gate    *quality.Gate
	Retry   RetryPolicy
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Issues == nil {
		d.Issues = issuelog.Discard
	}
	if d.Metrics == nil {
		d.Metrics = noopFetchRecorder{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gate == nil {
		d.Gate = quality.NewGate(quality.WithClock(d.Now))
	}
	if d.Retry == (RetryPolicy{}) {
		d.Retry = DefaultRetryPolicy()
	}
	return d
}

type noopFetchRecorder struct{}

func (noopFetchRecorder) ObserveFetch(string, string, time.Duration) {}

// fetchFunc downloads and parses one upstream window.
type fetchFunc func(ctx context.Context) ([]models.CalendarEvent, error)

// windowFunc maps a calendar day onto the cache key and fetch serving it.
type windowFunc func(day time.Time) (key string, fetch fetchFunc)

// baseAdapter implements the caching, fallback and validation contract shared
// by every source. Concrete adapters supply only the window function.
type baseAdapter struct {
	name   models.SourceName
	deps   Deps
	cache  *TTLCache[[]models.CalendarEvent]
	window windowFunc
	status *statusTracker

	// loadMu keeps concurrent callers from fetching the same window twice.
	loadMu sync.Mutex
}

func newBaseAdapter(name models.SourceName, ttl time.Duration, deps Deps, window windowFunc) *baseAdapter {
	deps = deps.withDefaults()
	return &baseAdapter{
		name:   name,
		deps:   deps,
		cache:  NewTTLCache[[]models.CalendarEvent](ttl, deps.Now),
		window: window,
		status: newStatusTracker(name),
	}
}

func (b *baseAdapter) Name() models.SourceName {
	return b.name
}

func (b *baseAdapter) Events(ctx context.Context) []models.CalendarEvent {
	return b.eventsFor(ctx, b.deps.Now().UTC())
}

func (b *baseAdapter) EventsForToday(ctx context.Context, loc *time.Location) []models.CalendarEvent {
	if loc == nil {
		loc = time.UTC
	}
	day := b.deps.Now().In(loc)
	return selectDay(b.eventsFor(ctx, day), day, loc)
}

func (b *baseAdapter) EventsForTomorrow(ctx context.Context, loc *time.Location) []models.CalendarEvent {
	if loc == nil {
		loc = time.UTC
	}
	now := b.deps.Now().In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day()+1, 12, 0, 0, 0, loc)
	return selectDay(b.eventsFor(ctx, day), day, loc)
}

func (b *baseAdapter) Refresh(ctx context.Context) error {
	key, fetch := b.window(b.deps.Now().UTC())

	b.loadMu.Lock()
	defer b.loadMu.Unlock()

	_, err := b.fetchAndStore(ctx, key, fetch)
	return err
}

func (b *baseAdapter) Status() AdapterStatus {
	return b.status.snapshot()
}

func (b *baseAdapter) Close() error {
	return nil
}

func (b *baseAdapter) eventsFor(ctx context.Context, day time.Time) []models.CalendarEvent {
	key, fetch := b.window(day)
	return b.load(ctx, key, fetch)
}

// load serves key from cache, fetching on a miss. A failed fetch returns the
// last good entry marked as a fallback, or nothing.
func (b *baseAdapter) load(ctx context.Context, key string, fetch fetchFunc) []models.CalendarEvent {
	b.loadMu.Lock()
	defer b.loadMu.Unlock()

	if cached, ok := b.cache.Get(key); ok {
		b.deps.Metrics.ObserveFetch(string(b.name), metrics.OutcomeCacheHit, 0)
		return clone(cached)
	}

	events, err := b.fetchAndStore(ctx, key, fetch)
	if err == nil {
		return events
	}

	logger := b.deps.Logger.With("source", b.name, "key", key)
	if stale, ok := b.cache.Stale(key); ok {
		b.status.fallback()
		b.deps.Metrics.ObserveFetch(string(b.name), metrics.OutcomeFallback, 0)
		logger.Warn("fetch failed, serving stale cache", "error", err, "rate_limited", errors.Is(err, ErrRateLimited), "count", len(stale))
		return clone(stale)
	}

	b.deps.Metrics.ObserveFetch(string(b.name), metrics.OutcomeEmpty, 0)
	logger.Warn("fetch failed with no cached data, returning no events", "error", err, "rate_limited", errors.Is(err, ErrRateLimited))
	return nil
}

// fetchAndStore runs the fetch with retries, validates and caches the result.
// Called with loadMu held.
func (b *baseAdapter) fetchAndStore(ctx context.Context, key string, fetch fetchFunc) ([]models.CalendarEvent, error) {
	start := time.Now()
	var raw []models.CalendarEvent
	err := Retry(ctx, b.deps.Retry, func() error {
		var fetchErr error
		raw, fetchErr = fetch(ctx)
		return fetchErr
	})
	latency := time.Since(start)

	if err != nil {
		b.status.record(b.deps.Now(), 0, latency, err)
		b.deps.Metrics.ObserveFetch(string(b.name), metrics.OutcomeError, latency)
		return nil, err
	}

	valid := b.validate(raw)
	b.cache.Set(key, valid)
	b.status.record(b.deps.Now(), len(valid), latency, nil)
	b.deps.Metrics.ObserveFetch(string(b.name), metrics.OutcomeFetched, latency)
	b.deps.Logger.Debug("fetched calendar",
		"source", b.name,
		"key", key,
		"raw", len(raw),
		"valid", len(valid),
		"duration_ms", latency.Milliseconds(),
	)
	return clone(valid), nil
}

// validate applies the hard filters and the quality gate, forwarding every
// issue to the sink.
func (b *baseAdapter) validate(raw []models.CalendarEvent) []models.CalendarEvent {
	result := b.deps.Gate.CheckRawAndNormalize(preFilter(raw))
	for _, issue := range result.Issues {
		b.deps.Issues.LogIssue(issue)
	}
	return retainImpact(result.Valid)
}

func clone(events []models.CalendarEvent) []models.CalendarEvent {
	if events == nil {
		return nil
	}
	return append([]models.CalendarEvent(nil), events...)
}
