package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

// Adapter turns one upstream calendar into validated CalendarEvents. Fetch
// failures never surface: a failing source yields its last good data or nothing.
type Adapter interface {
	// Name returns the source every event from this adapter carries.
	Name() models.SourceName

	// Events returns the validated set for the adapter's current window,
	// without day filtering.
	Events(ctx context.Context) []models.CalendarEvent

	// EventsForToday returns events falling on the current calendar day in loc.
	EventsForToday(ctx context.Context, loc *time.Location) []models.CalendarEvent

	// EventsForTomorrow returns events falling on the next calendar day in loc.
	EventsForTomorrow(ctx context.Context, loc *time.Location) []models.CalendarEvent

	// Refresh bypasses the cache for the current window. It reports the fetch
	// error so warmers can log it; cached data is left untouched on failure.
	Refresh(ctx context.Context) error

	// Status reports fetch health.
	Status() AdapterStatus

	// Close releases adapter-held resources.
	Close() error
}

// AdapterStatus represents the current state of an adapter.
type AdapterStatus struct {
	Name           models.SourceName `json:"name"`
	Healthy        bool              `json:"healthy"`
	LastFetch      time.Time         `json:"last_fetch"`
	LastError      string            `json:"last_error,omitempty"`
	LastCount      int               `json:"last_count"`
	TotalFetches   int64             `json:"total_fetches"`
	TotalErrors    int64             `json:"total_errors"`
	Fallbacks      int64             `json:"fallbacks"`
	AverageLatency time.Duration     `json:"average_latency"`
}

// statusTracker accumulates AdapterStatus across fetches.
type statusTracker struct {
	mu     sync.Mutex
	status AdapterStatus
}

func newStatusTracker(name models.SourceName) *statusTracker {
	return &statusTracker{status: AdapterStatus{Name: name, Healthy: true}}
}

func (s *statusTracker) record(fetchedAt time.Time, count int, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastFetch = fetchedAt
	s.status.TotalFetches++
	if err != nil {
		s.status.Healthy = false
		s.status.LastError = err.Error()
		s.status.TotalErrors++
	} else {
		s.status.Healthy = true
		s.status.LastError = ""
		s.status.LastCount = count
	}

	if s.status.AverageLatency == 0 {
		s.status.AverageLatency = latency
	} else {
		s.status.AverageLatency = (s.status.AverageLatency + latency) / 2
	}
}

func (s *statusTracker) fallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Fallbacks++
}

func (s *statusTracker) snapshot() AdapterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
