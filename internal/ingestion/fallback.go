package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

// FallbackAdapter serves the primary adapter and consults the secondary only
// when the primary returns nothing for the requested window.
type FallbackAdapter struct {
	primary   Adapter
	secondary Adapter
}

// NewFallbackAdapter pairs two adapters for the same upstream family.
func NewFallbackAdapter(primary, secondary Adapter) *FallbackAdapter {
	return &FallbackAdapter{primary: primary, secondary: secondary}
}

func (f *FallbackAdapter) Name() models.SourceName {
	return f.primary.Name()
}

func (f *FallbackAdapter) Events(ctx context.Context) []models.CalendarEvent {
	if events := f.primary.Events(ctx); len(events) > 0 {
		return events
	}
	return f.secondary.Events(ctx)
}

func (f *FallbackAdapter) EventsForToday(ctx context.Context, loc *time.Location) []models.CalendarEvent {
	if events := f.primary.EventsForToday(ctx, loc); len(events) > 0 {
		return events
	}
	return f.secondary.EventsForToday(ctx, loc)
}

func (f *FallbackAdapter) EventsForTomorrow(ctx context.Context, loc *time.Location) []models.CalendarEvent {
	if events := f.primary.EventsForTomorrow(ctx, loc); len(events) > 0 {
		return events
	}
	return f.secondary.EventsForTomorrow(ctx, loc)
}

// Refresh refreshes both adapters so the secondary is warm when needed.
func (f *FallbackAdapter) Refresh(ctx context.Context) error {
	return errors.Join(f.primary.Refresh(ctx), f.secondary.Refresh(ctx))
}

func (f *FallbackAdapter) Status() AdapterStatus {
	return f.primary.Status()
}

func (f *FallbackAdapter) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}
