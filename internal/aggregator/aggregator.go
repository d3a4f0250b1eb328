package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/STRATINT/econcal/internal/ingestion"
	"github.com/STRATINT/econcal/internal/models"
)

// Day selects the calendar window a request reads.
type Day string

const (
	DayToday    Day = "today"
	DayTomorrow Day = "tomorrow"
	// DayAll returns every validated event the adapters currently hold.
	DayAll Day = "all"
)

// ParseDay maps a raw day name onto Day, defaulting to DayToday.
func ParseDay(raw string) (Day, error) {
	switch Day(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DayToday:
		return DayToday, nil
	case DayTomorrow:
		return DayTomorrow, nil
	case DayAll, "week":
		return DayAll, nil
	default:
		return "", fmt.Errorf("unknown day %q", raw)
	}
}

// Aggregator merges adapter output for one subscriber's currencies and source
// preference.
type Aggregator struct {
	forexFactory ingestion.Adapter
	myfxbook     ingestion.Adapter
	logger       *slog.Logger
}

// New creates an Aggregator. Either adapter may be nil when its source is disabled.
func New(forexFactory, myfxbook ingestion.Adapter, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		forexFactory: forexFactory,
		myfxbook:     myfxbook,
		logger:       logger.With("component", "aggregator"),
	}
}

// Adapters returns every configured adapter.
func (a *Aggregator) Adapters() []ingestion.Adapter {
	return a.adaptersFor(models.PreferenceBoth)
}

func (a *Aggregator) adaptersFor(pref models.SourcePreference) []ingestion.Adapter {
	var out []ingestion.Adapter
	if a.forexFactory != nil && (pref == models.PreferenceForexFactory || pref == models.PreferenceBoth) {
		out = append(out, a.forexFactory)
	}
	if a.myfxbook != nil && (pref == models.PreferenceMyfxbook || pref == models.PreferenceBoth) {
		out = append(out, a.myfxbook)
	}
	return out
}

// Collect returns the merged events for sub on day. Events are deduplicated by
// their source-qualified key, so the same release reported by two sources is
// kept twice. The result is ordered by instant; events without one come last.
func (a *Aggregator) Collect(ctx context.Context, sub models.Subscriber, day Day) []models.CalendarEvent {
	pref := sub.Preference
	if pref == "" {
		pref = models.PreferenceBoth
	}
	loc := sub.Location()

	seen := make(map[string]struct{})
	merged := []models.CalendarEvent{}
	for _, adapter := range a.adaptersFor(pref) {
		var events []models.CalendarEvent
		switch day {
		case DayTomorrow:
			events = adapter.EventsForTomorrow(ctx, loc)
		case DayAll:
			events = adapter.Events(ctx)
		default:
			events = adapter.EventsForToday(ctx, loc)
		}

		kept := 0
		for _, ev := range events {
			if !sub.WantsCurrency(ev.Currency) {
				continue
			}
			key := ev.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, ev)
			kept++
		}
		a.logger.Debug("merged adapter events", "source", adapter.Name(), "day", day, "fetched", len(events), "kept", kept)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ti, tj := merged[i].TimeISO, merged[j].TimeISO
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.Before(*tj)
		}
	})
	return merged
}
