package quality

import (
	"fmt"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

// DefaultMaxDistance bounds how far an event instant may sit from now before it
// is flagged as a time inconsistency.
const DefaultMaxDistance = 48 * time.Hour

// Gate performs per-event structural validation and intra-source deduplication.
type Gate struct {
	now         func() time.Time
	maxDistance time.Duration
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock overrides the time source used by the time-window check.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithMaxDistance overrides DefaultMaxDistance.
func WithMaxDistance(d time.Duration) Option {
	return func(g *Gate) { g.maxDistance = d }
}

// NewGate constructs a Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{now: time.Now, maxDistance: DefaultMaxDistance}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckRawAndNormalize validates events in order. An event is kept iff it is not
// a repeat of an earlier accepted key and raised no missing-required-field
// issue. Every raised issue is returned, including those of rejected events.
func (g *Gate) CheckRawAndNormalize(events []models.CalendarEvent) models.ValidationResult {
	result := models.ValidationResult{
		Valid:  make([]models.CalendarEvent, 0, len(events)),
		Issues: []models.DataIssue{},
	}
	seen := make(map[string]struct{}, len(events))
	now := g.now()

	for _, ev := range events {
		deliverable := true

		if missing := missingRequired(ev); len(missing) > 0 {
			deliverable = false
			result.Issues = append(result.Issues, models.NewEventIssue(ev, models.IssueMissingRequiredField,
				fmt.Sprintf("missing required fields: %v", missing),
				map[string]interface{}{"fields": missing}))
		}

		if ev.Impact != "" && !ev.Impact.Valid() {
			result.Issues = append(result.Issues, models.NewEventIssue(ev, models.IssueInvalidRange,
				fmt.Sprintf("invalid impact %q", ev.Impact),
				map[string]interface{}{"impact": string(ev.Impact)}))
		}

		if ev.TimeISO == nil {
			result.Issues = append(result.Issues, models.NewEventIssue(ev, models.IssueNoTime,
				"no absolute time could be determined",
				map[string]interface{}{"time": ev.Time}))
		} else if dist := absDuration(ev.TimeISO.Sub(now)); dist > g.maxDistance {
			result.Issues = append(result.Issues, models.NewEventIssue(ev, models.IssueTimeInconsistency,
				fmt.Sprintf("event time is more than %.0f days from now", g.maxDistance.Hours()/24),
				map[string]interface{}{
					"distance_days": dist.Hours() / 24,
					"time_iso": ev.TimeISO.Format(time.RFC3339),
					"now":      now.UTC().Format(time.RFC3339),
				}))
		}

		key := ev.DedupKey()
		if _, dup := seen[key]; dup {
			result.Issues = append(result.Issues, models.NewEventIssue(ev, models.IssueDuplicateEvent,
				"duplicate event within source batch",
				map[string]interface{}{"dedup_key": key}))
			continue
		}

		if deliverable {
			seen[key] = struct{}{}
			result.Valid = append(result.Valid, ev)
		}
	}

	return result
}

func missingRequired(ev models.CalendarEvent) []string {
	var missing []string
	if models.IsPlaceholder(ev.Title) {
		missing = append(missing, "title")
	}
	if models.IsPlaceholder(ev.Currency) {
		missing = append(missing, "currency")
	}
	if models.IsPlaceholder(string(ev.Source)) {
		missing = append(missing, "source")
	}
	if models.IsPlaceholder(string(ev.Impact)) {
		missing = append(missing, "impact")
	}
	return missing
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
