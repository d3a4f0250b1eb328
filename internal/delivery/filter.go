package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

// Mode selects the consumption rules applied to validated events.
type Mode string

const (
	ModeReminder   Mode = "reminder"
	ModeAIForecast Mode = "ai_forecast"
	ModeAIResults  Mode = "ai_results"
	ModeGeneral    Mode = "general"
)

// ParseMode maps a raw mode name onto Mode, defaulting to ModeGeneral.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeGeneral:
		return ModeGeneral, nil
	case ModeReminder:
		return ModeReminder, nil
	case ModeAIForecast:
		return ModeAIForecast, nil
	case ModeAIResults:
		return ModeAIResults, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", raw)
	}
}

const (
	// SchedulerPastThreshold bounds how stale an unrealized event may be for
	// automated checks and for every non-general mode.
	SchedulerPastThreshold = 2 * time.Hour

	// OnDemandPastThreshold bounds staleness for on-demand general views.
	OnDemandPastThreshold = 24 * time.Hour
)

// Options parameterizes one filter run.
type Options struct {
	Mode         Mode
	Now          time.Time
	ForScheduler bool

	// Location is the zone whose calendar days bound on-demand general views.
	// Defaults to UTC.
	Location *time.Location
}

// Policy decides whether a single event may be delivered. A nil issue means keep.
type Policy interface {
	Evaluate(ev models.CalendarEvent, now time.Time) *models.DataIssue
}

// PolicyFor returns the policy implementing opts.Mode.
func PolicyFor(opts Options) Policy {
	switch opts.Mode {
	case ModeReminder:
		return reminderPolicy{}
	case ModeAIForecast:
		return forecastPolicy{}
	case ModeAIResults:
		return resultsPolicy{}
	default:
		if opts.ForScheduler {
			return generalPolicy{threshold: SchedulerPastThreshold}
		}
		loc := opts.Location
		if loc == nil {
			loc = time.UTC
		}
		return generalPolicy{threshold: OnDemandPastThreshold, dayEnd: loc}
	}
}

// FilterForDelivery applies the mode policy to every event and returns what may
// be delivered together with the reason for every exclusion.
func FilterForDelivery(events []models.CalendarEvent, opts Options) models.FilterResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	policy := PolicyFor(opts)

	result := models.FilterResult{
		Deliver: make([]models.CalendarEvent, 0, len(events)),
		Skipped: []models.SkippedEvent{},
	}
	for _, ev := range events {
		if issue := policy.Evaluate(ev, now); issue != nil {
			result.Skipped = append(result.Skipped, models.SkippedEvent{Event: ev, Issue: *issue})
			continue
		}
		result.Deliver = append(result.Deliver, ev)
	}
	return result
}

// generalPolicy serves the default views. On-demand views (dayEnd set) keep an
// event through the day it occurred and measure staleness from that day's end.
type generalPolicy struct {
	threshold time.Duration
	dayEnd    *time.Location
}

func (p generalPolicy) Evaluate(ev models.CalendarEvent, now time.Time) *models.DataIssue {
	if issue := requireTime(ev); issue != nil {
		return issue
	}
	if p.dayEnd == nil {
		return checkPast(ev, now, p.threshold)
	}
	local := ev.TimeISO.In(p.dayEnd)
	end := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, p.dayEnd)
	if now.Sub(end) <= p.threshold || ev.HasActual() {
		return nil
	}
	issue := pastIssue(ev, now.Sub(*ev.TimeISO), p.threshold)
	issue.Details["day_end"] = end.UTC().Format(time.RFC3339)
	return issue
}

type reminderPolicy struct{}

func (reminderPolicy) Evaluate(ev models.CalendarEvent, now time.Time) *models.DataIssue {
	if issue := requireTime(ev); issue != nil {
		return issue
	}
	return checkPast(ev, now, SchedulerPastThreshold)
}

type forecastPolicy struct{}

func (forecastPolicy) Evaluate(ev models.CalendarEvent, now time.Time) *models.DataIssue {
	if issue := requireTime(ev); issue != nil {
		return issue
	}
	if issue := checkPast(ev, now, SchedulerPastThreshold); issue != nil {
		return issue
	}
	if !ev.TimeISO.After(now) {
		return skip(ev, models.IssueTooFarInPast, "forecast analysis requires a future event", map[string]interface{}{
			"time_iso": ev.TimeISO.Format(time.RFC3339),
		})
	}
	return nil
}

type resultsPolicy struct{}

func (resultsPolicy) Evaluate(ev models.CalendarEvent, _ time.Time) *models.DataIssue {
	if ev.TimeISO == nil && !ev.HasActual() {
		return requireTime(ev)
	}
	if !ev.HasActual() || !ev.HasForecast() {
		var missing []string
		if !ev.HasActual() {
			missing = append(missing, "actual")
		}
		if !ev.HasForecast() {
			missing = append(missing, "forecast")
		}
		return skip(ev, models.IssueMissingRequiredField, "result analysis requires actual and forecast values", map[string]interface{}{
			"fields": missing,
		})
	}
	return nil
}

func requireTime(ev models.CalendarEvent) *models.DataIssue {
	if ev.TimeISO != nil {
		return nil
	}
	return skip(ev, models.IssueNoTime, "event has no absolute time", map[string]interface{}{
		"time": ev.Time,
	})
}

// checkPast excludes events older than threshold unless they are realized, so
// freshly published results still reach their consumers.
func checkPast(ev models.CalendarEvent, now time.Time, threshold time.Duration) *models.DataIssue {
	elapsed := now.Sub(*ev.TimeISO)
	if elapsed <= threshold || ev.HasActual() {
		return nil
	}
	return pastIssue(ev, elapsed, threshold)
}

func pastIssue(ev models.CalendarEvent, elapsed, threshold time.Duration) *models.DataIssue {
	return skip(ev, models.IssueTooFarInPast, fmt.Sprintf("event is more than %.0f minutes in the past", threshold.Minutes()), map[string]interface{}{
		"elapsed_minutes":   elapsed.Minutes(),
		"threshold_minutes": threshold.Minutes(),
	})
}

// skip builds an exclusion issue. Messages stay constant across passes so the
// issue log can collapse repeats; varying figures belong in details.
func skip(ev models.CalendarEvent, kind models.IssueType, message string, details map[string]interface{}) *models.DataIssue {
	if details == nil {
		details = map[string]interface{}{}
	}
	details[models.DetailStage] = models.StageDelivery
	issue := models.NewEventIssue(ev, kind, message, details)
	return &issue
}
