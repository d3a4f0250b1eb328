package delivery

import (
	"testing"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

var now = time.Date(2025, 10, 17, 14, 0, 0, 0, time.UTC)

func eventAt(offset time.Duration, forecast, actual string) models.CalendarEvent {
	ts := now.Add(offset)
	return models.NewCalendarEvent(models.EventFields{
		Title:    "Core CPI m/m",
		Currency: "USD",
		Impact:   models.ImpactHigh,
		Time:     "8:30am",
		TimeISO:  &ts,
		Forecast: forecast,
		Actual:   actual,
		Source:   models.SourceForexFactory,
	})
}

func TestFilterForDelivery_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		event        models.CalendarEvent
		mode         Mode
		forScheduler bool
		deliver      bool
		issue        models.IssueType
	}{
		{
			name:         "general scheduler 30h past",
			event:        eventAt(-30*time.Hour, "0.3%", "pending"),
			mode:         ModeGeneral,
			forScheduler: true,
			issue:        models.IssueTooFarInPast,
		},
		{
			name:    "general on demand 30h past",
			event:   eventAt(-30*time.Hour, "0.3%", "pending"),
			mode:    ModeGeneral,
			deliver: true,
		},
		{
			name:  "general on demand two days past",
			event: eventAt(-50*time.Hour, "0.3%", "pending"),
			mode:  ModeGeneral,
			issue: models.IssueTooFarInPast,
		},
		{
			name:    "general on demand 20h past",
			event:   eventAt(-20*time.Hour, "0.3%", "pending"),
			mode:    ModeGeneral,
			deliver: true,
		},
		{
			name:         "general scheduler 3h past realized",
			event:        eventAt(-3*time.Hour, "0.3%", "0.4%"),
			mode:         ModeGeneral,
			forScheduler: true,
			deliver:      true,
		},
		{
			name:  "ai results placeholder actual",
			event: eventAt(-time.Hour, "0.3%", "-"),
			mode:  ModeAIResults,
			issue: models.IssueMissingRequiredField,
		},
		{
			name:  "ai results missing forecast",
			event: eventAt(-time.Hour, "tba", "0.4%"),
			mode:  ModeAIResults,
			issue: models.IssueMissingRequiredField,
		},
		{
			name:    "ai results complete",
			event:   eventAt(-time.Hour, "0.3%", "0.4%"),
			mode:    ModeAIResults,
			deliver: true,
		},
		{
			name:    "ai results skips past check",
			event:   eventAt(-40*time.Hour, "0.3%", "0.4%"),
			mode:    ModeAIResults,
			deliver: true,
		},
		{
			name:    "ai forecast future",
			event:   eventAt(time.Hour, "0.3%", ""),
			mode:    ModeAIForecast,
			deliver: true,
		},
		{
			name:  "ai forecast past",
			event: eventAt(-time.Hour, "0.3%", ""),
			mode:  ModeAIForecast,
			issue: models.IssueTooFarInPast,
		},
		{
			name:    "reminder upcoming",
			event:   eventAt(10*time.Minute, "0.3%", ""),
			mode:    ModeReminder,
			deliver: true,
		},
		{
			name:  "reminder stale",
			event: eventAt(-3*time.Hour, "0.3%", ""),
			mode:  ModeReminder,
			issue: models.IssueTooFarInPast,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FilterForDelivery([]models.CalendarEvent{tt.event}, Options{
				Mode:         tt.mode,
				Now:          now,
				ForScheduler: tt.forScheduler,
			})

			if tt.deliver {
				if len(result.Deliver) != 1 || len(result.Skipped) != 0 {
					t.Fatalf("expected delivery, got deliver=%d skipped=%+v", len(result.Deliver), result.Skipped)
				}
				return
			}
			if len(result.Deliver) != 0 || len(result.Skipped) != 1 {
				t.Fatalf("expected exclusion, got deliver=%d skipped=%d", len(result.Deliver), len(result.Skipped))
			}
			if got := result.Skipped[0].Issue.Type; got != tt.issue {
				t.Errorf("issue type = %s, want %s", got, tt.issue)
			}
		})
	}
}

func TestFilterForDelivery_NoTime(t *testing.T) {
	noTime := models.NewCalendarEvent(models.EventFields{
		Title: "ECB President Lagarde Speaks", Currency: "EUR", Impact: models.ImpactHigh,
		Time: "Tentative", Source: models.SourceForexFactory,
	})
	realized := models.NewCalendarEvent(models.EventFields{
		Title: "German Prelim CPI m/m", Currency: "EUR", Impact: models.ImpactHigh,
		Time: "All Day", Forecast: "0.2%", Actual: "0.3%", Source: models.SourceForexFactory,
	})

	for _, mode := range []Mode{ModeGeneral, ModeReminder, ModeAIForecast} {
		result := FilterForDelivery([]models.CalendarEvent{noTime, realized}, Options{Mode: mode, Now: now})
		if len(result.Deliver) != 0 {
			t.Errorf("%s: events without time must be excluded", mode)
		}
		for _, s := range result.Skipped {
			if s.Issue.Type != models.IssueNoTime {
				t.Errorf("%s: expected no_time issue, got %s", mode, s.Issue.Type)
			}
		}
	}

	result := FilterForDelivery([]models.CalendarEvent{noTime, realized}, Options{Mode: ModeAIResults, Now: now})
	if len(result.Deliver) != 1 || result.Deliver[0].Title != realized.Title {
		t.Fatalf("ai_results should deliver the realized event without time, got %+v", result.Deliver)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Issue.Type != models.IssueNoTime {
		t.Fatalf("expected unrealized untimed event skipped with no_time, got %+v", result.Skipped)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeGeneral {
		t.Errorf("empty mode should default to general, got %s %v", m, err)
	}
	if m, err := ParseMode("AI_RESULTS"); err != nil || m != ModeAIResults {
		t.Errorf("expected ai_results, got %s %v", m, err)
	}
	if _, err := ParseMode("digest"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestFilterForDelivery_SkipDetails(t *testing.T) {
	stale := eventAt(-50*time.Hour, "0.3%", "")

	first := FilterForDelivery([]models.CalendarEvent{stale}, Options{Mode: ModeGeneral, Now: now})
	later := FilterForDelivery([]models.CalendarEvent{stale}, Options{Mode: ModeGeneral, Now: now.Add(time.Minute)})
	if len(first.Skipped) != 1 || len(later.Skipped) != 1 {
		t.Fatalf("expected the stale event skipped, got %+v / %+v", first.Skipped, later.Skipped)
	}

	issue := first.Skipped[0].Issue
	if issue.Message != later.Skipped[0].Issue.Message {
		t.Errorf("message must not drift between passes: %q vs %q", issue.Message, later.Skipped[0].Issue.Message)
	}
	if issue.Details["day_end"] != "2025-10-16T00:00:00Z" {
		t.Errorf("expected day_end in details, got %v", issue.Details["day_end"])
	}
	if issue.Details[models.DetailStage] != models.StageDelivery {
		t.Errorf("expected delivery stage, got %v", issue.Details[models.DetailStage])
	}
	if issue.IsCritical() {
		t.Error("delivery exclusions must not be critical")
	}

	pending := FilterForDelivery([]models.CalendarEvent{eventAt(2*time.Hour, "0.3%", "")}, Options{Mode: ModeAIResults, Now: now})
	if len(pending.Skipped) != 1 || pending.Skipped[0].Issue.IsCritical() {
		t.Errorf("an unpublished result must be a non-critical skip, got %+v", pending.Skipped)
	}
}
