package ingestion

import (
	"testing"

	"github.com/STRATINT/econcal/internal/models"
)

func TestPreFilterAndRetainImpact(t *testing.T) {
	mk := func(title string, impact models.Impact, forecast string) models.CalendarEvent {
		return models.NewCalendarEvent(models.EventFields{
			Title: title, Currency: "USD", Impact: impact, Forecast: forecast, Source: models.SourceMyfxbook,
		})
	}
	events := []models.CalendarEvent{
		mk("CPI m/m", models.ImpactHigh, "0.3%"),
		mk("Crude Oil Inventories", models.ImpactLow, "-1.2M"),
		mk("Business Inventories m/m", models.ImpactMedium, ""),
		mk("FOMC Meeting Minutes", models.ImpactHigh, ""),
		mk("ECB President Lagarde Speaks", models.ImpactMedium, "tba"),
		mk("Bank Holiday", models.Impact("Holiday"), "1"),
	}

	pre := preFilter(events)
	if len(pre) != 4 {
		t.Fatalf("expected 4 events after pre-filter, got %d", len(pre))
	}

	kept := retainImpact(pre)
	if len(kept) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(kept))
	}
	for _, ev := range kept {
		if !ev.Impact.Retained() {
			t.Errorf("impact %s should not be retained", ev.Impact)
		}
	}
}

func TestExpectsNoValues(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Fed Chair Powell Testifies", false},
		{"Non-Farm Employment Change", false},
		{"BOE Monetary Policy Report", true},
		{"Treasury Secretary Speaks", true},
		{"G20 Meetings", true},
	}
	for _, tt := range tests {
		if got := ExpectsNoValues(tt.title); got != tt.want {
			t.Errorf("ExpectsNoValues(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}
