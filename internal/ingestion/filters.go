package ingestion

import (
	"regexp"

	"github.com/STRATINT/econcal/internal/models"
)

// noNumericValuePattern matches releases that never carry numbers.
var noNumericValuePattern = regexp.MustCompile(`(?i)(speech|speaks|testimony|minutes|statement|press conference|meeting|conference|summit|report|outlook|hearing|policy)`)

// ExpectsNoValues reports whether a title belongs to a category published without figures.
func ExpectsNoValues(title string) bool {
	return noNumericValuePattern.MatchString(title)
}

// preFilter drops low-impact rows and rows with no figures that are not
// speeches, minutes or similar. Rows with an unknown impact pass so the gate
// can report them.
func preFilter(events []models.CalendarEvent) []models.CalendarEvent {
	out := make([]models.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.Impact == models.ImpactLow {
			continue
		}
		if !ev.HasAnyValue() && !ExpectsNoValues(ev.Title) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// retainImpact keeps only High and Medium events.
func retainImpact(events []models.CalendarEvent) []models.CalendarEvent {
	out := make([]models.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.Impact.Retained() {
			out = append(out, ev)
		}
	}
	return out
}
