package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// CalendarEvent is one scheduled or realized economic indicator release in the
// canonical shape every adapter produces. Events are built fresh on every fetch
// and never mutated afterwards.
type CalendarEvent struct {
	Title    string     `json:"title"`
	Currency string     `json:"currency"`
	Impact   Impact     `json:"impact"`
	Time     string     `json:"time"`               // display string as shown by the source
	TimeISO  *time.Time `json:"time_iso,omitempty"` // absolute UTC instant, nil when unknown
	Date     string     `json:"date,omitempty"`     // source-local calendar date, YYYY-MM-DD
	Forecast string     `json:"forecast"`
	Previous string     `json:"previous"`
	Actual   string     `json:"actual"`
	Source   SourceName `json:"source"`
	IsResult bool       `json:"is_result"`
}

// Impact is the expected market impact of a release.
type Impact string

const (
	ImpactHigh   Impact = "High"
	ImpactMedium Impact = "Medium"
	ImpactLow    Impact = "Low"
)

// Valid reports whether the impact is one of the enumerated values.
func (i Impact) Valid() bool {
	switch i {
	case ImpactHigh, ImpactMedium, ImpactLow:
		return true
	default:
		return false
	}
}

// Retained reports whether events with this impact are kept at all.
func (i Impact) Retained() bool {
	return i == ImpactHigh || i == ImpactMedium
}

// ParseImpact maps loose source labels ("high", "HIGH", "med") onto Impact.
// Unknown labels are returned verbatim so the quality gate can flag them.
func ParseImpact(raw string) Impact {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "h", "3":
		return ImpactHigh
	case "medium", "med", "moderate", "m", "2":
		return ImpactMedium
	case "low", "l", "1":
		return ImpactLow
	default:
		return Impact(strings.TrimSpace(raw))
	}
}

// SourceName identifies the adapter an event came from.
type SourceName string

const (
	SourceForexFactory    SourceName = "ForexFactory"
	SourceMyfxbook        SourceName = "Myfxbook"
	SourceForexFactoryCSV SourceName = "ForexFactoryCSV"

	// SourceMerge tags findings that span more than one source.
	SourceMerge SourceName = "Merge"
)

// Sanity bounds for absolute event instants.
const (
	MinEventYear = 2000
	MaxEventYear = 2100
)

// EventFields carries the raw values an adapter scraped for one row.
type EventFields struct {
	Title    string
	Currency string
	Impact   Impact
	Time     string
	TimeISO  *time.Time
	Date     string
	Forecast string
	Previous string
	Actual   string
	Source   SourceName
}

// NewCalendarEvent builds a canonical event: whitespace is collapsed, placeholder
// values become EmptyValue, out-of-range instants are dropped and IsResult is
// derived from Actual.
func NewCalendarEvent(f EventFields) CalendarEvent {
	ev := CalendarEvent{
		Title:    CollapseWhitespace(f.Title),
		Currency: strings.ToUpper(strings.TrimSpace(f.Currency)),
		Impact:   f.Impact,
		Time:     CollapseWhitespace(f.Time),
		Date:     strings.TrimSpace(f.Date),
		Forecast: NormalizeValue(f.Forecast),
		Previous: NormalizeValue(f.Previous),
		Actual:   NormalizeValue(f.Actual),
		Source:   f.Source,
	}
	if f.TimeISO != nil && ValidInstant(*f.TimeISO) {
		t := f.TimeISO.UTC()
		ev.TimeISO = &t
	}
	ev.IsResult = !IsPlaceholder(ev.Actual)
	return ev
}

// ValidInstant reports whether t falls inside the accepted year range.
func ValidInstant(t time.Time) bool {
	y := t.UTC().Year()
	return y >= MinEventYear && y <= MaxEventYear
}

// HasActual reports whether the event is realized.
func (e CalendarEvent) HasActual() bool {
	return !IsPlaceholder(e.Actual)
}

// HasForecast reports whether the event carries a real consensus value.
func (e CalendarEvent) HasForecast() bool {
	return !IsPlaceholder(e.Forecast)
}

// HasAnyValue reports whether at least one numeric field carries data.
func (e CalendarEvent) HasAnyValue() bool {
	return e.HasActual() || e.HasForecast() || !IsPlaceholder(e.Previous)
}

// timeKey is the time component of identity: the instant when known, the
// display string otherwise.
func (e CalendarEvent) timeKey() string {
	if e.TimeISO != nil {
		return e.TimeISO.UTC().Format(time.RFC3339)
	}
	return e.Time
}

// DedupKey is the source-qualified key used for intra-source and aggregate
// deduplication. Identical releases from two different sources never share a key.
func (e CalendarEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", e.Source, e.Currency, e.Title, e.timeKey())
}

// ID returns the deterministic identifier used to correlate issues with events.
func (e CalendarEvent) ID() string {
	hash := sha256.Sum256([]byte(e.DedupKey()))
	return hex.EncodeToString(hash[:8])
}

// MinutesUntil returns minutes from now to the event instant (negative when past).
// The second return value is false when the event has no instant.
func (e CalendarEvent) MinutesUntil(now time.Time) (float64, bool) {
	if e.TimeISO == nil {
		return 0, false
	}
	return e.TimeISO.Sub(now).Minutes(), true
}
