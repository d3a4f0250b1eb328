package models

import (
	"time"
)

// DataIssue is an immutable record of one quality finding. Issues are
// append-only: they are written through to the issue log and never updated.
type DataIssue struct {
	ID        string                 `json:"id,omitempty"`
	EventID   string                 `json:"event_id,omitempty"`
	Source    SourceName             `json:"source"`
	Type      IssueType              `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// IssueType categorizes data quality findings.
type IssueType string

const (
	IssueMissingRequiredField IssueType = "missing_required_field"
	IssueInvalidRange         IssueType = "invalid_range"
	IssueTimeInconsistency    IssueType = "time_inconsistency"
	IssueDuplicateEvent       IssueType = "duplicate_event"
	IssueCrossSourceConflict  IssueType = "cross_source_conflict"
	IssueTooFarInPast         IssueType = "too_far_in_past"
	IssueNoTime               IssueType = "no_time"
)

// IssueTypes lists every known issue type.
var IssueTypes = []IssueType{
	IssueMissingRequiredField,
	IssueInvalidRange,
	IssueTimeInconsistency,
	IssueDuplicateEvent,
	IssueCrossSourceConflict,
	IssueTooFarInPast,
	IssueNoTime,
}

// NewEventIssue records a finding about a single event.
func NewEventIssue(ev CalendarEvent, kind IssueType, message string, details map[string]interface{}) DataIssue {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["title"] = ev.Title
	details["currency"] = ev.Currency
	return DataIssue{
		EventID:   ev.ID(),
		Source:    ev.Source,
		Type:      kind,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSourceIssue records a finding not tied to one event.
func NewSourceIssue(source SourceName, kind IssueType, message string, details map[string]interface{}) DataIssue {
	return DataIssue{
		Source:    source,
		Type:      kind,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// DetailStage is the Details key naming the stage that raised an issue.
// Delivery-filter exclusions carry StageDelivery.
const (
	DetailStage   = "stage"
	StageDelivery = "delivery"
)

// IsCritical reports whether the issue should be forwarded for out-of-band
// alerting. Delivery-filter exclusions never are: they describe a consumer's
// view of valid data, not a defect in it.
func (i DataIssue) IsCritical() bool {
	if stage, _ := i.Details[DetailStage].(string); stage == StageDelivery {
		return false
	}
	switch i.Type {
	case IssueMissingRequiredField, IssueTimeInconsistency, IssueInvalidRange:
		return true
	default:
		return false
	}
}

// ValidationResult pairs the events that passed the quality gate with every
// issue raised while producing them.
type ValidationResult struct {
	Valid  []CalendarEvent `json:"valid"`
	Issues []DataIssue     `json:"issues"`
}

// SkippedEvent is an event excluded from delivery together with the reason.
type SkippedEvent struct {
	Event CalendarEvent `json:"event"`
	Issue DataIssue     `json:"issue"`
}

// FilterResult pairs the events cleared for delivery with every exclusion.
type FilterResult struct {
	Deliver []CalendarEvent `json:"deliver"`
	Skipped []SkippedEvent  `json:"skipped"`
}

// Issues returns the issue of every skipped event.
func (r FilterResult) Issues() []DataIssue {
	issues := make([]DataIssue, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		issues = append(issues, s.Issue)
	}
	return issues
}
