// Package issuelog receives data quality issues from the pipeline. Sinks are
// fire-and-forget: LogIssue never blocks normalization and never reports failure.
package issuelog

import (
	"context"
	"log/slog"

	"github.com/STRATINT/econcal/internal/models"
)

// Sink accepts issues for recording.
type Sink interface {
	LogIssue(issue models.DataIssue)
}

// IssueStore persists issues durably.
type IssueStore interface {
	Store(ctx context.Context, issue models.DataIssue) error
}

// Reader lists recorded issues for the admin API.
type Reader interface {
	List(ctx context.Context, q models.IssueQuery) ([]models.DataIssue, error)
	CountByType(ctx context.Context) (map[models.IssueType]int, error)
}

// Alerter receives critical issues for out-of-band notification.
type Alerter interface {
	Alert(issue models.DataIssue)
}

// Discard drops every issue.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) LogIssue(models.DataIssue) {}

// LoggerSink writes issues as structured log lines.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink returns a sink writing to logger.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) LogIssue(issue models.DataIssue) {
	level := slog.LevelInfo
	if issue.IsCritical() {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "data issue",
		"source", issue.Source,
		"type", issue.Type,
		"event_id", issue.EventID,
		"message", issue.Message,
		"details", issue.Details,
	)
}

// MultiSink fans one issue out to every sink in order.
type MultiSink []Sink

func (m MultiSink) LogIssue(issue models.DataIssue) {
	for _, s := range m {
		if s != nil {
			s.LogIssue(issue)
		}
	}
}

// Counter is notified of every issue, typically a metrics collector.
type Counter interface {
	IssueRaised(source, issueType string)
}

// CountingSink reports each issue to a Counter before forwarding it.
type CountingSink struct {
	next    Sink
	counter Counter
}

// NewCountingSink wraps next.
func NewCountingSink(next Sink, counter Counter) *CountingSink {
	return &CountingSink{next: next, counter: counter}
}

func (s *CountingSink) LogIssue(issue models.DataIssue) {
	if s.counter != nil {
		s.counter.IssueRaised(string(issue.Source), string(issue.Type))
	}
	if s.next != nil {
		s.next.LogIssue(issue)
	}
}

// AlertingSink forwards critical issues to an Alerter and every issue to next.
// Throttling is the Alerter's concern.
type AlertingSink struct {
	next    Sink
	alerter Alerter
}

// NewAlertingSink wraps next.
func NewAlertingSink(next Sink, alerter Alerter) *AlertingSink {
	return &AlertingSink{next: next, alerter: alerter}
}

func (s *AlertingSink) LogIssue(issue models.DataIssue) {
	if s.next != nil {
		s.next.LogIssue(issue)
	}
	if s.alerter != nil && issue.IsCritical() {
		s.alerter.Alert(issue)
	}
}

// LogAlerter emits critical issues at error level.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter returns an Alerter writing to logger.
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(issue models.DataIssue) {
	a.logger.Error("critical data issue",
		"source", issue.Source,
		"type", issue.Type,
		"event_id", issue.EventID,
		"message", issue.Message,
	)
}
