package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/STRATINT/econcal/internal/aggregator"
	"github.com/STRATINT/econcal/internal/delivery"
	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/models"
	"github.com/STRATINT/econcal/internal/quality"
)

// Collector supplies the merged, validated events for one subscriber.
type Collector interface {
	Collect(ctx context.Context, sub models.Subscriber, day aggregator.Day) []models.CalendarEvent
}

// DecisionRecorder is notified of every filter run.
type DecisionRecorder interface {
	DeliveryDecisions(mode string, delivered, skipped int)
}

// Request describes one pipeline pass.
type Request struct {
	Subscriber   models.Subscriber
	Day          aggregator.Day
	Mode         delivery.Mode
	ForScheduler bool
	// Now defaults to the service clock.
	Now time.Time
}

// Result is the delivery decision for a request plus the advisory conflicts
// found in the merged set.
type Result struct {
	models.FilterResult
	Conflicts []models.DataIssue `json:"conflicts"`
}

// Service runs aggregate, conflict detection and delivery filtering.
type Service struct {
	collector Collector
	issues    issuelog.Sink
	metrics   DecisionRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records delivery decisions.
func WithMetrics(m DecisionRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used when a request carries no Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a pipeline service.
func NewService(collector Collector, issues issuelog.Sink, logger *slog.Logger, opts ...Option) *Service {
	if issues == nil {
		issues = issuelog.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		collector: collector,
		issues:    issues,
		logger:    logger.With("component", "pipeline"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one pass. It only fails when ctx is done; fetch failures
// degrade to fewer events.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}
	mode := req.Mode
	if mode == "" {
		mode = delivery.ModeGeneral
	}

	events := s.collector.Collect(ctx, req.Subscriber, req.Day)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	conflicts := quality.CheckCrossSourceConflicts(events)
	for _, issue := range conflicts {
		s.issues.LogIssue(issue)
	}

	filtered := delivery.FilterForDelivery(events, delivery.Options{
		Mode:         mode,
		Now:          now,
		ForScheduler: req.ForScheduler,
		Location:     req.Subscriber.Location(),
	})
	for _, skipped := range filtered.Skipped {
		s.issues.LogIssue(skipped.Issue)
	}
	if s.metrics != nil {
		s.metrics.DeliveryDecisions(string(mode), len(filtered.Deliver), len(filtered.Skipped))
	}

	s.logger.Debug("pipeline pass complete",
		"subscriber", req.Subscriber.ID,
		"mode", mode,
		"day", req.Day,
		"merged", len(events),
		"deliver", len(filtered.Deliver),
		"skipped", len(filtered.Skipped),
		"conflicts", len(conflicts),
	)

	if conflicts == nil {
		conflicts = []models.DataIssue{}
	}
	return Result{FilterResult: filtered, Conflicts: conflicts}, nil
}
