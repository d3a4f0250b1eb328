package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/econcal/internal/aggregator"
	"github.com/STRATINT/econcal/internal/delivery"
	"github.com/STRATINT/econcal/internal/models"
	"github.com/STRATINT/econcal/internal/pipeline"
	"github.com/STRATINT/econcal/internal/subscribers"
)

// Kind distinguishes notification types.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindResult   Kind = "result"
)

// Notification is one event handed to the delivery channel.
type Notification struct {
	Kind       Kind                 `json:"kind"`
	Subscriber models.Subscriber    `json:"subscriber"`
	Event      models.CalendarEvent `json:"event"`
}

// Deliverer hands notifications to the messaging layer.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogDeliverer writes notifications to the log.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(_ context.Context, n Notification) error {
	payload, err := json.Marshal(n.Event)
	if err != nil {
		return err
	}
	d.logger.Info("notification",
		"kind", n.Kind,
		"subscriber", n.Subscriber.ID,
		"event", string(payload),
	)
	return nil
}

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Options tunes the NotificationScheduler.
type Options struct {
	CheckInterval time.Duration
	ReminderLead  time.Duration
	Now           func() time.Time
}

// NotificationScheduler checks every subscriber on a fixed interval and sends
// reminders for events starting soon and results for events just realized.
type NotificationScheduler struct {
	runner        Runner
	subs          subscribers.Store
	deliverer     Deliverer
	logger        *slog.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	checkInterval time.Duration
	reminderLead  time.Duration
	now           func() time.Time
	sent          *sentSet
}

// NewNotificationScheduler creates a scheduler.
func NewNotificationScheduler(runner Runner, subs subscribers.Store, deliverer Deliverer, logger *slog.Logger, opts Options) *NotificationScheduler {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Minute
	}
	if opts.ReminderLead <= 0 {
		opts.ReminderLead = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NotificationScheduler{
		runner:        runner,
		subs:          subs,
		deliverer:     deliverer,
		logger:        logger.With("component", "notification_scheduler"),
		stopChan:      make(chan struct{}),
		checkInterval: opts.CheckInterval,
		reminderLead:  opts.ReminderLead,
		now:           opts.Now,
		sent:          newSentSet(),
	}
}

// Start runs the check loop until ctx is done or Stop is called.
func (s *NotificationScheduler) Start(ctx context.Context) {
	s.logger.Info("starting notification scheduler", "check_interval", s.checkInterval, "reminder_lead", s.reminderLead)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.check(ctx)

	for {
		select {
		case <-ticker.C:
			s.check(ctx)
		case <-s.stopChan:
			s.logger.Info("notification scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("notification scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *NotificationScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *NotificationScheduler) check(ctx context.Context) {
	now := s.now()
	s.sent.pruneDaily(now)

	subs, err := s.subs.List(ctx)
	if err != nil {
		s.logger.Error("failed to list subscribers", "error", err)
		return
	}

	sent := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		sent += s.remind(ctx, sub, now)
		sent += s.results(ctx, sub, now)
	}
	if sent > 0 {
		s.logger.Info("notifications sent", "count", sent, "subscribers", len(subs))
	}
}

// remind sends events starting within the lead window.
func (s *NotificationScheduler) remind(ctx context.Context, sub models.Subscriber, now time.Time) int {
	res, err := s.runner.Run(ctx, pipeline.Request{
		Subscriber:   sub,
		Day:          aggregator.DayToday,
		Mode:         delivery.ModeReminder,
		ForScheduler: true,
		Now:          now,
	})
	if err != nil {
		s.logger.Error("reminder pass failed", "subscriber", sub.ID, "error", err)
		return 0
	}

	sent := 0
	for _, ev := range res.Deliver {
		minutes, ok := ev.MinutesUntil(now)
		if !ok || ev.IsResult || minutes < 0 || minutes > s.reminderLead.Minutes() {
			continue
		}
		if s.notify(ctx, KindReminder, sub, ev, now) {
			sent++
		}
	}
	return sent
}

// results sends realized events published within the scheduler staleness window.
func (s *NotificationScheduler) results(ctx context.Context, sub models.Subscriber, now time.Time) int {
	res, err := s.runner.Run(ctx, pipeline.Request{
		Subscriber:   sub,
		Day:          aggregator.DayToday,
		Mode:         delivery.ModeAIResults,
		ForScheduler: true,
		Now:          now,
	})
	if err != nil {
		s.logger.Error("results pass failed", "subscriber", sub.ID, "error", err)
		return 0
	}

	sent := 0
	for _, ev := range res.Deliver {
		if minutes, ok := ev.MinutesUntil(now); ok && -minutes > delivery.SchedulerPastThreshold.Minutes() {
			continue
		}
		if s.notify(ctx, KindResult, sub, ev, now) {
			sent++
		}
	}
	return sent
}

func (s *NotificationScheduler) notify(ctx context.Context, kind Kind, sub models.Subscriber, ev models.CalendarEvent, now time.Time) bool {
	key := sentKey(kind, sub.ID, ev)
	if s.sent.has(key) {
		return false
	}
	if err := s.deliverer.Deliver(ctx, Notification{Kind: kind, Subscriber: sub, Event: ev}); err != nil {
		s.logger.Error("failed to deliver notification", "kind", kind, "subscriber", sub.ID, "event_id", ev.ID(), "error", err)
		return false
	}
	s.sent.mark(key, now)
	return true
}

func sentKey(kind Kind, subscriber string, ev models.CalendarEvent) string {
	return string(kind) + "|" + subscriber + "|" + ev.ID()
}
