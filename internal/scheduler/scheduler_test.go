package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/STRATINT/econcal/internal/delivery"
	"github.com/STRATINT/econcal/internal/ingestion"
	"github.com/STRATINT/econcal/internal/models"
	"github.com/STRATINT/econcal/internal/pipeline"
	"github.com/STRATINT/econcal/internal/subscribers"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var start = time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)

func event(title string, at time.Time, actual string) models.CalendarEvent {
	return models.NewCalendarEvent(models.EventFields{
		Title: title, Currency: "USD", Impact: models.ImpactHigh, TimeISO: &at,
		Forecast: "0.3%", Actual: actual, Source: models.SourceForexFactory,
	})
}

type modeRunner struct {
	byMode map[delivery.Mode][]models.CalendarEvent
	err    error
}

func (r *modeRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	if r.err != nil {
		return pipeline.Result{}, r.err
	}
	return pipeline.Result{FilterResult: models.FilterResult{Deliver: r.byMode[req.Mode]}}, nil
}

type recordingDeliverer struct {
	mu   sync.Mutex
	sent []Notification
	fail bool
}

func (d *recordingDeliverer) Deliver(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("channel unavailable")
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDeliverer) kinds() map[Kind]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[Kind]int{}
	for _, n := range d.sent {
		out[n.Kind]++
	}
	return out
}

func TestNotificationScheduler_RemindersAndResults(t *testing.T) {
	now := start
	runner := &modeRunner{byMode: map[delivery.Mode][]models.CalendarEvent{
		delivery.ModeReminder: {
			event("CPI m/m", start.Add(10*time.Minute), ""),
			event("Retail Sales m/m", start.Add(time.Hour), ""),
			event("PPI m/m", start.Add(-5*time.Minute), ""),
		},
		delivery.ModeAIResults: {
			event("Unemployment Claims", start.Add(-10*time.Minute), "220K"),
			event("Empire State Manufacturing Index", start.Add(-3*time.Hour), "5.1"),
		},
	}}
	deliverer := &recordingDeliverer{}
	subs := subscribers.NewStaticStore(models.Subscriber{ID: "desk"})
	s := NewNotificationScheduler(runner, subs, deliverer, discardLogger(), Options{
		ReminderLead: 15 * time.Minute,
		Now:          func() time.Time { return now },
	})

	s.check(context.Background())
	got := deliverer.kinds()
	if got[KindReminder] != 1 || got[KindResult] != 1 {
		t.Fatalf("expected one reminder and one result, got %v", got)
	}

	now = now.Add(time.Minute)
	s.check(context.Background())
	if len(deliverer.sent) != 2 {
		t.Fatalf("notifications must not repeat, got %d", len(deliverer.sent))
	}

	now = start.Add(50 * time.Minute)
	s.check(context.Background())
	if got := deliverer.kinds(); got[KindReminder] != 2 {
		t.Errorf("expected the later event reminded once it entered the lead window, got %v", got)
	}
}

func TestNotificationScheduler_FailedDeliveryIsRetried(t *testing.T) {
	runner := &modeRunner{byMode: map[delivery.Mode][]models.CalendarEvent{
		delivery.ModeReminder: {event("CPI m/m", start.Add(5*time.Minute), "")},
	}}
	deliverer := &recordingDeliverer{fail: true}
	s := NewNotificationScheduler(runner, subscribers.NewStaticStore(models.Subscriber{ID: "desk"}), deliverer, discardLogger(), Options{
		Now: func() time.Time { return start },
	})

	s.check(context.Background())
	deliverer.fail = false
	s.check(context.Background())
	if len(deliverer.sent) != 1 {
		t.Fatalf("expected delivery on the second tick, got %d", len(deliverer.sent))
	}
}

func TestNotificationScheduler_RunnerError(t *testing.T) {
	deliverer := &recordingDeliverer{}
	s := NewNotificationScheduler(&modeRunner{err: context.Canceled}, subscribers.NewStaticStore(models.Subscriber{ID: "desk"}), deliverer, discardLogger(), Options{})
	s.check(context.Background())
	if len(deliverer.sent) != 0 {
		t.Fatal("nothing should be delivered when the pipeline fails")
	}
}

func TestNotificationScheduler_StartStop(t *testing.T) {
	s := NewNotificationScheduler(&modeRunner{}, subscribers.NewStaticStore(), &recordingDeliverer{}, discardLogger(), Options{CheckInterval: time.Millisecond})
	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	s.Stop()
	s.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSentSetPrunesDaily(t *testing.T) {
	set := newSentSet()
	set.pruneDaily(start)
	set.mark("old", start.Add(-25*time.Hour))
	set.mark("recent", start)

	set.pruneDaily(start.Add(time.Hour))
	if set.size() != 2 {
		t.Fatalf("pruning should run once per day, have %d", set.size())
	}

	set.pruneDaily(start.Add(24 * time.Hour))
	if set.size() != 1 || !set.has("recent") {
		t.Errorf("expected only the recent entry to survive, have %d", set.size())
	}
}

type countingAdapter struct {
	name      models.SourceName
	refreshes atomic.Int32
	err       error
}

func (a *countingAdapter) Name() models.SourceName                      { return a.name }
func (a *countingAdapter) Events(context.Context) []models.CalendarEvent { return nil }
func (a *countingAdapter) Status() ingestion.AdapterStatus               { return ingestion.AdapterStatus{Name: a.name} }
func (a *countingAdapter) Close() error                                  { return nil }
func (a *countingAdapter) Refresh(context.Context) error {
	a.refreshes.Add(1)
	return a.err
}
func (a *countingAdapter) EventsForToday(context.Context, *time.Location) []models.CalendarEvent {
	return nil
}
func (a *countingAdapter) EventsForTomorrow(context.Context, *time.Location) []models.CalendarEvent {
	return nil
}

func TestCacheWarmer(t *testing.T) {
	ok := &countingAdapter{name: models.SourceMyfxbook}
	bad := &countingAdapter{name: models.SourceForexFactory, err: errors.New("render failed")}
	w := NewCacheWarmer([]ingestion.Adapter{ok, bad}, time.Hour, 1, discardLogger())

	if failed := w.RefreshAll(context.Background()); failed != 1 {
		t.Errorf("expected 1 failed refresh, got %d", failed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	deadline := time.Now().Add(time.Second)
	for ok.refreshes.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ok.refreshes.Load() < 2 {
		t.Error("Start should refresh immediately")
	}
}
