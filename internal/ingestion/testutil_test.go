package ingestion

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/econcal/internal/issuelog"
	"github.com/STRATINT/econcal/internal/quality"
)

var fixedNow = time.Date(2025, 10, 17, 14, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: fixedNow} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(clock *testClock, sink issuelog.Sink) Deps {
	return Deps{
		Logger: testLogger(),
		Issues: sink,
		Gate:   quality.NewGate(quality.WithClock(clock.Now)),
		Retry: RetryPolicy{
			MaxRetries:     1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			BackoffFactor:  1,
		},
		Now: clock.Now,
	}
}
