package issuelog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

const (
	defaultBufferSize   = 256
	defaultWriteTimeout = 5 * time.Second
)

// AsyncSink writes issues to an IssueStore from a single background goroutine.
// When the buffer is full the issue is dropped and a warning is logged.
type AsyncSink struct {
	store        IssueStore
	logger       *slog.Logger
	writeTimeout time.Duration

	queue chan models.DataIssue
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// AsyncOption customizes an AsyncSink.
type AsyncOption func(*AsyncSink)

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) AsyncOption {
	return func(s *AsyncSink) {
		if n > 0 {
			s.queue = make(chan models.DataIssue, n)
		}
	}
}

// WithWriteTimeout bounds each store write.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(s *AsyncSink) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// NewAsyncSink starts the writer goroutine. Call Close to drain it.
func NewAsyncSink(store IssueStore, logger *slog.Logger, opts ...AsyncOption) *AsyncSink {
	s := &AsyncSink{
		store:        store,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan models.DataIssue, defaultBufferSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *AsyncSink) LogIssue(issue models.DataIssue) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- issue:
	default:
		s.logger.Warn("issue log buffer full, dropping issue",
			"source", issue.Source,
			"type", issue.Type,
		)
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for issue := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		if err := s.store.Store(ctx, issue); err != nil {
			s.logger.Error("failed to store data issue",
				"source", issue.Source,
				"type", issue.Type,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting issues and waits until queued ones are written or ctx ends.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
