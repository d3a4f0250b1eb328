package issuelog

import (
	"sync"
	"time"

	"github.com/STRATINT/econcal/internal/models"
)

// DefaultDedupWindow is how long an identical finding is suppressed.
const DefaultDedupWindow = 6 * time.Hour

// DedupSink suppresses repeats of the same finding within a window. Periodic
// runs re-validate the same cached events and would otherwise log every issue
// on every tick.
type DedupSink struct {
	next   Sink
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	seen      map[string]time.Time
	lastPrune time.Time
}

// NewDedupSink wraps next. A non-positive window uses DefaultDedupWindow.
func NewDedupSink(next Sink, window time.Duration, now func() time.Time) *DedupSink {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if now == nil {
		now = time.Now
	}
	return &DedupSink{next: next, window: window, now: now, seen: make(map[string]time.Time)}
}

func (s *DedupSink) LogIssue(issue models.DataIssue) {
	key := fingerprint(issue)
	now := s.now()

	s.mu.Lock()
	if now.Sub(s.lastPrune) >= s.window {
		s.prune(now.Add(-s.window))
		s.lastPrune = now
	}
	if at, ok := s.seen[key]; ok && now.Sub(at) < s.window {
		s.mu.Unlock()
		return
	}
	s.seen[key] = now
	s.mu.Unlock()

	if s.next != nil {
		s.next.LogIssue(issue)
	}
}

// Size returns the number of remembered findings.
func (s *DedupSink) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *DedupSink) prune(cutoff time.Time) {
	for key, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, key)
		}
	}
}

func fingerprint(issue models.DataIssue) string {
	return string(issue.Source) + "|" + string(issue.Type) + "|" + issue.EventID + "|" + issue.Message
}
