package scheduler

import (
	"sync"
	"time"
)

// sentRetention is how long a delivered notification is remembered.
const sentRetention = 24 * time.Hour

// sentSet remembers delivered notifications so a tick never repeats one.
type sentSet struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	lastPrune time.Time
}

func newSentSet() *sentSet {
	return &sentSet{entries: make(map[string]time.Time)}
}

func (s *sentSet) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *sentSet) mark(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = at
}

// pruneDaily drops entries older than sentRetention, at most once per UTC day.
func (s *sentSet) pruneDaily(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	y1, m1, d1 := s.lastPrune.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return
	}
	cutoff := now.Add(-sentRetention)
	for key, at := range s.entries {
		if at.Before(cutoff) {
			delete(s.entries, key)
		}
	}
	s.lastPrune = now
}

func (s *sentSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
