package issuelog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/econcal/internal/models"
)

// DefaultMemoryCapacity bounds the in-memory issue log.
const DefaultMemoryCapacity = 1000

// MemorySink keeps the most recent issues in a ring buffer. It doubles as the
// IssueStore and Reader when no database is configured.
type MemorySink struct {
	mu    sync.Mutex
	items []models.DataIssue
	next  int
	full  bool
}

// NewMemorySink returns a ring holding up to capacity issues.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemorySink{items: make([]models.DataIssue, capacity)}
}

func (m *MemorySink) LogIssue(issue models.DataIssue) {
	if issue.ID == "" {
		issue.ID = uuid.New().String()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[m.next] = issue
	m.next = (m.next + 1) % len(m.items)
	if m.next == 0 {
		m.full = true
	}
}

// Store implements IssueStore.
func (m *MemorySink) Store(_ context.Context, issue models.DataIssue) error {
	m.LogIssue(issue)
	return nil
}

// List returns matching issues newest first.
func (m *MemorySink) List(_ context.Context, q models.IssueQuery) ([]models.DataIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.DataIssue{}
	for _, issue := range m.newestFirst() {
		if !q.Matches(issue) {
			continue
		}
		out = append(out, issue)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// CountByType counts retained issues per type.
func (m *MemorySink) CountByType(_ context.Context) (map[models.IssueType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[models.IssueType]int)
	for _, issue := range m.newestFirst() {
		counts[issue.Type]++
	}
	return counts, nil
}

// Len returns the number of retained issues.
func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return len(m.items)
	}
	return m.next
}

func (m *MemorySink) newestFirst() []models.DataIssue {
	n := m.next
	if m.full {
		n = len(m.items)
	}
	out := make([]models.DataIssue, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.items)) % len(m.items)
		out = append(out, m.items[idx])
	}
	return out
}
