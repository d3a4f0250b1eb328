package models

import (
	"fmt"
)

// Issue listing bounds.
const (
	DefaultIssueLimit = 100
	MaxIssueLimit     = 1000
)

// IssueQuery filters issue log listings. Zero values mean no filter.
type IssueQuery struct {
	Limit  int        `json:"limit,omitempty"`
	Source SourceName `json:"source,omitempty"`
	Type   IssueType  `json:"type,omitempty"`
}

// Validate applies the limit defaults and rejects unknown issue types.
func (q *IssueQuery) Validate() error {
	if q.Limit < 1 {
		q.Limit = DefaultIssueLimit
	}
	if q.Limit > MaxIssueLimit {
		q.Limit = MaxIssueLimit
	}

	if q.Type == "" {
		return nil
	}
	for _, t := range IssueTypes {
		if t == q.Type {
			return nil
		}
	}
	return fmt.Errorf("unknown issue type %q", q.Type)
}

// Matches reports whether the issue passes the source and type filters.
func (q IssueQuery) Matches(i DataIssue) bool {
	if q.Source != "" && i.Source != q.Source {
		return false
	}
	if q.Type != "" && i.Type != q.Type {
		return false
	}
	return true
}
