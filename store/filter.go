package store

import (
	"errors"

	"unitask/domain"
)

// ErrNotFound is returned for mutations targeting an id not in the list.
var ErrNotFound = errors.New("task not found")

// Filter selects unified tasks. Dimensions are AND-combined; an empty
// dimension imposes no constraint.
type Filter struct {
	Statuses   []domain.Status
	Priorities []domain.Priority
	AssigneeID string
	Tags       []string
	ProjectID  string
	// DueAfter/DueBefore test dueDate, falling back to endDate. A task
	// with neither date is excluded while a range is active.
	DueAfter  domain.Date
	DueBefore domain.Date
}

// Filtered returns the visible tasks matching every active dimension.
func (s *Store) Filtered(f Filter) []domain.UnifiedTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.UnifiedTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

func (f Filter) matches(t domain.UnifiedTask) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if len(f.Tags) > 0 && !anyTagMatches(f.Tags, t.Tags) {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if !f.DueAfter.IsZero() || !f.DueBefore.IsZero() {
		date := t.DueDate
		if date.IsZero() {
			date = t.EndDate
		}
		if date.IsZero() {
			return false
		}
		if !f.DueAfter.IsZero() && date.Before(f.DueAfter) {
			return false
		}
		if !f.DueBefore.IsZero() && date.After(f.DueBefore) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.Priority, p domain.Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func anyTagMatches(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
