// Package adapter maps each view's native record shape to and from the
// canonical unified task. Conversions validate first and fail with a
// ValidationError; they never coerce invalid input silently.
package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"unitask/domain"
)

// UnifiedIDPrefix marks canonical task ids.
const UnifiedIDPrefix = "unified-"

// ValidationError reports a native record that fails an adapter's
// validation contract.
type ValidationError struct {
	View   domain.ViewType
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s record invalid: %s %s", e.View, e.Field, e.Reason)
}

func invalid(view domain.ViewType, field, reason string) error {
	return &ValidationError{View: view, Field: field, Reason: reason}
}

// NewUnifiedID generates a fresh canonical task id.
func NewUnifiedID() string {
	return UnifiedIDPrefix + uuid.NewString()
}

func defaultPriority(p domain.Priority) domain.Priority {
	if p == "" {
		return domain.PriorityMedium
	}
	return p
}

func defaultDate(d domain.Date) domain.Date {
	if d.IsZero() {
		return domain.Today()
	}
	return d
}

func baseUnified(title, description string) domain.UnifiedTask {
	now := time.Now().UTC()
	return domain.UnifiedTask{
		ID:          NewUnifiedID(),
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// wbsStatusToUnified is the fixed forward lookup for the WBS view.
var wbsStatusToUnified = map[domain.WBSStatus]domain.Status{
	domain.WBSNotStarted: domain.StatusTodo,
	domain.WBSInProgress: domain.StatusInProgress,
	domain.WBSWorking:    domain.StatusInProgress,
	domain.WBSCompleted:  domain.StatusDone,
}

// unifiedStatusToWBS is the inverse lookup. The WBS view has no native
// equivalent of cancelled, which maps to not_started. That loss is part
// of the contract, not a defect.
func unifiedStatusToWBS(s domain.Status) domain.WBSStatus {
	switch s {
	case domain.StatusInProgress:
		return domain.WBSInProgress
	case domain.StatusDone:
		return domain.WBSCompleted
	default:
		return domain.WBSNotStarted
	}
}

// LaneStatus infers the unified status from a kanban lane id by
// substring. The sync service reuses it when a card is the sync source.
func LaneStatus(laneID string) domain.Status {
	lane := strings.ToLower(laneID)
	switch {
	case strings.Contains(lane, "done"), strings.Contains(lane, "complete"):
		return domain.StatusDone
	case strings.Contains(lane, "progress"), strings.Contains(lane, "doing"), strings.Contains(lane, "review"):
		return domain.StatusInProgress
	case strings.Contains(lane, "cancel"):
		return domain.StatusCancelled
	default:
		return domain.StatusTodo
	}
}

// labelPriority infers the unified priority from label names by
// substring.
func labelPriority(labels []domain.KanbanLabel) domain.Priority {
	for _, l := range labels {
		name := strings.ToLower(l.Name)
		switch {
		case strings.Contains(name, "urgent"), strings.Contains(name, "critical"):
			return domain.PriorityUrgent
		case strings.Contains(name, "high"), strings.Contains(name, "important"):
			return domain.PriorityHigh
		case strings.Contains(name, "low"):
			return domain.PriorityLow
		}
	}
	return domain.PriorityMedium
}
