package adapter

import (
	"time"

	"github.com/google/uuid"

	"unitask/domain"
)

// WBS converts between work-breakdown-structure records and unified
// tasks.
type WBS struct{}

func (WBS) View() domain.ViewType { return domain.ViewWBS }

// ToUnified validates the record and lifts it into canonical form.
func (WBS) ToUnified(rec domain.WBSRecord) (domain.UnifiedTask, error) {
	if rec.Title == "" {
		return domain.UnifiedTask{}, invalid(domain.ViewWBS, "title", "must not be empty")
	}
	if rec.Progress < 0 || rec.Progress > 100 {
		return domain.UnifiedTask{}, invalid(domain.ViewWBS, "progress", "must be between 0 and 100")
	}

	t := baseUnified(rec.Title, rec.Description)
	t.Status = wbsStatusToUnified[rec.Status]
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	t.Priority = domain.PriorityMedium
	t.Progress = rec.Progress
	t.ParentID = rec.ParentID
	t.Order = rec.Order
	t.AssigneeID = rec.Assignee
	t.StartDate = rec.StartDate
	t.EndDate = rec.EndDate
	t.DueDate = rec.DueDate
	t.Views = []domain.ViewType{domain.ViewWBS}
	t.Metadata.WBS = WBS{}.Metadata(rec)
	return t, nil
}

// FromUnified reconstructs a WBS record. Unified cancelled has no WBS
// equivalent and comes back as not_started.
func (WBS) FromUnified(t domain.UnifiedTask) (domain.WBSRecord, error) {
	rec := domain.WBSRecord{
		Title:       t.Title,
		Description: t.Description,
		Status:      unifiedStatusToWBS(t.Status),
		Progress:    t.Progress,
		ParentID:    t.ParentID,
		Order:       t.Order,
		Assignee:    t.AssigneeID,
		StartDate:   defaultDate(t.StartDate),
		EndDate:     defaultDate(t.EndDate),
		DueDate:     t.DueDate,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if meta := t.Metadata.WBS; meta != nil {
		rec.HierarchyNumber = meta.HierarchyNumber
		rec.EstimatedHours = meta.EstimatedHours
		rec.ActualHours = meta.ActualHours
		rec.WorkDays = meta.WorkDays
		rec.Remarks = meta.Remarks
		if meta.Assignee != "" {
			rec.Assignee = meta.Assignee
		}
		if meta.OriginalID != "" {
			rec.ID = meta.OriginalID
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return rec, nil
}

// CanConvert reports whether the task participates in the WBS view.
func (WBS) CanConvert(t domain.UnifiedTask) bool {
	return t.HasView(domain.ViewWBS)
}

// Metadata extracts the WBS-only fragment.
func (WBS) Metadata(rec domain.WBSRecord) *domain.WBSMeta {
	return &domain.WBSMeta{
		OriginalID:      rec.ID,
		HierarchyNumber: rec.HierarchyNumber,
		EstimatedHours:  rec.EstimatedHours,
		ActualHours:     rec.ActualHours,
		Assignee:        rec.Assignee,
		WorkDays:        rec.WorkDays,
		Remarks:         rec.Remarks,
	}
}
