package adapter

import (
	"time"

	"github.com/google/uuid"

	"unitask/domain"
)

// Gantt converts between gantt tasks and unified tasks. Gantt status and
// priority are already unified-shaped and pass through directly.
type Gantt struct{}

func (Gantt) View() domain.ViewType { return domain.ViewGantt }

// ToUnified validates the task and lifts it into canonical form.
func (Gantt) ToUnified(rec domain.GanttTask) (domain.UnifiedTask, error) {
	if rec.Title == "" {
		return domain.UnifiedTask{}, invalid(domain.ViewGantt, "title", "must not be empty")
	}
	if rec.StartDate.After(rec.EndDate) {
		return domain.UnifiedTask{}, invalid(domain.ViewGantt, "startDate", "must not be after endDate")
	}
	if rec.Progress < 0 || rec.Progress > 100 {
		return domain.UnifiedTask{}, invalid(domain.ViewGantt, "progress", "must be between 0 and 100")
	}

	t := baseUnified(rec.Title, rec.Description)
	t.Status = rec.Status
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	t.Priority = defaultPriority(rec.Priority)
	t.Progress = rec.Progress
	t.ParentID = rec.ParentID
	t.Order = rec.Order
	t.AssigneeID = rec.AssigneeID
	t.StartDate = rec.StartDate
	t.EndDate = rec.EndDate
	t.Views = []domain.ViewType{domain.ViewGantt}
	t.Metadata.Gantt = Gantt{}.Metadata(rec)
	return t, nil
}

// FromUnified reconstructs a gantt task with its dependencies and
// presentation fields from the stored fragment.
func (Gantt) FromUnified(t domain.UnifiedTask) (domain.GanttTask, error) {
	rec := domain.GanttTask{
		Title:       t.Title,
		Description: t.Description,
		StartDate:   defaultDate(t.StartDate),
		EndDate:     defaultDate(t.EndDate),
		Progress:    t.Progress,
		ParentID:    t.ParentID,
		Order:       t.Order,
		AssigneeID:  t.AssigneeID,
		Priority:    defaultPriority(t.Priority),
		Status:      t.Status,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if rec.Status == "" {
		rec.Status = domain.StatusTodo
	}
	if meta := t.Metadata.Gantt; meta != nil {
		rec.Dependencies = meta.Dependencies
		rec.Icon = meta.Icon
		rec.Color = meta.Color
		rec.GroupID = meta.GroupID
		rec.GroupName = meta.GroupName
		rec.IsMilestone = meta.IsMilestone
		rec.IsOnCriticalPath = meta.IsOnCriticalPath
		if meta.OriginalID != "" {
			rec.ID = meta.OriginalID
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.IsMilestone {
		rec.EndDate = rec.StartDate
	}
	return rec, nil
}

// CanConvert reports whether the task participates in the gantt view.
func (Gantt) CanConvert(t domain.UnifiedTask) bool {
	return t.HasView(domain.ViewGantt)
}

// Metadata extracts the gantt-only fragment.
func (Gantt) Metadata(rec domain.GanttTask) *domain.GanttMeta {
	return &domain.GanttMeta{
		OriginalID:       rec.ID,
		Dependencies:     rec.Dependencies,
		Icon:             rec.Icon,
		Color:            rec.Color,
		GroupID:          rec.GroupID,
		GroupName:        rec.GroupName,
		IsMilestone:      rec.IsMilestone,
		IsOnCriticalPath: rec.IsOnCriticalPath,
	}
}
