package domain

import "time"

// ViewType identifies one of the four task views.
type ViewType string

const (
	ViewTodo   ViewType = "todo"
	ViewWBS    ViewType = "wbs"
	ViewKanban ViewType = "kanban"
	ViewGantt  ViewType = "gantt"
)

// IsValid reports whether the view type is a known value.
func (v ViewType) IsValid() bool {
	switch v {
	case ViewTodo, ViewWBS, ViewKanban, ViewGantt:
		return true
	default:
		return false
	}
}

// Status is the canonical task status shared across views.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Priority is the canonical task priority shared across views.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// UnifiedTask is the canonical cross-view task representation. Native
// records linked to it are regenerated from these fields plus the
// view-specific metadata fragments.
type UnifiedTask struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority,omitempty"`
	Progress    int      `json:"progress"`

	// Views lists which native records exist for this task. It must stay
	// consistent with the populated Metadata fragments.
	Views    []ViewType `json:"views"`
	Metadata Metadata   `json:"metadata"`

	ProjectID  string   `json:"projectId,omitempty"`
	ParentID   string   `json:"parentId,omitempty"`
	Order      int      `json:"order,omitempty"`
	AssigneeID string   `json:"assigneeId,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	StartDate Date `json:"startDate,omitempty"`
	EndDate   Date `json:"endDate,omitempty"`
	DueDate   Date `json:"dueDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasView reports whether a native record exists for the given view.
func (t UnifiedTask) HasView(v ViewType) bool {
	for _, view := range t.Views {
		if view == v {
			return true
		}
	}
	return false
}

// ViewsConsistent reports whether Views and Metadata agree.
func (t UnifiedTask) ViewsConsistent() bool {
	for _, v := range []ViewType{ViewTodo, ViewWBS, ViewKanban, ViewGantt} {
		if t.HasView(v) != t.Metadata.Has(v) {
			return false
		}
	}
	return true
}

// Metadata holds per-view fragments needed to reconstruct native records.
type Metadata struct {
	Todo   *TodoMeta   `json:"todo,omitempty"`
	WBS    *WBSMeta    `json:"wbs,omitempty"`
	Kanban *KanbanMeta `json:"kanban,omitempty"`
	Gantt  *GanttMeta  `json:"gantt,omitempty"`
}

// Has reports whether the fragment for the given view is populated.
func (m Metadata) Has(v ViewType) bool {
	switch v {
	case ViewTodo:
		return m.Todo != nil
	case ViewWBS:
		return m.WBS != nil
	case ViewKanban:
		return m.Kanban != nil
	case ViewGantt:
		return m.Gantt != nil
	default:
		return false
	}
}

// TodoMeta carries todo-only fields.
type TodoMeta struct {
	OriginalID string `json:"originalId,omitempty"`
	Completed  bool   `json:"completed"`
}

// WBSMeta carries work-breakdown-structure-only fields.
type WBSMeta struct {
	OriginalID      string  `json:"originalId,omitempty"`
	HierarchyNumber string  `json:"hierarchyNumber,omitempty"`
	EstimatedHours  float64 `json:"estimatedHours,omitempty"`
	ActualHours     float64 `json:"actualHours,omitempty"`
	Assignee        string  `json:"assignee,omitempty"`
	WorkDays        int     `json:"workDays,omitempty"`
	Remarks         string  `json:"remarks,omitempty"`
}

// KanbanMeta carries kanban-only fields.
type KanbanMeta struct {
	OriginalID string        `json:"originalId,omitempty"`
	LaneID     string        `json:"laneId"`
	Position   int           `json:"position"`
	Labels     []KanbanLabel `json:"labels,omitempty"`
	Assignee   string        `json:"assignee,omitempty"`
}

// GanttMeta carries gantt-only fields.
type GanttMeta struct {
	OriginalID       string       `json:"originalId,omitempty"`
	Dependencies     []Dependency `json:"dependencies,omitempty"`
	Icon             string       `json:"icon,omitempty"`
	Color            string       `json:"color,omitempty"`
	GroupID          string       `json:"groupId,omitempty"`
	GroupName        string       `json:"groupName,omitempty"`
	IsMilestone      bool         `json:"isMilestone,omitempty"`
	IsOnCriticalPath bool         `json:"isOnCriticalPath,omitempty"`
}

// TaskPatch is a partial update to a unified task. Nil fields are left
// unchanged.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Progress    *int      `json:"progress,omitempty"`
	ParentID    *string   `json:"parentId,omitempty"`
	Order       *int      `json:"order,omitempty"`
	AssigneeID  *string   `json:"assigneeId,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	StartDate   *Date     `json:"startDate,omitempty"`
	EndDate     *Date     `json:"endDate,omitempty"`
	DueDate     *Date     `json:"dueDate,omitempty"`
}

// Apply copies the non-nil patch fields onto the task.
func (p TaskPatch) Apply(t *UnifiedTask) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Progress != nil {
		t.Progress = *p.Progress
	}
	if p.ParentID != nil {
		t.ParentID = *p.ParentID
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	t.UpdatedAt = time.Now().UTC()
}
