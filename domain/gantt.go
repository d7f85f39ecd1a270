package domain

import (
	"fmt"
	"time"
)

// DependencyType describes how a dependency constrains two tasks.
type DependencyType string

const (
	FinishToStart  DependencyType = "finish-to-start"
	StartToStart   DependencyType = "start-to-start"
	FinishToFinish DependencyType = "finish-to-finish"
	StartToFinish  DependencyType = "start-to-finish"
)

// Dependency is a directed edge from a predecessor (source) to a
// successor (target) task.
type Dependency struct {
	ID           string         `json:"id"`
	SourceTaskID string         `json:"sourceTaskId"`
	TargetTaskID string         `json:"targetTaskId"`
	Type         DependencyType `json:"type"`
}

// GanttTask is the gantt view's native task shape.
type GanttTask struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	StartDate    Date         `json:"startDate"`
	EndDate      Date         `json:"endDate"`
	Progress     int          `json:"progress"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	ParentID     string       `json:"parentId,omitempty"`
	// Children is a derived index over ParentID pointers; it is never
	// edited directly. See gantt.ChildrenIndex.
	Children  []string  `json:"children,omitempty"`
	Order     int       `json:"order"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	GroupID   string    `json:"groupId,omitempty"`
	GroupName string    `json:"groupName,omitempty"`
	// IsMilestone implies StartDate == EndDate.
	IsMilestone bool `json:"isMilestone,omitempty"`
	// IsOnCriticalPath is recomputed by the critical path algorithm and
	// never hand-set.
	IsOnCriticalPath bool      `json:"isOnCriticalPath,omitempty"`
	AssigneeID       string    `json:"assigneeId,omitempty"`
	Priority         Priority  `json:"priority,omitempty"`
	Status           Status    `json:"status,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PredecessorIDs returns the ids of tasks this task depends on.
func (t GanttTask) PredecessorIDs() []string {
	if len(t.Dependencies) == 0 {
		return nil
	}
	ids := make([]string, 0, len(t.Dependencies))
	for _, d := range t.Dependencies {
		if d.TargetTaskID == t.ID {
			ids = append(ids, d.SourceTaskID)
		}
	}
	return ids
}

// Validate checks the gantt invariants: date ordering, milestone shape
// and progress range.
func (t GanttTask) Validate() error {
	if t.StartDate.After(t.EndDate) {
		return fmt.Errorf("task %s: start date %s after end date %s", t.ID, t.StartDate, t.EndDate)
	}
	if t.IsMilestone && !t.StartDate.Equal(t.EndDate) {
		return fmt.Errorf("task %s: milestone must start and end on the same day", t.ID)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("task %s: progress %d out of range", t.ID, t.Progress)
	}
	return nil
}
