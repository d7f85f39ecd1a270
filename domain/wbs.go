package domain

import "time"

// WBSStatus is the work-breakdown-structure view's native status.
type WBSStatus string

const (
	WBSNotStarted WBSStatus = "not_started"
	WBSInProgress WBSStatus = "in_progress"
	WBSWorking    WBSStatus = "working"
	WBSCompleted  WBSStatus = "completed"
)

// WBSRecord is the work-breakdown-structure view's native task shape.
// ParentID is the ground truth for the tree; any children listing is
// derived from it.
type WBSRecord struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Status          WBSStatus `json:"status"`
	Progress        int       `json:"progress"`
	ParentID        string    `json:"parentId,omitempty"`
	Order           int       `json:"order"`
	HierarchyNumber string    `json:"hierarchyNumber,omitempty"`
	EstimatedHours  float64   `json:"estimatedHours,omitempty"`
	ActualHours     float64   `json:"actualHours,omitempty"`
	Assignee        string    `json:"assignee,omitempty"`
	StartDate       Date      `json:"startDate,omitempty"`
	EndDate         Date      `json:"endDate,omitempty"`
	DueDate         Date      `json:"dueDate,omitempty"`
	WorkDays        int       `json:"workDays,omitempty"`
	Remarks         string    `json:"remarks,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
