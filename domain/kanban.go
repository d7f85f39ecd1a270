package domain

import "time"

// KanbanLabel is a colored tag attached to a card.
type KanbanLabel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// KanbanLane is a board column. WIPLimit of zero means unlimited.
type KanbanLane struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	WIPLimit int    `json:"wipLimit,omitempty"`
	Position int    `json:"position"`
}

// KanbanCard is the kanban view's native task shape.
type KanbanCard struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	LaneID      string        `json:"laneId"`
	Position    int           `json:"position"`
	Assignee    string        `json:"assignee,omitempty"`
	Labels      []KanbanLabel `json:"labels,omitempty"`
	DueDate     Date          `json:"dueDate,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
