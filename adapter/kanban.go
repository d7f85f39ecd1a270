package adapter

import (
	"time"

	"github.com/google/uuid"

	"unitask/domain"
)

// Kanban converts between kanban cards and unified tasks. Status and
// priority have no native card fields; they are inferred from the lane
// id and label names.
type Kanban struct{}

func (Kanban) View() domain.ViewType { return domain.ViewKanban }

// ToUnified validates the card and lifts it into canonical form.
func (Kanban) ToUnified(card domain.KanbanCard) (domain.UnifiedTask, error) {
	if card.Title == "" {
		return domain.UnifiedTask{}, invalid(domain.ViewKanban, "title", "must not be empty")
	}
	if card.LaneID == "" {
		return domain.UnifiedTask{}, invalid(domain.ViewKanban, "laneId", "must not be empty")
	}

	t := baseUnified(card.Title, card.Description)
	t.Status = LaneStatus(card.LaneID)
	t.Priority = labelPriority(card.Labels)
	if t.Status == domain.StatusDone {
		t.Progress = 100
	}
	t.AssigneeID = card.Assignee
	t.DueDate = card.DueDate
	t.Views = []domain.ViewType{domain.ViewKanban}
	t.Metadata.Kanban = Kanban{}.Metadata(card)
	return t, nil
}

// FromUnified reconstructs a card. The lane comes from the stored
// fragment; when absent the caller resolves a default lane before
// persisting.
func (Kanban) FromUnified(t domain.UnifiedTask) (domain.KanbanCard, error) {
	card := domain.KanbanCard{
		Title:       t.Title,
		Description: t.Description,
		Assignee:    t.AssigneeID,
		DueDate:     t.DueDate,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if meta := t.Metadata.Kanban; meta != nil {
		card.LaneID = meta.LaneID
		card.Position = meta.Position
		card.Labels = meta.Labels
		if meta.Assignee != "" {
			card.Assignee = meta.Assignee
		}
		if meta.OriginalID != "" {
			card.ID = meta.OriginalID
		}
	}
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	return card, nil
}

// CanConvert reports whether the task participates in the kanban view.
func (Kanban) CanConvert(t domain.UnifiedTask) bool {
	return t.HasView(domain.ViewKanban)
}

// Metadata extracts the kanban-only fragment.
func (Kanban) Metadata(card domain.KanbanCard) *domain.KanbanMeta {
	return &domain.KanbanMeta{
		OriginalID: card.ID,
		LaneID:     card.LaneID,
		Position:   card.Position,
		Labels:     card.Labels,
		Assignee:   card.Assignee,
	}
}
