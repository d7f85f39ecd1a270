package adapter

import (
	"time"

	"github.com/google/uuid"

	"unitask/domain"
)

// Todo converts between todo records and unified tasks.
type Todo struct{}

func (Todo) View() domain.ViewType { return domain.ViewTodo }

// ToUnified validates the record and lifts it into canonical form.
func (Todo) ToUnified(rec domain.TodoRecord) (domain.UnifiedTask, error) {
	if rec.Title == "" {
		return domain.UnifiedTask{}, invalid(domain.ViewTodo, "title", "must not be empty")
	}

	t := baseUnified(rec.Title, rec.Description)
	t.Status = domain.StatusTodo
	t.Progress = 0
	if rec.Completed {
		t.Status = domain.StatusDone
		t.Progress = 100
	}
	t.Priority = defaultPriority(rec.Priority)
	t.DueDate = rec.DueDate
	t.Views = []domain.ViewType{domain.ViewTodo}
	t.Metadata.Todo = Todo{}.Metadata(rec)
	return t, nil
}

// FromUnified reconstructs a todo record. A stored originalId means an
// update of the existing record; otherwise a fresh id is issued.
func (Todo) FromUnified(t domain.UnifiedTask) (domain.TodoRecord, error) {
	rec := domain.TodoRecord{
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Status == domain.StatusDone,
		Priority:    defaultPriority(t.Priority),
		DueDate:     t.DueDate,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if meta := t.Metadata.Todo; meta != nil && meta.OriginalID != "" {
		rec.ID = meta.OriginalID
	} else {
		rec.ID = uuid.NewString()
	}
	return rec, nil
}

// CanConvert reports whether the task participates in the todo view.
func (Todo) CanConvert(t domain.UnifiedTask) bool {
	return t.HasView(domain.ViewTodo)
}

// Metadata extracts the todo-only fragment.
func (Todo) Metadata(rec domain.TodoRecord) *domain.TodoMeta {
	return &domain.TodoMeta{OriginalID: rec.ID, Completed: rec.Completed}
}
