// Package transfer moves tasks between views and keeps linked records'
// shared fields consistent afterward.
package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"unitask/adapter"
	"unitask/domain"
)

// TodoRepository persists todo records.
type TodoRepository interface {
	FindByID(ctx context.Context, id string) (domain.TodoRecord, error)
	Create(ctx context.Context, rec domain.TodoRecord) (domain.TodoRecord, error)
	Update(ctx context.Context, rec domain.TodoRecord) error
}

// WBSRepository persists work-breakdown-structure records.
type WBSRepository interface {
	FindByID(ctx context.Context, id string) (domain.WBSRecord, error)
	Create(ctx context.Context, rec domain.WBSRecord) (domain.WBSRecord, error)
	Update(ctx context.Context, rec domain.WBSRecord) error
}

// KanbanRepository persists kanban cards and resolves the default lane
// for newly transferred cards.
type KanbanRepository interface {
	FindByID(ctx context.Context, id string) (domain.KanbanCard, error)
	Create(ctx context.Context, card domain.KanbanCard) (domain.KanbanCard, error)
	Update(ctx context.Context, card domain.KanbanCard) error
	FindDefaultLane(ctx context.Context) (domain.KanbanLane, error)
}

// GanttRepository persists gantt tasks.
type GanttRepository interface {
	FindByID(ctx context.Context, id string) (domain.GanttTask, error)
	Create(ctx context.Context, rec domain.GanttTask) (domain.GanttTask, error)
	Update(ctx context.Context, rec domain.GanttTask) error
}

// UnifiedRepository persists canonical tasks.
type UnifiedRepository interface {
	Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error)
	Update(ctx context.Context, task domain.UnifiedTask) error
	FindByView(ctx context.Context, view domain.ViewType) ([]domain.UnifiedTask, error)
	Search(ctx context.Context, query string) ([]domain.UnifiedTask, error)
}

// LinkRepository persists link groups. (ViewType, OriginalID) uniqueness
// across groups is the one cross-cutting invariant it enforces.
type LinkRepository interface {
	FindByViewAndOriginalID(ctx context.Context, view domain.ViewType, originalID string) (domain.LinkGroup, bool, error)
	CreateLinkGroup(ctx context.Context, group domain.LinkGroup) error
	FindByUnifiedID(ctx context.Context, unifiedID string) (domain.LinkGroup, bool, error)
	UpdateSyncStatus(ctx context.Context, unifiedID string, enabled bool) error
	Touch(ctx context.Context, unifiedID string, at time.Time) error
}

// Service orchestrates cross-view transfer and synchronization.
type Service struct {
	todos   TodoRepository
	wbs     WBSRepository
	kanban  KanbanRepository
	gantt   GanttRepository
	unified UnifiedRepository
	links   LinkRepository
	logger  *log.Logger
}

// New wires a transfer service over the per-view repositories.
func New(todos TodoRepository, wbs WBSRepository, kanban KanbanRepository, gantt GanttRepository, unified UnifiedRepository, links LinkRepository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{todos: todos, wbs: wbs, kanban: kanban, gantt: gantt, unified: unified, links: links, logger: logger}
}

// Request asks for one or more tasks to be materialized in additional
// views.
type Request struct {
	SourceView  domain.ViewType   `json:"sourceView"`
	TaskIDs     []string          `json:"taskIds"`
	TargetViews []domain.ViewType `json:"targetViews"`
	SyncEnabled bool              `json:"syncEnabled"`
}

// Transferred records one successfully created target record.
type Transferred struct {
	TaskID     string          `json:"taskId"`
	TargetView domain.ViewType `json:"targetView"`
	NewID      string          `json:"newId"`
}

// Result accumulates per-task outcomes. Success is false as soon as any
// error occurred, but completed transfers stay recorded.
type Result struct {
	Success     bool          `json:"success"`
	Transferred []Transferred `json:"transferred"`
	Errors      []string      `json:"errors,omitempty"`
}

// TransferTasks converts each source record to the canonical form and
// materializes it in every target view. Failures are accumulated per
// task; sibling tasks keep transferring.
func (s *Service) TransferTasks(ctx context.Context, req Request) Result {
	result := Result{Transferred: []Transferred{}}

	for _, taskID := range req.TaskIDs {
		if _, exists, err := s.links.FindByViewAndOriginalID(ctx, req.SourceView, taskID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %s: link lookup failed: %v", taskID, err))
			continue
		} else if exists {
			result.Errors = append(result.Errors, fmt.Sprintf("task %s: already linked in %s view", taskID, req.SourceView))
			continue
		}

		unified, err := s.sourceToUnified(ctx, req.SourceView, taskID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %s: %v", taskID, err))
			continue
		}

		group := domain.LinkGroup{UnifiedID: unified.ID}
		group.Links = append(group.Links, domain.TaskLink{
			ID:          uuid.NewString(),
			UnifiedID:   unified.ID,
			ViewType:    req.SourceView,
			OriginalID:  taskID,
			SyncEnabled: req.SyncEnabled,
			CreatedAt:   time.Now().UTC(),
		})

		for _, target := range req.TargetViews {
			if target == req.SourceView {
				continue
			}
			newID, err := s.createInView(ctx, target, &unified)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("task %s -> %s: %v", taskID, target, err))
				continue
			}
			result.Transferred = append(result.Transferred, Transferred{TaskID: taskID, TargetView: target, NewID: newID})
			group.Links = append(group.Links, domain.TaskLink{
				ID:          uuid.NewString(),
				UnifiedID:   unified.ID,
				ViewType:    target,
				OriginalID:  newID,
				SyncEnabled: req.SyncEnabled,
				CreatedAt:   time.Now().UTC(),
			})
		}

		if len(group.Links) < 2 {
			continue
		}
		if _, err := s.unified.Create(ctx, unified); err != nil {
			s.logger.WithError(err).WithField("unified_id", unified.ID).Warn("unified task persist failed")
		}
		if err := s.links.CreateLinkGroup(ctx, group); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("task %s: link group create failed: %v", taskID, err))
		}
	}

	result.Success = len(result.Errors) == 0
	return result
}

func (s *Service) sourceToUnified(ctx context.Context, view domain.ViewType, taskID string) (domain.UnifiedTask, error) {
	switch view {
	case domain.ViewTodo:
		rec, err := s.todos.FindByID(ctx, taskID)
		if err != nil {
			return domain.UnifiedTask{}, fmt.Errorf("record not found: %w", err)
		}
		return adapter.Todo{}.ToUnified(rec)
	case domain.ViewWBS:
		rec, err := s.wbs.FindByID(ctx, taskID)
		if err != nil {
			return domain.UnifiedTask{}, fmt.Errorf("record not found: %w", err)
		}
		return adapter.WBS{}.ToUnified(rec)
	case domain.ViewKanban:
		card, err := s.kanban.FindByID(ctx, taskID)
		if err != nil {
			return domain.UnifiedTask{}, fmt.Errorf("record not found: %w", err)
		}
		return adapter.Kanban{}.ToUnified(card)
	case domain.ViewGantt:
		rec, err := s.gantt.FindByID(ctx, taskID)
		if err != nil {
			return domain.UnifiedTask{}, fmt.Errorf("record not found: %w", err)
		}
		return adapter.Gantt{}.ToUnified(rec)
	default:
		return domain.UnifiedTask{}, fmt.Errorf("unknown view %q", view)
	}
}

// createInView materializes the unified task in the target view and
// extends the task's views/metadata with the created record.
func (s *Service) createInView(ctx context.Context, view domain.ViewType, unified *domain.UnifiedTask) (string, error) {
	switch view {
	case domain.ViewTodo:
		rec, err := adapter.Todo{}.FromUnified(*unified)
		if err != nil {
			return "", err
		}
		created, err := s.todos.Create(ctx, rec)
		if err != nil {
			return "", err
		}
		unified.Views = append(unified.Views, domain.ViewTodo)
		unified.Metadata.Todo = adapter.Todo{}.Metadata(created)
		return created.ID, nil
	case domain.ViewWBS:
		rec, err := adapter.WBS{}.FromUnified(*unified)
		if err != nil {
			return "", err
		}
		created, err := s.wbs.Create(ctx, rec)
		if err != nil {
			return "", err
		}
		unified.Views = append(unified.Views, domain.ViewWBS)
		unified.Metadata.WBS = adapter.WBS{}.Metadata(created)
		return created.ID, nil
	case domain.ViewKanban:
		card, err := adapter.Kanban{}.FromUnified(*unified)
		if err != nil {
			return "", err
		}
		if card.LaneID == "" {
			lane, err := s.kanban.FindDefaultLane(ctx)
			if err != nil {
				return "", fmt.Errorf("no default lane: %w", err)
			}
			card.LaneID = lane.ID
		}
		created, err := s.kanban.Create(ctx, card)
		if err != nil {
			return "", err
		}
		unified.Views = append(unified.Views, domain.ViewKanban)
		unified.Metadata.Kanban = adapter.Kanban{}.Metadata(created)
		return created.ID, nil
	case domain.ViewGantt:
		rec, err := adapter.Gantt{}.FromUnified(*unified)
		if err != nil {
			return "", err
		}
		created, err := s.gantt.Create(ctx, rec)
		if err != nil {
			return "", err
		}
		unified.Views = append(unified.Views, domain.ViewGantt)
		unified.Metadata.Gantt = adapter.Gantt{}.Metadata(created)
		return created.ID, nil
	default:
		return "", fmt.Errorf("unknown view %q", view)
	}
}

// ToggleSync flips the sync flag for the whole link group containing the
// given record. A missing link is a local no-op.
func (s *Service) ToggleSync(ctx context.Context, view domain.ViewType, taskID string, enabled bool) error {
	group, ok, err := s.links.FindByViewAndOriginalID(ctx, view, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.links.UpdateSyncStatus(ctx, group.UnifiedID, enabled)
}

// LinkedTask is a sibling record in a link group, annotated with its
// current title for display.
type LinkedTask struct {
	Link  domain.TaskLink `json:"link"`
	Title string          `json:"title,omitempty"`
}

// GetLinkedTasks returns every sibling record linked to the given one.
// A missing link yields an empty result, not an error.
func (s *Service) GetLinkedTasks(ctx context.Context, view domain.ViewType, taskID string) ([]LinkedTask, error) {
	group, ok, err := s.links.FindByViewAndOriginalID(ctx, view, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	siblings := group.Siblings(view, taskID)
	out := make([]LinkedTask, 0, len(siblings))
	for _, link := range siblings {
		lt := LinkedTask{Link: link}
		if title, err := s.titleOf(ctx, link.ViewType, link.OriginalID); err == nil {
			lt.Title = title
		}
		out = append(out, lt)
	}
	return out, nil
}

func (s *Service) titleOf(ctx context.Context, view domain.ViewType, id string) (string, error) {
	switch view {
	case domain.ViewTodo:
		rec, err := s.todos.FindByID(ctx, id)
		return rec.Title, err
	case domain.ViewWBS:
		rec, err := s.wbs.FindByID(ctx, id)
		return rec.Title, err
	case domain.ViewKanban:
		card, err := s.kanban.FindByID(ctx, id)
		return card.Title, err
	case domain.ViewGantt:
		rec, err := s.gantt.FindByID(ctx, id)
		return rec.Title, err
	default:
		return "", fmt.Errorf("unknown view %q", view)
	}
}
