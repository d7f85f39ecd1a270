package transfer

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"unitask/adapter"
	"unitask/domain"
)

// syncFields is the neutral payload carried from a source record to its
// linked siblings: title and description always, completion state
// expressed as progress plus status.
type syncFields struct {
	title       string
	description string
	progress    int
	status      domain.Status
}

// SyncTask propagates the source record's shared fields to every linked
// sibling whose link has sync enabled, then stamps LastSyncedAt on the
// whole group. A missing link group is a no-op.
func (s *Service) SyncTask(ctx context.Context, view domain.ViewType, taskID string) error {
	group, ok, err := s.links.FindByViewAndOriginalID(ctx, view, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	fields, err := s.readSyncFields(ctx, view, taskID)
	if err != nil {
		return err
	}

	for _, link := range group.Siblings(view, taskID) {
		if !link.SyncEnabled {
			continue
		}
		if err := s.applySyncFields(ctx, link.ViewType, link.OriginalID, fields); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"source_view": view,
				"target_view": link.ViewType,
				"target_id":   link.OriginalID,
			}).Error("sync propagation failed")
			return err
		}
	}

	// LastSyncedAt moves even when nothing changed; the sync ran.
	return s.links.Touch(ctx, group.UnifiedID, time.Now().UTC())
}

// readSyncFields lifts the source record into the neutral payload using
// the fixed per-view completion mapping.
func (s *Service) readSyncFields(ctx context.Context, view domain.ViewType, taskID string) (syncFields, error) {
	switch view {
	case domain.ViewTodo:
		rec, err := s.todos.FindByID(ctx, taskID)
		if err != nil {
			return syncFields{}, fmt.Errorf("record not found: %w", err)
		}
		f := syncFields{title: rec.Title, description: rec.Description, status: domain.StatusTodo}
		if rec.Completed {
			f.progress = 100
			f.status = domain.StatusDone
		}
		return f, nil
	case domain.ViewWBS:
		rec, err := s.wbs.FindByID(ctx, taskID)
		if err != nil {
			return syncFields{}, fmt.Errorf("record not found: %w", err)
		}
		return syncFields{
			title:       rec.Title,
			description: rec.Description,
			progress:    rec.Progress,
			status:      statusForProgress(rec.Progress),
		}, nil
	case domain.ViewKanban:
		card, err := s.kanban.FindByID(ctx, taskID)
		if err != nil {
			return syncFields{}, fmt.Errorf("record not found: %w", err)
		}
		f := syncFields{title: card.Title, description: card.Description, status: adapter.LaneStatus(card.LaneID)}
		if f.status == domain.StatusDone {
			f.progress = 100
		}
		return f, nil
	case domain.ViewGantt:
		rec, err := s.gantt.FindByID(ctx, taskID)
		if err != nil {
			return syncFields{}, fmt.Errorf("record not found: %w", err)
		}
		return syncFields{
			title:       rec.Title,
			description: rec.Description,
			progress:    rec.Progress,
			status:      statusForProgress(rec.Progress),
		}, nil
	default:
		return syncFields{}, fmt.Errorf("unknown view %q", view)
	}
}

// applySyncFields writes the payload into the target view's record shape.
func (s *Service) applySyncFields(ctx context.Context, view domain.ViewType, taskID string, f syncFields) error {
	switch view {
	case domain.ViewTodo:
		rec, err := s.todos.FindByID(ctx, taskID)
		if err != nil {
			return err
		}
		rec.Title = f.title
		rec.Description = f.description
		rec.Completed = f.progress == 100 || f.status == domain.StatusDone
		rec.UpdatedAt = time.Now().UTC()
		return s.todos.Update(ctx, rec)
	case domain.ViewWBS:
		rec, err := s.wbs.FindByID(ctx, taskID)
		if err != nil {
			return err
		}
		rec.Title = f.title
		rec.Description = f.description
		rec.Progress = f.progress
		rec.Status = wbsStatusForProgress(f.progress)
		rec.UpdatedAt = time.Now().UTC()
		return s.wbs.Update(ctx, rec)
	case domain.ViewKanban:
		// Cards carry no native status or progress; only the shared text
		// fields propagate. Lane placement stays where the user put it.
		card, err := s.kanban.FindByID(ctx, taskID)
		if err != nil {
			return err
		}
		card.Title = f.title
		card.Description = f.description
		card.UpdatedAt = time.Now().UTC()
		return s.kanban.Update(ctx, card)
	case domain.ViewGantt:
		rec, err := s.gantt.FindByID(ctx, taskID)
		if err != nil {
			return err
		}
		rec.Title = f.title
		rec.Description = f.description
		rec.Progress = f.progress
		rec.Status = statusForProgress(f.progress)
		rec.UpdatedAt = time.Now().UTC()
		return s.gantt.Update(ctx, rec)
	default:
		return fmt.Errorf("unknown view %q", view)
	}
}

func statusForProgress(progress int) domain.Status {
	switch {
	case progress >= 100:
		return domain.StatusDone
	case progress > 0:
		return domain.StatusInProgress
	default:
		return domain.StatusTodo
	}
}

func wbsStatusForProgress(progress int) domain.WBSStatus {
	switch {
	case progress >= 100:
		return domain.WBSCompleted
	case progress > 0:
		return domain.WBSInProgress
	default:
		return domain.WBSNotStarted
	}
}
