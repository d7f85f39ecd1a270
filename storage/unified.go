package storage

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"unitask/adapter"
	"unitask/domain"
)

// UnifiedTable persists canonical tasks.
type UnifiedTable struct{ t tableClient }

func (s *UnifiedTable) FindAll(ctx context.Context) ([]domain.UnifiedTask, error) {
	var out []domain.UnifiedTask
	err := s.t.each(ctx, func(payload []byte) error {
		var task domain.UnifiedTask
		if err := sonic.Unmarshal(payload, &task); err != nil {
			return err
		}
		out = append(out, task)
		return nil
	})
	return out, err
}

func (s *UnifiedTable) Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error) {
	if task.ID == "" || strings.HasPrefix(task.ID, "temp-") {
		task.ID = adapter.NewUnifiedID()
	}
	if err := s.t.upsert(ctx, task.ID, task); err != nil {
		return domain.UnifiedTask{}, err
	}
	s.t.announce(ctx, domain.TaskCreatedEvent, "", task.ID, task)
	return task, nil
}

// Update applies a partial patch to the stored task.
func (s *UnifiedTable) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.UnifiedTask, error) {
	var task domain.UnifiedTask
	if err := s.t.get(ctx, id, &task); err != nil {
		return domain.UnifiedTask{}, err
	}
	patch.Apply(&task)
	task.UpdatedAt = time.Now().UTC()
	if err := s.t.upsert(ctx, id, task); err != nil {
		return domain.UnifiedTask{}, err
	}
	s.t.announce(ctx, domain.TaskUpdatedEvent, "", id, task)
	return task, nil
}

// Put overwrites the stored task wholesale.
func (s *UnifiedTable) Put(ctx context.Context, task domain.UnifiedTask) error {
	if err := s.t.upsert(ctx, task.ID, task); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskUpdatedEvent, "", task.ID, task)
	return nil
}

func (s *UnifiedTable) Delete(ctx context.Context, id string) error {
	if err := s.t.remove(ctx, id); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskDeletedEvent, "", id, nil)
	return nil
}

// FindByView returns every task participating in the given view.
func (s *UnifiedTable) FindByView(ctx context.Context, view domain.ViewType) ([]domain.UnifiedTask, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.UnifiedTask
	for _, task := range all {
		if task.HasView(view) {
			out = append(out, task)
		}
	}
	return out, nil
}

// Search matches the query case-insensitively against title and
// description.
func (s *UnifiedTable) Search(ctx context.Context, query string) ([]domain.UnifiedTask, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var out []domain.UnifiedTask
	for _, task := range all {
		if strings.Contains(strings.ToLower(task.Title), q) ||
			strings.Contains(strings.ToLower(task.Description), q) {
			out = append(out, task)
		}
	}
	return out, nil
}

// UnifiedWriter adapts the unified table to the transfer service's
// full-record write contract.
type UnifiedWriter struct{ Table *UnifiedTable }

func (w UnifiedWriter) Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error) {
	return w.Table.Create(ctx, task)
}

func (w UnifiedWriter) Update(ctx context.Context, task domain.UnifiedTask) error {
	return w.Table.Put(ctx, task)
}

func (w UnifiedWriter) FindByView(ctx context.Context, view domain.ViewType) ([]domain.UnifiedTask, error) {
	return w.Table.FindByView(ctx, view)
}

func (w UnifiedWriter) Search(ctx context.Context, query string) ([]domain.UnifiedTask, error) {
	return w.Table.Search(ctx, query)
}

// LinkTable persists link groups, one entity per group keyed by
// unified id.
type LinkTable struct{ t tableClient }

func (s *LinkTable) FindByUnifiedID(ctx context.Context, unifiedID string) (domain.LinkGroup, bool, error) {
	var group domain.LinkGroup
	err := s.t.get(ctx, unifiedID, &group)
	if err == ErrNotFound {
		return domain.LinkGroup{}, false, nil
	}
	if err != nil {
		return domain.LinkGroup{}, false, err
	}
	return group, true, nil
}

func (s *LinkTable) FindByViewAndOriginalID(ctx context.Context, view domain.ViewType, originalID string) (domain.LinkGroup, bool, error) {
	var found domain.LinkGroup
	ok := false
	err := s.t.each(ctx, func(payload []byte) error {
		if ok {
			return nil
		}
		var group domain.LinkGroup
		if err := sonic.Unmarshal(payload, &group); err != nil {
			return err
		}
		if _, hit := group.Find(view, originalID); hit {
			found = group
			ok = true
		}
		return nil
	})
	if err != nil {
		return domain.LinkGroup{}, false, err
	}
	return found, ok, nil
}

// CreateLinkGroup stores a new group. Each (view, original id) pair may
// belong to at most one group.
func (s *LinkTable) CreateLinkGroup(ctx context.Context, group domain.LinkGroup) error {
	for _, link := range group.Links {
		if _, exists, err := s.FindByViewAndOriginalID(ctx, link.ViewType, link.OriginalID); err != nil {
			return err
		} else if exists {
			return domain.ErrAlreadyLinked
		}
	}
	if err := s.t.upsert(ctx, group.UnifiedID, group); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskTransferredEvent, "", group.UnifiedID, group)
	return nil
}

// UpdateSyncStatus flips the sync flag on every link in the group.
func (s *LinkTable) UpdateSyncStatus(ctx context.Context, unifiedID string, enabled bool) error {
	group, ok, err := s.FindByUnifiedID(ctx, unifiedID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	for i := range group.Links {
		group.Links[i].SyncEnabled = enabled
	}
	return s.t.upsert(ctx, unifiedID, group)
}

// Touch stamps LastSyncedAt on every link in the group.
func (s *LinkTable) Touch(ctx context.Context, unifiedID string, at time.Time) error {
	group, ok, err := s.FindByUnifiedID(ctx, unifiedID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	for i := range group.Links {
		group.Links[i].LastSyncedAt = at
	}
	if err := s.t.upsert(ctx, unifiedID, group); err != nil {
		return err
	}
	s.t.announce(ctx, domain.TaskSyncedEvent, "", unifiedID, nil)
	return nil
}
