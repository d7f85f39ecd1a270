// Package store holds the canonical unified task list with optimistic
// mutation semantics: every create, update and delete is applied to the
// in-memory list first and rolled back verbatim if persistence rejects
// it.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"unitask/domain"
)

// TempIDPrefix marks optimistic records awaiting server confirmation.
const TempIDPrefix = "temp-"

// Repository persists unified tasks.
type Repository interface {
	FindAll(ctx context.Context) ([]domain.UnifiedTask, error)
	Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.UnifiedTask, error)
	Delete(ctx context.Context, id string) error
}

// Store is the single owner of the unified task list for one browsing
// context. It is constructed explicitly and injected into consumers so
// tests get a fresh instance each time.
type Store struct {
	repo   Repository
	logger *log.Logger

	mu       sync.Mutex
	tasks    []domain.UnifiedTask
	lastErr  string
	onChange func([]domain.UnifiedTask)
}

// New creates a store backed by the given repository.
func New(repo Repository, logger *log.Logger) *Store {
	if repo == nil {
		panic("store.New: repository is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{repo: repo, logger: logger}
}

// OnChange registers a callback invoked after every visible list change.
func (s *Store) OnChange(fn func([]domain.UnifiedTask)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load replaces the in-memory list with the repository contents.
func (s *Store) Load(ctx context.Context) error {
	tasks, err := s.repo.FindAll(ctx)
	if err != nil {
		s.setErr(err.Error())
		return err
	}
	s.mu.Lock()
	s.tasks = tasks
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return nil
}

// Tasks returns a snapshot of the visible list.
func (s *Store) Tasks() []domain.UnifiedTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UnifiedTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Err returns the last surfaced failure message, empty when healthy.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Create inserts an optimistic temp record, persists the task, then
// swaps the temp record for the confirmed one. On failure the temp
// record is removed so no residue stays visible.
func (s *Store) Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error) {
	temp := task
	temp.ID = TempIDPrefix + uuid.NewString()

	s.mu.Lock()
	s.tasks = append(s.tasks, temp)
	s.mu.Unlock()
	s.notify()

	created, err := s.repo.Create(ctx, task)
	s.mu.Lock()
	idx := s.indexOf(temp.ID)
	if err != nil {
		if idx >= 0 {
			s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
		}
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.notify()
		s.logger.WithError(err).Error("task create failed")
		return domain.UnifiedTask{}, err
	}
	if idx >= 0 {
		s.tasks[idx] = created
	} else {
		s.tasks = append(s.tasks, created)
	}
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return created, nil
}

// Update applies the patch optimistically and persists it. On failure
// the exact pre-patch snapshot is restored.
func (s *Store) Update(ctx context.Context, id string, patch domain.TaskPatch) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	snapshot := s.tasks[idx]
	patch.Apply(&s.tasks[idx])
	s.mu.Unlock()
	s.notify()

	updated, err := s.repo.Update(ctx, id, patch)
	s.mu.Lock()
	idx = s.indexOf(id)
	if err != nil {
		if idx >= 0 {
			s.tasks[idx] = snapshot
		}
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.notify()
		s.logger.WithError(err).WithField("task_id", id).Error("task update failed")
		return err
	}
	if idx >= 0 {
		s.tasks[idx] = updated
	}
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return nil
}

// Delete removes the record optimistically. On failure the full prior
// list is restored so concurrent ordering survives.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	prior := make([]domain.UnifiedTask, len(s.tasks))
	copy(prior, s.tasks)
	s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
	s.mu.Unlock()
	s.notify()

	if err := s.repo.Delete(ctx, id); err != nil {
		s.mu.Lock()
		s.tasks = prior
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.notify()
		s.logger.WithError(err).WithField("task_id", id).Error("task delete failed")
		return err
	}
	s.setErr("")
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) setErr(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	var snapshot []domain.UnifiedTask
	if fn != nil {
		snapshot = make([]domain.UnifiedTask, len(s.tasks))
		copy(snapshot, s.tasks)
	}
	s.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}
