package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"unitask/adapter"
	"unitask/domain"
)

// Memory is an in-process implementation of every repository, used in
// tests and when no storage connection string is configured.
type Memory struct {
	Todo    *MemoryTodos
	WBS     *MemoryWBS
	Kanban  *MemoryKanban
	Gantt   *MemoryGantt
	Unified *MemoryUnified
	Links   *MemoryLinks
}

// NewMemory builds an empty in-memory store with one default kanban
// lane so transfers to the board work out of the box.
func NewMemory() *Memory {
	return &Memory{
		Todo:   &MemoryTodos{recs: map[string]domain.TodoRecord{}},
		WBS:    &MemoryWBS{recs: map[string]domain.WBSRecord{}},
		Kanban: &MemoryKanban{cards: map[string]domain.KanbanCard{}, lanes: []domain.KanbanLane{{ID: "lane-todo", Title: "To Do", Position: 0}}},
		Gantt:  &MemoryGantt{recs: map[string]domain.GanttTask{}},
		Unified: &MemoryUnified{
			tasks: map[string]domain.UnifiedTask{},
		},
		Links: &MemoryLinks{groups: map[string]domain.LinkGroup{}},
	}
}

// MemoryTodos holds todo records.
type MemoryTodos struct {
	mu   sync.Mutex
	recs map[string]domain.TodoRecord
}

func (m *MemoryTodos) FindByID(ctx context.Context, id string) (domain.TodoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.TodoRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryTodos) Create(ctx context.Context, rec domain.TodoRecord) (domain.TodoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return rec, nil
}

func (m *MemoryTodos) Update(ctx context.Context, rec domain.TodoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return ErrNotFound
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryTodos) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *MemoryTodos) FindAll(ctx context.Context) ([]domain.TodoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TodoRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryWBS holds work-breakdown-structure records.
type MemoryWBS struct {
	mu   sync.Mutex
	recs map[string]domain.WBSRecord
}

func (m *MemoryWBS) FindByID(ctx context.Context, id string) (domain.WBSRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.WBSRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryWBS) Create(ctx context.Context, rec domain.WBSRecord) (domain.WBSRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return rec, nil
}

func (m *MemoryWBS) Update(ctx context.Context, rec domain.WBSRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return ErrNotFound
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryWBS) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *MemoryWBS) FindAll(ctx context.Context) ([]domain.WBSRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.WBSRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryKanban holds cards and lanes.
type MemoryKanban struct {
	mu    sync.Mutex
	cards map[string]domain.KanbanCard
	lanes []domain.KanbanLane
}

func (m *MemoryKanban) FindByID(ctx context.Context, id string) (domain.KanbanCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[id]
	if !ok {
		return domain.KanbanCard{}, ErrNotFound
	}
	return card, nil
}

func (m *MemoryKanban) Create(ctx context.Context, card domain.KanbanCard) (domain.KanbanCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[card.ID] = card
	return card, nil
}

func (m *MemoryKanban) Update(ctx context.Context, card domain.KanbanCard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[card.ID]; !ok {
		return ErrNotFound
	}
	m.cards[card.ID] = card
	return nil
}

func (m *MemoryKanban) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[id]; !ok {
		return ErrNotFound
	}
	delete(m.cards, id)
	return nil
}

func (m *MemoryKanban) FindAll(ctx context.Context) ([]domain.KanbanCard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.KanbanCard, 0, len(m.cards))
	for _, card := range m.cards {
		out = append(out, card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryKanban) SaveLane(ctx context.Context, lane domain.KanbanLane) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.lanes {
		if l.ID == lane.ID {
			m.lanes[i] = lane
			return nil
		}
	}
	m.lanes = append(m.lanes, lane)
	return nil
}

func (m *MemoryKanban) FindDefaultLane(ctx context.Context) (domain.KanbanLane, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lanes) == 0 {
		return domain.KanbanLane{}, ErrNotFound
	}
	best := m.lanes[0]
	for _, lane := range m.lanes[1:] {
		if lane.Position < best.Position {
			best = lane
		}
	}
	return best, nil
}

// MemoryGantt holds gantt tasks.
type MemoryGantt struct {
	mu   sync.Mutex
	recs map[string]domain.GanttTask
}

func (m *MemoryGantt) FindByID(ctx context.Context, id string) (domain.GanttTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.GanttTask{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryGantt) Create(ctx context.Context, rec domain.GanttTask) (domain.GanttTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return rec, nil
}

func (m *MemoryGantt) Update(ctx context.Context, rec domain.GanttTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.ID]; !ok {
		return ErrNotFound
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryGantt) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *MemoryGantt) FindAll(ctx context.Context) ([]domain.GanttTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GanttTask, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MemoryUnified holds canonical tasks.
type MemoryUnified struct {
	mu    sync.Mutex
	tasks map[string]domain.UnifiedTask
}

func (m *MemoryUnified) FindAll(ctx context.Context) ([]domain.UnifiedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.UnifiedTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryUnified) Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == "" || strings.HasPrefix(task.ID, "temp-") {
		task.ID = adapter.NewUnifiedID()
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *MemoryUnified) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.UnifiedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return domain.UnifiedTask{}, ErrNotFound
	}
	patch.Apply(&task)
	task.UpdatedAt = time.Now().UTC()
	m.tasks[id] = task
	return task, nil
}

// Put overwrites the stored task wholesale.
func (m *MemoryUnified) Put(ctx context.Context, task domain.UnifiedTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *MemoryUnified) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *MemoryUnified) FindByView(ctx context.Context, view domain.ViewType) ([]domain.UnifiedTask, error) {
	all, _ := m.FindAll(ctx)
	var out []domain.UnifiedTask
	for _, task := range all {
		if task.HasView(view) {
			out = append(out, task)
		}
	}
	return out, nil
}

func (m *MemoryUnified) Search(ctx context.Context, query string) ([]domain.UnifiedTask, error) {
	all, _ := m.FindAll(ctx)
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

// MemoryUnifiedWriter adapts MemoryUnified to the transfer service's
// full-record write contract.
type MemoryUnifiedWriter struct{ Store *MemoryUnified }

func (w MemoryUnifiedWriter) Create(ctx context.Context, task domain.UnifiedTask) (domain.UnifiedTask, error) {
	return w.Store.Create(ctx, task)
}

func (w MemoryUnifiedWriter) Update(ctx context.Context, task domain.UnifiedTask) error {
	return w.Store.Put(ctx, task)
}

func (w MemoryUnifiedWriter) FindByView(ctx context.Context, view domain.ViewType) ([]domain.UnifiedTask, error) {
	return w.Store.FindByView(ctx, view)
}

func (w MemoryUnifiedWriter) Search(ctx context.Context, query string) ([]domain.UnifiedTask, error) {
	return w.Store.Search(ctx, query)
}

// MemoryLinks holds link groups keyed by unified id.
type MemoryLinks struct {
	mu     sync.Mutex
	groups map[string]domain.LinkGroup
}

func (m *MemoryLinks) FindByUnifiedID(ctx context.Context, unifiedID string) (domain.LinkGroup, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[unifiedID]
	return group, ok, nil
}

func (m *MemoryLinks) FindByViewAndOriginalID(ctx context.Context, view domain.ViewType, originalID string) (domain.LinkGroup, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, group := range m.groups {
		if _, hit := group.Find(view, originalID); hit {
			return group, true, nil
		}
	}
	return domain.LinkGroup{}, false, nil
}

func (m *MemoryLinks) CreateLinkGroup(ctx context.Context, group domain.LinkGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, link := range group.Links {
		for _, existing := range m.groups {
			if _, hit := existing.Find(link.ViewType, link.OriginalID); hit {
				return domain.ErrAlreadyLinked
			}
		}
	}
	m.groups[group.UnifiedID] = group
	return nil
}

func (m *MemoryLinks) UpdateSyncStatus(ctx context.Context, unifiedID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[unifiedID]
	if !ok {
		return ErrNotFound
	}
	for i := range group.Links {
		group.Links[i].SyncEnabled = enabled
	}
	m.groups[unifiedID] = group
	return nil
}

func (m *MemoryLinks) Touch(ctx context.Context, unifiedID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[unifiedID]
	if !ok {
		return ErrNotFound
	}
	for i := range group.Links {
		group.Links[i].LastSyncedAt = at
	}
	m.groups[unifiedID] = group
	return nil
}
