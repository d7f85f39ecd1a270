// Package gantt implements the date math and dependency graph algorithms
// behind the gantt view: cycle detection, critical path computation,
// slack between critical tasks and drag/zoom geometry.
package gantt

import (
	"errors"
	"sort"

	"unitask/domain"
)

var (
	// ErrWouldCreateCycle rejects a dependency or reparent that would
	// make a task reachable from itself.
	ErrWouldCreateCycle = errors.New("dependency would create a cycle")
	// ErrUnknownTask rejects edges referencing tasks not in the project.
	ErrUnknownTask = errors.New("unknown task")
	// ErrDuplicateDependency rejects an edge that already exists.
	ErrDuplicateDependency = errors.New("dependency already exists")
)

func indexTasks(tasks []domain.GanttTask) map[string]int {
	byID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = i
	}
	return byID
}

// WouldCreateCycle reports whether adding the edge fromID -> toID would
// make toID reachable from itself, i.e. whether a chain
// toID -> ... -> fromID already exists. It walks predecessor edges from
// fromID with a visited set, so it terminates even if the input already
// contains a cycle.
func WouldCreateCycle(tasks []domain.GanttTask, fromID, toID string) bool {
	if fromID == toID {
		return true
	}
	byID := indexTasks(tasks)
	visited := make(map[string]bool, len(tasks))
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == toID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		i, ok := byID[id]
		if !ok {
			return false
		}
		for _, pred := range tasks[i].PredecessorIDs() {
			if walk(pred) {
				return true
			}
		}
		return false
	}
	return walk(fromID)
}

// AddDependency appends the dependency to its target task after checking
// that both endpoints exist, the edge is not a duplicate and no cycle
// results. The input slice is left untouched on rejection.
func AddDependency(tasks []domain.GanttTask, dep domain.Dependency) ([]domain.GanttTask, error) {
	byID := indexTasks(tasks)
	ti, ok := byID[dep.TargetTaskID]
	if !ok {
		return tasks, ErrUnknownTask
	}
	if _, ok := byID[dep.SourceTaskID]; !ok {
		return tasks, ErrUnknownTask
	}
	for _, existing := range tasks[ti].Dependencies {
		if existing.SourceTaskID == dep.SourceTaskID && existing.TargetTaskID == dep.TargetTaskID {
			return tasks, ErrDuplicateDependency
		}
	}
	if WouldCreateCycle(tasks, dep.SourceTaskID, dep.TargetTaskID) {
		return tasks, ErrWouldCreateCycle
	}

	out := make([]domain.GanttTask, len(tasks))
	copy(out, tasks)
	deps := make([]domain.Dependency, len(out[ti].Dependencies), len(out[ti].Dependencies)+1)
	copy(deps, out[ti].Dependencies)
	out[ti].Dependencies = append(deps, dep)
	return out, nil
}

// CanReparent reports whether taskID may be moved under newParentID
// without the task becoming its own ancestor. An empty newParentID
// (move to root) is always allowed.
func CanReparent(tasks []domain.GanttTask, taskID, newParentID string) bool {
	if newParentID == "" {
		return true
	}
	if taskID == newParentID {
		return false
	}
	byID := indexTasks(tasks)
	visited := make(map[string]bool, len(tasks))
	cur := newParentID
	for cur != "" {
		if cur == taskID {
			return false
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		i, ok := byID[cur]
		if !ok {
			break
		}
		cur = tasks[i].ParentID
	}
	return true
}

// CriticalPath is the longest duration chain of dependent tasks.
type CriticalPath struct {
	TaskIDs   []string
	TotalDays int
}

// Contains reports whether the task is on the path.
func (p CriticalPath) Contains(id string) bool {
	for _, t := range p.TaskIDs {
		if t == id {
			return true
		}
	}
	return false
}

// ComputeCriticalPath finds the longest chained duration from any task
// without predecessors to any sink and marks IsOnCriticalPath on every
// task in the slice accordingly. Durations are inclusive day counts.
// When several branches tie for longest, the first one found wins.
// A per-branch visited set keeps the search finite on cyclic input.
func ComputeCriticalPath(tasks []domain.GanttTask) CriticalPath {
	byID := indexTasks(tasks)
	successors := make(map[string][]string, len(tasks))
	hasPred := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		for _, pred := range t.PredecessorIDs() {
			if _, ok := byID[pred]; !ok {
				continue
			}
			successors[pred] = append(successors[pred], t.ID)
			hasPred[t.ID] = true
		}
	}

	var longestFrom func(id string, onBranch map[string]bool) (int, []string)
	longestFrom = func(id string, onBranch map[string]bool) (int, []string) {
		if onBranch[id] {
			return 0, nil
		}
		onBranch[id] = true
		defer delete(onBranch, id)

		days := DurationDays(tasks[byID[id]].StartDate, tasks[byID[id]].EndDate)
		bestDays, bestPath := 0, []string(nil)
		for _, succ := range successors[id] {
			d, p := longestFrom(succ, onBranch)
			if d > bestDays {
				bestDays, bestPath = d, p
			}
		}
		return days + bestDays, append([]string{id}, bestPath...)
	}

	best := CriticalPath{}
	for _, t := range tasks {
		if hasPred[t.ID] {
			continue
		}
		days, path := longestFrom(t.ID, make(map[string]bool))
		if days > best.TotalDays {
			best = CriticalPath{TaskIDs: path, TotalDays: days}
		}
	}

	for i := range tasks {
		tasks[i].IsOnCriticalPath = best.Contains(tasks[i].ID)
	}
	return best
}

// BufferDays returns the idle whole days between the end of a and the
// start of b, never negative. Consecutive tasks have zero buffer.
func BufferDays(a, b domain.GanttTask) int {
	gap := a.EndDate.DaysUntil(b.StartDate) - 1
	if gap < 0 {
		return 0
	}
	return gap
}

// ShiftTask moves a task forward by the given number of days. Both dates
// shift so the duration is preserved.
func ShiftTask(t *domain.GanttTask, days int) {
	t.StartDate = t.StartDate.AddDays(days)
	t.EndDate = t.EndDate.AddDays(days)
}

// ParallelPair flags two tasks that could run concurrently.
type ParallelPair struct {
	A string
	B string
}

// ParallelizableTasks suggests pairs of non-critical tasks sharing an
// identical dependency set.
func ParallelizableTasks(tasks []domain.GanttTask) []ParallelPair {
	keys := make([]string, len(tasks))
	for i, t := range tasks {
		preds := t.PredecessorIDs()
		sort.Strings(preds)
		key := ""
		for _, p := range preds {
			key += p + "|"
		}
		keys[i] = key
	}

	var pairs []ParallelPair
	for i := range tasks {
		if tasks[i].IsOnCriticalPath {
			continue
		}
		for j := i + 1; j < len(tasks); j++ {
			if tasks[j].IsOnCriticalPath {
				continue
			}
			if keys[i] == keys[j] {
				pairs = append(pairs, ParallelPair{A: tasks[i].ID, B: tasks[j].ID})
			}
		}
	}
	return pairs
}

// ChildrenIndex derives the parent -> children mapping from ParentID
// pointers. Children are ordered by Order, then id. Parent pointers are
// the ground truth; denormalized Children fields should be refreshed
// from this index.
func ChildrenIndex(tasks []domain.GanttTask) map[string][]string {
	idx := make(map[string][]string)
	order := make(map[string]int, len(tasks))
	for _, t := range tasks {
		order[t.ID] = t.Order
		if t.ParentID == "" {
			continue
		}
		idx[t.ParentID] = append(idx[t.ParentID], t.ID)
	}
	for parent, children := range idx {
		sort.Slice(children, func(i, j int) bool {
			if order[children[i]] != order[children[j]] {
				return order[children[i]] < order[children[j]]
			}
			return children[i] < children[j]
		})
		idx[parent] = children
	}
	return idx
}

// RefreshChildren rewrites every task's derived Children list from the
// current parent pointers.
func RefreshChildren(tasks []domain.GanttTask) {
	idx := ChildrenIndex(tasks)
	for i := range tasks {
		tasks[i].Children = idx[tasks[i].ID]
	}
}
