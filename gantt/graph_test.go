package gantt

import (
	"errors"
	"testing"
	"time"

	"unitask/domain"
)

func day(d int) domain.Date {
	return domain.NewDate(2025, time.March, d)
}

func task(id string, start, end int, preds ...string) domain.GanttTask {
	t := domain.GanttTask{ID: id, Title: id, StartDate: day(start), EndDate: day(end)}
	for _, p := range preds {
		t.Dependencies = append(t.Dependencies, domain.Dependency{
			ID:           p + "->" + id,
			SourceTaskID: p,
			TargetTaskID: id,
			Type:         domain.FinishToStart,
		})
	}
	return t
}

func TestWouldCreateCycle(t *testing.T) {
	tasks := []domain.GanttTask{
		task("a", 1, 5),
		task("b", 6, 10, "a"),
		task("c", 11, 15, "b"),
	}

	if !WouldCreateCycle(tasks, "c", "a") {
		t.Fatal("expected c->a to close the cycle a->b->c")
	}
	if WouldCreateCycle(tasks, "a", "c") {
		t.Fatal("a->c does not create a cycle")
	}
	if !WouldCreateCycle(tasks, "a", "a") {
		t.Fatal("self edge is always a cycle")
	}
}

func TestWouldCreateCycleTerminatesOnCyclicInput(t *testing.T) {
	tasks := []domain.GanttTask{
		task("a", 1, 2, "b"),
		task("b", 3, 4, "a"),
		task("c", 5, 6),
	}
	// Must terminate despite the pre-existing a<->b cycle.
	if WouldCreateCycle(tasks, "a", "c") {
		t.Fatal("a->c does not involve the existing cycle")
	}
}

func TestAddDependencyRejectsCycleWithoutMutation(t *testing.T) {
	tasks := []domain.GanttTask{
		task("a", 1, 5),
		task("b", 6, 10, "a"),
	}

	out, err := AddDependency(tasks, domain.Dependency{SourceTaskID: "b", TargetTaskID: "a"})
	if !errors.Is(err, ErrWouldCreateCycle) {
		t.Fatalf("expected ErrWouldCreateCycle, got %v", err)
	}
	if len(out[0].Dependencies) != 0 || len(tasks[0].Dependencies) != 0 {
		t.Fatal("rejected edge must not mutate the graph")
	}
}

func TestAddDependency(t *testing.T) {
	tasks := []domain.GanttTask{task("a", 1, 5), task("b", 6, 10)}

	out, err := AddDependency(tasks, domain.Dependency{ID: "d1", SourceTaskID: "a", TargetTaskID: "b"})
	if err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	if len(out[1].Dependencies) != 1 {
		t.Fatalf("expected 1 dependency on b, got %d", len(out[1].Dependencies))
	}
	if len(tasks[1].Dependencies) != 0 {
		t.Fatal("input slice must stay untouched")
	}

	if _, err := AddDependency(out, domain.Dependency{SourceTaskID: "a", TargetTaskID: "b"}); !errors.Is(err, ErrDuplicateDependency) {
		t.Fatalf("expected ErrDuplicateDependency, got %v", err)
	}
	if _, err := AddDependency(out, domain.Dependency{SourceTaskID: "a", TargetTaskID: "ghost"}); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestCriticalPathLinearChain(t *testing.T) {
	tasks := []domain.GanttTask{
		task("a", 1, 5),
		task("b", 6, 10, "a"),
		task("c", 11, 15, "b"),
	}

	path := ComputeCriticalPath(tasks)
	if path.TotalDays != 15 {
		t.Fatalf("expected 15 days, got %d", path.TotalDays)
	}
	want := []string{"a", "b", "c"}
	if len(path.TaskIDs) != len(want) {
		t.Fatalf("expected path %v, got %v", want, path.TaskIDs)
	}
	for i, id := range want {
		if path.TaskIDs[i] != id {
			t.Fatalf("expected path %v, got %v", want, path.TaskIDs)
		}
	}
	for _, task := range tasks {
		if !task.IsOnCriticalPath {
			t.Fatalf("task %s should be on the critical path", task.ID)
		}
	}
}

func TestCriticalPathParallelBranches(t *testing.T) {
	tasks := []domain.GanttTask{
		task("designer", 1, 5),
		task("implA", 6, 10, "designer"),
		task("implB", 6, 10, "designer"),
		task("test", 11, 15, "implA", "implB"),
	}

	path := ComputeCriticalPath(tasks)
	if path.TotalDays != 15 {
		t.Fatalf("expected 15 days, got %d", path.TotalDays)
	}
	// Both branches tie at 15 days; the first one found wins.
	want := []string{"designer", "implA", "test"}
	for i, id := range want {
		if path.TaskIDs[i] != id {
			t.Fatalf("expected path %v, got %v", want, path.TaskIDs)
		}
	}
	if tasks[2].IsOnCriticalPath {
		t.Fatal("implB must not be marked critical")
	}
	if !tasks[1].IsOnCriticalPath || !tasks[3].IsOnCriticalPath {
		t.Fatal("implA and test must be marked critical")
	}
}

func TestCriticalPathTerminatesOnCyclicInput(t *testing.T) {
	tasks := []domain.GanttTask{
		task("a", 1, 2, "b"),
		task("b", 3, 4, "a"),
	}
	path := ComputeCriticalPath(tasks)
	if len(path.TaskIDs) != 0 {
		t.Fatalf("cyclic graph has no start candidates, got %v", path.TaskIDs)
	}
}

func TestBufferDays(t *testing.T) {
	a := task("a", 1, 5)
	b := task("b", 8, 10)
	if got := BufferDays(a, b); got != 2 {
		t.Fatalf("expected 2 idle days, got %d", got)
	}

	consecutive := task("c", 6, 9)
	if got := BufferDays(a, consecutive); got != 0 {
		t.Fatalf("consecutive tasks have no buffer, got %d", got)
	}

	overlapping := task("d", 3, 9)
	if got := BufferDays(a, overlapping); got != 0 {
		t.Fatalf("overlap must clamp to zero, got %d", got)
	}
}

func TestShiftTaskPreservesDuration(t *testing.T) {
	tk := task("a", 1, 5)
	ShiftTask(&tk, 3)
	if !tk.StartDate.Equal(day(4)) || !tk.EndDate.Equal(day(8)) {
		t.Fatalf("expected shift to 4..8, got %s..%s", tk.StartDate, tk.EndDate)
	}
}

func TestParallelizableTasks(t *testing.T) {
	tasks := []domain.GanttTask{
		task("s", 1, 5),
		task("x", 6, 7, "s"),
		task("y", 6, 7, "s"),
		task("z", 6, 10, "s"),
	}
	ComputeCriticalPath(tasks)

	pairs := ParallelizableTasks(tasks)
	if len(pairs) != 1 {
		t.Fatalf("expected one pair, got %v", pairs)
	}
	if pairs[0].A != "x" || pairs[0].B != "y" {
		t.Fatalf("expected x/y, got %v", pairs[0])
	}
}

func TestCanReparent(t *testing.T) {
	tasks := []domain.GanttTask{
		{ID: "root"},
		{ID: "a", ParentID: "root"},
		{ID: "b", ParentID: "a"},
	}

	if !CanReparent(tasks, "b", "root") {
		t.Fatal("moving b under root is legal")
	}
	if CanReparent(tasks, "a", "b") {
		t.Fatal("a may not become a descendant of its own child")
	}
	if CanReparent(tasks, "a", "a") {
		t.Fatal("a may not become its own parent")
	}
	if !CanReparent(tasks, "a", "") {
		t.Fatal("moving to root is always legal")
	}
}

func TestChildrenIndexOrdering(t *testing.T) {
	tasks := []domain.GanttTask{
		{ID: "p"},
		{ID: "late", ParentID: "p", Order: 2},
		{ID: "early", ParentID: "p", Order: 1},
	}

	idx := ChildrenIndex(tasks)
	children := idx["p"]
	if len(children) != 2 || children[0] != "early" || children[1] != "late" {
		t.Fatalf("expected [early late], got %v", children)
	}

	RefreshChildren(tasks)
	if len(tasks[0].Children) != 2 {
		t.Fatalf("expected derived children on p, got %v", tasks[0].Children)
	}
	if tasks[1].Children != nil {
		t.Fatalf("leaf tasks have no children, got %v", tasks[1].Children)
	}
}
