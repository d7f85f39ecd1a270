package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"unitask/domain"
	"unitask/storage"
	"unitask/store"
	"unitask/transfer"
)

type fakeAuth struct{ err error }

func (f fakeAuth) UserIDFromAuthHeader(string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "user1", nil
}

type apiFixture struct {
	e     *echo.Echo
	mem   *storage.Memory
	tasks *store.Store
}

func newAPIFixture(t *testing.T, auth Authenticator) *apiFixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	mem := storage.NewMemory()

	tasks := store.New(mem.Unified, logger)
	if err := tasks.Load(context.Background()); err != nil {
		t.Fatalf("load store: %v", err)
	}
	transfers := transfer.New(mem.Todo, mem.WBS, mem.Kanban, mem.Gantt, storage.MemoryUnifiedWriter{Store: mem.Unified}, mem.Links, logger)

	e := echo.New()
	Register(e, NewHandlers(tasks, transfers, auth, logger))
	return &apiFixture{e: e, mem: mem, tasks: tasks}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{err: errors.New("bad token")})

	for _, route := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPost, "/api/transfer"},
		{http.MethodGet, "/api/links/todo/t1"},
	} {
		rec := f.do(t, route.method, route.path, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, rec.Code)
		}
	}

	// Health stays open.
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{})

	rec := f.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "Write handler"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var created domain.UnifiedTask
	decodeInto(t, rec, &created)
	if created.ID == "" || created.Title != "Write handler" {
		t.Fatalf("unexpected created task: %+v", created)
	}

	rec = f.do(t, http.MethodPatch, "/api/tasks/"+created.ID, map[string]any{"title": "Write better handler"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("patch: expected 204, got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/tasks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var listed tasksResponse
	decodeInto(t, rec, &listed)
	if len(listed.Tasks) != 1 || listed.Tasks[0].Title != "Write better handler" {
		t.Fatalf("unexpected list: %+v", listed)
	}

	rec = f.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestCreateTaskRejectsEmptyTitle(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{})
	rec := f.do(t, http.MethodPost, "/api/tasks", map[string]any{"description": "no title"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetTasksAppliesFilter(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{})
	ctx := context.Background()
	f.tasks.Create(ctx, domain.UnifiedTask{Title: "done one", Status: domain.StatusDone})
	f.tasks.Create(ctx, domain.UnifiedTask{Title: "open one", Status: domain.StatusTodo})

	rec := f.do(t, http.MethodGet, "/api/tasks?status=done", nil)
	var listed tasksResponse
	decodeInto(t, rec, &listed)
	if len(listed.Tasks) != 1 || listed.Tasks[0].Title != "done one" {
		t.Fatalf("unexpected filtered list: %+v", listed)
	}

	rec = f.do(t, http.MethodGet, "/api/tasks?dueAfter=not-a-date", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestTransferEndpoint(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{})
	ctx := context.Background()
	f.mem.Todo.Create(ctx, domain.TodoRecord{ID: "t1", Title: "T"})

	rec := f.do(t, http.MethodPost, "/api/transfer", transfer.Request{
		SourceView:  domain.ViewTodo,
		TaskIDs:     []string{"t1"},
		TargetViews: []domain.ViewType{domain.ViewWBS},
		SyncEnabled: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var result transfer.Result
	decodeInto(t, rec, &result)
	if !result.Success || len(result.Transferred) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	wbsRec, err := f.mem.WBS.FindByID(ctx, result.Transferred[0].NewID)
	if err != nil {
		t.Fatalf("wbs record missing: %v", err)
	}
	if wbsRec.Title != "T" || wbsRec.Status != domain.WBSNotStarted {
		t.Fatalf("unexpected wbs record: %+v", wbsRec)
	}
}

func TestTransferRejectsUnknownViews(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{})

	rec := f.do(t, http.MethodPost, "/api/transfer", map[string]any{
		"sourceView": "calendar", "taskIds": []string{"t1"}, "targetViews": []string{"wbs"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for source view, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/transfer", map[string]any{
		"sourceView": "todo", "taskIds": []string{"t1"}, "targetViews": []string{"calendar"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for target view, got %d", rec.Code)
	}
}

func TestSyncAndLinksEndpoints(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{})
	ctx := context.Background()
	f.mem.Todo.Create(ctx, domain.TodoRecord{ID: "t1", Title: "T"})

	rec := f.do(t, http.MethodPost, "/api/transfer", transfer.Request{
		SourceView:  domain.ViewTodo,
		TaskIDs:     []string{"t1"},
		TargetViews: []domain.ViewType{domain.ViewWBS},
		SyncEnabled: true,
	})
	var result transfer.Result
	decodeInto(t, rec, &result)
	newID := result.Transferred[0].NewID

	// Complete the todo, then sync through the API.
	todoRec, _ := f.mem.Todo.FindByID(ctx, "t1")
	todoRec.Completed = true
	f.mem.Todo.Update(ctx, todoRec)

	rec = f.do(t, http.MethodPost, "/api/tasks/todo/t1/sync", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("sync: expected 204, got %d %s", rec.Code, rec.Body.String())
	}
	wbsRec, _ := f.mem.WBS.FindByID(ctx, newID)
	if wbsRec.Progress != 100 || wbsRec.Status != domain.WBSCompleted {
		t.Fatalf("sync did not propagate: %+v", wbsRec)
	}

	rec = f.do(t, http.MethodPut, "/api/links/todo/t1/sync", map[string]any{"enabled": false})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("toggle: expected 204, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/links/todo/t1", nil)
	var links linksResponse
	decodeInto(t, rec, &links)
	if len(links.Links) != 1 {
		t.Fatalf("expected one sibling link, got %+v", links)
	}
	if links.Links[0].Link.SyncEnabled {
		t.Fatal("toggle must reach the stored link")
	}

	// Unlinked records sync as a no-op and list no links.
	rec = f.do(t, http.MethodPost, "/api/tasks/gantt/unlinked/sync", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unlinked sync: expected 204, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/links/gantt/unlinked", nil)
	decodeInto(t, rec, &links)
	if len(links.Links) != 0 {
		t.Fatalf("expected empty links, got %+v", links)
	}

	rec = f.do(t, http.MethodPost, "/api/tasks/calendar/t1/sync", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown view: expected 400, got %d", rec.Code)
	}
}

func TestCriticalPathEndpoint(t *testing.T) {
	f := newAPIFixture(t, fakeAuth{})
	day := func(d int) domain.Date { return domain.NewDate(2026, time.January, d) }

	tasks := []domain.GanttTask{
		{ID: "a", Title: "a", StartDate: day(1), EndDate: day(5)},
		{ID: "b", Title: "b", StartDate: day(6), EndDate: day(10), Dependencies: []domain.Dependency{
			{ID: "d1", SourceTaskID: "a", TargetTaskID: "b", Type: domain.FinishToStart},
		}},
		{ID: "c", Title: "c", StartDate: day(11), EndDate: day(15), Dependencies: []domain.Dependency{
			{ID: "d2", SourceTaskID: "b", TargetTaskID: "c", Type: domain.FinishToStart},
		}},
	}

	rec := f.do(t, http.MethodPost, "/api/gantt/critical-path", criticalPathRequest{Tasks: tasks})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var resp criticalPathResponse
	decodeInto(t, rec, &resp)
	if resp.CriticalPath.TotalDays != 15 {
		t.Fatalf("expected 15 day path, got %d", resp.CriticalPath.TotalDays)
	}
	if len(resp.CriticalPath.TaskIDs) != 3 {
		t.Fatalf("expected 3 tasks on path, got %v", resp.CriticalPath.TaskIDs)
	}
	for _, task := range resp.Tasks {
		if !task.IsOnCriticalPath {
			t.Fatalf("task %s should be flagged", task.ID)
		}
	}
}
