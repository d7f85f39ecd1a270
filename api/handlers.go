// Package api exposes the task, transfer, link and gantt operations
// over HTTP.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"unitask/domain"
	"unitask/gantt"
	"unitask/storage"
	"unitask/store"
	"unitask/transfer"
)

// Handlers bundles the route dependencies.
type Handlers struct {
	tasks     *store.Store
	transfers *transfer.Service
	auth      Authenticator
	logger    *log.Logger
}

// NewHandlers wires the HTTP layer over the task store and transfer
// service.
func NewHandlers(tasks *store.Store, transfers *transfer.Service, auth Authenticator, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handlers{tasks: tasks, transfers: transfers, auth: auth, logger: logger}
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, h *Handlers) {
	e.GET("/api/tasks", h.getTasks)
	e.POST("/api/tasks", h.createTask)
	e.PATCH("/api/tasks/:id", h.updateTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
	e.POST("/api/transfer", h.postTransfer)
	e.POST("/api/tasks/:view/:id/sync", h.syncTask)
	e.PUT("/api/links/:view/:id/sync", h.toggleSync)
	e.GET("/api/links/:view/:id", h.getLinks)
	e.POST("/api/gantt/critical-path", h.criticalPath)
	e.GET("/healthz", healthz)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *Handlers) userID(c echo.Context) (string, error) {
	return h.auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
}

type tasksResponse struct {
	Tasks []domain.UnifiedTask `json:"tasks"`
	Error string               `json:"error,omitempty"`
}

func parseFilter(c echo.Context) (store.Filter, error) {
	var f store.Filter
	if raw := c.QueryParam("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, domain.Status(strings.TrimSpace(s)))
		}
	}
	if raw := c.QueryParam("priority"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			f.Priorities = append(f.Priorities, domain.Priority(strings.TrimSpace(p)))
		}
	}
	f.AssigneeID = c.QueryParam("assigneeId")
	f.ProjectID = c.QueryParam("projectId")
	if raw := c.QueryParam("tags"); raw != "" {
		f.Tags = strings.Split(raw, ",")
	}
	if raw := c.QueryParam("dueAfter"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return f, err
		}
		f.DueAfter = d
	}
	if raw := c.QueryParam("dueBefore"); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return f, err
		}
		f.DueBefore = d
	}
	return f, nil
}

func (h *Handlers) getTasks(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	filter, err := parseFilter(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid filter: "+err.Error())
	}
	return c.JSON(http.StatusOK, tasksResponse{Tasks: h.tasks.Filtered(filter), Error: h.tasks.Err()})
}

func (h *Handlers) createTask(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var task domain.UnifiedTask
	if err := c.Bind(&task); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if task.Title == "" {
		return c.String(http.StatusBadRequest, "title must not be empty")
	}
	created, err := h.tasks.Create(c.Request().Context(), task)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handlers) updateTask(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var patch domain.TaskPatch
	if err := c.Bind(&patch); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := h.tasks.Update(c.Request().Context(), c.Param("id"), patch); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.String(http.StatusNotFound, err.Error())
		}
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) deleteTask(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := h.tasks.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.String(http.StatusNotFound, err.Error())
		}
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) postTransfer(c echo.Context) (err error) {
	ctx := c.Request().Context()
	metrics, spanCtx := newTransferRequestMetrics(ctx, h.logger)
	if spanCtx != nil {
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
	}
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	authStart := time.Now()
	_, authErr := h.userID(c)
	metrics.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		metrics.SetErrorStage("auth")
		err = c.String(http.StatusUnauthorized, authErr.Error())
		return err
	}

	var req transfer.Request
	if bindErr := c.Bind(&req); bindErr != nil {
		metrics.SetErrorStage("bind")
		err = c.String(http.StatusBadRequest, "invalid body")
		return err
	}
	if !req.SourceView.IsValid() {
		metrics.SetErrorStage("invalid_source_view")
		err = c.String(http.StatusBadRequest, "unknown source view")
		return err
	}
	for _, v := range req.TargetViews {
		if !v.IsValid() {
			metrics.SetErrorStage("invalid_target_view")
			err = c.String(http.StatusBadRequest, "unknown target view")
			return err
		}
	}
	metrics.SetTasksRequested(len(req.TaskIDs))
	metrics.SetSyncEnabled(req.SyncEnabled)

	transferStart := time.Now()
	result := h.transfers.TransferTasks(ctx, req)
	metrics.ObserveTransfer(time.Since(transferStart))
	metrics.SetTasksTransferred(len(result.Transferred))
	if !result.Success {
		metrics.SetErrorStage("transfer")
	}
	err = c.JSON(http.StatusOK, result)
	return err
}

func viewParam(c echo.Context) (domain.ViewType, error) {
	view := domain.ViewType(c.Param("view"))
	if !view.IsValid() {
		return "", errors.New("unknown view")
	}
	return view, nil
}

func (h *Handlers) syncTask(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	view, err := viewParam(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := h.transfers.SyncTask(c.Request().Context(), view, c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.String(http.StatusNotFound, err.Error())
		}
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type toggleSyncRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handlers) toggleSync(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	view, err := viewParam(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	var req toggleSyncRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := h.transfers.ToggleSync(c.Request().Context(), view, c.Param("id"), req.Enabled); err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type linksResponse struct {
	Links []transfer.LinkedTask `json:"links"`
}

func (h *Handlers) getLinks(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	view, err := viewParam(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	linked, err := h.transfers.GetLinkedTasks(c.Request().Context(), view, c.Param("id"))
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if linked == nil {
		linked = []transfer.LinkedTask{}
	}
	return c.JSON(http.StatusOK, linksResponse{Links: linked})
}

type criticalPathRequest struct {
	Tasks []domain.GanttTask `json:"tasks"`
}

type criticalPathResponse struct {
	CriticalPath gantt.CriticalPath `json:"criticalPath"`
	Tasks        []domain.GanttTask `json:"tasks"`
}

func (h *Handlers) criticalPath(c echo.Context) error {
	if _, err := h.userID(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req criticalPathRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	cp := gantt.ComputeCriticalPath(req.Tasks)
	return c.JSON(http.StatusOK, criticalPathResponse{CriticalPath: cp, Tasks: req.Tasks})
}
