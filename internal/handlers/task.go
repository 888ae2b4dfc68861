package handlers

import (
	"errors"
	"net/http"
	"strconv"

	dom "tasktracker/internal/domain"
	"tasktracker/internal/dto"
	"tasktracker/internal/middleware"
	"tasktracker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type TaskHandler struct {
	svc *service.TaskService
	log *logrus.Logger
}

func NewTaskHandler(svc *service.TaskService, log *logrus.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, log: log}
}

// Create godoc
// @Summary      Create a task
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Param        body  body      dto.CreateTaskRequest  true  "Task body"
// @Success      201   {object}  dto.TaskResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      500   {object}  dto.ErrorResponse
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	entry := h.entry(c, "Create")

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		entry.WithError(err).Warn("invalid request body")
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.svc.CreateTask(c.Request.Context(), req.Title, req.Description)
	if err != nil {
		h.fail(c, entry, err)
		return
	}

	entry.WithField("task_id", t.ID).Info("task created")
	c.JSON(http.StatusCreated, taskToResponse(t))
}

// ListLatest godoc
// @Summary      List the most recent incomplete tasks
// @Description  Newest first. A missing, non-numeric, zero or negative limit means 5.
// @Tags         tasks
// @Produce      json
// @Param        limit  query     int  false  "Maximum number of tasks"  default(5)
// @Success      200    {array}   dto.TaskResponse
// @Failure      500    {object}  dto.ErrorResponse
// @Router       /tasks [get]
func (h *TaskHandler) ListLatest(c *gin.Context) {
	entry := h.entry(c, "ListLatest")

	list, err := h.svc.GetLatestActiveTasks(c.Request.Context(), parseLimit(c))
	if err != nil {
		h.fail(c, entry, err)
		return
	}
	entry.WithField("count", len(list)).Debug("latest tasks listed")
	c.JSON(http.StatusOK, tasksToResponses(list))
}

// GetByID godoc
// @Summary      Get a task by ID
// @Tags         tasks
// @Produce      json
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  dto.TaskResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	entry := h.entry(c, "GetByID")

	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.GetTask(c.Request.Context(), id)
	if err != nil {
		h.fail(c, entry.WithField("task_id", id), err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(t))
}

// Complete godoc
// @Summary      Mark a task as completed
// @Description  Completing an already completed task succeeds.
// @Tags         tasks
// @Param        id   path  int  true  "Task ID"
// @Success      204
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /tasks/{id}/complete [put]
func (h *TaskHandler) Complete(c *gin.Context) {
	entry := h.entry(c, "Complete")

	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.CompleteTask(c.Request.Context(), id); err != nil {
		h.fail(c, entry.WithField("task_id", id), err)
		return
	}
	entry.WithField("task_id", id).Info("task completed")
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) entry(c *gin.Context, handler string) *logrus.Entry {
	return h.log.WithFields(logrus.Fields{
		"component":  "http_handler",
		"handler":    handler,
		"request_id": middleware.RequestIDFromContext(c),
	})
}

// fail maps service errors onto status codes.
func (h *TaskHandler) fail(c *gin.Context, entry *logrus.Entry, err error) {
	var notFound *service.TaskNotFoundError
	var invalid *service.ValidationError
	switch {
	case errors.As(err, &notFound):
		entry.Warn("task not found")
		writeError(c, http.StatusNotFound, notFound.Error())
	case errors.As(err, &invalid):
		entry.WithError(err).Warn("validation failed")
		writeError(c, http.StatusBadRequest, invalid.Error())
	default:
		entry.WithError(err).Error("request failed")
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, dto.NewErrorResponse(status, message))
}

func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// parseLimit never fails: anything unusable becomes 0 and the service substitutes its default.
func parseLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}

func taskToResponse(t dom.Task) dto.TaskResponse {
	return dto.TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
	}
}

func tasksToResponses(list []dom.Task) []dto.TaskResponse {
	out := make([]dto.TaskResponse, len(list))
	for i := range list {
		out[i] = taskToResponse(list[i])
	}
	return out
}
