package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/api/transport"
	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/pkg/httpcontext"
	taskUC "github.com/fastygo/taskbot/usecase/task"
)

// TaskService is the part of the task use case exposed over REST.
type TaskService interface {
	ListPage(ctx context.Context, userID int64, page int) (taskUC.Page, error)
	GetTask(ctx context.Context, userID int64, id string) (*domain.Task, error)
	Complete(ctx context.Context, userID int64, id string, hours float64, comment *string) (*domain.Task, error)
	Extend(ctx context.Context, userID int64, id string, deadline, clock string) (*domain.Task, error)
}

type TaskHandler struct {
	baseHandler
	uc TaskService
}

func NewTaskHandler(uc TaskService, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List active tasks
// @Tags tasks
// @Router /api/v1/tasks [get]
func (h *TaskHandler) GetTasks(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	page, err := h.uc.ListPage(stdCtx, userID, parseInt(string(ctx.QueryArgs().Peek("page")), 0))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewPage(page.Tasks, transport.PageMeta{
		Page:    page.Page,
		Pages:   page.Pages,
		Total:   page.Total,
		PerPage: page.Size,
	}))
}

// @Summary Get task
// @Tags tasks
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) GetTask(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}
	id, ok := h.taskID(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.GetTask(stdCtx, userID, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Mark task done
// @Tags tasks
// @Router /api/v1/tasks/{id}/complete [post]
func (h *TaskHandler) CompleteTask(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}
	id, ok := h.taskID(ctx)
	if !ok {
		return
	}

	var req transport.CompleteTaskRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.Hours == nil {
		h.respondInvalid(ctx, "hours are required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.Complete(stdCtx, userID, id, *req.Hours, req.Comment)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// @Summary Extend task deadline
// @Tags tasks
// @Router /api/v1/tasks/{id}/extend [post]
func (h *TaskHandler) ExtendTask(ctx *fasthttp.RequestCtx) {
	userID, ok := h.userID(ctx)
	if !ok {
		return
	}
	id, ok := h.taskID(ctx)
	if !ok {
		return
	}

	var req transport.ExtendTaskRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.Extend(stdCtx, userID, id, req.Deadline, req.Time)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

func (h *TaskHandler) taskID(ctx *fasthttp.RequestCtx) (string, bool) {
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		h.respondInvalid(ctx, "missing task id")
		return "", false
	}
	return id, true
}

func (h *TaskHandler) userID(ctx *fasthttp.RequestCtx) (int64, bool) {
	userID, err := strconv.ParseInt(string(ctx.Request.Header.Peek(transport.UserIDHeader)), 10, 64)
	if err != nil || userID == 0 {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "missing user id", nil))
		return 0, false
	}
	return userID, true
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
