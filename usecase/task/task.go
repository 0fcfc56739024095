package task

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/metrics"
	"github.com/fastygo/taskbot/pkg/timeparse"
	"github.com/fastygo/taskbot/repository"
	"github.com/fastygo/taskbot/usecase"
)

const DefaultPageSize = 3

// Deps are the collaborators of the task use case. Calendar, Sheet and
// Buffer may be nil.
type Deps struct {
	Tasks    repository.TaskRepository
	Sessions repository.ActionSessionRepository
	Calendar usecase.Calendar
	Sheet    usecase.Spreadsheet
	Buffer   usecase.OperationBuffer
	Metrics  *metrics.Collectors
	Logger   *zap.Logger
}

type Options struct {
	Timeout  time.Duration
	Location *time.Location
	PageSize int
}

// Page is one slice of a user's active tasks.
type Page struct {
	Tasks []domain.Task `json:"tasks"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Total int           `json:"total"`
	Size  int           `json:"size"`
}

type UseCase struct {
	tasks    repository.TaskRepository
	sessions repository.ActionSessionRepository
	calendar usecase.Calendar
	sheet    usecase.Spreadsheet
	caller   usecase.ExternalCaller
	writer   usecase.TaskWriter
	metrics  *metrics.Collectors
	logger   *zap.Logger
	loc      *time.Location
	pageSize int
	now      func() time.Time
}

func New(deps Deps, opts Options) *UseCase {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &UseCase{
		tasks:    deps.Tasks,
		sessions: deps.Sessions,
		calendar: deps.Calendar,
		sheet:    deps.Sheet,
		caller:   usecase.ExternalCaller{Timeout: opts.Timeout, Metrics: deps.Metrics, Logger: logger},
		writer:   usecase.TaskWriter{Buffer: deps.Buffer, Metrics: deps.Metrics, Logger: logger},
		metrics:  deps.Metrics,
		logger:   logger,
		loc:      opts.Location,
		pageSize: opts.PageSize,
		now:      time.Now,
	}
}

// ListPage returns the requested page of the user's active tasks. Out of
// range pages are clamped.
func (uc *UseCase) ListPage(ctx context.Context, userID int64, page int) (Page, error) {
	tasks, err := uc.tasks.QueryActive(ctx, repository.ActiveFilter{UserID: userID})
	if err != nil {
		return Page{}, err
	}

	total := len(tasks)
	pages := int(math.Max(1, math.Ceil(float64(total)/float64(uc.pageSize))))
	page = clampPage(page, pages)

	start := page * uc.pageSize
	end := start + uc.pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return Page{Tasks: tasks[start:end], Page: page, Pages: pages, Total: total, Size: uc.pageSize}, nil
}

// GetTask loads a task owned by userID; a zero userID skips the ownership check.
func (uc *UseCase) GetTask(ctx context.Context, userID int64, id string) (*domain.Task, error) {
	task, err := uc.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != 0 && task.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return task, nil
}

// Complete moves an active task to done, then mirrors the change to the
// spreadsheet and removes the calendar event.
func (uc *UseCase) Complete(ctx context.Context, userID int64, id string, hours float64, comment *string) (*domain.Task, error) {
	if hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return nil, domain.ErrInvalidHours
	}
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !task.IsActive() {
		return nil, domain.ErrTaskAlreadyDone
	}

	now := uc.now()
	task.Status = domain.TaskDone
	task.CompletedAt = &now
	task.HoursSpent = &hours
	if err := uc.writer.Write(ctx, usecase.OperationStatus, task, func(ctx context.Context) error {
		return uc.tasks.SetStatus(ctx, task.ID, domain.TaskDone, &now, &hours)
	}); err != nil {
		return nil, err
	}
	if comment != nil {
		task.Comment = strings.TrimSpace(*comment)
		if err := uc.writer.Write(ctx, usecase.OperationComment, task, func(ctx context.Context) error {
			return uc.tasks.SetComment(ctx, task.ID, task.Comment)
		}); err != nil {
			return nil, err
		}
	}

	uc.syncStatus(ctx, task, &hours, comment)
	if task.CalendarEventID != nil && uc.calendar != nil {
		eventID := *task.CalendarEventID
		_ = uc.caller.Call(ctx, "calendar", func(ctx context.Context) error {
			return uc.calendar.DeleteEvent(ctx, eventID)
		})
	}

	uc.metrics.TaskEvent("completed")
	uc.logger.Info("task completed", zap.String("task_id", task.ID), zap.Float64("hours", hours))
	return task, nil
}

// RecordHours stores hours on a task that is already done.
func (uc *UseCase) RecordHours(ctx context.Context, userID int64, id string, hours float64) (*domain.Task, error) {
	if hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return nil, domain.ErrInvalidHours
	}
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	task.HoursSpent = &hours
	if err := uc.writer.Write(ctx, usecase.OperationStatus, task, func(ctx context.Context) error {
		return uc.tasks.SetStatus(ctx, task.ID, task.Status, nil, &hours)
	}); err != nil {
		return nil, err
	}
	uc.syncStatus(ctx, task, &hours, nil)
	return task, nil
}

// AddComment replaces the comment of a task and mirrors it to the spreadsheet.
func (uc *UseCase) AddComment(ctx context.Context, userID int64, id string, comment string) (*domain.Task, error) {
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	task.Comment = strings.TrimSpace(comment)
	if err := uc.writer.Write(ctx, usecase.OperationComment, task, func(ctx context.Context) error {
		return uc.tasks.SetComment(ctx, task.ID, task.Comment)
	}); err != nil {
		return nil, err
	}
	uc.syncStatus(ctx, task, task.HoursSpent, &task.Comment)
	return task, nil
}

// Extend moves the deadline of an active task. deadline and clock are
// normalised; a blank clock clears the time of day.
func (uc *UseCase) Extend(ctx context.Context, userID int64, id string, deadline, clock string) (*domain.Task, error) {
	date, err := timeparse.ParseDate(deadline, uc.now().In(uc.loc))
	if err != nil {
		return nil, domain.ErrInvalidDate.Wrap(err)
	}
	if strings.TrimSpace(clock) != "" {
		if clock, err = timeparse.ParseTime(clock); err != nil {
			return nil, domain.ErrInvalidTime.Wrap(err)
		}
	} else {
		clock = ""
	}

	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !task.IsActive() {
		return nil, domain.ErrTaskAlreadyDone
	}

	task.Deadline, task.Time = date, clock
	if err := uc.writer.Write(ctx, usecase.OperationDeadline, task, func(ctx context.Context) error {
		return uc.tasks.SetDeadline(ctx, task.ID, date, &clock)
	}); err != nil {
		return nil, err
	}

	if task.CalendarEventID != nil && uc.calendar != nil {
		eventID := *task.CalendarEventID
		_ = uc.caller.Call(ctx, "calendar", func(ctx context.Context) error {
			_, err := uc.calendar.UpdateEvent(ctx, eventID, date, clock)
			return err
		})
	}
	if task.SheetRow != nil && uc.sheet != nil {
		row := *task.SheetRow
		_ = uc.caller.Call(ctx, "sheet", func(ctx context.Context) error {
			return uc.sheet.UpdateRowDeadline(ctx, row, date)
		})
	}

	uc.metrics.TaskEvent("extended")
	uc.logger.Info("task deadline extended", zap.String("task_id", task.ID), zap.String("deadline", date), zap.String("time", clock))
	return task, nil
}

func (uc *UseCase) syncStatus(ctx context.Context, task *domain.Task, hours *float64, comment *string) {
	if task.SheetRow == nil || uc.sheet == nil {
		return
	}
	row := *task.SheetRow
	update := usecase.RowStatusUpdate{Status: task.Status, Hours: hours, Comment: comment}
	_ = uc.caller.Call(ctx, "sheet", func(ctx context.Context) error {
		return uc.sheet.UpdateRowStatus(ctx, row, update)
	})
}

func clampPage(page, pages int) int {
	if page < 0 {
		return 0
	}
	if page >= pages {
		return pages - 1
	}
	return page
}

// IsNotFound reports the errors that mean the task or session is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrTaskNotFound) || errors.Is(err, domain.ErrSessionNotFound)
}
