package repository

import (
	"context"
	"time"

	"github.com/fastygo/taskbot/domain"
)

// ActiveFilter narrows QueryActive; zero values match everything.
type ActiveFilter struct {
	UserID   int64
	Deadline string
}

type TaskRepository interface {
	Insert(ctx context.Context, task *domain.Task) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	SetStatus(ctx context.Context, id string, status domain.TaskStatus, completedAt *time.Time, hoursSpent *float64) error
	SetDeadline(ctx context.Context, id string, deadline string, clock *string) error
	SetComment(ctx context.Context, id string, comment string) error
	// QueryActive returns active tasks ordered by deadline, then time of day
	// with an absent time sorted as end of day.
	QueryActive(ctx context.Context, filter ActiveFilter) ([]domain.Task, error)
	// QueryDueWithin returns active tasks due between now+lower and now+upper.
	QueryDueWithin(ctx context.Context, lower, upper time.Duration) ([]domain.Task, error)
}
