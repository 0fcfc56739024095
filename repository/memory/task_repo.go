package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

// TaskRepository is a map-backed task store with the same ordering rules as
// the Postgres implementation.
type TaskRepository struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
	loc   *time.Location
	// Now is the clock used by QueryDueWithin.
	Now func() time.Time
}

// NewTaskRepository returns an empty store interpreting deadlines in loc.
func NewTaskRepository(loc *time.Location) *TaskRepository {
	if loc == nil {
		loc = time.Local
	}
	return &TaskRepository{tasks: make(map[string]domain.Task), loc: loc, Now: time.Now}
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

func (r *TaskRepository) Insert(_ context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskActive
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = r.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return nil
	}
	r.tasks[task.ID] = copyTask(*task)
	return nil
}

func (r *TaskRepository) Get(_ context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	task = copyTask(task)
	return &task, nil
}

func (r *TaskRepository) SetStatus(_ context.Context, id string, status domain.TaskStatus, completedAt *time.Time, hoursSpent *float64) error {
	return r.update(id, func(t *domain.Task) {
		t.Status = status
		if completedAt != nil {
			at := *completedAt
			t.CompletedAt = &at
		}
		if hoursSpent != nil {
			h := *hoursSpent
			t.HoursSpent = &h
		}
	})
}

func (r *TaskRepository) SetDeadline(_ context.Context, id string, deadline string, clock *string) error {
	return r.update(id, func(t *domain.Task) {
		t.Deadline = deadline
		if clock != nil {
			t.Time = *clock
		}
	})
}

func (r *TaskRepository) SetComment(_ context.Context, id string, comment string) error {
	return r.update(id, func(t *domain.Task) { t.Comment = comment })
}

func (r *TaskRepository) QueryActive(_ context.Context, filter repository.ActiveFilter) ([]domain.Task, error) {
	return r.collect(func(t domain.Task) bool {
		if filter.UserID != 0 && t.UserID != filter.UserID {
			return false
		}
		return filter.Deadline == "" || t.Deadline == filter.Deadline
	}), nil
}

func (r *TaskRepository) QueryDueWithin(_ context.Context, lower, upper time.Duration) ([]domain.Task, error) {
	now := r.Now().In(r.loc)
	from, to := now.Add(lower), now.Add(upper)
	return r.collect(func(t domain.Task) bool {
		due, ok := t.DueAt(r.loc)
		return ok && !due.Before(from) && !due.After(to)
	}), nil
}

func (r *TaskRepository) update(id string, mutate func(*domain.Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	mutate(&task)
	r.tasks[id] = task
	return nil
}

func (r *TaskRepository) collect(match func(domain.Task) bool) []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Task
	for _, t := range r.tasks {
		if t.Status == domain.TaskActive && match(t) {
			out = append(out, copyTask(t))
		}
	}
	SortTasks(out)
	return out
}

// SortTasks orders tasks by deadline (absent last), then time of day with an
// absent time treated as end of day, then creation time.
func SortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Deadline != b.Deadline {
			if a.Deadline == "" || b.Deadline == "" {
				return b.Deadline == ""
			}
			return a.Deadline < b.Deadline
		}
		if ta, tb := sortClock(a.Time), sortClock(b.Time); ta != tb {
			return ta < tb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func sortClock(clock string) string {
	if clock == "" {
		return "23:59"
	}
	return clock
}

func copyTask(t domain.Task) domain.Task {
	if t.Links != nil {
		t.Links = append([]string{}, t.Links...)
	}
	return t
}
