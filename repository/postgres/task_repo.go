package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

const taskColumns = `id, user_id, title, deadline, time, assigned_by, comment, links,
	calendar_event_id, sheet_row, status, created_at, completed_at, hours_spent`

// Absent time sorts as end of day.
const taskOrder = `ORDER BY NULLIF(deadline, '') ASC NULLS LAST, COALESCE(NULLIF(time, ''), '23:59') ASC, created_at ASC`

type taskRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
	now  func() time.Time
}

// NewTaskRepository returns a Postgres-backed implementation of TaskRepository.
// Deadlines are wall-clock values interpreted in loc.
func NewTaskRepository(pool *pgxpool.Pool, loc *time.Location) repository.TaskRepository {
	if loc == nil {
		loc = time.Local
	}
	return &taskRepository{pool: pool, loc: loc, now: time.Now}
}

func (r *taskRepository) Insert(ctx context.Context, task *domain.Task) error {
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
		task.CreatedAt = r.now()
	}

	const query = `
	INSERT INTO tasks (id, user_id, title, deadline, time, assigned_by, comment, links,
		calendar_event_id, sheet_row, status, created_at, completed_at, hours_spent)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Deadline,
		task.Time,
		task.AssignedBy,
		task.Comment,
		marshalList(task.Links),
		task.CalendarEventID,
		task.SheetRow,
		string(task.Status),
		task.CreatedAt,
		task.CompletedAt,
		task.HoursSpent,
	)
	return err
}

func (r *taskRepository) Get(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanTask(row)
}

func (r *taskRepository) SetStatus(ctx context.Context, id string, status domain.TaskStatus, completedAt *time.Time, hoursSpent *float64) error {
	const query = `
	UPDATE tasks
	SET status = $2,
		completed_at = COALESCE($3, completed_at),
		hours_spent = COALESCE($4, hours_spent)
	WHERE id = $1
	`
	return r.exec(ctx, query, id, string(status), completedAt, hoursSpent)
}

func (r *taskRepository) SetDeadline(ctx context.Context, id string, deadline string, clock *string) error {
	const query = `
	UPDATE tasks
	SET deadline = $2,
		time = COALESCE($3, time)
	WHERE id = $1
	`
	return r.exec(ctx, query, id, deadline, clock)
}

func (r *taskRepository) SetComment(ctx context.Context, id string, comment string) error {
	return r.exec(ctx, `UPDATE tasks SET comment = $2 WHERE id = $1`, id, comment)
}

func (r *taskRepository) QueryActive(ctx context.Context, filter repository.ActiveFilter) ([]domain.Task, error) {
	query := `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE status = 'active'
	  AND ($1::bigint = 0 OR user_id = $1::bigint)
	  AND ($2::text = '' OR deadline = $2::text)
	` + taskOrder
	return r.query(ctx, query, filter.UserID, filter.Deadline)
}

func (r *taskRepository) QueryDueWithin(ctx context.Context, lower, upper time.Duration) ([]domain.Task, error) {
	now := r.now().In(r.loc)
	query := `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE status = 'active'
	  AND deadline <> ''
	  AND (to_date(deadline, 'YYYY-MM-DD') + COALESCE(NULLIF(time, ''), $3::text)::time)
		BETWEEN $1::timestamp AND $2::timestamp
	` + taskOrder
	return r.query(ctx, query,
		wallClock(now.Add(lower)),
		wallClock(now.Add(upper)),
		domain.DefaultTaskTime,
	)
}

func (r *taskRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Task, error) {
	var task domain.Task
	var (
		links  []byte
		status string
	)

	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Deadline,
		&task.Time,
		&task.AssignedBy,
		&task.Comment,
		&links,
		&task.CalendarEventID,
		&task.SheetRow,
		&status,
		&task.CreatedAt,
		&task.CompletedAt,
		&task.HoursSpent,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	if len(links) > 0 {
		_ = json.Unmarshal(links, &task.Links)
	}

	return &task, nil
}
