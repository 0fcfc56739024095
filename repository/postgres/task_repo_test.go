package postgres

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

// Telegram ids no longer fit in int4.
const bigUserID int64 = 5123456789

func setupTaskRepo(t *testing.T) *taskRepository {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "assets", "migrations", "000001_create_tasks.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM tasks WHERE id LIKE 'test-%'")
	})

	return NewTaskRepository(pool, time.UTC).(*taskRepository)
}

func insertTasks(t *testing.T, repo *taskRepository, tasks ...*domain.Task) {
	t.Helper()
	for _, task := range tasks {
		require.NoError(t, repo.Insert(context.Background(), task))
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

func TestTaskRepositoryInsertAndGet(t *testing.T) {
	repo := setupTaskRepo(t)
	ctx := context.Background()

	event, row := "evt-1", 12
	insertTasks(t, repo, &domain.Task{
		ID:              "test-insert",
		UserID:          bigUserID,
		Title:           "Отчёт",
		Deadline:        "2091-05-01",
		Time:            "09:00",
		AssignedBy:      "Иван",
		Links:           []string{"https://example.com/a"},
		CalendarEventID: &event,
		SheetRow:        &row,
	})

	task, err := repo.Get(ctx, "test-insert")
	require.NoError(t, err)
	assert.Equal(t, bigUserID, task.UserID)
	assert.Equal(t, domain.TaskActive, task.Status)
	assert.Equal(t, []string{"https://example.com/a"}, task.Links)
	require.NotNil(t, task.SheetRow)
	assert.Equal(t, 12, *task.SheetRow)

	_, err = repo.Get(ctx, "test-missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestTaskRepositoryQueryActiveLargeUserAndOrdering(t *testing.T) {
	repo := setupTaskRepo(t)
	ctx := context.Background()

	insertTasks(t, repo,
		&domain.Task{ID: "test-late", UserID: bigUserID, Title: "late", Deadline: "2091-05-02", Time: "08:00"},
		&domain.Task{ID: "test-no-time", UserID: bigUserID, Title: "no time", Deadline: "2091-05-01"},
		&domain.Task{ID: "test-early", UserID: bigUserID, Title: "early", Deadline: "2091-05-01", Time: "18:00"},
		&domain.Task{ID: "test-no-deadline", UserID: bigUserID, Title: "someday"},
		&domain.Task{ID: "test-done", UserID: bigUserID, Title: "done", Deadline: "2091-04-01", Status: domain.TaskDone},
		&domain.Task{ID: "test-other", UserID: 7, Title: "other", Deadline: "2091-05-01"},
	)

	tasks, err := repo.QueryActive(ctx, repository.ActiveFilter{UserID: bigUserID})
	require.NoError(t, err)
	assert.Equal(t, []string{"test-early", "test-no-time", "test-late", "test-no-deadline"}, ids(tasks))

	tasks, err = repo.QueryActive(ctx, repository.ActiveFilter{UserID: bigUserID, Deadline: "2091-05-02"})
	require.NoError(t, err)
	assert.Equal(t, []string{"test-late"}, ids(tasks))

	tasks, err = repo.QueryActive(ctx, repository.ActiveFilter{Deadline: "2091-05-01"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"test-early", "test-no-time", "test-other"}, ids(tasks))
}

func TestTaskRepositoryQueryDueWithin(t *testing.T) {
	repo := setupTaskRepo(t)
	ctx := context.Background()
	repo.now = func() time.Time { return time.Date(2091, time.May, 1, 9, 0, 0, 0, time.UTC) }

	insertTasks(t, repo,
		&domain.Task{ID: "test-due-soon", UserID: bigUserID, Deadline: "2091-05-01", Time: "10:15"},
		&domain.Task{ID: "test-due-default", UserID: bigUserID, Deadline: "2091-05-01"},
		&domain.Task{ID: "test-due-too-close", UserID: bigUserID, Deadline: "2091-05-01", Time: "09:30"},
		&domain.Task{ID: "test-due-later", UserID: bigUserID, Deadline: "2091-05-01", Time: "12:00"},
		&domain.Task{ID: "test-due-done", UserID: bigUserID, Deadline: "2091-05-01", Time: "10:00", Status: domain.TaskDone},
	)

	tasks, err := repo.QueryDueWithin(ctx, 45*time.Minute, 90*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"test-due-soon", "test-due-default"}, ids(tasks), "absent time sorts last")
}

func TestTaskRepositoryUpdates(t *testing.T) {
	repo := setupTaskRepo(t)
	ctx := context.Background()
	insertTasks(t, repo, &domain.Task{ID: "test-update", UserID: bigUserID, Deadline: "2091-05-01", Time: "09:00"})

	require.NoError(t, repo.SetDeadline(ctx, "test-update", "2091-05-03", nil))
	task, err := repo.Get(ctx, "test-update")
	require.NoError(t, err)
	assert.Equal(t, "2091-05-03", task.Deadline)
	assert.Equal(t, "09:00", task.Time, "nil time keeps the stored one")

	completed := time.Date(2091, time.May, 2, 12, 0, 0, 0, time.UTC)
	hours := 2.5
	require.NoError(t, repo.SetStatus(ctx, "test-update", domain.TaskDone, &completed, &hours))
	require.NoError(t, repo.SetComment(ctx, "test-update", "готово"))

	task, err = repo.Get(ctx, "test-update")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, completed.Equal(*task.CompletedAt))
	require.NotNil(t, task.HoursSpent)
	assert.Equal(t, 2.5, *task.HoursSpent)
	assert.Equal(t, "готово", task.Comment)

	assert.ErrorIs(t, repo.SetComment(ctx, "test-missing", "x"), domain.ErrTaskNotFound)
}
