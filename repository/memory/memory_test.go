package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

func TestDraftMergeRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewDraftRepository()

	draft := domain.NewDraft(7, 70)
	draft.Messages = []*string{domain.Str("a"), nil, domain.Str("c")}
	draft.Files = []string{"x.pdf", "фотография"}
	require.NoError(t, repo.Put(ctx, draft))

	merged, err := repo.Merge(ctx, 7, domain.SetField(domain.FieldDeadline, domain.Str("2025-05-01")))
	require.NoError(t, err)
	require.NotNil(t, merged)

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01", *got.Deadline)
	assert.Equal(t, []string{"x.pdf", "фотография"}, got.Files)
	require.Len(t, got.Messages, 3)
	assert.Nil(t, got.Messages[1])
	assert.Nil(t, got.Title)
}

func TestDraftMergeWithoutDraftIsNoop(t *testing.T) {
	repo := NewDraftRepository()
	merged, err := repo.Merge(context.Background(), 1, domain.SetStep(domain.StepConfirm))
	require.NoError(t, err)
	assert.Nil(t, merged)

	_, err = repo.Get(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestTaskOrderingAndQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(time.UTC)
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	repo.Now = func() time.Time { return now }

	for _, task := range []*domain.Task{
		{ID: "no-time", UserID: 1, Deadline: "2025-04-11"},
		{ID: "morning", UserID: 1, Deadline: "2025-04-11", Time: "09:00"},
		{ID: "later", UserID: 1, Deadline: "2025-04-12", Time: "08:00"},
		{ID: "undated", UserID: 1},
		{ID: "other-user", UserID: 2, Deadline: "2025-04-10", Time: "13:00"},
		{ID: "done", UserID: 1, Deadline: "2025-04-10", Status: domain.TaskDone},
	} {
		require.NoError(t, repo.Insert(ctx, task))
	}

	tasks, err := repo.QueryActive(ctx, repository.ActiveFilter{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"morning", "no-time", "later", "undated"}, ids(tasks))

	tomorrow, err := repo.QueryActive(ctx, repository.ActiveFilter{Deadline: "2025-04-11"})
	require.NoError(t, err)
	assert.Equal(t, []string{"morning", "no-time"}, ids(tomorrow))

	due, err := repo.QueryDueWithin(ctx, 45*time.Minute, 90*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"other-user"}, ids(due))
}

func TestTaskUpdatesRequireExistingTask(t *testing.T) {
	repo := NewTaskRepository(time.UTC)
	err := repo.SetComment(context.Background(), "missing", "x")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(time.Minute).(*sessionRepository)
	now := time.Now()
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.Save(ctx, &domain.ActionSession{UserID: 3, TaskID: "t", Kind: domain.SessionExtend, Stage: domain.StageDate}))
	got, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "t", got.TaskID)

	now = now.Add(2 * time.Minute)
	_, err = repo.Get(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func ids(tasks []domain.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
