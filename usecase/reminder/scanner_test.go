package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository/memory"
)

type recordingNotifier struct {
	sent   []domain.Reply
	failOn int64
}

func (n *recordingNotifier) Send(_ context.Context, reply domain.Reply) error {
	if reply.ChatID == n.failOn {
		return errors.New("blocked by user")
	}
	n.sent = append(n.sent, reply)
	return nil
}

var now = time.Date(2025, time.April, 10, 9, 0, 0, 0, time.UTC)

func newScanner(t *testing.T, tasks ...domain.Task) (*Scanner, *recordingNotifier, *memory.TaskRepository) {
	t.Helper()
	repo := memory.NewTaskRepository(time.UTC)
	repo.Now = func() time.Time { return now }
	for i := range tasks {
		require.NoError(t, repo.Insert(context.Background(), &tasks[i]))
	}
	notifier := &recordingNotifier{}
	s := NewScanner(repo, notifier, Window{}, time.UTC, time.Second, nil, nil)
	s.now = func() time.Time { return now }
	return s, notifier, repo
}

func TestRemindTomorrow(t *testing.T) {
	s, notifier, repo := newScanner(t,
		domain.Task{ID: "a", UserID: 1, Title: "Отчёт", Deadline: "2025-04-11", Time: "15:00"},
		domain.Task{ID: "b", UserID: 2, Title: "Звонок", Deadline: "2025-04-11"},
		domain.Task{ID: "c", UserID: 3, Title: "Позже", Deadline: "2025-04-12"},
		domain.Task{ID: "d", UserID: 4, Title: "Готово", Deadline: "2025-04-11", Status: domain.TaskDone},
	)
	notifier.failOn = 2

	sent, err := s.RemindTomorrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, notifier.sent, 1)

	reply := notifier.sent[0]
	assert.Equal(t, int64(1), reply.ChatID)
	assert.Contains(t, reply.Text, "Завтра дедлайн")
	assert.Contains(t, reply.Text, "11.04.2025 15:00")
	assert.Equal(t, "mark_done_a", reply.Buttons[0][0].Data)
	assert.Equal(t, "extend_deadline_a", reply.Buttons[0][1].Data)

	stored, err := repo.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskActive, stored.Status, "the scanner never mutates tasks")
}

func TestRemindUpcomingUsesDefaultTime(t *testing.T) {
	s, notifier, _ := newScanner(t,
		domain.Task{ID: "no-time", UserID: 1, Title: "Без времени", Deadline: "2025-04-10"},
		domain.Task{ID: "soon", UserID: 2, Title: "Скоро", Deadline: "2025-04-10", Time: "09:30"},
		domain.Task{ID: "far", UserID: 3, Title: "Далеко", Deadline: "2025-04-10", Time: "15:00"},
	)

	sent, err := s.RemindUpcoming(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].Text, "Без времени")
	assert.Contains(t, notifier.sent[0].Text, "10.04.2025 10:00")
	assert.Contains(t, notifier.sent[0].Text, "менее часа")
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, "До дедлайна осталось менее часа!", Remaining(50*time.Minute))
	assert.Equal(t, "До дедлайна осталось 1 ч 25 мин", Remaining(85*time.Minute))
}

func TestWindowCovering(t *testing.T) {
	w := Window{Lower: 45 * time.Minute, Upper: 90 * time.Minute}
	assert.Equal(t, Window{Lower: 45 * time.Minute, Upper: 105 * time.Minute}, w.Covering(time.Hour))
	assert.Equal(t, w, w.Covering(30*time.Minute))
	assert.Equal(t, w, w.Covering(0))
}

func TestHourlyScansDoNotSkipTasks(t *testing.T) {
	repo := memory.NewTaskRepository(time.UTC)
	require.NoError(t, repo.Insert(context.Background(),
		&domain.Task{ID: "between-scans", UserID: 1, Title: "Созвон", Deadline: "2025-04-10", Time: "10:35"}))

	notifier := &recordingNotifier{}
	window := Window{Lower: 45 * time.Minute, Upper: 90 * time.Minute}.Covering(time.Hour)
	s := NewScanner(repo, notifier, window, time.UTC, time.Second, nil, nil)

	for _, at := range []time.Time{now, now.Add(time.Hour)} {
		at := at
		repo.Now = func() time.Time { return at }
		s.now = repo.Now
		_, err := s.RemindUpcoming(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].Text, "1 ч 35 мин")
}
