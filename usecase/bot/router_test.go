package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
	"github.com/fastygo/taskbot/repository/memory"
	"github.com/fastygo/taskbot/usecase/intake"
	"github.com/fastygo/taskbot/usecase/task"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []domain.Reply
	answers []string
}

func (f *fakeTransport) Send(_ context.Context, reply domain.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, reply)
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, id)
	return nil
}

func (f *fakeTransport) last() domain.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type extractor struct{}

func (extractor) Extract(_ context.Context, text string, _ []string, _ string) (*domain.ExtractedFields, error) {
	return &domain.ExtractedFields{Title: &text}, nil
}

type env struct {
	router    *Router
	transport *fakeTransport
	drafts    repository.DraftRepository
	tasks     *memory.TaskRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		transport: &fakeTransport{},
		drafts:    memory.NewDraftRepository(),
		tasks:     memory.NewTaskRepository(time.UTC),
	}
	tasks := task.New(task.Deps{Tasks: e.tasks, Sessions: memory.NewSessionRepository(time.Hour)}, task.Options{Location: time.UTC})
	intakeSvc := intake.New(intake.Deps{
		Drafts:     e.drafts,
		Tasks:      e.tasks,
		Extractor:  extractor{},
		Completion: tasks,
	}, intake.Options{Timeout: time.Second, Location: time.UTC})
	e.router = NewRouter(intakeSvc, tasks, e.transport, nil, nil)
	return e
}

func message(userID int64, text string) domain.Update {
	return domain.Update{Message: &domain.Inbound{UserID: userID, ChatID: userID, Text: &text}}
}

func press(userID int64, data string) domain.Update {
	return domain.Update{Callback: &domain.Callback{ID: "cb-" + data, UserID: userID, ChatID: userID, Data: data}}
}

func TestStartShowsKeyboard(t *testing.T) {
	e := newEnv(t)
	e.router.Handle(context.Background(), message(1, "/start@taskbot"))

	reply := e.transport.last()
	assert.Equal(t, textGreeting, reply.Text)
	assert.Equal(t, [][]string{{ButtonNewTask, ButtonTasks}}, reply.Keyboard)
}

func TestConversationThroughRouter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.router.Handle(ctx, message(1, ButtonNewTask))
	d, err := e.drafts.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, d.Messages)

	e.router.Handle(ctx, message(1, "Подготовить презентацию"))
	e.router.Handle(ctx, press(1, intake.ActionCollectDone))
	assert.Contains(t, e.transport.last().Text, "срок")

	for _, answer := range []string{"2025-06-01", "11:00", "Ольга", "без комментариев"} {
		e.router.Handle(ctx, message(1, answer))
	}
	assert.Contains(t, e.transport.last().Text, "Добавить в таблицу и календарь?")

	e.router.Handle(ctx, press(1, intake.ActionConfirm))
	assert.Contains(t, e.transport.last().Text, "Задача добавлена")

	active, err := e.tasks.QueryActive(ctx, repository.ActiveFilter{UserID: 1})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Подготовить презентацию", active[0].Title)
	assert.Equal(t, "Ольга", active[0].AssignedBy)

	e.router.Handle(ctx, message(1, "/tasks"))
	assert.Contains(t, e.transport.last().Text, "Подготовить презентацию")

	e.router.Handle(ctx, press(1, task.ActionMarkDone+active[0].ID))
	e.router.Handle(ctx, message(1, "3"))
	assert.Contains(t, e.transport.last().Text, "выполнена")

	_, err = e.drafts.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound, "hours answer must not start a draft")

	assert.Contains(t, e.transport.answers, "cb-"+intake.ActionConfirm)
}

func TestUnknownCommandAndCallback(t *testing.T) {
	e := newEnv(t)
	e.router.Handle(context.Background(), message(2, "/whatever"))
	assert.Equal(t, textUnknown, e.transport.last().Text)

	e.router.Handle(context.Background(), press(2, "bogus"))
	assert.Equal(t, textFailure, e.transport.last().Text)
}

func TestForwardedCommandTextIsTaskMaterial(t *testing.T) {
	e := newEnv(t)
	text := "/tasks please"
	e.router.Handle(context.Background(), domain.Update{Message: &domain.Inbound{UserID: 3, ChatID: 3, Text: &text, ForwardedFrom: "Boss"}})

	d, err := e.drafts.Get(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, "Boss", *d.ForwardedFrom)
}

func TestCancelDropsDraft(t *testing.T) {
	e := newEnv(t)
	e.router.Handle(context.Background(), message(4, "что-то"))
	e.router.Handle(context.Background(), message(4, "/cancel"))

	_, err := e.drafts.Get(context.Background(), 4)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestUserLocksSerialiseAndRelease(t *testing.T) {
	locks := newUserLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(42)
			defer unlock()
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size())
}

func TestEveryDialogueCallbackIsRouted(t *testing.T) {
	e := newEnv(t)
	intakeExact, intakePrefixes := intake.Callbacks()
	taskExact, taskPrefixes := task.Callbacks()

	all := append(append([]string{task.ActionNewTask}, intakeExact...), taskExact...)
	for _, prefix := range append(intakePrefixes, taskPrefixes...) {
		all = append(all, prefix+"x")
	}

	for _, data := range all {
		_, err := e.router.Dispatch(context.Background(), press(5, data))
		if err != nil {
			assert.NotContains(t, err.Error(), "not registered", data)
		}
	}
}
