package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository/memory"
	"github.com/fastygo/taskbot/usecase"
)

var testNow = time.Date(2025, time.April, 10, 12, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	mu        sync.Mutex
	deleteErr error
	deleted   []string
	updated   []string
}

func (f *fakeCalendar) CreateEvent(context.Context, string, string, string) (string, error) {
	return "new-event", nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, eventID, date, clock string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, eventID+"@"+date+" "+clock)
	return eventID, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	return f.deleteErr
}

type fakeSheet struct {
	mu        sync.Mutex
	statuses  []usecase.RowStatusUpdate
	deadlines []string
}

func (f *fakeSheet) AppendTaskRow(context.Context, *domain.Task) (int, error) { return 1, nil }

func (f *fakeSheet) UpdateRowStatus(_ context.Context, _ int, update usecase.RowStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, update)
	return nil
}

func (f *fakeSheet) UpdateRowDeadline(_ context.Context, _ int, deadline string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines = append(f.deadlines, deadline)
	return nil
}

type recordingBuffer struct {
	operations []string
}

func (b *recordingBuffer) BufferTask(_ context.Context, operation string, _ *domain.Task) error {
	b.operations = append(b.operations, operation)
	return nil
}

// failingStore rejects every write as if the database were unreachable.
type failingStore struct {
	*memory.TaskRepository
}

func (failingStore) SetStatus(context.Context, string, domain.TaskStatus, *time.Time, *float64) error {
	return errors.New("connection refused")
}

type fixture struct {
	uc       *UseCase
	tasks    *memory.TaskRepository
	calendar *fakeCalendar
	sheet    *fakeSheet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tasks:    memory.NewTaskRepository(time.UTC),
		calendar: &fakeCalendar{},
		sheet:    &fakeSheet{},
	}
	f.tasks.Now = func() time.Time { return testNow }
	f.uc = New(Deps{
		Tasks:    f.tasks,
		Sessions: memory.NewSessionRepository(time.Hour),
		Calendar: f.calendar,
		Sheet:    f.sheet,
	}, Options{Timeout: time.Second, Location: time.UTC})
	f.uc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) add(t *testing.T, task domain.Task) *domain.Task {
	t.Helper()
	require.NoError(t, f.tasks.Insert(context.Background(), &task))
	return &task
}

func (f *fixture) linked(t *testing.T, userID int64) *domain.Task {
	event, row := "evt-1", 7
	return f.add(t, domain.Task{
		ID: "t-1", UserID: userID, Title: "Отчёт", Deadline: "2025-04-11", Time: "10:00",
		CalendarEventID: &event, SheetRow: &row,
	})
}

func (f *fixture) say(t *testing.T, userID int64, body string) []domain.Reply {
	t.Helper()
	replies, handled, err := f.uc.HandleSessionInput(context.Background(), domain.Inbound{UserID: userID, ChatID: userID, Text: &body})
	require.NoError(t, err)
	require.True(t, handled)
	return replies
}

func (f *fixture) press(t *testing.T, userID int64, data string) []domain.Reply {
	t.Helper()
	replies, err := f.uc.HandleAction(context.Background(), userID, userID, data)
	require.NoError(t, err)
	return replies
}

func TestListPageClampsAndPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 7; i++ {
		f.add(t, domain.Task{ID: fmt.Sprintf("t%d", i), UserID: 1, Title: "task", Deadline: fmt.Sprintf("2025-05-%02d", i+1)})
	}
	f.add(t, domain.Task{ID: "foreign", UserID: 2, Deadline: "2025-04-01"})

	page, err := f.uc.ListPage(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Tasks, 3)
	assert.Equal(t, "t3", page.Tasks[0].ID)

	last, err := f.uc.ListPage(context.Background(), 1, 99)
	require.NoError(t, err)
	assert.Equal(t, 2, last.Page)
	assert.Len(t, last.Tasks, 1)

	reply := renderPage(1, page, DefaultPageSize)
	nav := reply.Buttons[len(reply.Buttons)-2]
	require.Len(t, nav, 3)
	assert.Equal(t, "task_page_0", nav[0].Data)
	assert.Equal(t, "2/3", nav[1].Text)
	assert.Equal(t, "task_page_2", nav[2].Data)
	assert.Contains(t, reply.Text, "4. 📌 task")
}

func TestEmptyListOffersNewTask(t *testing.T) {
	f := newFixture(t)
	replies := f.press(t, 1, ActionList)
	require.Len(t, replies, 1)
	assert.Equal(t, textNoTasks, replies[0].Text)
	assert.Equal(t, ActionNewTask, replies[0].Buttons[0][0].Data)
}

func TestGetTaskEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	f.linked(t, 1)

	_, err := f.uc.GetTask(context.Background(), 2, "t-1")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	replies := f.press(t, 2, ActionView+"t-1")
	assert.Equal(t, textTaskNotFound, replies[0].Text)
}

func TestCompleteSyncsExternalRecords(t *testing.T) {
	f := newFixture(t)
	f.linked(t, 1)
	f.calendar.deleteErr = domain.ErrExternalNotFound

	task, err := f.uc.Complete(context.Background(), 1, "t-1", 2.5, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, task.Status)

	stored, err := f.tasks.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, stored.Status)
	require.NotNil(t, stored.HoursSpent)
	assert.Equal(t, 2.5, *stored.HoursSpent)
	assert.Equal(t, testNow, *stored.CompletedAt)

	assert.Equal(t, []string{"evt-1"}, f.calendar.deleted)
	require.Len(t, f.sheet.statuses, 1)
	assert.Equal(t, domain.TaskDone, f.sheet.statuses[0].Status)

	_, err = f.uc.Complete(context.Background(), 1, "t-1", 1, nil)
	assert.ErrorIs(t, err, domain.ErrTaskAlreadyDone)

	_, err = f.uc.Complete(context.Background(), 1, "t-1", -1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidHours)
}

func TestExtendUpdatesStoreCalendarAndSheet(t *testing.T) {
	f := newFixture(t)
	f.linked(t, 1)

	task, err := f.uc.Extend(context.Background(), 1, "t-1", "20.04", "9")
	require.NoError(t, err)
	assert.Equal(t, "2025-04-20", task.Deadline)
	assert.Equal(t, "09:00", task.Time)

	stored, _ := f.tasks.Get(context.Background(), "t-1")
	assert.Equal(t, "2025-04-20", stored.Deadline)
	assert.Equal(t, []string{"evt-1@2025-04-20 09:00"}, f.calendar.updated)
	assert.Equal(t, []string{"2025-04-20"}, f.sheet.deadlines)

	_, err = f.uc.Extend(context.Background(), 1, "t-1", "someday", "")
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestMarkDoneDialogue(t *testing.T) {
	f := newFixture(t)
	f.linked(t, 1)

	replies := f.press(t, 1, ActionMarkDone+"t-1")
	assert.Contains(t, replies[0].Text, textAskHours)

	replies = f.say(t, 1, "много")
	assert.Equal(t, textBadHours, replies[0].Text)

	replies = f.say(t, 1, "1,5")
	assert.Contains(t, replies[0].Text, "1.5 ч")
	assert.Equal(t, ActionCommentYes, replies[0].Buttons[0][0].Data)

	replies = f.say(t, 1, "текст вместо кнопки")
	assert.Equal(t, textChooseButton, replies[0].Text)

	replies = f.press(t, 1, ActionCommentYes)
	assert.Equal(t, textAskComment, replies[0].Text)

	replies = f.say(t, 1, "  сделано с опозданием ")
	assert.Equal(t, textCommentSaved, replies[0].Text)

	stored, _ := f.tasks.Get(context.Background(), "t-1")
	assert.Equal(t, domain.TaskDone, stored.Status)
	assert.Equal(t, "сделано с опозданием", stored.Comment)

	_, handled, err := f.uc.HandleSessionInput(context.Background(), domain.Inbound{UserID: 1, ChatID: 1, Text: domain.Str("hi")})
	require.NoError(t, err)
	assert.False(t, handled, "session closed after the comment")

	replies = f.press(t, 1, ActionMarkDone+"t-1")
	assert.Equal(t, textAlreadyDone, replies[0].Text)
}

func TestExtendDialogue(t *testing.T) {
	f := newFixture(t)
	f.linked(t, 1)

	f.press(t, 1, ActionExtend+"t-1")
	replies := f.say(t, 1, "вчера-позавчера")
	assert.Equal(t, textBadDate, replies[0].Text)

	replies = f.say(t, 1, "завтра")
	assert.Equal(t, textAskTime, replies[0].Text)

	replies = f.say(t, 1, "99")
	assert.Equal(t, textBadTime, replies[0].Text)

	replies = f.say(t, 1, "16:45")
	assert.Contains(t, replies[0].Text, "11.04.2025 16:45")

	stored, _ := f.tasks.Get(context.Background(), "t-1")
	assert.Equal(t, "2025-04-11", stored.Deadline)
	assert.Equal(t, "16:45", stored.Time)
}

func TestOpenCompletionOnDoneTaskRecordsHoursOnly(t *testing.T) {
	f := newFixture(t)
	done := testNow.Add(-time.Hour)
	task := f.add(t, domain.Task{ID: "d-1", UserID: 3, Title: "Уже сделано", Status: domain.TaskDone, CompletedAt: &done})

	reply, err := f.uc.OpenCompletion(context.Background(), 3, task)
	require.NoError(t, err)
	assert.Equal(t, textAskHours, reply.Text)

	f.say(t, 3, "2")
	stored, _ := f.tasks.Get(context.Background(), "d-1")
	assert.Equal(t, done, *stored.CompletedAt)
	assert.Equal(t, 2.0, *stored.HoursSpent)

	f.press(t, 3, ActionCommentNo)
	_, handled, _ := f.uc.HandleSessionInput(context.Background(), domain.Inbound{UserID: 3, ChatID: 3, Text: domain.Str("x")})
	assert.False(t, handled)
}

func TestStoreOutageIsBuffered(t *testing.T) {
	f := newFixture(t)
	f.linked(t, 1)
	buf := &recordingBuffer{}
	f.uc.tasks = failingStore{f.tasks}
	f.uc.writer.Buffer = buf

	task, err := f.uc.Complete(context.Background(), 1, "t-1", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, task.Status)
	assert.Equal(t, []string{usecase.OperationStatus}, buf.operations)
}

func TestCallbacksExcludeNewTask(t *testing.T) {
	exact, prefixes := Callbacks()
	assert.NotContains(t, exact, ActionNewTask)
	assert.Contains(t, prefixes, ActionMarkDone)
}
