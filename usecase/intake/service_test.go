package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
	"github.com/fastygo/taskbot/repository/memory"
	"github.com/fastygo/taskbot/usecase"
)

type fakeExtractor struct {
	fields *domain.ExtractedFields
	err    error
	text   string
	sender string
	calls  int
}

func (f *fakeExtractor) Extract(_ context.Context, text string, _ []string, sender string) (*domain.ExtractedFields, error) {
	f.calls++
	f.text, f.sender = text, sender
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.fields
	return &copied, nil
}

type fakeCalendar struct {
	mu      sync.Mutex
	err     error
	created []string
}

func (f *fakeCalendar) CreateEvent(_ context.Context, title, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, title)
	return "event-1", nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, eventID, _, _ string) (string, error) {
	return eventID, nil
}

func (f *fakeCalendar) DeleteEvent(context.Context, string) error { return nil }

type fakeSheet struct {
	mu       sync.Mutex
	err      error
	appended int
}

func (f *fakeSheet) AppendTaskRow(context.Context, *domain.Task) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.appended++
	return 41 + f.appended, nil
}

func (f *fakeSheet) UpdateRowStatus(context.Context, int, usecase.RowStatusUpdate) error { return nil }

func (f *fakeSheet) UpdateRowDeadline(context.Context, int, string) error { return nil }

type fakeCompletion struct {
	opened []string
}

func (f *fakeCompletion) OpenCompletion(_ context.Context, chatID int64, task *domain.Task) (domain.Reply, error) {
	f.opened = append(f.opened, task.ID)
	return domain.Reply{ChatID: chatID, Text: "hours?"}, nil
}

type harness struct {
	svc        *Service
	drafts     repository.DraftRepository
	tasks      *memory.TaskRepository
	extractor  *fakeExtractor
	calendar   *fakeCalendar
	sheet      *fakeSheet
	completion *fakeCompletion
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		drafts:     memory.NewDraftRepository(),
		tasks:      memory.NewTaskRepository(time.UTC),
		extractor:  &fakeExtractor{fields: &domain.ExtractedFields{}},
		calendar:   &fakeCalendar{},
		sheet:      &fakeSheet{},
		completion: &fakeCompletion{},
	}
	h.svc = New(Deps{
		Drafts:     h.drafts,
		Tasks:      h.tasks,
		Extractor:  h.extractor,
		Calendar:   h.calendar,
		Sheet:      h.sheet,
		Completion: h.completion,
	}, Options{Timeout: time.Second, Location: time.UTC})
	h.svc.now = func() time.Time { return testNow }
	return h
}

func (h *harness) send(t *testing.T, userID int64, body string) []domain.Reply {
	t.Helper()
	replies, err := h.svc.HandleMessage(context.Background(), domain.Inbound{UserID: userID, ChatID: userID, Text: text(body)})
	require.NoError(t, err)
	return replies
}

func (h *harness) press(t *testing.T, userID int64, action string) []domain.Reply {
	t.Helper()
	replies, err := h.svc.HandleAction(context.Background(), userID, userID, action)
	require.NoError(t, err)
	return replies
}

func (h *harness) draft(t *testing.T, userID int64) *domain.Draft {
	t.Helper()
	d, err := h.drafts.Get(context.Background(), userID)
	require.NoError(t, err)
	return d
}

func (h *harness) putConfirmable(t *testing.T, userID int64) {
	t.Helper()
	d := domain.NewDraft(userID, userID)
	d.Step = domain.StepConfirm
	d.Messages = []*string{text("Сделать отчёт https://example.com/brief")}
	d.Title = text("Сделать отчёт")
	d.Deadline = text("2025-05-01")
	d.Time = text("09:00")
	d.AssignedBy = text("Ivan")
	d.Comment = text("")
	require.NoError(t, h.drafts.Put(context.Background(), d))
}

func TestScenarioAMissingDeadlineIsAskedFirst(t *testing.T) {
	h := newHarness(t)
	h.extractor.fields = &domain.ExtractedFields{Title: text("Сделать отчёт")}

	replies := h.send(t, 1, "Сделать отчёт")
	require.Len(t, replies, 1)
	assert.Equal(t, ActionCollectDone, replies[0].Buttons[0][0].Data)

	replies = h.press(t, 1, ActionCollectDone)
	require.NotEmpty(t, replies)
	assert.Contains(t, replies[len(replies)-1].Text, "срок")

	d := h.draft(t, 1)
	assert.Equal(t, domain.StepAskDeadline, d.Step)
	assert.Equal(t, "Сделать отчёт", *d.Title)
	assert.Equal(t, "Сделать отчёт", h.extractor.text)
}

func TestFullDialogueWithForwardedSender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.HandleMessage(ctx, domain.Inbound{UserID: 2, ChatID: 2, Text: text("Нужен отчёт"), ForwardedFrom: "Ivan Petrov"})
	require.NoError(t, err)
	_, err = h.svc.HandleMessage(ctx, domain.Inbound{UserID: 2, ChatID: 2, Attachment: "data.xlsx", ForwardedFrom: "Someone Else"})
	require.NoError(t, err)

	h.press(t, 2, ActionCollectDone)
	assert.Equal(t, "Ivan Petrov", h.extractor.sender)

	h.send(t, 2, "завтра")
	assert.Equal(t, domain.StepAskTime, h.draft(t, 2).Step)

	replies := h.send(t, 2, "9")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Ivan Petrov")
	assert.Equal(t, domain.StepConfirmAssignedBy, h.draft(t, 2).Step)

	h.press(t, 2, ActionSenderYes)
	d := h.draft(t, 2)
	assert.Equal(t, "Ivan Petrov", *d.AssignedBy)
	assert.Equal(t, domain.StepAskComment, d.Step)

	replies = h.send(t, 2, "к обеду")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, textConfirmAsk)

	d = h.draft(t, 2)
	assert.Equal(t, domain.StepConfirm, d.Step)
	assert.Equal(t, "2025-04-11", *d.Deadline)
	assert.Equal(t, "09:00", *d.Time)
	assert.Equal(t, "к обеду", *d.Comment)
	assert.Len(t, d.Messages, 2)
	assert.Equal(t, []string{"data.xlsx"}, d.Files)
}

func TestInvalidAnswerRepromptsWithoutStateChange(t *testing.T) {
	h := newHarness(t)
	h.send(t, 3, "Задача")
	h.press(t, 3, ActionCollectDone)
	before := h.draft(t, 3)

	replies := h.send(t, 3, "когда-нибудь")
	require.Len(t, replies, 1)
	assert.Equal(t, textBadDate, replies[0].Text)

	after := h.draft(t, 3)
	assert.Equal(t, before.Step, after.Step)
	assert.Nil(t, after.Deadline)
}

func TestSkipStoresExplicitBlank(t *testing.T) {
	h := newHarness(t)
	h.send(t, 4, "Задача")
	h.press(t, 4, ActionCollectDone)

	h.press(t, 4, ActionSkip)
	d := h.draft(t, 4)
	require.NotNil(t, d.Deadline)
	assert.Equal(t, "", *d.Deadline)
	assert.Equal(t, domain.StepAskTime, d.Step)
}

func TestExtractorFailureFallsBackToQuestions(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = errors.New("model unavailable")

	h.send(t, 5, "Позвонить клиенту")
	replies := h.press(t, 5, ActionCollectDone)
	require.Len(t, replies, 2)
	assert.Equal(t, textExtracting, replies[0].Text)

	d := h.draft(t, 5)
	assert.Equal(t, domain.StepAskDeadline, d.Step)
	assert.Equal(t, "Позвонить клиенту", *d.Title)
}

func TestScenarioCConfirmCreatesOneTask(t *testing.T) {
	h := newHarness(t)
	h.putConfirmable(t, 6)

	replies := h.press(t, 6, ActionConfirm)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Задача добавлена")

	tasks, err := h.tasks.QueryActive(context.Background(), repository.ActiveFilter{UserID: 6})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.TaskActive, task.Status)
	require.NotNil(t, task.CalendarEventID)
	assert.Equal(t, "event-1", *task.CalendarEventID)
	require.NotNil(t, task.SheetRow)
	assert.Equal(t, 42, *task.SheetRow)
	assert.Equal(t, []string{"https://example.com/brief"}, task.Links)
	assert.Equal(t, testNow, task.CreatedAt)

	_, err = h.drafts.Get(context.Background(), 6)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestScenarioDCalendarFailureStillStoresTask(t *testing.T) {
	h := newHarness(t)
	h.calendar.err = errors.New("calendar down")
	h.putConfirmable(t, 7)

	task, err := h.svc.Confirm(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, task.CalendarEventID)
	require.NotNil(t, task.SheetRow)

	stored, err := h.tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CalendarEventID)
}

func TestConfirmOutsideConfirmStepIsRejected(t *testing.T) {
	for _, step := range []domain.Step{domain.StepCollecting, domain.StepAskDeadline, domain.StepAskTime,
		domain.StepAskAssignedBy, domain.StepConfirmAssignedBy, domain.StepAskComment, domain.StepEditTitle} {
		h := newHarness(t)
		d := domain.NewDraft(8, 8)
		d.Step = step
		require.NoError(t, h.drafts.Put(context.Background(), d))

		_, err := h.svc.Confirm(context.Background(), 8)
		assert.ErrorIs(t, err, domain.ErrNotConfirmable, step)

		replies := h.press(t, 8, ActionConfirm)
		assert.Equal(t, textNotReady, replies[0].Text)

		tasks, _ := h.tasks.QueryActive(context.Background(), repository.ActiveFilter{})
		assert.Empty(t, tasks)
		assert.Equal(t, step, h.draft(t, 8).Step)
	}
}

func TestCancelFromAnyStepDeletesDraft(t *testing.T) {
	for _, action := range []string{ActionCollectCancel, ActionCancel, ActionReset} {
		for _, step := range []domain.Step{domain.StepCollecting, domain.StepAskTime, domain.StepConfirm, domain.StepEditComment} {
			h := newHarness(t)
			d := domain.NewDraft(9, 9)
			d.Step = step
			require.NoError(t, h.drafts.Put(context.Background(), d))

			h.press(t, 9, action)
			_, err := h.drafts.Get(context.Background(), 9)
			assert.ErrorIs(t, err, domain.ErrDraftNotFound)

			tasks, _ := h.tasks.QueryActive(context.Background(), repository.ActiveFilter{})
			assert.Empty(t, tasks)
		}
	}
}

func TestEditFromCardChangesOnlyOneField(t *testing.T) {
	h := newHarness(t)
	h.putConfirmable(t, 10)
	before := h.draft(t, 10)

	menu := h.press(t, 10, ActionEditMenu)
	require.Len(t, menu, 1)
	assert.Len(t, menu[0].Buttons, len(domain.EditableFields)+1)

	h.press(t, 10, "edit_time")
	assert.Equal(t, domain.StepEditTime, h.draft(t, 10).Step)

	replies := h.send(t, 10, "18.15")
	assert.Contains(t, replies[0].Text, textConfirmAsk)

	after := h.draft(t, 10)
	assert.Equal(t, domain.StepConfirm, after.Step)
	assert.Equal(t, "18:15", *after.Time)
	assert.Equal(t, *before.Title, *after.Title)
	assert.Equal(t, *before.Deadline, *after.Deadline)
	assert.Equal(t, *before.AssignedBy, *after.AssignedBy)
	assert.Equal(t, *before.Comment, *after.Comment)
}

func TestMessageAfterCardStartsNewDraft(t *testing.T) {
	h := newHarness(t)
	h.putConfirmable(t, 11)

	h.send(t, 11, "совсем другая задача")
	d := h.draft(t, 11)
	assert.Equal(t, domain.StepCollecting, d.Step)
	require.Len(t, d.Messages, 1)
	assert.Equal(t, "совсем другая задача", *d.Messages[0])
	assert.Nil(t, d.Title)
}

func TestDoneNowStoresCompletedTaskWithoutExternalSync(t *testing.T) {
	h := newHarness(t)
	h.putConfirmable(t, 12)

	replies := h.press(t, 12, ActionDoneNow)
	require.Len(t, replies, 2)
	assert.Equal(t, "hours?", replies[1].Text)

	require.Len(t, h.completion.opened, 1)
	task, err := h.tasks.Get(context.Background(), h.completion.opened[0])
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, task.Status)
	assert.NotNil(t, task.CompletedAt)
	assert.Nil(t, task.CalendarEventID)
	assert.Nil(t, task.SheetRow)
	assert.Empty(t, h.calendar.created)
	assert.Zero(t, h.sheet.appended)

	_, err = h.drafts.Get(context.Background(), 12)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestActionsWithoutDraftAnswerFriendly(t *testing.T) {
	h := newHarness(t)
	for _, action := range []string{ActionCollectDone, ActionConfirm, ActionSenderYes, ActionEditMenu, ActionDoneNow} {
		replies := h.press(t, 13, action)
		require.Len(t, replies, 1, action)
		assert.Equal(t, textNoDraft, replies[0].Text, action)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.send(t, 20, "первый")
	h.putConfirmable(t, 21)

	h.press(t, 20, ActionCollectCancel)
	assert.Equal(t, domain.StepConfirm, h.draft(t, 21).Step)
}
