package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/metrics"
	"github.com/fastygo/taskbot/repository"
	"github.com/fastygo/taskbot/usecase"
)

// CompletionOpener starts the hours/comment dialogue for a task stored as done.
type CompletionOpener interface {
	OpenCompletion(ctx context.Context, chatID int64, task *domain.Task) (domain.Reply, error)
}

// Deps are the collaborators of the intake service. Extractor, Calendar,
// Sheet, Buffer and Completion may be nil.
type Deps struct {
	Drafts     repository.DraftRepository
	Tasks      repository.TaskRepository
	Extractor  usecase.FieldExtractor
	Calendar   usecase.Calendar
	Sheet      usecase.Spreadsheet
	Buffer     usecase.OperationBuffer
	Completion CompletionOpener
	Metrics    *metrics.Collectors
	Logger     *zap.Logger
}

// Options tune external calls and date interpretation.
type Options struct {
	Timeout  time.Duration
	Location *time.Location
}

// Service drives the draft state machine for every user.
// Callers must serialise calls for the same user.
type Service struct {
	drafts     repository.DraftRepository
	tasks      repository.TaskRepository
	extractor  usecase.FieldExtractor
	calendar   usecase.Calendar
	sheet      usecase.Spreadsheet
	completion CompletionOpener
	caller     usecase.ExternalCaller
	writer     usecase.TaskWriter
	metrics    *metrics.Collectors
	logger     *zap.Logger
	loc        *time.Location
	now        func() time.Time
}

func New(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		drafts:     deps.Drafts,
		tasks:      deps.Tasks,
		extractor:  deps.Extractor,
		calendar:   deps.Calendar,
		sheet:      deps.Sheet,
		completion: deps.Completion,
		caller:     usecase.ExternalCaller{Timeout: opts.Timeout, Metrics: deps.Metrics, Logger: logger},
		writer:     usecase.TaskWriter{Buffer: deps.Buffer, Metrics: deps.Metrics, Logger: logger},
		metrics:    deps.Metrics,
		logger:     logger,
		loc:        loc,
		now:        time.Now,
	}
}

// Callbacks lists the callback data HandleAction accepts, exact values and
// prefixes.
func Callbacks() (exact, prefixes []string) {
	return []string{
			ActionCollectDone, ActionCollectCancel, ActionReset, ActionSenderYes, ActionSenderNo,
			ActionConfirm, ActionCancel, ActionEditMenu, ActionSkip, ActionDoneNow, ActionShowCard,
		},
		[]string{ActionEditPrefix}
}

// StartNew replaces any draft with an empty collecting one.
func (s *Service) StartNew(ctx context.Context, userID, chatID int64) ([]domain.Reply, error) {
	draft := domain.NewDraft(userID, chatID)
	if err := s.drafts.Put(ctx, draft); err != nil {
		return nil, err
	}
	s.metrics.Transition(string(draft.Step))
	return []domain.Reply{Prompt(draft)}, nil
}

// Cancel deletes the user's draft unconditionally.
func (s *Service) Cancel(ctx context.Context, userID, chatID int64) ([]domain.Reply, error) {
	if err := s.drafts.Delete(ctx, userID); err != nil {
		return nil, err
	}
	s.metrics.TaskEvent("cancelled")
	return []domain.Reply{{ChatID: chatID, Text: textCancelled}}, nil
}

// HandleMessage routes a free-form message by the step of the user's draft.
func (s *Service) HandleMessage(ctx context.Context, msg domain.Inbound) ([]domain.Reply, error) {
	draft, err := s.drafts.Get(ctx, msg.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			return s.seed(ctx, msg)
		}
		return nil, err
	}

	logger := s.logger.With(zap.Int64("user_id", msg.UserID), zap.String("step", string(draft.Step)))

	switch {
	case draft.Step == domain.StepConfirm || !draft.Step.Valid():
		logger.Debug("discarding shown draft for a new batch")
		return s.seed(ctx, msg)

	case draft.Step == domain.StepCollecting:
		merged, err := s.drafts.Merge(ctx, msg.UserID, func(d *domain.Draft) { Accumulate(d, msg) })
		if err != nil {
			return nil, err
		}
		if merged == nil {
			return s.seed(ctx, msg)
		}
		return []domain.Reply{{ChatID: msg.ChatID, Text: textAppended, Buttons: collectKeyboard()}}, nil

	case draft.Step == domain.StepConfirmAssignedBy:
		return []domain.Reply{Prompt(draft)}, nil
	}

	if msg.Text == nil {
		return []domain.Reply{{ChatID: msg.ChatID, Text: textNeedText}, Prompt(draft)}, nil
	}
	return s.answer(ctx, draft, *msg.Text)
}

// HandleAction applies a button press to the user's draft.
func (s *Service) HandleAction(ctx context.Context, userID, chatID int64, action string) ([]domain.Reply, error) {
	switch action {
	case ActionCollectCancel, ActionCancel:
		return s.Cancel(ctx, userID, chatID)
	case ActionReset:
		if err := s.drafts.Delete(ctx, userID); err != nil {
			return nil, err
		}
		return []domain.Reply{{ChatID: chatID, Text: textReset}}, nil
	case ActionConfirm:
		return s.confirmReplies(ctx, userID, chatID)
	}

	draft, err := s.drafts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrDraftNotFound) {
			return noDraft(chatID), nil
		}
		return nil, err
	}
	// Replies go to the chat the button was pressed in.
	draft.ChatID = chatID

	switch action {
	case ActionCollectDone:
		return s.finalize(ctx, draft)
	case ActionSenderYes, ActionSenderNo:
		if draft.Step != domain.StepConfirmAssignedBy {
			return []domain.Reply{Prompt(draft)}, nil
		}
		update := AcceptSender
		if action == ActionSenderNo {
			update = RejectSender
		}
		return s.persistStep(ctx, draft, update)
	case ActionSkip:
		if _, ok := draft.Step.AnswerField(); !ok {
			return []domain.Reply{Prompt(draft)}, nil
		}
		return s.answer(ctx, draft, "")
	case ActionEditMenu:
		if draft.Step != domain.StepConfirm {
			return notReady(draft), nil
		}
		return []domain.Reply{EditMenu(draft)}, nil
	case ActionShowCard:
		if draft.Step != domain.StepConfirm && !draft.Step.IsEdit() {
			return notReady(draft), nil
		}
		return s.persistStep(ctx, draft, func(d *domain.Draft) { d.Step = domain.StepConfirm })
	case ActionDoneNow:
		return s.doneNow(ctx, draft)
	}

	if name, ok := strings.CutPrefix(action, ActionEditPrefix); ok {
		field, known := domain.ParseField(name)
		if !known {
			return nil, fmt.Errorf("unknown draft field %q", name)
		}
		if draft.Step != domain.StepConfirm && !draft.Step.IsEdit() {
			return notReady(draft), nil
		}
		return s.persistStep(ctx, draft, func(d *domain.Draft) { d.Step = domain.EditStep(field) })
	}
	return nil, fmt.Errorf("unknown intake action %q", action)
}

// Confirm turns a draft in the confirm step into a stored task. Calendar and
// spreadsheet failures leave the matching external identifier nil. The draft
// is only deleted once the task is stored or buffered.
func (s *Service) Confirm(ctx context.Context, userID int64) (*domain.Task, error) {
	draft, err := s.drafts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft.Step != domain.StepConfirm {
		return nil, domain.ErrNotConfirmable
	}

	task := BuildTask(draft, s.now())
	task.ID = uuid.NewString()
	s.syncExternal(ctx, task)

	if err := s.writer.Write(ctx, usecase.OperationCreate, task, func(ctx context.Context) error {
		return s.tasks.Insert(ctx, task)
	}); err != nil {
		return nil, fmt.Errorf("store task: %w", err)
	}
	if err := s.drafts.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to delete confirmed draft", zap.Int64("user_id", userID), zap.Error(err))
	}

	s.metrics.TaskEvent("confirmed")
	s.logger.Info("task confirmed",
		zap.Int64("user_id", userID),
		zap.String("task_id", task.ID),
		zap.Bool("calendar", task.CalendarEventID != nil),
		zap.Bool("sheet", task.SheetRow != nil))
	return task, nil
}

func (s *Service) confirmReplies(ctx context.Context, userID, chatID int64) ([]domain.Reply, error) {
	task, err := s.Confirm(ctx, userID)
	switch {
	case err == nil:
		return []domain.Reply{TaskCreated(chatID, task)}, nil
	case errors.Is(err, domain.ErrDraftNotFound):
		return noDraft(chatID), nil
	case errors.Is(err, domain.ErrNotConfirmable):
		draft, getErr := s.drafts.Get(ctx, userID)
		if getErr != nil {
			return noDraft(chatID), nil
		}
		draft.ChatID = chatID
		return notReady(draft), nil
	}
	s.logger.Error("confirmation failed", zap.Int64("user_id", userID), zap.Error(err))
	return []domain.Reply{{ChatID: chatID, Text: textStoreFailed}}, nil
}

// syncExternal creates the calendar event and spreadsheet row concurrently.
// Failures are logged by the caller and never abort confirmation.
func (s *Service) syncExternal(ctx context.Context, task *domain.Task) {
	snapshot := *task
	var (
		eventID *string
		row     *int
		g       errgroup.Group
	)

	if s.calendar != nil && snapshot.Deadline != "" {
		g.Go(func() error {
			_ = s.caller.Call(ctx, "calendar", func(ctx context.Context) error {
				id, err := s.calendar.CreateEvent(ctx, snapshot.Title, snapshot.Deadline, snapshot.Time)
				if err == nil && id != "" {
					eventID = &id
				}
				return err
			})
			return nil
		})
	}
	if s.sheet != nil {
		g.Go(func() error {
			_ = s.caller.Call(ctx, "sheet", func(ctx context.Context) error {
				n, err := s.sheet.AppendTaskRow(ctx, &snapshot)
				if err == nil {
					row = &n
				}
				return err
			})
			return nil
		})
	}
	_ = g.Wait()

	task.CalendarEventID = eventID
	task.SheetRow = row
}

// finalize ends the collecting phase: extraction, merge, completeness gate.
func (s *Service) finalize(ctx context.Context, draft *domain.Draft) ([]domain.Reply, error) {
	if draft.Step != domain.StepCollecting {
		return []domain.Reply{Prompt(draft)}, nil
	}

	fields, err := s.extract(ctx, draft)
	degraded := err != nil

	now := s.now().In(s.loc)
	merged, err := s.drafts.Merge(ctx, draft.UserID, func(d *domain.Draft) {
		if d.Step != domain.StepCollecting {
			return
		}
		var extracted *domain.ExtractedFields
		if fields != nil {
			copied := *fields
			extracted = &copied
		}
		ApplyExtraction(d, extracted, now)
		d.Step = NextStep(d)
	})
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return noDraft(draft.ChatID), nil
	}
	merged.ChatID = draft.ChatID
	s.metrics.Transition(string(merged.Step))

	replies := make([]domain.Reply, 0, 2)
	if degraded {
		replies = append(replies, domain.Reply{ChatID: draft.ChatID, Text: textExtracting})
	}
	return append(replies, Prompt(merged)), nil
}

func (s *Service) extract(ctx context.Context, draft *domain.Draft) (*domain.ExtractedFields, error) {
	if s.extractor == nil {
		return nil, domain.ErrCollaboratorDisabled
	}
	var fields *domain.ExtractedFields
	err := s.caller.Call(ctx, "extractor", func(ctx context.Context) error {
		var err error
		fields, err = s.extractor.Extract(ctx, draft.Text(), draft.Files, domain.Deref(draft.ForwardedFrom, ""))
		return err
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// answer stores a reply to the current question; invalid dates and times re-prompt.
func (s *Service) answer(ctx context.Context, draft *domain.Draft, text string) ([]domain.Reply, error) {
	next := draft.Clone()
	field, err := ApplyAnswer(next, text, s.now().In(s.loc))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidDate):
			return []domain.Reply{{ChatID: draft.ChatID, Text: textBadDate}}, nil
		case errors.Is(err, domain.ErrInvalidTime):
			return []domain.Reply{{ChatID: draft.ChatID, Text: textBadTime}}, nil
		}
		return []domain.Reply{Prompt(draft)}, nil
	}

	return s.persistStep(ctx, draft, domain.SetField(field, next.Get(field)), domain.SetStep(next.Step))
}

// persistStep merges updates into the stored draft and prompts for the resulting step.
func (s *Service) persistStep(ctx context.Context, draft *domain.Draft, updates ...domain.DraftUpdate) ([]domain.Reply, error) {
	merged, err := s.drafts.Merge(ctx, draft.UserID, updates...)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return noDraft(draft.ChatID), nil
	}
	merged.ChatID = draft.ChatID
	if merged.Step != draft.Step {
		s.metrics.Transition(string(merged.Step))
	}
	return []domain.Reply{Prompt(merged)}, nil
}

// doneNow stores the draft as an already completed task, skipping calendar
// and spreadsheet, and opens the hours dialogue.
func (s *Service) doneNow(ctx context.Context, draft *domain.Draft) ([]domain.Reply, error) {
	if draft.Step != domain.StepConfirm {
		return notReady(draft), nil
	}

	now := s.now()
	task := BuildTask(draft, now)
	task.ID = uuid.NewString()
	task.Status = domain.TaskDone
	task.CompletedAt = &now

	if err := s.writer.Write(ctx, usecase.OperationCreate, task, func(ctx context.Context) error {
		return s.tasks.Insert(ctx, task)
	}); err != nil {
		s.logger.Error("failed to store completed task", zap.Int64("user_id", draft.UserID), zap.Error(err))
		return []domain.Reply{{ChatID: draft.ChatID, Text: textStoreFailed}}, nil
	}
	if err := s.drafts.Delete(ctx, draft.UserID); err != nil {
		s.logger.Error("failed to delete completed draft", zap.Int64("user_id", draft.UserID), zap.Error(err))
	}
	s.metrics.TaskEvent("completed")

	replies := []domain.Reply{{ChatID: draft.ChatID, Text: textDoneNowStart}}
	if s.completion == nil {
		return replies, nil
	}
	next, err := s.completion.OpenCompletion(ctx, draft.ChatID, task)
	if err != nil {
		s.logger.Warn("failed to open completion dialogue", zap.String("task_id", task.ID), zap.Error(err))
		return replies, nil
	}
	return append(replies, next), nil
}

func (s *Service) seed(ctx context.Context, msg domain.Inbound) ([]domain.Reply, error) {
	draft := Seed(msg)
	if err := s.drafts.Put(ctx, draft); err != nil {
		return nil, err
	}
	s.metrics.Transition(string(draft.Step))
	return []domain.Reply{{ChatID: msg.ChatID, Text: textAppended, Buttons: collectKeyboard()}}, nil
}

func noDraft(chatID int64) []domain.Reply {
	return []domain.Reply{{ChatID: chatID, Text: textNoDraft}}
}

func notReady(draft *domain.Draft) []domain.Reply {
	return []domain.Reply{{ChatID: draft.ChatID, Text: textNotReady}, Prompt(draft)}
}
