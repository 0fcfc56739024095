// Package bot routes chat updates to the intake dialogue and the task
// lifecycle use cases, one update at a time per user.
package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/metrics"
	appLogger "github.com/fastygo/taskbot/pkg/logger"
	"github.com/fastygo/taskbot/usecase"
	"github.com/fastygo/taskbot/usecase/intake"
	"github.com/fastygo/taskbot/usecase/task"
)

// Keyboard labels that act like commands.
const (
	ButtonNewTask = "➕ Новая задача"
	ButtonTasks   = "📋 Мои задачи"
)

const (
	textGreeting = "👋 Привет! Я помогу собрать задачу из сообщений.\n\n" +
		"Перешли мне сообщения, файлы или фото, относящиеся к задаче, и нажми «Готово». " +
		"Я разберу срок, время и постановщика, уточню недостающее и добавлю задачу в таблицу и календарь.\n\n" +
		"/task — новая задача\n/tasks — мои задачи\n/cancel — отменить текущую задачу"
	textFailure = "⚠️ Что-то пошло не так. Попробуй ещё раз."
	textUnknown = "🤔 Не знаю такой команды. Напиши /help."
)

// CallbackAnswerer acknowledges button presses so clients stop showing a spinner.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

type Router struct {
	dispatcher *usecase.Dispatcher
	intake     *intake.Service
	tasks      *task.UseCase
	notifier   usecase.Notifier
	locks      *userLocks
	metrics    *metrics.Collectors
	logger     *zap.Logger
}

func NewRouter(
	intakeSvc *intake.Service,
	tasks *task.UseCase,
	notifier usecase.Notifier,
	collectors *metrics.Collectors,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		dispatcher: usecase.NewDispatcher(),
		intake:     intakeSvc,
		tasks:      tasks,
		notifier:   notifier,
		locks:      newUserLocks(),
		metrics:    collectors,
		logger:     logger,
	}
	r.register()
	return r
}

func (r *Router) register() {
	d := r.dispatcher

	d.RegisterCommand("/start", r.greet)
	d.RegisterCommand("/help", r.greet)
	for _, name := range []string{"/task", ButtonNewTask} {
		d.RegisterCommand(name, func(ctx context.Context, msg domain.Inbound) ([]domain.Reply, error) {
			_ = r.tasks.CancelSession(ctx, msg.UserID)
			return r.intake.StartNew(ctx, msg.UserID, msg.ChatID)
		})
	}
	for _, name := range []string{"/tasks", ButtonTasks} {
		d.RegisterCommand(name, func(ctx context.Context, msg domain.Inbound) ([]domain.Reply, error) {
			return r.tasks.List(ctx, msg.UserID, msg.ChatID, 0)
		})
	}
	d.RegisterCommand("/cancel", func(ctx context.Context, msg domain.Inbound) ([]domain.Reply, error) {
		if err := r.tasks.CancelSession(ctx, msg.UserID); err != nil {
			r.logger.Warn("failed to drop action session", zap.Int64("user_id", msg.UserID), zap.Error(err))
		}
		return r.intake.Cancel(ctx, msg.UserID, msg.ChatID)
	})

	intakeAction := func(ctx context.Context, cb domain.Callback) ([]domain.Reply, error) {
		return r.intake.HandleAction(ctx, cb.UserID, cb.ChatID, cb.Data)
	}
	exact, prefixes := intake.Callbacks()
	registerCallbacks(d, exact, prefixes, intakeAction)

	taskAction := func(ctx context.Context, cb domain.Callback) ([]domain.Reply, error) {
		return r.tasks.HandleAction(ctx, cb.UserID, cb.ChatID, cb.Data)
	}
	exact, prefixes = task.Callbacks()
	registerCallbacks(d, exact, prefixes, taskAction)

	d.RegisterCallback(task.ActionNewTask, func(ctx context.Context, cb domain.Callback) ([]domain.Reply, error) {
		_ = r.tasks.CancelSession(ctx, cb.UserID)
		return r.intake.StartNew(ctx, cb.UserID, cb.ChatID)
	})
}

func registerCallbacks(d *usecase.Dispatcher, exact, prefixes []string, handler usecase.CallbackHandler) {
	for _, data := range exact {
		d.RegisterCallback(data, handler)
	}
	for _, prefix := range prefixes {
		d.RegisterCallbackPrefix(prefix, handler)
	}
}

// Handle processes one update and delivers the replies. Errors are logged
// and answered with a generic message; they never escape to the transport.
func (r *Router) Handle(ctx context.Context, upd domain.Update) {
	userID := upd.UserID()
	if userID == 0 {
		return
	}
	logger := appLogger.FromContext(ctx, r.logger).With(zap.Int64("user_id", userID), zap.Int64("update_id", upd.ID))

	unlock := r.locks.Lock(userID)
	defer unlock()

	replies, err := r.Dispatch(ctx, upd)

	if upd.Callback != nil {
		if answerer, ok := r.notifier.(CallbackAnswerer); ok {
			if ackErr := answerer.AnswerCallback(ctx, upd.Callback.ID, ""); ackErr != nil {
				logger.Debug("callback acknowledgement failed", zap.Error(ackErr))
			}
		}
	}
	if err != nil {
		logger.Error("update handling failed", zap.Error(err))
		replies = []domain.Reply{{ChatID: upd.ChatID(), Text: textFailure}}
	}
	r.deliver(ctx, logger, replies)
}

// Dispatch computes the replies for one update without sending them.
// Callers must hold the user's lock or otherwise serialise updates per user.
func (r *Router) Dispatch(ctx context.Context, upd domain.Update) ([]domain.Reply, error) {
	switch {
	case upd.Callback != nil:
		r.metrics.Update("callback")
		return r.dispatcher.ExecuteCallback(ctx, *upd.Callback)
	case upd.Message != nil:
		r.metrics.Update("message")
		return r.onMessage(ctx, *upd.Message)
	}
	return nil, nil
}

func (r *Router) onMessage(ctx context.Context, msg domain.Inbound) ([]domain.Reply, error) {
	if name, ok := r.command(msg); ok {
		if r.dispatcher.HasCommand(name) {
			return r.dispatcher.ExecuteCommand(ctx, name, msg)
		}
		return []domain.Reply{{ChatID: msg.ChatID, Text: textUnknown}}, nil
	}

	replies, handled, err := r.tasks.HandleSessionInput(ctx, msg)
	if err != nil || handled {
		return replies, err
	}
	return r.intake.HandleMessage(ctx, msg)
}

// command extracts a slash command or keyboard label from a plain message.
// Forwarded messages are always task material.
func (r *Router) command(msg domain.Inbound) (string, bool) {
	if msg.Text == nil || msg.ForwardedFrom != "" || msg.Attachment != "" {
		return "", false
	}
	text := strings.TrimSpace(*msg.Text)
	if r.dispatcher.HasCommand(text) && !strings.HasPrefix(text, "/") {
		return text, true
	}
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0]
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name), true
}

func (r *Router) greet(_ context.Context, msg domain.Inbound) ([]domain.Reply, error) {
	return []domain.Reply{{
		ChatID:   msg.ChatID,
		Text:     textGreeting,
		Keyboard: [][]string{{ButtonNewTask, ButtonTasks}},
	}}, nil
}

func (r *Router) deliver(ctx context.Context, logger *zap.Logger, replies []domain.Reply) {
	if r.notifier == nil {
		return
	}
	for _, reply := range replies {
		if reply.Text == "" {
			continue
		}
		if err := r.notifier.Send(ctx, reply); err != nil {
			logger.Warn("failed to deliver reply", zap.Int64("chat_id", reply.ChatID), zap.Error(err))
		}
	}
}
