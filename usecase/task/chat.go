package task

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/pkg/links"
	"github.com/fastygo/taskbot/pkg/timeparse"
)

// Callback data prefixes of the task list and lifecycle dialogues.
const (
	ActionMarkDone   = "mark_done_"
	ActionExtend     = "extend_deadline_"
	ActionView       = "view_task_"
	ActionPage       = "task_page_"
	ActionList       = "task_list"
	ActionNewTask    = "new_task"
	ActionCommentYes = "add_comment_yes"
	ActionCommentNo  = "add_comment_no"
)

const (
	noValue = "—"

	textNoTasks        = "🎉 Активных задач нет."
	textTaskNotFound   = "⚠️ Задача не найдена. Возможно, она уже удалена."
	textAlreadyDone    = "✅ Эта задача уже выполнена."
	textAskHours       = "⏱ Сколько часов ушло на задачу? Напиши число, например 1.5"
	textBadHours       = "⚠️ Введи количество часов числом, например 2 или 1,5."
	textAskComment     = "💬 Напиши комментарий к выполненной задаче."
	textCommentSaved   = "💬 Комментарий сохранён."
	textCompletionDone = "👍 Готово!"
	textAskDate        = "📅 Введи новую дату (например, 25.05 или «завтра»)."
	textBadDate        = "⚠️ Не понял дату. Напиши, например, 25.05 или 25.05.2025."
	textAskTime        = "⏰ Введи новое время (например, 14:30)."
	textBadTime        = "⚠️ Не понял время. Напиши, например, 14:30."
	textChooseButton   = "👆 Выбери вариант кнопкой ниже."
	textSessionFailed  = "⚠️ Не удалось сохранить изменения. Попробуй ещё раз позже."
)

// Callbacks lists the callback data HandleAction accepts, exact values and
// prefixes. ActionNewTask is routed by the caller.
func Callbacks() (exact, prefixes []string) {
	return []string{ActionList, ActionCommentYes, ActionCommentNo},
		[]string{ActionMarkDone, ActionExtend, ActionView, ActionPage}
}

// HandleAction applies a task-list or lifecycle button press.
func (uc *UseCase) HandleAction(ctx context.Context, userID, chatID int64, data string) ([]domain.Reply, error) {
	switch {
	case data == ActionList:
		return uc.listReplies(ctx, userID, chatID, 0)
	case data == ActionCommentYes || data == ActionCommentNo:
		return uc.commentChoice(ctx, userID, chatID, data == ActionCommentYes)
	case strings.HasPrefix(data, ActionPage):
		page, err := strconv.Atoi(strings.TrimPrefix(data, ActionPage))
		if err != nil {
			page = 0
		}
		return uc.listReplies(ctx, userID, chatID, page)
	case strings.HasPrefix(data, ActionView):
		return uc.viewReplies(ctx, userID, chatID, strings.TrimPrefix(data, ActionView))
	case strings.HasPrefix(data, ActionMarkDone):
		return uc.beginComplete(ctx, userID, chatID, strings.TrimPrefix(data, ActionMarkDone))
	case strings.HasPrefix(data, ActionExtend):
		return uc.beginExtend(ctx, userID, chatID, strings.TrimPrefix(data, ActionExtend))
	}
	return nil, fmt.Errorf("unknown task action %q", data)
}

// List renders a page of the user's active tasks.
func (uc *UseCase) List(ctx context.Context, userID, chatID int64, page int) ([]domain.Reply, error) {
	return uc.listReplies(ctx, userID, chatID, page)
}

// OpenCompletion starts the hours dialogue for a task without changing it.
func (uc *UseCase) OpenCompletion(ctx context.Context, chatID int64, task *domain.Task) (domain.Reply, error) {
	session := &domain.ActionSession{
		UserID: task.UserID,
		ChatID: chatID,
		TaskID: task.ID,
		Kind:   domain.SessionComplete,
		Stage:  domain.StageHours,
	}
	if err := uc.saveSession(ctx, session); err != nil {
		return domain.Reply{}, err
	}
	return domain.Reply{ChatID: chatID, Text: textAskHours}, nil
}

// HandleSessionInput consumes a message when the user is inside a mark-done
// or extend dialogue. handled is false when no session is open.
func (uc *UseCase) HandleSessionInput(ctx context.Context, msg domain.Inbound) (replies []domain.Reply, handled bool, err error) {
	session, err := uc.sessions.Get(ctx, msg.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if session.IsExpired(uc.now()) {
		_ = uc.sessions.Delete(ctx, msg.UserID)
		return nil, false, nil
	}
	session.ChatID = msg.ChatID

	if session.Stage == domain.StageCommentChoice {
		return []domain.Reply{commentChoiceReply(msg.ChatID, textChooseButton)}, true, nil
	}
	if msg.Text == nil {
		return []domain.Reply{{ChatID: msg.ChatID, Text: stagePrompt(session.Stage)}}, true, nil
	}

	input := strings.TrimSpace(*msg.Text)
	logger := uc.logger.With(zap.Int64("user_id", msg.UserID), zap.String("task_id", session.TaskID), zap.String("stage", string(session.Stage)))

	switch session.Stage {
	case domain.StageHours:
		replies, err = uc.onHours(ctx, session, input)
	case domain.StageComment:
		replies, err = uc.onComment(ctx, session, input)
	case domain.StageDate:
		replies, err = uc.onDate(ctx, session, input)
	case domain.StageTime:
		replies, err = uc.onTime(ctx, session, input)
	default:
		_ = uc.sessions.Delete(ctx, msg.UserID)
		return nil, false, nil
	}

	if err != nil {
		logger.Warn("session step failed", zap.Error(err))
		_ = uc.sessions.Delete(ctx, msg.UserID)
		if IsNotFound(err) || errors.Is(err, domain.ErrForbidden) {
			return []domain.Reply{{ChatID: msg.ChatID, Text: textTaskNotFound}}, true, nil
		}
		if errors.Is(err, domain.ErrTaskAlreadyDone) {
			return []domain.Reply{{ChatID: msg.ChatID, Text: textAlreadyDone}}, true, nil
		}
		return []domain.Reply{{ChatID: msg.ChatID, Text: textSessionFailed}}, true, nil
	}
	return replies, true, nil
}

func (uc *UseCase) onHours(ctx context.Context, session *domain.ActionSession, input string) ([]domain.Reply, error) {
	hours, err := parseHours(input)
	if err != nil {
		return []domain.Reply{{ChatID: session.ChatID, Text: textBadHours}}, nil
	}

	task, err := uc.GetTask(ctx, session.UserID, session.TaskID)
	if err != nil {
		return nil, err
	}
	if task.IsActive() {
		task, err = uc.Complete(ctx, session.UserID, task.ID, hours, nil)
	} else {
		task, err = uc.RecordHours(ctx, session.UserID, task.ID, hours)
	}
	if err != nil {
		return nil, err
	}

	session.Stage = domain.StageCommentChoice
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}
	text := fmt.Sprintf("✅ Задача «%s» выполнена, затрачено %s ч.\nДобавить комментарий?",
		html.EscapeString(task.Title), strconv.FormatFloat(hours, 'f', -1, 64))
	return []domain.Reply{commentChoiceReply(session.ChatID, text)}, nil
}

func (uc *UseCase) onComment(ctx context.Context, session *domain.ActionSession, input string) ([]domain.Reply, error) {
	if _, err := uc.AddComment(ctx, session.UserID, session.TaskID, input); err != nil {
		return nil, err
	}
	if err := uc.sessions.Delete(ctx, session.UserID); err != nil {
		return nil, err
	}
	return []domain.Reply{{ChatID: session.ChatID, Text: textCommentSaved}}, nil
}

func (uc *UseCase) onDate(ctx context.Context, session *domain.ActionSession, input string) ([]domain.Reply, error) {
	date, err := timeparse.ParseDate(input, uc.now().In(uc.loc))
	if err != nil {
		return []domain.Reply{{ChatID: session.ChatID, Text: textBadDate}}, nil
	}
	session.NewDeadline = date
	session.Stage = domain.StageTime
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return []domain.Reply{{ChatID: session.ChatID, Text: textAskTime}}, nil
}

func (uc *UseCase) onTime(ctx context.Context, session *domain.ActionSession, input string) ([]domain.Reply, error) {
	clock, err := timeparse.ParseTime(input)
	if err != nil {
		return []domain.Reply{{ChatID: session.ChatID, Text: textBadTime}}, nil
	}
	task, err := uc.Extend(ctx, session.UserID, session.TaskID, session.NewDeadline, clock)
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.Delete(ctx, session.UserID); err != nil {
		return nil, err
	}
	text := fmt.Sprintf("📅 Срок задачи «%s» перенесён на %s %s.",
		html.EscapeString(task.Title), timeparse.FormatDay(task.Deadline), task.Time)
	return []domain.Reply{{ChatID: session.ChatID, Text: text}}, nil
}

func (uc *UseCase) commentChoice(ctx context.Context, userID, chatID int64, yes bool) ([]domain.Reply, error) {
	session, err := uc.sessions.Get(ctx, userID)
	if err != nil || session.Stage != domain.StageCommentChoice {
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		return []domain.Reply{{ChatID: chatID, Text: textCompletionDone}}, nil
	}
	if !yes {
		if err := uc.sessions.Delete(ctx, userID); err != nil {
			return nil, err
		}
		return []domain.Reply{{ChatID: chatID, Text: textCompletionDone}}, nil
	}
	session.ChatID = chatID
	session.Stage = domain.StageComment
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return []domain.Reply{{ChatID: chatID, Text: textAskComment}}, nil
}

func (uc *UseCase) beginComplete(ctx context.Context, userID, chatID int64, id string) ([]domain.Reply, error) {
	task, replies, ok := uc.activeTask(ctx, userID, chatID, id)
	if !ok {
		return replies, nil
	}
	reply, err := uc.OpenCompletion(ctx, chatID, task)
	if err != nil {
		return nil, err
	}
	reply.Text = fmt.Sprintf("✅ «%s»\n%s", html.EscapeString(task.Title), reply.Text)
	return []domain.Reply{reply}, nil
}

func (uc *UseCase) beginExtend(ctx context.Context, userID, chatID int64, id string) ([]domain.Reply, error) {
	task, replies, ok := uc.activeTask(ctx, userID, chatID, id)
	if !ok {
		return replies, nil
	}
	session := &domain.ActionSession{
		UserID: userID,
		ChatID: chatID,
		TaskID: task.ID,
		Kind:   domain.SessionExtend,
		Stage:  domain.StageDate,
	}
	if err := uc.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return []domain.Reply{{ChatID: chatID, Text: fmt.Sprintf("📅 «%s»\n%s", html.EscapeString(task.Title), textAskDate)}}, nil
}

// activeTask loads a task for a lifecycle dialogue, producing the reply to
// send when the task cannot be used.
func (uc *UseCase) activeTask(ctx context.Context, userID, chatID int64, id string) (*domain.Task, []domain.Reply, bool) {
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		if !IsNotFound(err) && !errors.Is(err, domain.ErrForbidden) {
			uc.logger.Error("failed to load task", zap.String("task_id", id), zap.Error(err))
		}
		return nil, []domain.Reply{{ChatID: chatID, Text: textTaskNotFound}}, false
	}
	if !task.IsActive() {
		return nil, []domain.Reply{{ChatID: chatID, Text: textAlreadyDone}}, false
	}
	return task, nil, true
}

func (uc *UseCase) saveSession(ctx context.Context, session *domain.ActionSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = uc.now()
	}
	return uc.sessions.Save(ctx, session)
}

func (uc *UseCase) listReplies(ctx context.Context, userID, chatID int64, page int) ([]domain.Reply, error) {
	result, err := uc.ListPage(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	return []domain.Reply{renderPage(chatID, result, uc.pageSize)}, nil
}

func (uc *UseCase) viewReplies(ctx context.Context, userID, chatID int64, id string) ([]domain.Reply, error) {
	task, err := uc.GetTask(ctx, userID, id)
	if err != nil {
		if IsNotFound(err) || errors.Is(err, domain.ErrForbidden) {
			return []domain.Reply{{ChatID: chatID, Text: textTaskNotFound}}, nil
		}
		return nil, err
	}
	return []domain.Reply{renderTask(chatID, task)}, nil
}

func renderPage(chatID int64, page Page, pageSize int) domain.Reply {
	newTask := domain.Row(domain.Button{Text: "➕ Новая задача", Data: ActionNewTask})
	if page.Total == 0 {
		return domain.Reply{ChatID: chatID, Text: textNoTasks, Buttons: [][]domain.Button{newTask}}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Активные задачи</b> (%d)\n", page.Total)
	rows := make([][]domain.Button, 0, len(page.Tasks)+2)
	for i, t := range page.Tasks {
		fmt.Fprintf(&b, "\n%d. 📌 %s\n", page.Page*pageSize+i+1, html.EscapeString(t.Title))
		fmt.Fprintf(&b, "   📅 %s ⏰ %s", shortDate(t.Deadline), orDash(t.Time))
		if t.AssignedBy != "" {
			fmt.Fprintf(&b, " 👤 %s", html.EscapeString(t.AssignedBy))
		}
		b.WriteString("\n")
		rows = append(rows, domain.Row(domain.Button{Text: "🔍 " + truncate(t.Title, 40), Data: ActionView + t.ID}))
	}

	if page.Pages > 1 {
		nav := make([]domain.Button, 0, 3)
		if page.Page > 0 {
			nav = append(nav, domain.Button{Text: "◀️", Data: fmt.Sprintf("%s%d", ActionPage, page.Page-1)})
		}
		nav = append(nav, domain.Button{Text: fmt.Sprintf("%d/%d", page.Page+1, page.Pages), Data: fmt.Sprintf("%s%d", ActionPage, page.Page)})
		if page.Page < page.Pages-1 {
			nav = append(nav, domain.Button{Text: "▶️", Data: fmt.Sprintf("%s%d", ActionPage, page.Page+1)})
		}
		rows = append(rows, nav)
	}
	rows = append(rows, newTask)
	return domain.Reply{ChatID: chatID, Text: strings.TrimRight(b.String(), "\n"), Buttons: rows}
}

func renderTask(chatID int64, task *domain.Task) domain.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "📌 <b>%s</b>\n", html.EscapeString(task.Title))
	if task.Deadline != "" {
		fmt.Fprintf(&b, "📅 Срок: %s (%s)\n", timeparse.FormatDay(task.Deadline), timeparse.Weekday(task.Deadline, false))
	} else {
		fmt.Fprintf(&b, "📅 Срок: %s\n", noValue)
	}
	fmt.Fprintf(&b, "⏰ Время: %s\n", orDash(task.Time))
	fmt.Fprintf(&b, "👤 Поставил: %s\n", orDash(html.EscapeString(task.AssignedBy)))
	fmt.Fprintf(&b, "💬 Комментарий: %s\n", orDash(html.EscapeString(task.Comment)))
	if len(task.Links) > 0 {
		b.WriteString("🔗 Ссылки:\n" + html.EscapeString(links.Format(task.Links)) + "\n")
	}
	fmt.Fprintf(&b, "🕒 Создана: %s", task.CreatedAt.Format("02.01.2006"))
	if !task.IsActive() {
		b.WriteString("\n✅ Выполнена")
	}

	reply := domain.Reply{ChatID: chatID, Text: b.String()}
	if task.IsActive() {
		reply.Buttons = append(reply.Buttons, TaskButtons(task.ID))
	}
	reply.Buttons = append(reply.Buttons, domain.Row(domain.Button{Text: "⬅️ К списку", Data: ActionList}))
	return reply
}

// TaskButtons offers the lifecycle actions for an active task.
func TaskButtons(id string) []domain.Button {
	return domain.Row(
		domain.Button{Text: "✅ Выполнено", Data: ActionMarkDone + id},
		domain.Button{Text: "📅 Продлить", Data: ActionExtend + id},
	)
}

func commentChoiceReply(chatID int64, text string) domain.Reply {
	return domain.Reply{
		ChatID: chatID,
		Text:   text,
		Buttons: [][]domain.Button{
			domain.Row(
				domain.Button{Text: "💬 Да", Data: ActionCommentYes},
				domain.Button{Text: "Нет", Data: ActionCommentNo},
			),
		},
	}
}

func stagePrompt(stage domain.SessionStage) string {
	switch stage {
	case domain.StageHours:
		return textAskHours
	case domain.StageComment:
		return textAskComment
	case domain.StageDate:
		return textAskDate
	case domain.StageTime:
		return textAskTime
	}
	return textChooseButton
}

func parseHours(input string) (float64, error) {
	input = strings.ReplaceAll(strings.TrimSpace(input), ",", ".")
	hours, err := strconv.ParseFloat(input, 64)
	if err != nil || hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return 0, domain.ErrInvalidHours
	}
	return hours, nil
}

func shortDate(date string) string {
	if date == "" {
		return noValue
	}
	if wd := timeparse.Weekday(date, true); wd != "" {
		return timeparse.FormatShort(date) + " " + wd
	}
	return date
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return noValue
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// CancelSession abandons any open mark-done or extend dialogue.
func (uc *UseCase) CancelSession(ctx context.Context, userID int64) error {
	return uc.sessions.Delete(ctx, userID)
}
