package intake

import (
	"fmt"
	"html"
	"strings"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/pkg/links"
	"github.com/fastygo/taskbot/pkg/timeparse"
)

// Placeholder renders an absent or blank value on cards.
const Placeholder = "–"

// Callback data understood by the intake dialogue.
const (
	ActionCollectDone   = "collect_done"
	ActionCollectCancel = "collect_cancel"
	ActionReset         = "reset_task"
	ActionSenderYes     = "confirm_assigned_yes"
	ActionSenderNo      = "confirm_assigned_no"
	ActionConfirm       = "confirm_add"
	ActionCancel        = "cancel_add"
	ActionEditMenu      = "edit_fields"
	ActionEditPrefix    = "edit_"
	ActionSkip          = "skip_field"
	ActionDoneNow       = "done_now"
	ActionShowCard      = "show_card"
)

const (
	textCollecting   = "📥 Перешли сообщения, файлы или фото, относящиеся к задаче. Когда закончишь, нажми «Готово»."
	textAppended     = "✅ Добавлено! Перешли ещё сообщения или нажми «Готово», когда закончишь."
	textNoDraft      = "⚠️ Сейчас нет задачи в работе. Напиши /task, чтобы начать заново."
	textCancelled    = "❌ Задача отменена."
	textReset        = "🔁 Задача сброшена. Можешь начать заново: напиши /task."
	textNotReady     = "⚠️ Задачу пока нельзя подтвердить: сначала ответь на вопросы."
	textBadDate      = "⚠️ Не понял дату. Напиши, например, 25.05, 25.05.2025 или «завтра»."
	textBadTime      = "⚠️ Не понял время. Напиши, например, 14:30 или 9."
	textNeedText     = "✍️ Ответь, пожалуйста, текстом."
	textExtracting   = "🤖 Не удалось разобрать сообщения автоматически, давай уточним вручную."
	textConfirmAsk   = "Добавить в таблицу и календарь?"
	textEditMenu     = "✏️ Что изменить?"
	textDoneNowStart = "✔️ Задача сохранена как выполненная."
	textStoreFailed  = "⚠️ Не удалось сохранить задачу. Попробуй подтвердить ещё раз чуть позже."
)

var fieldLabels = map[domain.Field]string{
	domain.FieldTitle:      "📌 Название",
	domain.FieldDeadline:   "📅 Срок",
	domain.FieldTime:       "⏰ Время",
	domain.FieldAssignedBy: "👤 Кто поставил",
	domain.FieldComment:    "💬 Комментарий",
}

func collectKeyboard() [][]domain.Button {
	return [][]domain.Button{
		domain.Row(
			domain.Button{Text: "✅ Готово", Data: ActionCollectDone},
			domain.Button{Text: "❌ Отмена", Data: ActionCollectCancel},
			domain.Button{Text: "🔁 Сбросить", Data: ActionReset},
		),
	}
}

func skipKeyboard() [][]domain.Button {
	return [][]domain.Button{
		domain.Row(
			domain.Button{Text: "⏭ Пропустить", Data: ActionSkip},
			domain.Button{Text: "🔁 Сбросить", Data: ActionReset},
		),
	}
}

// Prompt renders the message that belongs to the draft's current step.
func Prompt(d *domain.Draft) domain.Reply {
	reply := domain.Reply{ChatID: d.ChatID}
	switch d.Step {
	case domain.StepCollecting:
		reply.Text = textCollecting
		reply.Buttons = collectKeyboard()
	case domain.StepAskDeadline:
		reply.Text = "📅 Укажи срок выполнения (например, 25.05 или «завтра»)."
		reply.Buttons = skipKeyboard()
	case domain.StepAskTime:
		reply.Text = "⏰ Во сколько выполнить задачу? (например, 14:30)"
		reply.Buttons = skipKeyboard()
	case domain.StepAskAssignedBy:
		reply.Text = "👤 Кто поставил задачу?"
		reply.Buttons = skipKeyboard()
	case domain.StepConfirmAssignedBy:
		reply.Text = fmt.Sprintf("👤 Я определил, что задачу поставил: <b>%s</b>. Это верно?",
			html.EscapeString(domain.Deref(d.ForwardedFrom, Placeholder)))
		reply.Buttons = [][]domain.Button{
			domain.Row(
				domain.Button{Text: "✅ Да", Data: ActionSenderYes},
				domain.Button{Text: "❌ Нет", Data: ActionSenderNo},
			),
		}
	case domain.StepAskComment:
		reply.Text = "💬 Хочешь оставить комментарий? Напиши его или нажми «Пропустить»."
		reply.Buttons = skipKeyboard()
	case domain.StepConfirm:
		return Card(d)
	default:
		if field, ok := d.Step.AnswerField(); ok && d.Step.IsEdit() {
			reply.Text = fmt.Sprintf("✏️ Введи новое значение: %s\nСейчас: %s", fieldLabels[field], display(d.Get(field)))
			reply.Buttons = skipKeyboard()
			break
		}
		reply.Text = textNoDraft
	}
	return reply
}

// Card renders the confirmation summary with its actions.
func Card(d *domain.Draft) domain.Reply {
	var b strings.Builder
	b.WriteString(Summary(d))
	b.WriteString("\n\n")
	b.WriteString(textConfirmAsk)

	return domain.Reply{
		ChatID: d.ChatID,
		Text:   b.String(),
		Buttons: [][]domain.Button{
			domain.Row(
				domain.Button{Text: "✅ Да", Data: ActionConfirm},
				domain.Button{Text: "❌ Нет", Data: ActionCancel},
			),
			domain.Row(
				domain.Button{Text: "✏️ Изменить", Data: ActionEditMenu},
				domain.Button{Text: "✔️ Уже выполнено", Data: ActionDoneNow},
			),
		},
	}
}

// Summary lists every field of the draft; absent and blank values show the placeholder.
func Summary(d *domain.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📌 Задача: %s\n", display(d.Title))
	fmt.Fprintf(&b, "📅 Срок: %s\n", displayDate(d.Deadline))
	fmt.Fprintf(&b, "⏰ Время: %s\n", display(d.Time))
	fmt.Fprintf(&b, "👤 Поставил: %s\n", display(d.AssignedBy))
	fmt.Fprintf(&b, "💬 Комментарий: %s", display(d.Comment))

	urls := links.Merge(d.Links, links.Extract(d.Text())...)
	if len(urls) > 0 {
		b.WriteString("\n🔗 Ссылки:\n")
		b.WriteString(html.EscapeString(links.Format(urls)))
	}
	if len(d.Files) > 0 {
		b.WriteString("\n" + attachmentsPrefix + html.EscapeString(strings.Join(d.Files, ", ")))
	}
	return b.String()
}

// EditMenu lists the editable fields.
func EditMenu(d *domain.Draft) domain.Reply {
	rows := make([][]domain.Button, 0, len(domain.EditableFields)+1)
	for _, f := range domain.EditableFields {
		rows = append(rows, domain.Row(domain.Button{Text: fieldLabels[f], Data: ActionEditPrefix + string(f)}))
	}
	rows = append(rows, domain.Row(domain.Button{Text: "⬅️ Назад", Data: ActionShowCard}))
	return domain.Reply{ChatID: d.ChatID, Text: textEditMenu, Buttons: rows}
}

// TaskCreated renders the result of a successful confirmation.
func TaskCreated(chatID int64, task *domain.Task) domain.Reply {
	var b strings.Builder
	b.WriteString("✅ Задача добавлена!\n\n")
	fmt.Fprintf(&b, "📌 %s\n", html.EscapeString(task.Title))
	if task.Deadline != "" {
		fmt.Fprintf(&b, "📅 %s", timeparse.FormatDay(task.Deadline))
		if task.Time != "" {
			fmt.Fprintf(&b, " %s", task.Time)
		}
		b.WriteString("\n")
	}
	if task.CalendarEventID == nil {
		b.WriteString("⚠️ Событие в календаре не создано.\n")
	}
	if task.SheetRow == nil {
		b.WriteString("⚠️ Строка в таблице не добавлена.\n")
	}
	return domain.Reply{ChatID: chatID, Text: strings.TrimRight(b.String(), "\n")}
}

func display(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return Placeholder
	}
	return html.EscapeString(*v)
}

func displayDate(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return Placeholder
	}
	if wd := timeparse.Weekday(*v, true); wd != "" {
		return fmt.Sprintf("%s (%s)", timeparse.FormatDay(*v), wd)
	}
	return html.EscapeString(*v)
}
