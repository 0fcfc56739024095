// Package intake implements the collection and clarification dialogue that
// turns chat fragments into a confirmed task.
package intake

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/pkg/links"
	"github.com/fastygo/taskbot/pkg/timeparse"
)

const (
	// UntitledTask is used when neither the extractor nor the text yields a title.
	UntitledTask  = "Без названия"
	maxTitleRunes = 100
)

// Seed starts a collecting draft from the first message of a batch.
func Seed(msg domain.Inbound) *domain.Draft {
	d := domain.NewDraft(msg.UserID, msg.ChatID)
	Accumulate(d, msg)
	return d
}

// Accumulate appends one inbound message to a collecting draft. A message
// without text still occupies a slot in Messages.
func Accumulate(d *domain.Draft, msg domain.Inbound) {
	var fragment *string
	if msg.Text != nil {
		fragment = domain.Str(*msg.Text)
	}
	d.Messages = append(d.Messages, fragment)
	if msg.Attachment != "" {
		d.Files = append(d.Files, msg.Attachment)
	}
	d.InferSender(msg.ForwardedFrom)
}

// ApplyExtraction fills absent draft fields from an extraction result and
// resolves the title. Fields already set by the user are kept. A nil result
// counts as nothing extracted.
func ApplyExtraction(d *domain.Draft, fields *domain.ExtractedFields, now time.Time) {
	if fields == nil {
		fields = &domain.ExtractedFields{}
	}
	fields.Normalize()

	if d.Title == nil {
		d.Title = fields.Title
	}
	if d.Title == nil {
		d.Title = domain.Str(fallbackTitle(d))
	}
	if d.Deadline == nil && fields.Deadline != nil {
		if date, err := timeparse.ParseDate(*fields.Deadline, now); err == nil {
			d.Deadline = &date
		}
	}
	if d.Time == nil && fields.Time != nil {
		if clock, err := timeparse.ParseTime(*fields.Time); err == nil {
			d.Time = &clock
		}
	}
	if d.AssignedBy == nil {
		d.AssignedBy = fields.Assignor
	}
	if d.Comment == nil {
		d.Comment = fields.Comment
	}
	if d.Comment != nil {
		d.Comment = domain.Str(withAttachments(*d.Comment, d.Files))
	}
	d.Links = links.Merge(d.Links, fields.Links...)
}

// NextStep is the completeness gate: the first unmet requirement in the order
// deadline, time, assignor, comment, or StepConfirm when all are resolved.
// A field set to an empty string counts as resolved.
func NextStep(d *domain.Draft) domain.Step {
	switch {
	case d.Deadline == nil:
		return domain.StepAskDeadline
	case d.Time == nil:
		return domain.StepAskTime
	case d.AssignedBy == nil && d.ForwardedFrom != nil:
		return domain.StepConfirmAssignedBy
	case d.AssignedBy == nil:
		return domain.StepAskAssignedBy
	case d.Comment == nil:
		return domain.StepAskComment
	}
	return domain.StepConfirm
}

// ApplyAnswer stores a text reply in the field the current step asks for and
// advances the draft. Edit steps always return to StepConfirm. Dates and
// times must parse unless blank; on error the draft is left unchanged.
func ApplyAnswer(d *domain.Draft, text string, now time.Time) (domain.Field, error) {
	field, ok := d.Step.AnswerField()
	if !ok {
		return "", domain.ErrUnexpectedInput
	}

	value := strings.TrimSpace(text)
	if value != "" {
		switch field {
		case domain.FieldDeadline:
			date, err := timeparse.ParseDate(value, now)
			if err != nil {
				return field, domain.ErrInvalidDate.Wrap(err)
			}
			value = date
		case domain.FieldTime:
			clock, err := timeparse.ParseTime(value)
			if err != nil {
				return field, domain.ErrInvalidTime.Wrap(err)
			}
			value = clock
		}
	}

	d.Set(field, &value)
	if d.Step.IsEdit() {
		d.Step = domain.StepConfirm
	} else {
		d.Step = NextStep(d)
	}
	return field, nil
}

// AcceptSender copies the inferred forwarding sender into the assignor.
func AcceptSender(d *domain.Draft) {
	if d.ForwardedFrom != nil {
		d.AssignedBy = domain.Str(*d.ForwardedFrom)
	}
	d.Step = NextStep(d)
}

// RejectSender clears the assignor and asks for it explicitly.
func RejectSender(d *domain.Draft) {
	d.AssignedBy = nil
	d.Step = domain.StepAskAssignedBy
}

// BuildTask materialises a confirmed task from a draft.
func BuildTask(d *domain.Draft, now time.Time) *domain.Task {
	title := strings.TrimSpace(domain.Deref(d.Title, ""))
	if title == "" {
		title = UntitledTask
	}
	comment := withAttachments(domain.Deref(d.Comment, ""), d.Files)
	return &domain.Task{
		UserID:     d.UserID,
		Title:      title,
		Deadline:   domain.Deref(d.Deadline, ""),
		Time:       domain.Deref(d.Time, ""),
		AssignedBy: domain.Deref(d.AssignedBy, ""),
		Comment:    comment,
		Links:      draftLinks(d, comment),
		Status:     domain.TaskActive,
		CreatedAt:  now,
	}
}

func draftLinks(d *domain.Draft, comment string) []string {
	return links.Merge(d.Links, append(links.Extract(d.Text()), links.Extract(comment)...)...)
}

func fallbackTitle(d *domain.Draft) string {
	for _, m := range d.Messages {
		if m == nil {
			continue
		}
		line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(*m), "\n", 2)[0])
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleRunes {
			line = string([]rune(line)[:maxTitleRunes])
		}
		return line
	}
	return UntitledTask
}

// withAttachments appends an attachment listing unless the comment already
// names every attachment.
func withAttachments(comment string, files []string) string {
	if len(files) == 0 {
		return comment
	}
	lower := strings.ToLower(comment)
	referenced := true
	for _, f := range files {
		if !strings.Contains(lower, strings.ToLower(f)) {
			referenced = false
			break
		}
	}
	if referenced {
		return comment
	}
	listing := attachmentsPrefix + strings.Join(files, ", ")
	if strings.TrimSpace(comment) == "" {
		return listing
	}
	return comment + "\n" + listing
}

const attachmentsPrefix = "📎 Вложения: "
