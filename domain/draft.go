package domain

import (
	"strings"
	"time"
)

// Step is the position of a draft inside the collection dialogue.
type Step string

const (
	StepCollecting        Step = "collecting"
	StepAskDeadline       Step = "ask_deadline"
	StepAskTime           Step = "ask_time"
	StepAskAssignedBy     Step = "ask_assigned_by"
	StepConfirmAssignedBy Step = "confirm_assigned_by"
	StepAskComment        Step = "ask_comment"
	StepEditTitle         Step = "edit_title"
	StepEditDeadline      Step = "edit_deadline"
	StepEditTime          Step = "edit_time"
	StepEditAssignedBy    Step = "edit_assigned_by"
	StepEditComment       Step = "edit_comment"
	StepConfirm           Step = "confirm"
)

// Field names a scalar draft field the user can answer or edit.
type Field string

const (
	FieldTitle      Field = "title"
	FieldDeadline   Field = "deadline"
	FieldTime       Field = "time"
	FieldAssignedBy Field = "assigned_by"
	FieldComment    Field = "comment"
)

// EditableFields lists fields in the order they are offered on the edit menu.
var EditableFields = []Field{FieldTitle, FieldDeadline, FieldTime, FieldAssignedBy, FieldComment}

// ParseField resolves a field name, accepting the legacy "assigned" alias.
func ParseField(name string) (Field, bool) {
	switch name {
	case "assigned":
		return FieldAssignedBy, true
	}
	for _, f := range EditableFields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// EditStep returns the edit step for the field.
func EditStep(f Field) Step {
	return Step("edit_" + string(f))
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepCollecting, StepAskDeadline, StepAskTime, StepAskAssignedBy,
		StepConfirmAssignedBy, StepAskComment, StepConfirm,
		StepEditTitle, StepEditDeadline, StepEditTime, StepEditAssignedBy, StepEditComment:
		return true
	}
	return false
}

// IsEdit reports whether s is one of the edit_<field> steps.
func (s Step) IsEdit() bool {
	return strings.HasPrefix(string(s), "edit_") && s.Valid()
}

// AnswerField returns the field a text reply sets in this step.
func (s Step) AnswerField() (Field, bool) {
	switch s {
	case StepAskDeadline, StepEditDeadline:
		return FieldDeadline, true
	case StepAskTime, StepEditTime:
		return FieldTime, true
	case StepAskAssignedBy, StepEditAssignedBy:
		return FieldAssignedBy, true
	case StepAskComment, StepEditComment:
		return FieldComment, true
	case StepEditTitle:
		return FieldTitle, true
	}
	return "", false
}

// Draft is the single in-progress task a user is assembling.
// Nil scalar fields are absent; a non-nil empty string was set on purpose.
type Draft struct {
	UserID        int64     `json:"user_id"`
	ChatID        int64     `json:"chat_id"`
	Step          Step      `json:"step"`
	Messages      []*string `json:"messages"`
	Files         []string  `json:"files"`
	ForwardedFrom *string   `json:"forwarded_from,omitempty"`
	Title         *string   `json:"title,omitempty"`
	Deadline      *string   `json:"deadline,omitempty"`
	Time          *string   `json:"time,omitempty"`
	AssignedBy    *string   `json:"assigned_by,omitempty"`
	Comment       *string   `json:"comment,omitempty"`
	Links         []string  `json:"links,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewDraft returns an empty collecting draft.
func NewDraft(userID, chatID int64) *Draft {
	now := time.Now()
	return &Draft{
		UserID:    userID,
		ChatID:    chatID,
		Step:      StepCollecting,
		Messages:  []*string{},
		Files:     []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps UpdatedAt.
func (d *Draft) Touch() {
	if d == nil {
		return
	}
	d.UpdatedAt = time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}
}

// Get returns a pointer to the storage of field f.
func (d *Draft) Get(f Field) *string {
	switch f {
	case FieldTitle:
		return d.Title
	case FieldDeadline:
		return d.Deadline
	case FieldTime:
		return d.Time
	case FieldAssignedBy:
		return d.AssignedBy
	case FieldComment:
		return d.Comment
	}
	return nil
}

// Set assigns field f; a nil value marks the field absent.
func (d *Draft) Set(f Field, v *string) {
	switch f {
	case FieldTitle:
		d.Title = v
	case FieldDeadline:
		d.Deadline = v
	case FieldTime:
		d.Time = v
	case FieldAssignedBy:
		d.AssignedBy = v
	case FieldComment:
		d.Comment = v
	}
}

// InferSender records the forwarding sender only if none was inferred before.
func (d *Draft) InferSender(name string) bool {
	name = strings.TrimSpace(name)
	if d.ForwardedFrom != nil || name == "" {
		return false
	}
	d.ForwardedFrom = &name
	return true
}

// Text joins the collected string fragments, skipping placeholders.
func (d *Draft) Text() string {
	parts := make([]string, 0, len(d.Messages))
	for _, m := range d.Messages {
		if m == nil {
			continue
		}
		parts = append(parts, *m)
	}
	return strings.Join(parts, "\n")
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.Messages = make([]*string, len(d.Messages))
	for i, m := range d.Messages {
		c.Messages[i] = cloneString(m)
	}
	c.Files = append([]string{}, d.Files...)
	if d.Links != nil {
		c.Links = append([]string{}, d.Links...)
	}
	c.ForwardedFrom = cloneString(d.ForwardedFrom)
	c.Title = cloneString(d.Title)
	c.Deadline = cloneString(d.Deadline)
	c.Time = cloneString(d.Time)
	c.AssignedBy = cloneString(d.AssignedBy)
	c.Comment = cloneString(d.Comment)
	return &c
}

// DraftUpdate mutates a stored draft inside a store-level read-modify-write.
type DraftUpdate func(*Draft)

// SetStep moves the draft to step s.
func SetStep(s Step) DraftUpdate {
	return func(d *Draft) { d.Step = s }
}

// SetField assigns a scalar field; nil clears it.
func SetField(f Field, v *string) DraftUpdate {
	return func(d *Draft) { d.Set(f, cloneString(v)) }
}

// Str returns a pointer to s.
func Str(s string) *string {
	return &s
}

// Deref returns the pointed-to string or fallback when nil.
func Deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
