package usecase

import (
	"context"

	"github.com/fastygo/taskbot/domain"
)

// FieldExtractor turns collected text into structured task fields.
type FieldExtractor interface {
	Extract(ctx context.Context, text string, attachments []string, sender string) (*domain.ExtractedFields, error)
}

// Calendar manages the calendar event mirroring a task.
type Calendar interface {
	CreateEvent(ctx context.Context, title, date, clock string) (string, error)
	UpdateEvent(ctx context.Context, eventID, date, clock string) (string, error)
	// DeleteEvent returns domain.ErrExternalNotFound when the event is already gone.
	DeleteEvent(ctx context.Context, eventID string) error
}

// RowStatusUpdate carries the optional columns of a status update.
type RowStatusUpdate struct {
	Status  domain.TaskStatus
	Hours   *float64
	Comment *string
}

// Spreadsheet manages the spreadsheet row mirroring a task.
type Spreadsheet interface {
	AppendTaskRow(ctx context.Context, task *domain.Task) (int, error)
	UpdateRowStatus(ctx context.Context, row int, update RowStatusUpdate) error
	UpdateRowDeadline(ctx context.Context, row int, deadline string) error
}

// Notifier delivers outbound messages to a user.
type Notifier interface {
	Send(ctx context.Context, reply domain.Reply) error
}
