package repository

import (
	"context"

	"github.com/fastygo/taskbot/domain"
)

// ActionSessionRepository stores the per-user mark-done/extend dialogue.
// Every Save restarts the session's idle timeout.
type ActionSessionRepository interface {
	Get(ctx context.Context, userID int64) (*domain.ActionSession, error)
	Save(ctx context.Context, session *domain.ActionSession) error
	Delete(ctx context.Context, userID int64) error
}
