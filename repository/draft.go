package repository

import (
	"context"

	"github.com/fastygo/taskbot/domain"
)

// DraftRepository keeps at most one draft per user.
type DraftRepository interface {
	// Put inserts or fully replaces the user's draft.
	Put(ctx context.Context, draft *domain.Draft) error
	// Get returns domain.ErrDraftNotFound when the user has no draft.
	Get(ctx context.Context, userID int64) (*domain.Draft, error)
	// Merge applies updates atomically to the stored draft and returns the
	// result. It is a no-op returning (nil, nil) when no draft exists.
	Merge(ctx context.Context, userID int64, updates ...domain.DraftUpdate) (*domain.Draft, error)
	Delete(ctx context.Context, userID int64) error
}
