// Package memory holds process-local repository implementations used for
// development runs without Postgres and Redis, and by use-case tests.
package memory

import (
	"context"
	"sync"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

type draftRepository struct {
	mu     sync.Mutex
	drafts map[int64]*domain.Draft
}

// NewDraftRepository returns a map-backed DraftRepository.
func NewDraftRepository() repository.DraftRepository {
	return &draftRepository{drafts: make(map[int64]*domain.Draft)}
}

func (r *draftRepository) Put(_ context.Context, draft *domain.Draft) error {
	if draft == nil || draft.UserID == 0 {
		return domain.ErrInvalidPayload
	}
	draft.Touch()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[draft.UserID] = draft.Clone()
	return nil
}

func (r *draftRepository) Get(_ context.Context, userID int64) (*domain.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[userID]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	return draft.Clone(), nil
}

func (r *draftRepository) Merge(_ context.Context, userID int64, updates ...domain.DraftUpdate) (*domain.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.drafts[userID]
	if !ok {
		return nil, nil
	}
	draft := stored.Clone()
	for _, update := range updates {
		if update != nil {
			update(draft)
		}
	}
	draft.UserID = userID
	draft.Touch()
	r.drafts[userID] = draft
	return draft.Clone(), nil
}

func (r *draftRepository) Delete(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, userID)
	return nil
}
