package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

type sessionRepository struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]domain.ActionSession
	now      func() time.Time
}

// NewSessionRepository returns a map-backed ActionSessionRepository whose
// entries expire ttl after their last save.
func NewSessionRepository(ttl time.Duration) repository.ActionSessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRepository{ttl: ttl, sessions: make(map[int64]domain.ActionSession), now: time.Now}
}

func (r *sessionRepository) Get(_ context.Context, userID int64) (*domain.ActionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[userID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.IsExpired(r.now()) {
		delete(r.sessions, userID)
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (r *sessionRepository) Save(_ context.Context, session *domain.ActionSession) error {
	if session == nil || session.UserID == 0 {
		return domain.ErrInvalidPayload
	}
	now := r.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.ExpiresAt = now.Add(r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.UserID] = *session
	return nil
}

func (r *sessionRepository) Delete(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}
