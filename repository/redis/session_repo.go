package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

const defaultSessionTTL = time.Hour

type sessionRepository struct {
	client redislib.UniversalClient
	ttl    time.Duration
}

// NewSessionRepository stores one pending action per user. Sessions expire
// ttl after their last save.
func NewSessionRepository(client redislib.UniversalClient, ttl time.Duration) repository.ActionSessionRepository {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &sessionRepository{client: client, ttl: ttl}
}

func (r *sessionRepository) Get(ctx context.Context, userID int64) (*domain.ActionSession, error) {
	raw, err := r.client.Get(ctx, sessionKeys.user(userID)).Bytes()
	switch {
	case errors.Is(err, redislib.Nil):
		return nil, domain.ErrSessionNotFound
	case err != nil:
		return nil, err
	}

	session := new(domain.ActionSession)
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.ActionSession) error {
	if session == nil || session.UserID == 0 || session.TaskID == "" {
		return domain.ErrInvalidPayload
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.ExpiresAt = now.Add(r.ttl)

	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.client.SetArgs(ctx, sessionKeys.user(session.UserID), payload, redislib.SetArgs{TTL: r.ttl}).Err()
}

func (r *sessionRepository) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, sessionKeys.user(userID)).Err()
}
