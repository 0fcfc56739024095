package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/repository"
)

const maxMergeAttempts = 5

type draftRepository struct {
	client redislib.UniversalClient
	ttl    time.Duration
}

// NewDraftRepository creates a Redis-backed draft store with one key per user.
// A zero ttl keeps drafts until they are deleted.
func NewDraftRepository(client redislib.UniversalClient, ttl time.Duration) repository.DraftRepository {
	return &draftRepository{client: client, ttl: ttl}
}

func (r *draftRepository) Put(ctx context.Context, draft *domain.Draft) error {
	if draft == nil || draft.UserID == 0 {
		return domain.ErrInvalidPayload
	}
	draft.Touch()

	payload, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, draftKeys.user(draft.UserID), payload, r.ttl).Err()
}

func (r *draftRepository) Get(ctx context.Context, userID int64) (*domain.Draft, error) {
	result, err := r.client.Get(ctx, draftKeys.user(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrDraftNotFound
		}
		return nil, err
	}
	return decodeDraft(result)
}

func (r *draftRepository) Merge(ctx context.Context, userID int64, updates ...domain.DraftUpdate) (*domain.Draft, error) {
	key := draftKeys.user(userID)
	var merged *domain.Draft

	txf := func(tx *redislib.Tx) error {
		merged = nil
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redislib.Nil) {
				return nil
			}
			return err
		}
		draft, err := decodeDraft(raw)
		if err != nil {
			return err
		}
		for _, update := range updates {
			if update != nil {
				update(draft)
			}
		}
		draft.UserID = userID
		draft.Touch()

		payload, err := json.Marshal(draft)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redislib.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err == nil {
			merged = draft
		}
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return merged, nil
		}
		if errors.Is(err, redislib.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("merge draft %d: too many concurrent writers", userID)
}

func (r *draftRepository) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, draftKeys.user(userID)).Err()
}

func decodeDraft(raw []byte) (*domain.Draft, error) {
	var draft domain.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, err
	}
	if draft.Messages == nil {
		draft.Messages = []*string{}
	}
	if draft.Files == nil {
		draft.Files = []string{}
	}
	return &draft, nil
}
