package telegram

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskbot/domain"
)

const (
	DefaultPollTimeout = 30 * time.Second
	pollRetryDelay     = 3 * time.Second
)

// UpdateHandler consumes one transport-neutral update.
type UpdateHandler func(ctx context.Context, upd domain.Update)

// Poller drives the bot through getUpdates. Updates of one user are handled
// in delivery order; different users are handled concurrently.
type Poller struct {
	client  *Client
	handle  UpdateHandler
	timeout time.Duration
	logger  *zap.Logger
	offset  int64
	queues  *userQueues
}

func NewPoller(client *Client, handle UpdateHandler, timeout time.Duration, logger *zap.Logger) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:  client,
		handle:  handle,
		timeout: timeout,
		logger:  logger,
		queues:  &userQueues{handle: handle, pending: make(map[int64][]domain.Update)},
	}
}

// Run polls until ctx is cancelled, then waits for updates in flight.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("telegram polling started")
	defer p.logger.Info("telegram polling stopped")
	defer p.queues.wait()

	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, raw := range updates {
			p.offset = raw.UpdateID + 1
			upd, ok := raw.ToDomain()
			if !ok {
				continue
			}
			p.queues.submit(ctx, upd)
		}
	}
}

// userQueues runs at most one worker per user. A worker drains its user's
// queue in order and exits when it is empty.
type userQueues struct {
	handle UpdateHandler

	mu      sync.Mutex
	pending map[int64][]domain.Update
	workers sync.WaitGroup
}

func (q *userQueues) submit(ctx context.Context, upd domain.Update) {
	userID := upd.UserID()

	q.mu.Lock()
	queued, running := q.pending[userID]
	q.pending[userID] = append(queued, upd)
	q.mu.Unlock()

	if running {
		return
	}
	q.workers.Add(1)
	go q.drain(ctx, userID)
}

func (q *userQueues) drain(ctx context.Context, userID int64) {
	defer q.workers.Done()
	for {
		q.mu.Lock()
		queued := q.pending[userID]
		if len(queued) == 0 {
			delete(q.pending, userID)
			q.mu.Unlock()
			return
		}
		upd := queued[0]
		q.pending[userID] = queued[1:]
		q.mu.Unlock()

		q.handle(ctx, upd)
	}
}

func (q *userQueues) wait() {
	q.workers.Wait()
}
