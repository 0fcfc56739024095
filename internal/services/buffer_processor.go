package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/infrastructure/buffer"
	"github.com/fastygo/taskbot/internal/metrics"
	"github.com/fastygo/taskbot/repository"
	"github.com/fastygo/taskbot/usecase"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how the queue is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// Retention buries ops that stayed queued longer than this. Zero keeps them.
	Retention time.Duration
}

// BufferProcessor replays task-store writes that failed while Postgres was
// unreachable. Ops on the same task are applied strictly in queue order.
type BufferProcessor struct {
	store    *buffer.Store
	monitor  ConnectionHealth
	taskRepo repository.TaskRepository
	metrics  *metrics.Collectors
	logger   *zap.Logger
	cron     *cron.Cron
	cfg      ProcessorConfig
}

func NewBufferProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	taskRepo repository.TaskRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *BufferProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bp := &BufferProcessor{
		store:    store,
		monitor:  monitor,
		taskRepo: taskRepo,
		logger:   logger.Named("buffer"),
		cfg:      cfg,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	_, _ = bp.cron.AddFunc("@every "+cfg.Interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := bp.Drain(ctx); err != nil {
			bp.logger.Error("buffer drain failed", zap.Error(err))
		}
	})
	return bp
}

// WithMetrics records replay outcomes on c.
func (bp *BufferProcessor) WithMetrics(c *metrics.Collectors) *BufferProcessor {
	bp.metrics = c
	return bp
}

// Start launches the cron scheduler.
func (bp *BufferProcessor) Start() {
	if bp == nil || bp.cron == nil {
		return
	}
	bp.cron.Start()
	bp.logger.Info("buffer processor started", zap.Duration("interval", bp.cfg.Interval))
}

// Stop waits for a running drain to finish or for ctx to expire.
func (bp *BufferProcessor) Stop(ctx context.Context) {
	if bp == nil || bp.cron == nil {
		return
	}
	stopCtx := bp.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	bp.logger.Info("buffer processor stopped")
}

// Drain replays one batch from the head of the queue. Once an op fails,
// later ops on the same task wait for the next drain.
func (bp *BufferProcessor) Drain(ctx context.Context) error {
	if bp == nil || bp.store == nil {
		return nil
	}
	if bp.monitor != nil && !bp.monitor.IsOnline() {
		bp.logger.Debug("skipping buffer drain (offline)")
		return nil
	}

	if bp.cfg.Retention > 0 {
		moved, err := bp.store.Expire(time.Now().Add(-bp.cfg.Retention))
		if err != nil {
			bp.logger.Warn("buffer expiry failed", zap.Error(err))
		} else if moved > 0 {
			bp.logger.Warn("stale task writes moved to dead letters", zap.Int("count", moved))
			bp.metrics.Replayed("expired", moved)
		}
	}

	ops, err := bp.store.Peek(bp.cfg.BatchSize)
	if err != nil {
		return err
	}

	blocked := make(map[string]bool)
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if blocked[op.TaskID] {
			continue
		}
		logger := bp.logger.With(
			zap.String("op_id", op.ID),
			zap.String("task_id", op.TaskID),
			zap.Int64("user_id", op.UserID),
			zap.String("kind", op.Kind),
		)

		err := bp.apply(ctx, op)
		switch {
		case err == nil:
			if ackErr := bp.store.Ack(op); ackErr != nil {
				logger.Warn("failed to ack replayed write", zap.Error(ackErr))
			}
			bp.metrics.Replayed("applied", 1)

		case permanent(op, err):
			logger.Warn("task write cannot be replayed", zap.Error(err))
			if buryErr := bp.store.Bury(op, err); buryErr != nil {
				logger.Error("failed to bury task write", zap.Error(buryErr))
			}
			bp.metrics.Replayed("buried", 1)

		case op.Attempts+1 >= bp.cfg.MaxRetries:
			logger.Error("task write exhausted retries", zap.Int("attempts", op.Attempts+1), zap.Error(err))
			if buryErr := bp.store.Bury(op, err); buryErr != nil {
				logger.Error("failed to bury task write", zap.Error(buryErr))
			}
			bp.metrics.Replayed("buried", 1)

		default:
			blocked[op.TaskID] = true
			logger.Warn("task write replay failed", zap.Int("attempts", op.Attempts+1), zap.Error(err))
			if retryErr := bp.store.Retry(op, err); retryErr != nil {
				logger.Error("failed to record retry", zap.Error(retryErr))
			}
			bp.metrics.Replayed("retried", 1)
		}
	}
	return nil
}

// BufferOperation applies op at once when the stores are online and no
// earlier write on the same task is still queued; otherwise it queues op.
func (bp *BufferProcessor) BufferOperation(ctx context.Context, op buffer.Op) error {
	if bp == nil || bp.store == nil {
		return fmt.Errorf("buffer processor not configured")
	}

	queued, err := bp.store.HasPending(op.TaskID)
	if err != nil {
		return err
	}
	if !queued && (bp.monitor == nil || bp.monitor.IsOnline()) {
		err := bp.apply(ctx, op)
		if err == nil {
			return nil
		}
		bp.logger.Warn("immediate write failed, queueing", zap.String("task_id", op.TaskID), zap.Error(err))
	}
	return bp.store.Push(op)
}

// Size returns the number of queued writes.
func (bp *BufferProcessor) Size() int {
	if bp == nil || bp.store == nil {
		return 0
	}
	size, err := bp.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (bp *BufferProcessor) apply(ctx context.Context, op buffer.Op) error {
	var task domain.Task
	if err := json.Unmarshal(op.Payload, &task); err != nil {
		return fmt.Errorf("decode %s payload: %w", op.Kind, err)
	}
	switch op.Kind {
	case usecase.OperationCreate:
		return bp.taskRepo.Insert(ctx, &task)
	case usecase.OperationStatus:
		return bp.taskRepo.SetStatus(ctx, task.ID, task.Status, task.CompletedAt, task.HoursSpent)
	case usecase.OperationDeadline:
		return bp.taskRepo.SetDeadline(ctx, task.ID, task.Deadline, &task.Time)
	case usecase.OperationComment:
		return bp.taskRepo.SetComment(ctx, task.ID, task.Comment)
	default:
		return errUnknownKind
	}
}

var errUnknownKind = errors.New("unknown buffered operation")

// permanent reports failures that no retry can fix: undecodable payloads,
// unknown kinds and updates to tasks that do not exist.
func permanent(op buffer.Op, err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	return errors.Is(err, errUnknownKind) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		(op.Kind != usecase.OperationCreate && errors.Is(err, domain.ErrTaskNotFound))
}
