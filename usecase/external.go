package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/metrics"
)

// DefaultExternalTimeout bounds a collaborator call when none is configured.
const DefaultExternalTimeout = 15 * time.Second

// ExternalCaller runs collaborator calls under a timeout and records their outcome.
// A timeout is reported like any other collaborator failure.
type ExternalCaller struct {
	Timeout time.Duration
	Metrics *metrics.Collectors
	Logger  *zap.Logger
}

// Call invokes fn with a bounded context. domain.ErrExternalNotFound is
// returned unchanged but logged at debug level only.
func (c ExternalCaller) Call(ctx context.Context, collaborator string, fn func(context.Context) error) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	c.Metrics.ObserveCall(collaborator, start, err)

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrExternalNotFound):
		logger.Debug("external record already gone", zap.String("collaborator", collaborator))
	default:
		logger.Warn("collaborator call failed", zap.String("collaborator", collaborator), zap.Error(err))
	}
	return err
}

// TaskWriter performs task-store writes, diverting failed ones to the offline buffer.
type TaskWriter struct {
	Buffer  OperationBuffer
	Metrics *metrics.Collectors
	Logger  *zap.Logger
}

// Write runs write and, when it fails for a reason other than a missing
// task, buffers the operation for replay. A buffered write reports success.
func (w TaskWriter) Write(ctx context.Context, operation string, task *domain.Task, write func(context.Context) error) error {
	err := write(ctx)
	if err == nil || errors.Is(err, domain.ErrTaskNotFound) || w.Buffer == nil {
		return err
	}
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufErr := w.Buffer.BufferTask(ctx, operation, task); bufErr != nil {
		logger.Error("failed to buffer task operation",
			zap.String("operation", operation),
			zap.NamedError("store_error", err),
			zap.Error(bufErr))
		return err
	}
	logger.Warn("task operation buffered", zap.String("operation", operation), zap.String("task_id", task.ID), zap.Error(err))
	w.Metrics.Buffered(operation)
	return nil
}
