package usecase

import (
	"context"

	"github.com/fastygo/taskbot/domain"
)

// Buffered task-store operations.
const (
	OperationCreate   = "create"
	OperationStatus   = "status"
	OperationDeadline = "deadline"
	OperationComment  = "comment"
)

// OperationBuffer abstracts the buffer processor so use cases stay storage-agnostic.
type OperationBuffer interface {
	BufferTask(ctx context.Context, operation string, task *domain.Task) error
}
