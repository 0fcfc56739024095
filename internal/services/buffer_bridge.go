package services

import (
	"context"
	"encoding/json"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/infrastructure/buffer"
	"github.com/fastygo/taskbot/usecase"
)

// BufferBridge adapts the processor to the use-case OperationBuffer port.
// The whole task is captured so the replay does not depend on later state.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferTask(ctx context.Context, operation string, task *domain.Task) error {
	if b.processor == nil || task == nil || task.ID == "" {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return b.processor.BufferOperation(ctx, buffer.Op{
		TaskID:  task.ID,
		UserID:  task.UserID,
		Kind:    operation,
		Payload: payload,
	})
}

var _ usecase.OperationBuffer = (*BufferBridge)(nil)
