package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Op is one task-store write waiting to be replayed against Postgres.
type Op struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	UserID int64  `json:"user_id"`
	// Kind names the repository write (create, status, deadline, comment).
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	QueuedAt  time.Time       `json:"queued_at"`

	key []byte
}

func (o *Op) normalize() {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.QueuedAt.IsZero() {
		o.QueuedAt = time.Now()
	}
}

// queueKey sorts by enqueue time so ops on one task replay in the order
// they were issued.
func queueKey(op Op) []byte {
	return []byte(op.QueuedAt.UTC().Format("20060102T150405.000000000") + "_" + op.ID)
}
