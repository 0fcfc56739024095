package buffer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	pendingBucket = []byte("task_ops")
	deadBucket    = []byte("task_ops_dead")
)

// Store is a FIFO queue of task writes kept in BoltDB. Ops that can never
// be replayed are moved to a dead-letter bucket instead of being dropped.
type Store struct {
	db *bolt.DB
}

// Open creates the BoltDB file and its buckets if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{pendingBucket, deadBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Push appends op to the queue.
func (s *Store) Push(op Op) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	op.normalize()
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(pendingBucket), queueKey(op), op)
	})
}

// Peek returns up to limit ops from the head of the queue without removing them.
func (s *Store) Peek(limit int) ([]Op, error) {
	return s.list(pendingBucket, limit)
}

// Dead returns up to limit ops from the dead-letter bucket.
func (s *Store) Dead(limit int) ([]Op, error) {
	return s.list(deadBucket, limit)
}

// HasPending reports whether any queued op targets taskID.
func (s *Store) HasPending(taskID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(_, v []byte) error {
			var op Op
			if json.Unmarshal(v, &op) == nil && op.TaskID == taskID {
				found = true
			}
			return nil
		})
	})
	return found, err
}

// Ack removes a replayed op.
func (s *Store) Ack(op Op) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(keyOf(op))
	})
}

// Retry records a failed attempt and keeps op at its position in the queue.
func (s *Store) Retry(op Op, cause error) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	op.Attempts++
	if cause != nil {
		op.LastError = cause.Error()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(pendingBucket), keyOf(op), op)
	})
}

// Bury moves op to the dead-letter bucket.
func (s *Store) Bury(op Op, cause error) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if cause != nil {
		op.LastError = cause.Error()
	}
	key := keyOf(op)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(pendingBucket).Delete(key); err != nil {
			return err
		}
		return put(tx.Bucket(deadBucket), key, op)
	})
}

// Expire buries every op queued before cutoff and reports how many moved.
func (s *Store) Expire(cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	moved := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		pending, dead := tx.Bucket(pendingBucket), tx.Bucket(deadBucket)

		// Keys sort by enqueue time, so the stale ops form a prefix.
		var stale []Op
		c := pending.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var op Op
			if err := json.Unmarshal(v, &op); err != nil {
				continue
			}
			if !op.QueuedAt.Before(cutoff) {
				break
			}
			op.key = append([]byte(nil), k...)
			stale = append(stale, op)
		}

		for _, op := range stale {
			op.LastError = "expired"
			if err := pending.Delete(op.key); err != nil {
				return err
			}
			if err := put(dead, op.key, op); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	return moved, err
}

// Size returns the number of queued ops.
func (s *Store) Size() (int, error) {
	return s.count(pendingBucket)
}

// DeadSize returns the number of dead-letter ops.
func (s *Store) DeadSize() (int, error) {
	return s.count(deadBucket)
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) list(bucket []byte, limit int) ([]Op, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}
	var ops []Op
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.First(); k != nil && len(ops) < limit; k, v = c.Next() {
			var op Op
			if err := json.Unmarshal(v, &op); err != nil {
				continue
			}
			op.key = append([]byte(nil), k...)
			ops = append(ops, op)
		}
		return nil
	})
	return ops, err
}

func (s *Store) count(bucket []byte) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucket).Stats().KeyN
		return nil
	})
	return n, err
}

func keyOf(op Op) []byte {
	if len(op.key) > 0 {
		return op.key
	}
	return queueKey(op)
}

func put(b *bolt.Bucket, key []byte, op Op) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return b.Put(key, payload)
}
