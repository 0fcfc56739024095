package domain

import "time"

// SessionKind identifies which post-confirmation dialogue a session drives.
type SessionKind string

const (
	SessionComplete SessionKind = "complete"
	SessionExtend   SessionKind = "extend"
)

// SessionStage is the input the session is waiting for.
type SessionStage string

const (
	StageHours         SessionStage = "hours"
	StageCommentChoice SessionStage = "comment_choice"
	StageComment       SessionStage = "comment"
	StageDate          SessionStage = "date"
	StageTime          SessionStage = "time"
)

// ActionSession is the short-lived state of a mark-done or extend dialogue.
type ActionSession struct {
	UserID      int64        `json:"user_id"`
	ChatID      int64        `json:"chat_id"`
	TaskID      string       `json:"task_id"`
	Kind        SessionKind  `json:"kind"`
	Stage       SessionStage `json:"stage"`
	NewDeadline string       `json:"new_deadline,omitempty"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (s *ActionSession) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}
