package domain

import "time"

// TaskStatus is the lifecycle state of a confirmed task.
type TaskStatus string

const (
	TaskActive TaskStatus = "active"
	TaskDone   TaskStatus = "done"
)

// DefaultTaskTime is assumed for reminders when a task has no time of day.
const DefaultTaskTime = "10:00"

// Task is a confirmed task with external bookkeeping identifiers.
type Task struct {
	ID              string     `json:"id"`
	UserID          int64      `json:"user_id"`
	Title           string     `json:"title"`
	Deadline        string     `json:"deadline"`
	Time            string     `json:"time"`
	AssignedBy      string     `json:"assigned_by"`
	Comment         string     `json:"comment"`
	Links           []string   `json:"links"`
	CalendarEventID *string    `json:"calendar_event_id,omitempty"`
	SheetRow        *int       `json:"sheet_row,omitempty"`
	Status          TaskStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	HoursSpent      *float64   `json:"hours_spent,omitempty"`
}

func (t *Task) IsActive() bool {
	return t != nil && t.Status == TaskActive
}

// DueAt combines deadline and time in loc, falling back to DefaultTaskTime.
func (t *Task) DueAt(loc *time.Location) (time.Time, bool) {
	if t == nil || t.Deadline == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	clock := t.Time
	if clock == "" {
		clock = DefaultTaskTime
	}
	due, err := time.ParseInLocation("2006-01-02 15:04", t.Deadline+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return due, true
}
