// Package reminder pushes deadline reminders for active tasks. It only reads
// the task store.
package reminder

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/metrics"
	"github.com/fastygo/taskbot/pkg/timeparse"
	"github.com/fastygo/taskbot/repository"
	"github.com/fastygo/taskbot/usecase"
	"github.com/fastygo/taskbot/usecase/task"
)

const (
	DefaultLower = 45 * time.Minute
	DefaultUpper = 90 * time.Minute
)

// Window bounds the upcoming-deadline scan relative to now.
type Window struct {
	Lower time.Duration
	Upper time.Duration
}

// Covering widens w so that scans every interval leave no gap between
// consecutive windows.
func (w Window) Covering(interval time.Duration) Window {
	if interval > 0 && w.Upper-w.Lower < interval {
		w.Upper = w.Lower + interval
	}
	return w
}

type Scanner struct {
	tasks    repository.TaskRepository
	notifier usecase.Notifier
	caller   usecase.ExternalCaller
	metrics  *metrics.Collectors
	logger   *zap.Logger
	loc      *time.Location
	window   Window
	now      func() time.Time
}

func NewScanner(
	tasks repository.TaskRepository,
	notifier usecase.Notifier,
	window Window,
	loc *time.Location,
	timeout time.Duration,
	collectors *metrics.Collectors,
	logger *zap.Logger,
) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	if window.Lower <= 0 {
		window.Lower = DefaultLower
	}
	if window.Upper <= window.Lower {
		window.Upper = DefaultUpper
	}
	return &Scanner{
		tasks:    tasks,
		notifier: notifier,
		caller:   usecase.ExternalCaller{Timeout: timeout, Metrics: collectors, Logger: logger},
		metrics:  collectors,
		logger:   logger,
		loc:      loc,
		window:   window,
		now:      time.Now,
	}
}

// RemindTomorrow notifies owners of active tasks due tomorrow. It returns the
// number of reminders delivered.
func (s *Scanner) RemindTomorrow(ctx context.Context) (int, error) {
	tomorrow := s.now().In(s.loc).AddDate(0, 0, 1).Format(timeparse.DateLayout)
	tasks, err := s.tasks.QueryActive(ctx, repository.ActiveFilter{Deadline: tomorrow})
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range tasks {
		t := &tasks[i]
		var b strings.Builder
		b.WriteString("⚠️ <b>Напоминание!</b>\nЗавтра дедлайн задачи:\n")
		fmt.Fprintf(&b, "📌 <b>%s</b>\n🗓 %s", html.EscapeString(t.Title), timeparse.FormatDay(t.Deadline))
		if t.Time != "" {
			fmt.Fprintf(&b, " %s", t.Time)
		}
		if s.deliver(ctx, "tomorrow", t, b.String()) {
			sent++
		}
	}
	s.logger.Info("tomorrow reminders processed", zap.String("date", tomorrow), zap.Int("tasks", len(tasks)), zap.Int("sent", sent))
	return sent, nil
}

// RemindUpcoming notifies owners of tasks whose deadline falls inside the
// configured window. A task without a time of day is due at 10:00.
func (s *Scanner) RemindUpcoming(ctx context.Context) (int, error) {
	tasks, err := s.tasks.QueryDueWithin(ctx, s.window.Lower, s.window.Upper)
	if err != nil {
		return 0, err
	}

	now := s.now().In(s.loc)
	sent := 0
	for i := range tasks {
		t := &tasks[i]
		due, ok := t.DueAt(s.loc)
		if !ok {
			continue
		}
		clock := t.Time
		if clock == "" {
			clock = domain.DefaultTaskTime
		}
		text := fmt.Sprintf("⏰ <b>Напоминание о задаче!</b>\n%s\n📌 <b>%s</b>\n🗓 %s %s",
			Remaining(due.Sub(now)), html.EscapeString(t.Title), timeparse.FormatDay(t.Deadline), clock)
		if s.deliver(ctx, "upcoming", t, text) {
			sent++
		}
	}
	s.logger.Info("upcoming reminders processed", zap.Int("tasks", len(tasks)), zap.Int("sent", sent))
	return sent, nil
}

// Remaining renders the time left before a deadline.
func Remaining(left time.Duration) string {
	minutes := int(left.Minutes())
	if minutes <= 60 {
		return "До дедлайна осталось менее часа!"
	}
	return fmt.Sprintf("До дедлайна осталось %d ч %d мин", minutes/60, minutes%60)
}

// deliver sends one reminder; failures are logged and do not stop the batch.
func (s *Scanner) deliver(ctx context.Context, window string, t *domain.Task, text string) bool {
	if s.notifier == nil {
		return false
	}
	reply := domain.Reply{
		ChatID:  t.UserID,
		Text:    text,
		Buttons: [][]domain.Button{task.TaskButtons(t.ID)},
	}
	err := s.caller.Call(ctx, "notifier", func(ctx context.Context) error {
		return s.notifier.Send(ctx, reply)
	})
	s.metrics.Reminder(window, err)
	if err != nil {
		s.logger.Warn("reminder not delivered", zap.String("task_id", t.ID), zap.Int64("user_id", t.UserID), zap.Error(err))
		return false
	}
	return true
}
