package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/pkg/timeparse"
)

// ReminderJobs are the scans the scheduler triggers.
type ReminderJobs interface {
	RemindTomorrow(ctx context.Context) (int, error)
	RemindUpcoming(ctx context.Context) (int, error)
}

// SchedulerConfig sets when reminders run. DailyAt is a wall-clock time in
// Location.
type SchedulerConfig struct {
	DailyAt  string
	Interval time.Duration
	Location *time.Location
	Timeout  time.Duration
}

// ReminderScheduler runs the daily "due tomorrow" scan and the periodic
// "due soon" scan on cron.
type ReminderScheduler struct {
	jobs   ReminderJobs
	cron   *cron.Cron
	cfg    SchedulerConfig
	logger *zap.Logger
}

func NewReminderScheduler(jobs ReminderJobs, cfg SchedulerConfig, logger *zap.Logger) (*ReminderScheduler, error) {
	if cfg.DailyAt == "" {
		cfg.DailyAt = "09:00"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clock, err := timeparse.ParseTime(cfg.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("reminder daily time %q: %w", cfg.DailyAt, err)
	}
	at, _ := time.Parse(timeparse.TimeLayout, clock)

	s := &ReminderScheduler{
		jobs:   jobs,
		cron:   cron.New(cron.WithLocation(cfg.Location)),
		cfg:    cfg,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour()), s.runDaily); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc("@every "+cfg.Interval.String(), s.runUpcoming); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron scheduler.
func (s *ReminderScheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("reminder scheduler started",
		zap.String("daily_at", s.cfg.DailyAt),
		zap.Duration("interval", s.cfg.Interval),
		zap.String("timezone", s.cfg.Location.String()),
	)
}

// Stop waits for running scans to finish or ctx to expire.
func (s *ReminderScheduler) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("reminder scheduler stopped")
}

func (s *ReminderScheduler) runDaily() {
	s.run("tomorrow", s.jobs.RemindTomorrow)
}

func (s *ReminderScheduler) runUpcoming() {
	s.run("upcoming", s.jobs.RemindUpcoming)
}

func (s *ReminderScheduler) run(scan string, job func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	sent, err := job(ctx)
	if err != nil {
		s.logger.Error("reminder scan failed", zap.String("scan", scan), zap.Error(err))
		return
	}
	s.logger.Info("reminder scan finished", zap.String("scan", scan), zap.Int("sent", sent))
}
