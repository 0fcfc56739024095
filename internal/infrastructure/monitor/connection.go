package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/taskbot/internal/infrastructure/buffer"
	"github.com/fastygo/taskbot/internal/metrics"
)

const probeTimeout = 3 * time.Second

type pinger func(ctx context.Context) error

// Option enables one dependency check.
type Option func(*Monitor)

func WithPostgres(pool *pgxpool.Pool) Option {
	return func(m *Monitor) {
		if pool != nil {
			m.pg = pool.Ping
		}
	}
}

func WithRedis(client *redislib.Client) Option {
	return func(m *Monitor) {
		if client != nil {
			m.redis = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}
}

func WithBuffer(store *buffer.Store) Option {
	return func(m *Monitor) {
		m.buffer = store
	}
}

func WithMetrics(c *metrics.Collectors) Option {
	return func(m *Monitor) {
		m.metrics = c
	}
}

// Monitor periodically probes the stores the bot depends on. Stores that
// were not enabled through an Option are reported as healthy.
type Monitor struct {
	pg      pinger
	redis   pinger
	buffer  *buffer.Store
	metrics *metrics.Collectors

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(interval time.Duration, logger *zap.Logger, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs the first check synchronously, then keeps probing in the background.
func (m *Monitor) Start() {
	m.refresh()
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) IsOnline() bool {
	return m.GetStatus().Online()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	status := Status{
		Postgres:  m.probe(m.pg),
		Redis:     m.probe(m.redis),
		LastCheck: time.Now(),
	}
	status.Buffer, status.BufferSize = m.probeBuffer()

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	m.report("postgres", previous.Postgres, status.Postgres, previous.LastCheck.IsZero())
	m.report("redis", previous.Redis, status.Redis, previous.LastCheck.IsZero())
	m.report("buffer", previous.Buffer, status.Buffer, previous.LastCheck.IsZero())
	m.metrics.BufferPending(status.BufferSize)
}

func (m *Monitor) probe(ping pinger) Probe {
	if ping == nil {
		return Probe{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	p := Probe{Enabled: true, Up: err == nil, Latency: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

func (m *Monitor) probeBuffer() (Probe, int) {
	if m.buffer == nil {
		return Probe{}, 0
	}
	size, err := m.buffer.Size()
	if err != nil {
		return Probe{Enabled: true, Error: err.Error()}, 0
	}
	return Probe{Enabled: true, Up: true}, size
}

// report logs transitions only, so a flapping store does not flood the log.
func (m *Monitor) report(name string, before, after Probe, first bool) {
	if !after.Enabled {
		return
	}
	m.metrics.BackendUp(name, after.Up)
	switch {
	case !after.Up && (first || before.Up):
		m.logger.Warn("dependency unreachable", zap.String("dependency", name), zap.String("error", after.Error))
	case after.Up && !first && !before.Up:
		m.logger.Info("dependency recovered", zap.String("dependency", name))
	}
}
