// Package metrics exposes the Prometheus collectors of the bot.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskbot"

// Collectors groups the counters and histograms updated by use cases and services.
// A nil *Collectors is valid and records nothing.
type Collectors struct {
	updates        *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	tasks          *prometheus.CounterVec
	calls          *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	reminders      *prometheus.CounterVec
	bufferedWrites *prometheus.CounterVec
	replays        *prometheus.CounterVec
	backendUp      *prometheus.GaugeVec
	bufferPending  prometheus.Gauge
}

// MustNew creates the collectors and registers them on reg, panicking on conflicts.
func MustNew(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bot",
			Name:      "updates_total",
			Help:      "Inbound chat updates by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "step_transitions_total",
			Help:      "Draft step transitions by target step.",
		}, []string{"step"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "events_total",
			Help:      "Task lifecycle events (confirmed, completed, extended, cancelled).",
		}, []string{"event"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "calls_total",
			Help:      "External collaborator calls by result.",
		}, []string{"collaborator", "result"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "call_duration_seconds",
			Help:      "Latency of external collaborator calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "sent_total",
			Help:      "Reminder notifications by window and result.",
		}, []string{"window", "result"}),
		bufferedWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "operations_total",
			Help:      "Task store writes diverted to the offline buffer.",
		}, []string{"operation"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "replays_total",
			Help:      "Buffered task writes by replay outcome.",
		}, []string{"result"}),
		backendUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "up",
			Help:      "Whether a storage dependency answered its last probe.",
		}, []string{"backend"}),
		bufferPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "pending",
			Help:      "Operations waiting in the offline buffer.",
		}),
	}
	reg.MustRegister(c.updates, c.transitions, c.tasks, c.calls, c.callDuration, c.reminders, c.bufferedWrites,
		c.replays, c.backendUp, c.bufferPending)
	return c
}

func (c *Collectors) Update(kind string) {
	if c == nil {
		return
	}
	c.updates.WithLabelValues(kind).Inc()
}

func (c *Collectors) Transition(step string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(step).Inc()
}

func (c *Collectors) TaskEvent(event string) {
	if c == nil {
		return
	}
	c.tasks.WithLabelValues(event).Inc()
}

// ObserveCall records one collaborator call started at start.
func (c *Collectors) ObserveCall(collaborator string, start time.Time, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.calls.WithLabelValues(collaborator, result).Inc()
	c.callDuration.WithLabelValues(collaborator).Observe(time.Since(start).Seconds())
}

func (c *Collectors) Reminder(window string, err error) {
	if c == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	c.reminders.WithLabelValues(window, result).Inc()
}

func (c *Collectors) Buffered(operation string) {
	if c == nil {
		return
	}
	c.bufferedWrites.WithLabelValues(operation).Inc()
}

func (c *Collectors) BackendUp(backend string, up bool) {
	if c == nil {
		return
	}
	value := 0.0
	if up {
		value = 1
	}
	c.backendUp.WithLabelValues(backend).Set(value)
}

// BackendGauge exposes the gauge of one backend for inspection. It is nil
// when collection is disabled.
func (c *Collectors) BackendGauge(backend string) prometheus.Gauge {
	if c == nil {
		return nil
	}
	return c.backendUp.WithLabelValues(backend)
}

func (c *Collectors) BufferPending(size int) {
	if c == nil {
		return
	}
	c.bufferPending.Set(float64(size))
}

// Replayed counts n buffered writes that ended with result.
func (c *Collectors) Replayed(result string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.replays.WithLabelValues(result).Add(float64(n))
}
