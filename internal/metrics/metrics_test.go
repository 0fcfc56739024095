package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorsRecord(t *testing.T) {
	c := MustNew(prometheus.NewRegistry())

	c.Update("message")
	c.Update("message")
	c.TaskEvent("confirmed")
	c.ObserveCall("calendar", time.Now(), errors.New("boom"))
	c.ObserveCall("calendar", time.Now(), nil)
	c.Reminder("tomorrow", nil)
	c.Replayed("applied", 3)
	c.Replayed("buried", 0)
	c.BackendUp("postgres", false)
	c.BufferPending(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.updates.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasks.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.calls.WithLabelValues("calendar", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.calls.WithLabelValues("calendar", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reminders.WithLabelValues("tomorrow", "sent")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.replays.WithLabelValues("applied")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.BackendGauge("postgres")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.bufferPending))
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.Update("callback")
		c.Transition("confirm")
		c.ObserveCall("sheet", time.Now(), nil)
		c.Buffered("create")
		c.Replayed("retried", 1)
		c.BackendUp("redis", true)
		c.BufferPending(1)
	})
}

func TestNilCollectorsHaveNoGauge(t *testing.T) {
	var c *Collectors
	assert.Nil(t, c.BackendGauge("postgres"))
}
