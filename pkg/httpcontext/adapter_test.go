package httpcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/taskbot/pkg/logger"
)

func TestAttachPropagatesRequestID(t *testing.T) {
	adapter := NewAdapter(time.Second)
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set(RequestIDHeader, "abc")

	stdCtx, cancel := adapter.Attach(ctx)
	defer cancel()

	assert.Equal(t, "abc", appLogger.RequestID(stdCtx))
	assert.Equal(t, "abc", string(ctx.Response.Header.Peek(RequestIDHeader)))
	deadline, ok := stdCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 200*time.Millisecond)
}

func TestDeriveGeneratesIDAndInheritsCancel(t *testing.T) {
	adapter := NewAdapter(0)
	assert.Equal(t, 5*time.Second, adapter.Timeout())

	parent, stop := context.WithCancel(context.Background())
	stdCtx, cancel := adapter.Derive(parent, "")
	defer cancel()

	assert.NotEmpty(t, appLogger.RequestID(stdCtx))
	stop()
	<-stdCtx.Done()
	assert.ErrorIs(t, stdCtx.Err(), context.Canceled)
}
