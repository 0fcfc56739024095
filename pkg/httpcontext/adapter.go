package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/taskbot/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const KeyRemoteAddr Key = "remote_addr"

const RequestIDHeader = "X-Request-ID"

// Adapter builds bounded stdlib contexts for HTTP requests and polled chat updates.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{timeout: timeout}
}

// Timeout is the deadline applied to every derived context.
func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

// Attach derives a context for a fasthttp request. The fasthttp context is
// recycled after the handler returns, so the result is rooted at Background.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	reqID := getRequestID(ctx)
	stdCtx, cancel := a.Derive(context.Background(), reqID)
	if ctx == nil {
		return stdCtx, cancel
	}

	ctx.Response.Header.Set(RequestIDHeader, reqID)
	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	return stdCtx, cancel
}

// Derive bounds parent with the adapter timeout and tags it with requestID,
// generating one when empty.
func (a *Adapter) Derive(parent context.Context, requestID string) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}
	stdCtx, cancel := context.WithTimeout(parent, a.timeout)
	return appLogger.ContextWithRequestID(stdCtx, requestID), cancel
}

func getRequestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if header := string(ctx.Request.Header.Peek(RequestIDHeader)); strings.TrimSpace(header) != "" {
		return header
	}
	return uuid.NewString()
}
