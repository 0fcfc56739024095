package router

import (
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"github.com/valyala/fasthttp/pprofhandler"

	apiHandler "github.com/fastygo/taskbot/api/handler"
)

// WebhookPath receives Telegram updates in webhook mode.
const WebhookPath = "/telegram/webhook"

type Handlers struct {
	Task    *apiHandler.TaskHandler
	Health  *apiHandler.HealthHandler
	Webhook *apiHandler.WebhookHandler
	// Metrics is served on /metrics when set.
	Metrics prometheus.Gatherer
	Pprof   bool
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	if handlers.Metrics != nil {
		r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(
			promhttp.HandlerFor(handlers.Metrics, promhttp.HandlerOpts{}),
		))
	}

	if handlers.Pprof {
		r.GET("/debug/pprof/{profile:*}", pprofhandler.PprofHandler)
	}

	if handlers.Webhook != nil {
		r.POST(WebhookPath, handlers.Webhook.Receive)
	}

	// Protected routes
	r.GET("/api/v1/tasks", authMiddleware(handlers.Task.GetTasks))
	r.GET("/api/v1/tasks/{id}", authMiddleware(handlers.Task.GetTask))
	r.POST("/api/v1/tasks/{id}/complete", authMiddleware(handlers.Task.CompleteTask))
	r.POST("/api/v1/tasks/{id}/extend", authMiddleware(handlers.Task.ExtendTask))

	return r
}
