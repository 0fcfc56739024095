package main

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/taskbot/api/handler"
	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/internal/config"
	"github.com/fastygo/taskbot/internal/infrastructure/buffer"
	"github.com/fastygo/taskbot/internal/infrastructure/gemini"
	googleInfra "github.com/fastygo/taskbot/internal/infrastructure/google"
	"github.com/fastygo/taskbot/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/taskbot/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/taskbot/internal/infrastructure/redis"
	"github.com/fastygo/taskbot/internal/infrastructure/telegram"
	"github.com/fastygo/taskbot/internal/metrics"
	"github.com/fastygo/taskbot/internal/middleware"
	"github.com/fastygo/taskbot/internal/router"
	"github.com/fastygo/taskbot/internal/services"
	"github.com/fastygo/taskbot/internal/services/lifecycle"
	"github.com/fastygo/taskbot/pkg/httpcontext"
	"github.com/fastygo/taskbot/pkg/logger"
	"github.com/fastygo/taskbot/repository"
	"github.com/fastygo/taskbot/repository/memory"
	"github.com/fastygo/taskbot/repository/postgres"
	redisRepo "github.com/fastygo/taskbot/repository/redis"
	"github.com/fastygo/taskbot/usecase"
	"github.com/fastygo/taskbot/usecase/bot"
	"github.com/fastygo/taskbot/usecase/intake"
	"github.com/fastygo/taskbot/usecase/reminder"
	taskUC "github.com/fastygo/taskbot/usecase/task"
)

const monitorInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger = zapLogger.With(zap.String("app", cfg.AppName), zap.String("env", cfg.Environment))
	loc := cfg.Location()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.MustNew(registry)

	var (
		drafts   repository.DraftRepository
		sessions repository.ActionSessionRepository
		taskRepo repository.TaskRepository
		opBuffer usecase.OperationBuffer
		mon      *monitor.Monitor
	)

	switch cfg.Storage {
	case config.StoragePostgres:
		if err := pgInfra.RunMigrations(cfg.Database, cfg.Migrations, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}

		pool, err := pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, loc, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})

		redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("redis connection failed", zap.Error(err))
		}
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})

		bufferStore, err := buffer.Open(cfg.Buffer.Path)
		if err != nil {
			zapLogger.Fatal("failed to open buffer store", zap.Error(err))
		}
		manager.Register("buffer", func(ctx context.Context) error {
			return bufferStore.Close()
		})

		mon = monitor.New(monitorInterval, zapLogger,
			monitor.WithPostgres(pool),
			monitor.WithRedis(redisClient),
			monitor.WithBuffer(bufferStore),
			monitor.WithMetrics(appMetrics),
		)

		drafts = redisRepo.NewDraftRepository(redisClient, cfg.Draft.TTL)
		sessions = redisRepo.NewSessionRepository(redisClient, cfg.Draft.SessionTTL)
		taskRepo = postgres.NewTaskRepository(pool, loc)

		bufferProcessor := services.NewBufferProcessor(
			bufferStore,
			mon,
			taskRepo,
			zapLogger,
			services.ProcessorConfig{
				Interval:   cfg.Buffer.SyncInterval,
				BatchSize:  cfg.Buffer.BatchSize,
				MaxRetries: cfg.Buffer.MaxRetry,
				Retention:  time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
			},
		).WithMetrics(appMetrics)
		bufferProcessor.Start()
		manager.Register("buffer_processor", func(ctx context.Context) error {
			bufferProcessor.Stop(ctx)
			return nil
		})
		opBuffer = services.NewBufferBridge(bufferProcessor)

	case config.StorageMemory:
		zapLogger.Warn("using in-memory storage, tasks are lost on restart")
		mon = monitor.New(monitorInterval, zapLogger, monitor.WithMetrics(appMetrics))
		drafts = memory.NewDraftRepository()
		sessions = memory.NewSessionRepository(cfg.Draft.SessionTTL)
		taskRepo = memory.NewTaskRepository(loc)
	}

	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	var (
		calendarPort usecase.Calendar
		sheetPort    usecase.Spreadsheet
	)
	if cfg.Google.Enabled() {
		scopes := append(append([]string{}, googleInfra.CalendarScopes...), googleInfra.SheetScopes...)
		creds, err := googleInfra.Credentials(appCtx, cfg.Google.CredentialsJSON, cfg.Google.CredentialsFile, scopes...)
		if err != nil {
			zapLogger.Fatal("google credentials invalid", zap.Error(err))
		}

		cal, err := googleInfra.NewCalendar(appCtx, cfg.Google.CalendarID, loc, creds)
		if err != nil {
			zapLogger.Fatal("calendar client failed", zap.Error(err))
		}
		calendarPort = cal

		if cfg.Google.SpreadsheetID != "" {
			sheet, err := googleInfra.NewSheet(appCtx, cfg.Google.SpreadsheetID, cfg.Google.SheetTab, loc, creds)
			if err != nil {
				zapLogger.Fatal("sheets client failed", zap.Error(err))
			}
			sheetPort = sheet
		} else {
			zapLogger.Info("spreadsheet mirroring disabled")
		}
	} else {
		zapLogger.Info("google integrations disabled")
	}

	var extractor usecase.FieldExtractor = gemini.Disabled{}
	if cfg.GenAI.APIKey != "" {
		ext, err := gemini.NewExtractor(appCtx, cfg.GenAI.APIKey, cfg.GenAI.Model, loc, zapLogger)
		if err != nil {
			zapLogger.Fatal("extractor init failed", zap.Error(err))
		}
		extractor = ext
	} else {
		zapLogger.Info("field extraction disabled")
	}

	tgClient := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIBase, cfg.Context.ExternalTimeout, zapLogger)

	taskUseCase := taskUC.New(taskUC.Deps{
		Tasks:    taskRepo,
		Sessions: sessions,
		Calendar: calendarPort,
		Sheet:    sheetPort,
		Buffer:   opBuffer,
		Metrics:  appMetrics,
		Logger:   zapLogger,
	}, taskUC.Options{
		Timeout:  cfg.Context.ExternalTimeout,
		Location: loc,
	})

	intakeService := intake.New(intake.Deps{
		Drafts:     drafts,
		Tasks:      taskRepo,
		Extractor:  extractor,
		Calendar:   calendarPort,
		Sheet:      sheetPort,
		Buffer:     opBuffer,
		Completion: taskUseCase,
		Metrics:    appMetrics,
		Logger:     zapLogger,
	}, intake.Options{
		Timeout:  cfg.Context.ExternalTimeout,
		Location: loc,
	})

	botRouter := bot.NewRouter(intakeService, taskUseCase, tgClient, appMetrics, zapLogger)

	window := reminder.Window{Lower: cfg.Reminder.WindowLower, Upper: cfg.Reminder.WindowUpper}.Covering(cfg.Reminder.Interval)
	if window.Upper != cfg.Reminder.WindowUpper {
		zapLogger.Info("reminder window widened to cover the scan interval",
			zap.Duration("lower", window.Lower),
			zap.Duration("upper", window.Upper),
			zap.Duration("interval", cfg.Reminder.Interval))
	}
	scanner := reminder.NewScanner(
		taskRepo,
		tgClient,
		window,
		loc,
		cfg.Context.ExternalTimeout,
		appMetrics,
		zapLogger,
	)
	scheduler, err := services.NewReminderScheduler(scanner, services.SchedulerConfig{
		DailyAt:  cfg.Reminder.DailyAt,
		Interval: cfg.Reminder.Interval,
		Location: loc,
		Timeout:  cfg.Context.UpdateTimeout,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("reminder scheduler init failed", zap.Error(err))
	}
	scheduler.Start()
	manager.Register("reminder_scheduler", func(ctx context.Context) error {
		scheduler.Stop(ctx)
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Task:   apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		Health: apiHandler.NewHealthHandler(mon, cfg.Storage, ctxAdapter, zapLogger),
		Pprof:  cfg.HTTP.EnablePprof,
	}
	if cfg.HTTP.EnableMetrics {
		handlers.Metrics = registry
	}

	updateAdapter := httpcontext.NewAdapter(cfg.Context.UpdateTimeout)

	switch cfg.Telegram.Mode {
	case config.TelegramWebhook:
		handlers.Webhook = apiHandler.NewWebhookHandler(botRouter, cfg.Telegram.WebhookSecret, updateAdapter, zapLogger)

	case config.TelegramPolling:
		if err := tgClient.DeleteWebhook(appCtx); err != nil {
			zapLogger.Warn("failed to drop webhook before polling", zap.Error(err))
		}
		poller := telegram.NewPoller(tgClient, func(ctx context.Context, upd domain.Update) {
			updCtx, updCancel := updateAdapter.Derive(ctx, "")
			defer updCancel()
			botRouter.Handle(updCtx, upd)
		}, cfg.Telegram.PollTimeout, zapLogger)

		manager.Go("telegram_poller", func() error {
			poller.Run(appCtx)
			return nil
		})
		zapLogger.Info("telegram long polling started")
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	if cfg.JWT.Secret == "" {
		zapLogger.Warn("JWT_SECRET is empty, task API requests will be rejected")
	}
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	if cfg.Telegram.Mode == config.TelegramWebhook {
		if err := tgClient.SetWebhook(appCtx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			zapLogger.Error("failed to register webhook", zap.Error(err))
			cancel()
		} else {
			zapLogger.Info("telegram webhook registered", zap.String("url", cfg.Telegram.WebhookURL))
		}
	}

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
