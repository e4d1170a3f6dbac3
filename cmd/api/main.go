package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pipelineengine/internal/adapters/storage"
	apphttp "pipelineengine/internal/http"
	"pipelineengine/internal/http/router"
	"pipelineengine/internal/pipeline/agentexec"
	"pipelineengine/internal/pipeline/approval"
	"pipelineengine/internal/pipeline/artifact"
	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/billing"
	"pipelineengine/internal/pipeline/billingretry"
	"pipelineengine/internal/pipeline/dispatch"
	"pipelineengine/internal/pipeline/executor"
	"pipelineengine/internal/pipeline/httpapi"
	"pipelineengine/internal/pipeline/jobs"
	"pipelineengine/internal/pipeline/lifecycle"
	"pipelineengine/internal/pipeline/notify"
	"pipelineengine/internal/pipeline/repopg"
	"pipelineengine/internal/pipeline/retry"
	"pipelineengine/internal/pipeline/validate"
	"pipelineengine/internal/pipeline/ws"
	"pipelineengine/platform/config"
	"pipelineengine/platform/db"
	"pipelineengine/platform/logger"
	"pipelineengine/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// poolHealth adapts a pgxpool.Pool to apphttp.HealthChecker.
type poolHealth struct {
	pool *pgxpool.Pool
}

func (h poolHealth) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to create database pool", "error", err)
		panic("failed to create database pool: " + err.Error())
	}
	defer pool.Close()

	// ========================================================================
	// Pipeline composition root (C1-C14)
	// ========================================================================

	uow := repopg.NewUnitOfWork(pool)
	reads := uow.Repositories()

	reqValidator := validator.New()

	agents := agentexec.New(cfg)
	billingClient := billing.NewHTTPClient(cfg, log)
	auditSink := audit.NewLoggingSink(log)
	publisher := notify.New()
	retryScheduler := retry.NewScheduler()
	billingUnavailable := billingretry.New(auditSink)

	var artifactSvc *artifact.Service
	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to create storage service", "error", err)
			panic("failed to create storage service: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure artifacts bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx, cfg.GetMinioBucketArtifacts())
		}); err != nil {
			log.Error("failed to ensure artifacts bucket", "error", err)
			panic("failed to ensure artifacts bucket: " + err.Error())
		}
		artifactSvc = artifact.NewService(storageSvc, cfg)
	} else {
		log.Warn("MinIO is not configured; artifact content storage is disabled")
	}

	exec := executor.New(uow, agents, billingClient, artifactSvc, retryScheduler, billingUnavailable, auditSink, publisher, log)
	validatorSvc := validate.New(reads, billingClient)

	dispatcher := dispatch.NewDispatcher(cfg)
	defer dispatcher.Close()
	dispatchWorker := dispatch.NewWorker(cfg, exec, log, 5)
	go dispatchWorker.Run(ctx)

	approvalSvc := approval.New(uow, dispatcher, auditSink, publisher, log)
	lifecycleSvc := lifecycle.New(uow, dispatcher, auditSink, log)

	jobsClient := jobs.NewClient(cfg, uow)
	defer jobsClient.Close()
	// Export/git-sync sinks are out-of-scope collaborators (§1): no ZIP
	// packer or git client exists in this deployment, so jobs of either
	// type persist and fail with a descriptive message rather than panic.
	jobsWorker := jobs.NewWorker(cfg, uow, nil, nil, auditSink, log)
	go jobsWorker.Run(ctx)
	jobsHandler := httpapi.NewJobsHandler(jobsClient, reads, reqValidator)

	pipelineHandler := httpapi.New(uow, reads, dispatcher, validatorSvc, approvalSvc, lifecycleSvc, auditSink, reqValidator, log)
	pipelineModule := httpapi.NewModule(pipelineHandler, jobsHandler)
	wsHandler := ws.New(cfg, publisher, log)

	retryWorker := retry.NewWorker(uow, exec, log, retry.WithInterval(cfg.GetRetryPollInterval()))
	go retryWorker.Run(ctx)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: poolHealth{pool: pool},
		Modules: []apphttp.Module{
			pipelineModule,
		},
	}

	engine := router.New(app)
	engine.GET("/ws", wsHandler.Serve)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
