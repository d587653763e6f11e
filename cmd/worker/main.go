package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventmitra/backend/internal/config"
	"eventmitra/backend/internal/db"
	"eventmitra/backend/internal/integrations"
	"eventmitra/backend/internal/logging"
	"eventmitra/backend/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	logger = logger.With("service", "worker")
	slog.SetDefault(logger)

	if !cfg.HasSMTP() {
		logger.Error("config error", "error", "SMTP_HOST is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	w := &worker{
		store:   repo,
		mailer:  integrations.NewMailer(cfg.SMTP),
		baseURL: cfg.BaseURL,
		logger:  logger,
		now:     time.Now,
	}
	if cfg.S3.Bucket != "" {
		s3Client, err := integrations.NewS3(ctx, cfg.S3)
		if err != nil {
			logger.Error("s3 error", "error", err)
			os.Exit(1)
		}
		w.archive = s3Client
	}

	logger.Info("worker_started", "qr_archive", w.archive != nil)
	for {
		if ctx.Err() != nil {
			logger.Info("shutdown", "service", "worker")
			return
		}
		if err := repo.RequeueStaleProcessing(ctx, staleProcessingAfter); err != nil {
			logger.Warn("requeue_stale_jobs_error", "error", err)
		}
		jobs, err := repo.FetchDueNotificationJobs(ctx, 100)
		if err != nil {
			logger.Error("fetch_jobs_error", "error", err)
			sleep(ctx, 5*time.Second)
			continue
		}
		if len(jobs) == 0 {
			sleep(ctx, 10*time.Second)
			continue
		}

		for _, job := range jobs {
			if err := w.handleJob(ctx, job); err != nil {
				logger.Error("job_failed", "job_id", job.ID, "error", err)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
