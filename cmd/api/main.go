package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventmitra/backend/internal/checkout"
	"eventmitra/backend/internal/config"
	"eventmitra/backend/internal/db"
	"eventmitra/backend/internal/geocode"
	"eventmitra/backend/internal/http/handlers"
	"eventmitra/backend/internal/integrations"
	"eventmitra/backend/internal/integrations/razorpay"
	"eventmitra/backend/internal/logging"
	"eventmitra/backend/internal/rate"
	"eventmitra/backend/internal/repository"

	"github.com/redis/go-redis/v9"
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
	logger = logger.With("service", "api")
	slog.SetDefault(logger)

	if !cfg.HasRazorpay() {
		logger.Error("config error", "error", "RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	gateway := razorpay.NewClient(razorpay.Config{
		BaseURL:   cfg.Razorpay.BaseURL,
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
	}, nil, logger)

	var feed checkout.Publisher
	if cfg.HasPubNub() {
		feed = integrations.NewLiveFeed(cfg.PubNub)
	}

	services := handlers.Services{
		Checkout:  checkout.NewService(repo, gateway, checkout.Config{QRSecret: cfg.QRSecret, Currency: cfg.Currency}, logger),
		Admission: checkout.NewAdmission(repo, feed, cfg.QRSecret, logger),
	}
	if cfg.S3.Bucket != "" {
		services.S3, err = integrations.NewS3(ctx, cfg.S3)
		if err != nil {
			logger.Error("s3 error", "error", err)
			os.Exit(1)
		}
	}
	if cfg.Geocoder.Endpoint != "" {
		services.Geocoder = geocode.NewClient(geocode.Config{Endpoint: cfg.Geocoder.Endpoint, Timeout: cfg.Geocoder.Timeout}, nil)
	}

	limiter, closeLimiter, err := newAPILimiter(ctx, cfg, logger)
	if err != nil {
		logger.Error("redis error", "error", err)
		os.Exit(1)
	}
	defer closeLimiter()

	h := handlers.New(repo, services, cfg, logger)
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: newRouter(h, routerDeps{
			cfg:     cfg,
			blocked: repo,
			limiter: limiter,
			logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", cfg.HTTPAddr, "s3", services.S3 != nil, "live_feed", feed != nil, "geocoder", services.Geocoder != nil)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown", "service", "api")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
}

// newAPILimiter shares the blanket limit through Redis when REDIS_URL is
// set and falls back to per-process token buckets otherwise.
func newAPILimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rate.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("rate_limiter", "backend", "memory", "per_minute", cfg.RateLimit)
		return rate.NewKeyedLimiter(cfg.RateLimit), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("rate_limiter", "status", "redis_unreachable", "error", err)
	}
	logger.Info("rate_limiter", "backend", "redis", "per_minute", cfg.RateLimit)
	return rate.NewRedisLimiter(client, cfg.RateLimit, time.Minute), func() { _ = client.Close() }, nil
}
