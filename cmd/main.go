package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kdduha/genai-gateway/internal/cache"
	"github.com/kdduha/genai-gateway/internal/config"
	"github.com/kdduha/genai-gateway/internal/handler"
	"github.com/kdduha/genai-gateway/internal/llm"
	"github.com/kdduha/genai-gateway/internal/metrics"
	"github.com/kdduha/genai-gateway/internal/service"
	"github.com/kdduha/genai-gateway/internal/upload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/kdduha/genai-gateway/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title GenAI Gateway API
// @version 1.0
// @description HTTP facade that forwards prompts and uploaded files to a generative model.
// @BasePath /
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.Default()

	client, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		logger.Fatalf("model client error: %v", err)
	}
	generateService := service.NewGenerateService(logger, client, cfg.Model)

	if cfg.CacheEnable {
		redisCache := cache.NewRedisCache(
			cfg.RedisConfig.Addr,
			cfg.RedisConfig.Password,
			cfg.RedisConfig.DB,
			cfg.RedisConfig.TTL,
		)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			logger.Printf("redis is unreachable, results will not be cached: %v\n", err)
		} else {
			generateService.SetCacheClient(redisCache)
			logger.Println("set redis as cache")
		}
	}

	receiver, err := upload.NewReceiver(
		cfg.Upload.Dir,
		cfg.Upload.MaxBytes,
		upload.WithMaxPDFPages(cfg.Upload.MaxPDFPages),
	)
	if err != nil {
		logger.Fatalf("upload dir error: %v", err)
	}

	h := handler.NewGenerateHandler(logger, generateService, receiver)

	r := chi.NewRouter()
	r.Use([]func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Heartbeat("/healthz"),
		middleware.Throttle(cfg.Server.ThrottleLimit),
		middleware.Timeout(cfg.Server.Timeout),
		metrics.Middleware,
	}...)

	h.Register(r)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Printf("API Ready at http://localhost:%s (model %s via %s)\n", cfg.Server.Port, cfg.Model.Name, cfg.Model.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("server forced to shutdown: %v", err)
	}
	logger.Println("server stopped")
}
