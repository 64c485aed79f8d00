package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/akovalyov/priceguard/internal/catalog"
	"github.com/akovalyov/priceguard/internal/database"
	"github.com/akovalyov/priceguard/internal/notify"
	"github.com/akovalyov/priceguard/internal/scheduler"
	"github.com/akovalyov/priceguard/internal/tracker"
)

func main() {
	_ = godotenv.Load() // load .env if present; not fatal if missing

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// graceful shutdown coordination
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	logger.Info("connected to postgres")

	repo := tracker.NewRepository(pool)
	client := catalog.NewClient(envOr("CATALOG_BASE_URL", "https://card.wb.ru"))

	var notifier notify.Notifier
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		notifier = notify.NewTelegram(token, logger)
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, notifications will only be logged")
		notifier = notify.NewLogNotifier(logger)
	}

	sched := scheduler.New(repo, client, notifier, scheduler.Config{
		TickSeconds:            envInt("SCHEDULER_TICK_SECONDS", 30),
		DefaultIntervalSeconds: envInt("DEFAULT_INTERVAL_SECONDS", 1800),
		Workers:                envInt("SCHEDULER_WORKERS", 4),
	}, logger)

	// start the monitoring loop
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	// build router and handlers
	h := tracker.NewHandler(repo, client, logger)

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	api := r.Group("/api")
	{
		api.POST("/items", h.CreateItem)
		api.GET("/items", h.ListItems)
		api.DELETE("/items/:id", h.RemoveItem)
		api.GET("/items/:id/history", h.GetHistory)
		api.PUT("/settings/:owner_id", h.SetInterval)
	}

	srv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: r,
	}

	go func() {
		logger.Info("server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	// wait for interrupt
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// stop accepting new requests, allow 15s to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	// wait for the scheduler to finish its in-flight items
	wg.Wait()

	pool.Close()
	logger.Info("graceful shutdown complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
