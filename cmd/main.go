package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	"turn-service/internal/handler"
	"turn-service/internal/maintenance"
	mid "turn-service/internal/middleware"
	"turn-service/internal/notify"
	"turn-service/internal/queue"
	"turn-service/pkg/config"
	"turn-service/pkg/database"
	"turn-service/pkg/jwtutil"
	"turn-service/pkg/logger"
	"turn-service/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "turn-service"

func main() {
	appConfig, err := config.Load(serviceName)
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       appConfig.Log.Level,
		Environment: appConfig.Server.Env,
		ServiceName: appConfig.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting turn-service", appConfig.LogConfig()...)

	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	db, err := database.InitDB(&appConfig.DB)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close(db)
	log.Info("Database connection established", zap.String("driver", appConfig.DB.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	var (
		notifier queue.Notifier = notify.Nop{}
		rdb      redis.Cmdable
	)
	if appConfig.Redis.Enabled {
		client, err := database.NewRedisClient(ctx, appConfig.Redis.URL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		rdb = client
		notifier = notify.NewRedisNotifier(client, appConfig.Redis.Stream, appConfig.Redis.ChannelPrefix, appConfig.Redis.StreamMaxLen)
		log.Info("Redis notifier enabled",
			zap.String("stream", appConfig.Redis.Stream),
			zap.String("channel_prefix", appConfig.Redis.ChannelPrefix))
	}

	loc, err := appConfig.Queue.Location()
	if err != nil {
		log.Fatal("Invalid queue time zone", zap.Error(err))
	}

	engine := queue.NewEngine(db, queue.WithNotifier(notifier))
	queries := queue.NewQueryService(db, queue.WithLocation(loc))
	maint := maintenance.NewService(db, maintenance.WithLocation(loc))

	scheduler := maintenance.NewScheduler(maint,
		appConfig.Queue.RetentionDays,
		appConfig.Queue.SweepInterval,
		appConfig.Queue.SweepOnStart)

	// joined before the deferred database.Close
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(mid.MetricsMiddleware)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	handler.RegisterRoutes(e, handler.Handlers{
		Queue:  handler.NewQueueHandler(engine, queries),
		Admin:  handler.NewAdminHandler(maint, appConfig.Queue.RetentionDays),
		Health: handler.NewHealthHandler(db, rdb),
	}, mid.NewAuth(jwtutil.NewJWTUtil(&appConfig.JWT)))

	go func() {
		port := appConfig.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	wg.Wait()
}
