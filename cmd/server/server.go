package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	appconfig "HabitQuest/config"
	"HabitQuest/internal/handler"
	"HabitQuest/internal/middleware"
	"HabitQuest/internal/queue"
	"HabitQuest/internal/router"
	"HabitQuest/internal/service"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/metrics"
	pkgotel "HabitQuest/pkg/otel"
	"HabitQuest/pkg/snowflake"
	"HabitQuest/pkg/token"
	"HabitQuest/storage"
	"HabitQuest/storage/database"
	"HabitQuest/storage/redis"
)

func main() {
	if err := appconfig.Load(); err != nil {
		panic(err)
	}
	if err := appconfig.Cfg.RequireJWT(); err != nil {
		panic(err)
	}
	cfg := appconfig.Cfg

	// 日志部分
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if cfg.TracingEnabled {
		shutdown, err := pkgotel.Setup(ctx, pkgotel.Config{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: cfg.ServiceVersion,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SampleRatio:    cfg.TracingSampler,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without export", zap.Error(err))
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Logger.Warn("Failed to flush telemetry", zap.Error(err))
				}
			}()
		}
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	meter := otel.Meter(cfg.ServiceName)
	questMetrics, err := metrics.NewQuestMetrics(meter)
	if err != nil {
		logger.Logger.Warn("Failed to register quest metrics", zap.Error(err))
	}
	httpMetrics, err := middleware.NewHTTPMetrics(meter)
	if err != nil {
		logger.Logger.Warn("Failed to register http metrics", zap.Error(err))
	}

	engine := service.NewEngine(service.EngineOptions{
		DB:        database.DB(),
		Redis:     redis.Client(),
		Metrics:   questMetrics,
		Publisher: queue.NewQuestEventProducer(),
		Config:    cfg,
	})

	logger.Logger.Info("Server starting",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
	)

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	opts := []config.Option{server.WithHostPorts(addr)}

	var tracerMW app.HandlerFunc
	if cfg.TracingEnabled {
		tracerOpt, mw := middleware.NewServerTracerConfig()
		opts = append(opts, tracerOpt)
		tracerMW = mw
	}
	h := server.New(opts...)

	limiterClient := redis.Client()
	if !cfg.RateLimitEnabled {
		limiterClient = nil
	}

	router.Register(h.Engine, router.Deps{
		DB:      database.DB(),
		Redis:   limiterClient,
		Quests:  handler.NewQuestHandler(engine.Quests),
		Rewards: handler.NewRewardHandler(engine.Rewards),
		Metrics: httpMetrics,
		Tracer:  tracerMW,
	})

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
