package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"HabitQuest/config"
	"HabitQuest/internal/cache"
	"HabitQuest/internal/queue"
	"HabitQuest/internal/service"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/metrics"
	pkgotel "HabitQuest/pkg/otel"
	"HabitQuest/pkg/snowflake"
	"HabitQuest/storage"
	"HabitQuest/storage/database"
	"HabitQuest/storage/redis"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.Cfg

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
			ServiceName:    cfg.ServiceName + "-worker",
			ServiceVersion: cfg.ServiceVersion,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SampleRatio:    cfg.TracingSampler,
		})
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry, continuing without export", zap.Error(err))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// worker 和 server 用不同的 machine id 部署，避免消息 ID 冲突
	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	questMetrics, err := metrics.NewQuestMetrics(otel.Meter(cfg.ServiceName + "-worker"))
	if err != nil {
		logger.Logger.Warn("Failed to register quest metrics", zap.Error(err))
	}

	engine := service.NewEngine(service.EngineOptions{
		DB:      database.DB(),
		Redis:   redis.Client(),
		Metrics: questMetrics,
		Config:  cfg,
	})

	consumer := queue.NewProgressConsumer(engine.Quests, cache.NewMessageMarker(redis.Client()))

	logger.Logger.Info("Worker service starting",
		zap.String("service", cfg.ServiceName+"-worker"),
		zap.String("environment", cfg.Environment),
		zap.Int("prefetch", cfg.WorkerPrefetch),
	)

	if err := consumer.Start(ctx, cfg.WorkerPrefetch); err != nil && ctx.Err() == nil {
		logger.Logger.Error("Quest progress consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
