package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"HabitQuest/config"
	"HabitQuest/internal/cache"
	"HabitQuest/internal/repository"
	"HabitQuest/internal/service"
	"HabitQuest/pkg/logger"
	"HabitQuest/storage/database"
	"HabitQuest/storage/redis"
)

// scheduler 周期性把目录文件同步进数据库，目录文件由配置系统下发
func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.Cfg

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if err := database.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize database for scheduler", zap.Error(err))
	}
	defer func() { _ = database.Close(context.Background()) }()

	if err := redis.Init(); err != nil {
		logger.Logger.Warn("Redis unavailable, catalog cache will expire on its own", zap.Error(err))
	}
	defer func() { _ = redis.Close(context.Background()) }()

	repo := repository.NewQuestRepo(database.DB())
	catalog := service.NewCachedCatalog(repo, cache.NewProtectedCache(redis.Client(), "quest", cfg.QuestCatalogCacheTTL))

	interval := cfg.QuestCatalogSyncInterval
	if config.Cfg.IsDevelopment() {
		interval = time.Minute
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", cfg.ServiceName+"-scheduler"),
		zap.String("environment", cfg.Environment),
		zap.String("catalog", cfg.QuestCatalogPath),
		zap.Duration("interval", interval),
	)

	runCatalogSyncLoop(ctx, repo, catalog, cfg.QuestCatalogPath, interval)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runCatalogSyncLoop 启动时同步一次，之后按间隔重复；目录文件不合法时保留数据库里的旧目录
func runCatalogSyncLoop(ctx context.Context, repo repository.QuestRepo, catalog service.Catalog, path string, interval time.Duration) {
	syncOnce := func() {
		defs, err := service.LoadCatalogFile(path)
		if err != nil {
			logger.Logger.Error("Quest catalog rejected, keeping the current one", zap.String("path", path), zap.Error(err))
			return
		}

		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		deactivated, err := service.SyncCatalog(runCtx, repo, catalog, defs)
		if err != nil {
			logger.Logger.Error("Quest catalog sync run failed", zap.Error(err))
			return
		}
		logger.Logger.Info("Quest catalog synced",
			zap.Int("quests", len(defs)),
			zap.Int64("deactivated", deactivated),
		)
	}

	syncOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncOnce()
		}
	}
}
