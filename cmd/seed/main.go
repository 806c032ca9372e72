package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"HabitQuest/config"
	"HabitQuest/internal/cache"
	"HabitQuest/internal/repository"
	"HabitQuest/internal/service"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/token"
	"HabitQuest/storage/database"
	"HabitQuest/storage/redis"
	"HabitQuest/utils"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	cfg := config.Cfg

	catalogPath := pflag.StringP("catalog", "c", cfg.QuestCatalogPath, "quest catalog YAML file")
	issueToken := pflag.String("issue-token", "", "print an access token for the given user id and exit")
	dryRun := pflag.Bool("dry-run", false, "validate the catalog without writing it")
	pflag.Parse()

	logger.Init()
	defer logger.Sync()

	if *issueToken != "" {
		os.Exit(printToken(cfg, *issueToken))
	}

	defs, err := service.LoadCatalogFile(*catalogPath)
	if err != nil {
		logger.Logger.Fatal("Invalid quest catalog", zap.String("path", *catalogPath), zap.Error(err))
	}
	logger.Logger.Info("Quest catalog loaded", zap.String("path", *catalogPath), zap.Int("quests", len(defs)))
	if *dryRun {
		return
	}

	if err := database.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() { _ = database.Close(context.Background()) }()

	// 没有 Redis 时跳过缓存失效，缓存 TTL 到期后自然生效
	if err := redis.Init(); err != nil {
		logger.Logger.Warn("Redis unavailable, catalog cache will expire on its own", zap.Error(err))
	}
	defer func() { _ = redis.Close(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo := repository.NewQuestRepo(database.DB())
	catalog := service.NewCachedCatalog(repo, cache.NewProtectedCache(redis.Client(), "quest", cfg.QuestCatalogCacheTTL))

	deactivated, err := service.SyncCatalog(ctx, repo, catalog, defs)
	if err != nil {
		logger.Logger.Fatal("Failed to sync quest catalog", zap.Error(err))
	}
	logger.Logger.Info("Quest catalog synced",
		zap.Int("quests", len(defs)),
		zap.Int64("deactivated", deactivated),
	)
}

func printToken(cfg config.Config, userID string) int {
	if !utils.ValidateUserID(userID) {
		fmt.Fprintln(os.Stderr, "user id must be a UUID")
		return 2
	}
	if err := cfg.RequireJWT(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := token.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	tok, expire, err := token.GenerateAccessToken(userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s\n# expires at %s\n", tok, expire.Format(time.RFC3339))
	return 0
}
