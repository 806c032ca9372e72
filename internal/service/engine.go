package service

import (
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"HabitQuest/config"
	"HabitQuest/internal/cache"
	"HabitQuest/internal/repository"
	"HabitQuest/pkg/metrics"
	"HabitQuest/utils"
)

// EngineOptions 组装任务引擎需要的外部依赖；Redis 为 nil 时缓存和领取锁都降级
type EngineOptions struct {
	DB        *gorm.DB
	Redis     *goredis.Client
	Clock     *utils.Clock
	Metrics   *metrics.QuestMetrics
	Publisher EventPublisher
	Config    config.Config
}

// Engine server 和 worker 共用的服务集合
type Engine struct {
	Catalog  Catalog
	Progress *ProgressStore
	Signals  *Aggregator
	Rewards  *RewardService
	Quests   *QuestService
}

func NewEngine(o EngineOptions) *Engine {
	cfg := o.Config
	clock := o.Clock
	if clock == nil {
		clock = utils.NewClock(cfg.BusinessUTCOffsetHours)
	}

	progressRepo := repository.NewProgressRepo(o.DB)
	ledgerRepo := repository.NewLedgerRepo(o.DB)
	questRepo := repository.NewQuestRepo(o.DB)

	e := &Engine{
		Catalog:  NewCachedCatalog(questRepo, cache.NewProtectedCache(o.Redis, "quest", cfg.QuestCatalogCacheTTL)),
		Progress: NewProgressStore(progressRepo),
		Signals:  NewAggregator(repository.NewHabitLogReader(o.DB), ledgerRepo, progressRepo, clock, o.Metrics, cfg.QuestSignalTimeout),
		Rewards: NewRewardService(ledgerRepo, clock, CheckInRewards{
			Coins:        cfg.CheckInCoinReward,
			BonusDiamond: cfg.CheckInCycleBonusDiamond,
		}, o.Metrics),
	}

	e.Quests = NewQuestService(QuestDeps{
		DB:        o.DB,
		Catalog:   e.Catalog,
		Progress:  e.Progress,
		Signals:   e.Signals,
		Rewards:   e.Rewards,
		Locker:    cache.NewClaimLocker(o.Redis, cfg.QuestClaimLockTTL),
		Publisher: o.Publisher,
		Clock:     clock,
		Metrics:   o.Metrics,
	})
	return e
}
