package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"HabitQuest/internal/cache"
	"HabitQuest/internal/model"
	"HabitQuest/internal/repository"
	"HabitQuest/pkg/logger"
)

const catalogCacheKey = "catalog"

// Catalog 生效中的任务定义
type Catalog interface {
	Active(ctx context.Context) ([]model.QuestDefinition, error)
	Get(ctx context.Context, id int64) (*model.QuestDefinition, error)
	Invalidate(ctx context.Context) error
}

// cachedCatalog 任务目录变化很少，整体缓存在 Redis，缓存故障时回源数据库
type cachedCatalog struct {
	repo  repository.QuestRepo
	cache *cache.ProtectedCache
	log   *zap.Logger
}

// NewCachedCatalog cache 为 nil 时每次都查库
func NewCachedCatalog(repo repository.QuestRepo, pc *cache.ProtectedCache) Catalog {
	return &cachedCatalog{
		repo:  repo,
		cache: pc,
		log:   logger.Component("quest_catalog"),
	}
}

func (c *cachedCatalog) Active(ctx context.Context) ([]model.QuestDefinition, error) {
	if c.cache != nil {
		var defs []model.QuestDefinition
		hit, empty, err := c.cache.Get(ctx, catalogCacheKey, &defs)
		switch {
		case err != nil:
			c.log.Warn("Quest catalog cache read failed", zap.Error(err))
		case hit && empty:
			return nil, nil
		case hit:
			return defs, nil
		}
	}

	defs, err := c.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active quests: %w", err)
	}

	if c.cache != nil {
		var value interface{} = defs
		if len(defs) == 0 {
			value = nil
		}
		if err := c.cache.Set(ctx, catalogCacheKey, value); err != nil {
			c.log.Warn("Quest catalog cache write failed", zap.Error(err))
		}
	}
	return defs, nil
}

// Get 领取路径直接查库，下线的任务返回 nil
func (c *cachedCatalog) Get(ctx context.Context, id int64) (*model.QuestDefinition, error) {
	def, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get quest %d: %w", id, err)
	}
	if def == nil || !def.IsActive {
		return nil, nil
	}
	return def, nil
}

func (c *cachedCatalog) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, catalogCacheKey)
}

// ActiveByTrigger 从目录中筛选某个触发器的任务
func ActiveByTrigger(ctx context.Context, c Catalog, trigger model.QuestTrigger) ([]model.QuestDefinition, error) {
	defs, err := c.Active(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.QuestDefinition, 0, len(defs))
	for _, d := range defs {
		if d.Trigger == trigger {
			out = append(out, d)
		}
	}
	return out, nil
}

// SyncCatalog 把目录写入数据库，目录里没有或标记为下线的任务全部下线，返回下线数量
func SyncCatalog(ctx context.Context, repo repository.QuestRepo, c Catalog, defs []model.QuestDefinition) (int64, error) {
	if err := repo.Upsert(ctx, defs); err != nil {
		return 0, fmt.Errorf("failed to upsert quest catalog: %w", err)
	}

	keep := make([]int64, 0, len(defs))
	for _, d := range defs {
		if d.IsActive {
			keep = append(keep, d.ID)
		}
	}
	deactivated, err := repo.DeactivateExcept(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate retired quests: %w", err)
	}

	if err := c.Invalidate(ctx); err != nil {
		logger.Logger.Warn("Failed to invalidate quest catalog cache", zap.Error(err))
	}
	return deactivated, nil
}

// CatalogEntry 任务目录文件中的一项
type CatalogEntry struct {
	Active       *bool  `yaml:"active"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Kind         string `yaml:"kind"`
	Trigger      string `yaml:"trigger"`
	RewardKind   string `yaml:"reward_kind"`
	ID           int64  `yaml:"id"`
	Target       int64  `yaml:"target"`
	RewardAmount int64  `yaml:"reward_amount"`
}

type catalogFile struct {
	Quests []CatalogEntry `yaml:"quests"`
}

// LoadCatalogFile 读取并校验 YAML 任务目录
func LoadCatalogFile(path string) ([]model.QuestDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog 任何一项不合法都拒绝整个目录
func ParseCatalog(raw []byte) ([]model.QuestDefinition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse quest catalog: %w", err)
	}

	seen := make(map[int64]struct{}, len(f.Quests))
	defs := make([]model.QuestDefinition, 0, len(f.Quests))
	for i, e := range f.Quests {
		def, err := e.definition()
		if err != nil {
			return nil, fmt.Errorf("quest #%d (id=%d): %w", i, e.ID, err)
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("quest #%d: duplicate id %d", i, def.ID)
		}
		seen[def.ID] = struct{}{}
		defs = append(defs, def)
	}
	return defs, nil
}

func (e CatalogEntry) definition() (model.QuestDefinition, error) {
	def := model.QuestDefinition{
		Title:        e.Title,
		Description:  e.Description,
		Kind:         model.QuestKind(e.Kind),
		Trigger:      model.QuestTrigger(e.Trigger),
		RewardKind:   model.RewardKind(e.RewardKind),
		Target:       e.Target,
		RewardAmount: e.RewardAmount,
		IsActive:     e.Active == nil || *e.Active,
	}
	def.ID = e.ID

	switch {
	case def.ID <= 0:
		return def, fmt.Errorf("id must be positive")
	case def.Title == "":
		return def, fmt.Errorf("title is required")
	case !def.Kind.Valid():
		return def, fmt.Errorf("unknown kind %q", e.Kind)
	case !def.Trigger.Valid():
		return def, fmt.Errorf("unknown trigger %q", e.Trigger)
	case !def.RewardKind.Valid():
		return def, fmt.Errorf("unknown reward kind %q", e.RewardKind)
	case def.Target <= 0:
		return def, fmt.Errorf("target must be positive")
	case def.Trigger.OneShot() && def.Target != 1:
		return def, fmt.Errorf("trigger %q only supports target 1", e.Trigger)
	case def.RewardAmount < 0:
		return def, fmt.Errorf("reward amount must not be negative")
	}
	return def, nil
}
