package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitQuest/internal/model"
	"HabitQuest/internal/repository"
	"HabitQuest/pkg/logger"
)

// ProgressStore 任务进度的读写入口，每个 (用户, 任务, 周期) 只有一行
type ProgressStore struct {
	repo repository.ProgressRepo
	log  *zap.Logger
}

func NewProgressStore(repo repository.ProgressRepo) *ProgressStore {
	return &ProgressStore{
		repo: repo,
		log:  logger.Component("progress_store"),
	}
}

// GetOrCreate 按 period_start 精确查找当期进度，不存在则插入一行 0 进度；旧周期的行不会被读到，保留为历史
func (s *ProgressStore) GetOrCreate(ctx context.Context, userID string, questID int64, periodStart time.Time) (*model.QuestProgress, error) {
	p, err := s.repo.Find(ctx, userID, questID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to find quest progress: %w", err)
	}
	if p != nil {
		return p, nil
	}

	fresh := &model.QuestProgress{
		UserID:          userID,
		QuestID:         questID,
		PeriodStartDate: periodStart,
	}
	inserted, err := s.repo.InsertIfAbsent(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to create quest progress: %w", err)
	}
	if inserted {
		return fresh, nil
	}

	// 并发插入失败的一方读取胜者
	s.log.Debug("Progress row inserted concurrently, reloading",
		zap.String("user_id", userID),
		zap.Int64("quest_id", questID),
		zap.Time("period", periodStart),
	)
	p, err = s.repo.Find(ctx, userID, questID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to reload quest progress: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("quest progress for quest %d vanished after conflict", questID)
	}
	return p, nil
}

// Find 只读查询，领取时使用
func (s *ProgressStore) Find(ctx context.Context, userID string, questID int64, periodStart time.Time) (*model.QuestProgress, error) {
	p, err := s.repo.Find(ctx, userID, questID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to find quest progress: %w", err)
	}
	return p, nil
}

// Update 值没变或已领取时不写库，返回是否写入
func (s *ProgressStore) Update(ctx context.Context, p *model.QuestProgress, value int64) (bool, error) {
	if p.Claimed() || p.CurrentProgress == value {
		return false, nil
	}
	ok, err := s.repo.SetProgress(ctx, p.ID, value)
	if err != nil {
		return false, fmt.Errorf("failed to update quest progress: %w", err)
	}
	if ok {
		p.CurrentProgress = value
	}
	return ok, nil
}

// MarkClaimed 返回 false 表示已被别人领取
func (s *ProgressStore) MarkClaimed(ctx context.Context, tx *gorm.DB, id int64, at time.Time) (bool, error) {
	ok, err := s.repo.MarkClaimed(ctx, tx, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark quest claimed: %w", err)
	}
	return ok, nil
}

func (s *ProgressStore) History(ctx context.Context, userID string, questID int64, limit int) ([]model.QuestProgress, error) {
	rows, err := s.repo.History(ctx, userID, questID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load quest history: %w", err)
	}
	return rows, nil
}
