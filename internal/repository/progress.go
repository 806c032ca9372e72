package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"HabitQuest/internal/model"
)

// ProgressRepo 任务进度仓储
type ProgressRepo interface {
	Find(ctx context.Context, userID string, questID int64, periodStart time.Time) (*model.QuestProgress, error)
	InsertIfAbsent(ctx context.Context, p *model.QuestProgress) (bool, error)
	SetProgress(ctx context.Context, id, value int64) (bool, error)
	MarkClaimed(ctx context.Context, tx *gorm.DB, id int64, at time.Time) (bool, error)
	CountClaimedBetween(ctx context.Context, userID string, from, to time.Time) (int64, error)
	History(ctx context.Context, userID string, questID int64, limit int) ([]model.QuestProgress, error)
}

type progressRepo struct {
	db *gorm.DB
}

func NewProgressRepo(db *gorm.DB) ProgressRepo {
	return &progressRepo{db: db}
}

// Find 精确匹配周期起点，不存在时返回 (nil, nil)
func (r *progressRepo) Find(ctx context.Context, userID string, questID int64, periodStart time.Time) (*model.QuestProgress, error) {
	var p model.QuestProgress
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Where("user_id = ? AND quest_id = ? AND period_start_date = ?", userID, questID, periodStart).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertIfAbsent 唯一索引冲突时什么都不做，返回是否真正插入
func (r *progressRepo) InsertIfAbsent(ctx context.Context, p *model.QuestProgress) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetProgress 只修改未领取的行
func (r *progressRepo) SetProgress(ctx context.Context, id, value int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.QuestProgress{}).
		Where("id = ? AND claimed_at IS NULL", id).
		Updates(map[string]interface{}{
			"current_progress": value,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkClaimed 条件更新，claimed_at 为空才会写入
func (r *progressRepo) MarkClaimed(ctx context.Context, tx *gorm.DB, id int64, at time.Time) (bool, error) {
	res := pick(ctx, r.db, tx).
		Model(&model.QuestProgress{}).
		Where("id = ? AND claimed_at IS NULL", id).
		Updates(map[string]interface{}{
			"claimed_at": at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountClaimedBetween 统计 period_start_date 落在 [from, to) 内的已领取记录
func (r *progressRepo) CountClaimedBetween(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Write).
		Model(&model.QuestProgress{}).
		Where("user_id = ? AND claimed_at IS NOT NULL", userID).
		Where("period_start_date >= ? AND period_start_date < ?", from, to).
		Count(&n).Error
	return n, err
}

// History 某任务的历史周期，最近的在前
func (r *progressRepo) History(ctx context.Context, userID string, questID int64, limit int) ([]model.QuestProgress, error) {
	var rows []model.QuestProgress
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND quest_id = ?", userID, questID).
		Order("period_start_date DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
