package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"HabitQuest/internal/model"
)

// QuestRepo 任务定义仓储
type QuestRepo interface {
	ListActive(ctx context.Context) ([]model.QuestDefinition, error)
	ListActiveByTrigger(ctx context.Context, trigger model.QuestTrigger) ([]model.QuestDefinition, error)
	GetByID(ctx context.Context, id int64) (*model.QuestDefinition, error)
	Upsert(ctx context.Context, defs []model.QuestDefinition) error
	DeactivateExcept(ctx context.Context, keep []int64) (int64, error)
}

type questRepo struct {
	db *gorm.DB
}

func NewQuestRepo(db *gorm.DB) QuestRepo {
	return &questRepo{db: db}
}

func (r *questRepo) ListActive(ctx context.Context) ([]model.QuestDefinition, error) {
	var defs []model.QuestDefinition
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *questRepo) ListActiveByTrigger(ctx context.Context, trigger model.QuestTrigger) ([]model.QuestDefinition, error) {
	var defs []model.QuestDefinition
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND trigger_tag = ?", true, trigger).
		Order("id ASC").
		Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

// GetByID 不存在时返回 (nil, nil)
func (r *questRepo) GetByID(ctx context.Context, id int64) (*model.QuestDefinition, error) {
	var def model.QuestDefinition
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&def).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// Upsert 按 id 覆盖任务定义
func (r *questRepo) Upsert(ctx context.Context, defs []model.QuestDefinition) error {
	if len(defs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "description", "kind", "trigger_tag", "target",
				"reward_kind", "reward_amount", "is_active", "updated_at",
			}),
		}).
		Create(&defs).Error
}

// DeactivateExcept 下线不在目录中的任务，历史进度保留
func (r *questRepo) DeactivateExcept(ctx context.Context, keep []int64) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.QuestDefinition{}).Where("is_active = ?", true)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	res := q.Update("is_active", false)
	return res.RowsAffected, res.Error
}
