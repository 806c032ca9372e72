package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"HabitQuest/internal/model"
)

// HabitLogReader 习惯记录只读接口，配置了从库时走从库
type HabitLogReader interface {
	HydrateConsumed(ctx context.Context, userID string, date time.Time) (int64, error)
	CompletedTaskCount(ctx context.Context, userID string, from, to time.Time) (int64, error)
	LoggedMealCount(ctx context.Context, userID string, date time.Time) (int64, error)
	FocusMinutes(ctx context.Context, userID string, date time.Time) (int64, error)
}

type habitLogReader struct {
	db *gorm.DB
}

func NewHabitLogReader(db *gorm.DB) HabitLogReader {
	return &habitLogReader{db: db}
}

func (r *habitLogReader) read(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(dbresolver.Read)
}

func (r *habitLogReader) HydrateConsumed(ctx context.Context, userID string, date time.Time) (int64, error) {
	var total int64
	err := r.read(ctx).
		Model(&model.HydrateLog{}).
		Select("COALESCE(SUM(consumed_water), 0)").
		Where("user_id = ? AND date = ?", userID, date).
		Scan(&total).Error
	return total, err
}

// CompletedTaskCount scheduled_time 落在 [from, to) 且已完成
func (r *habitLogReader) CompletedTaskCount(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var n int64
	err := r.read(ctx).
		Model(&model.SleepLog{}).
		Where("user_id = ? AND completed = ?", userID, true).
		Where("scheduled_time >= ? AND scheduled_time < ?", from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}

// LoggedMealCount dishes 为 null、[] 或 {} 的记录不算
func (r *habitLogReader) LoggedMealCount(ctx context.Context, userID string, date time.Time) (int64, error) {
	var logs []model.DietLog
	if err := r.read(ctx).
		Select("id", "dishes").
		Where("user_id = ? AND date = ?", userID, date).
		Find(&logs).Error; err != nil {
		return 0, err
	}

	var n int64
	for i := range logs {
		if logs[i].HasDishes() {
			n++
		}
	}
	return n, nil
}

func (r *habitLogReader) FocusMinutes(ctx context.Context, userID string, date time.Time) (int64, error) {
	var total int64
	err := r.read(ctx).
		Model(&model.FocusLog{}).
		Select("COALESCE(SUM(focus_done), 0)").
		Where("user_id = ? AND date = ?", userID, date).
		Scan(&total).Error
	return total, err
}
