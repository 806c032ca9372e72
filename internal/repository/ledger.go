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

// LedgerRepo 奖励账本仓储，所有写操作都是条件更新或原子自增
type LedgerRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userID string) (*model.RewardLedger, error)
	CreateIfAbsent(ctx context.Context, l *model.RewardLedger) (bool, error)
	SaveCheckIn(ctx context.Context, userID string, expectedLast time.Time, u CheckInUpdate) (bool, error)
	SaveStreak(ctx context.Context, userID string, expectedLast time.Time, streak int, today time.Time) (bool, error)
	AddCurrency(ctx context.Context, tx *gorm.DB, userID string, coins, diamonds int64) (bool, error)
}

// CheckInUpdate 一次签到要写入的字段
type CheckInUpdate struct {
	Today        time.Time
	DailyCheckin int
	Coins        int64
	Diamonds     int64
}

type ledgerRepo struct {
	db *gorm.DB
}

func NewLedgerRepo(db *gorm.DB) LedgerRepo {
	return &ledgerRepo{db: db}
}

// Get 不存在时返回 (nil, nil)
func (r *ledgerRepo) Get(ctx context.Context, tx *gorm.DB, userID string) (*model.RewardLedger, error) {
	var l model.RewardLedger
	err := pick(ctx, r.db, tx).
		Clauses(dbresolver.Write).
		Where("user_id = ?", userID).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *ledgerRepo) CreateIfAbsent(ctx context.Context, l *model.RewardLedger) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(l)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveCheckIn 以 last_checkin_date 为版本号做 CAS
func (r *ledgerRepo) SaveCheckIn(ctx context.Context, userID string, expectedLast time.Time, u CheckInUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.RewardLedger{}).
		Where("user_id = ? AND last_checkin_date = ?", userID, expectedLast).
		Updates(map[string]interface{}{
			"daily_checkin":     u.DailyCheckin,
			"last_checkin_date": u.Today,
			"coins":             gorm.Expr("coins + ?", u.Coins),
			"diamonds":          gorm.Expr("diamonds + ?", u.Diamonds),
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SaveStreak 以 last_streak_date 为版本号做 CAS
func (r *ledgerRepo) SaveStreak(ctx context.Context, userID string, expectedLast time.Time, streak int, today time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.RewardLedger{}).
		Where("user_id = ? AND last_streak_date = ?", userID, expectedLast).
		Updates(map[string]interface{}{
			"streak":           streak,
			"last_streak_date": today,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AddCurrency 原子加币，返回账本是否存在
func (r *ledgerRepo) AddCurrency(ctx context.Context, tx *gorm.DB, userID string, coins, diamonds int64) (bool, error) {
	res := pick(ctx, r.db, tx).
		Model(&model.RewardLedger{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"coins":      gorm.Expr("coins + ?", coins),
			"diamonds":   gorm.Expr("diamonds + ?", diamonds),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
