package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitQuest/internal/model"
	"HabitQuest/internal/model/dto"
	"HabitQuest/internal/repository"
	"HabitQuest/pkg/errors"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/metrics"
	"HabitQuest/utils"
)

// casAttempts 签到/连胜条件更新的最大尝试次数
const casAttempts = 3

// CheckInRewards 签到奖励配置
type CheckInRewards struct {
	Coins        int64
	BonusDiamond int64
}

// RewardService 奖励账本：读取、签到、连胜、入账
type RewardService struct {
	repo    repository.LedgerRepo
	clock   *utils.Clock
	rewards CheckInRewards
	metrics *metrics.QuestMetrics
	log     *zap.Logger
}

func NewRewardService(repo repository.LedgerRepo, clock *utils.Clock, rewards CheckInRewards, m *metrics.QuestMetrics) *RewardService {
	return &RewardService{
		repo:    repo,
		clock:   clock,
		rewards: rewards,
		metrics: m,
		log:     logger.Component("reward_ledger"),
	}
}

// Ensure 取账本，不存在时用哨兵日期创建
func (s *RewardService) Ensure(ctx context.Context, userID string) (*model.RewardLedger, error) {
	l, err := s.repo.Get(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward ledger: %w", err)
	}
	if l != nil {
		return l, nil
	}

	created := &model.RewardLedger{
		UserID:          userID,
		LastCheckinDate: utils.SentinelDate,
		LastStreakDate:  utils.SentinelDate,
	}
	inserted, err := s.repo.CreateIfAbsent(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward ledger: %w", err)
	}
	if inserted {
		s.log.Info("Reward ledger created", zap.String("user_id", userID))
		return created, nil
	}

	l, err = s.repo.Get(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload reward ledger: %w", err)
	}
	if l == nil {
		return nil, errors.RewardLedgerNotFound
	}
	return l, nil
}

// Get 返回账本视图，断签超过一天的计数按 0 展示但不落库
func (s *RewardService) Get(ctx context.Context, userID string) (*dto.RewardLedgerView, error) {
	l, err := s.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(l), nil
}

func (s *RewardService) view(l *model.RewardLedger) *dto.RewardLedgerView {
	today := s.clock.Today()
	v := &dto.RewardLedgerView{
		LastCheckinDate: utils.FormatDate(l.LastCheckinDate),
		LastStreakDate:  utils.FormatDate(l.LastStreakDate),
		Coins:           l.Coins,
		Diamonds:        l.Diamonds,
		Streak:          l.Streak,
		DailyCheckin:    l.DailyCheckin,
	}
	if utils.DaysBetween(l.LastCheckinDate, today) > 1 {
		v.DailyCheckin = 0
	}
	if utils.DaysBetween(l.LastStreakDate, today) > 1 {
		v.Streak = 0
	}
	return v
}

// CheckIn 每日签到，同一天重复签到返回 CheckInAlreadyDone
func (s *RewardService) CheckIn(ctx context.Context, userID string) (*dto.RewardLedgerView, error) {
	for attempt := 1; attempt <= casAttempts; attempt++ {
		l, err := s.Ensure(ctx, userID)
		if err != nil {
			return nil, err
		}

		today := s.clock.Today()
		gap := utils.DaysBetween(l.LastCheckinDate, today)
		if gap == 0 {
			s.metrics.RecordCheckIn(ctx, "already_done")
			return nil, errors.CheckInAlreadyDone
		}

		cycle := 1
		if gap == 1 {
			cycle = (l.DailyCheckin + 1) % model.CheckInCycleLength
		}
		upd := repository.CheckInUpdate{
			Today:        today,
			DailyCheckin: cycle,
			Coins:        s.rewards.Coins,
		}
		if cycle == 0 {
			upd.Diamonds = s.rewards.BonusDiamond
		}

		ok, err := s.repo.SaveCheckIn(ctx, userID, l.LastCheckinDate, upd)
		if err != nil {
			s.metrics.RecordCheckIn(ctx, "error")
			return nil, fmt.Errorf("failed to save check-in: %w", err)
		}
		if !ok {
			s.log.Debug("Check-in lost compare-and-swap, retrying",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		s.metrics.RecordCheckIn(ctx, "success")
		s.log.Info("User checked in",
			zap.String("user_id", userID),
			zap.Int("daily_checkin", cycle),
			zap.Int64("coins", upd.Coins),
			zap.Int64("diamonds", upd.Diamonds),
		)

		l.LastCheckinDate = today
		l.DailyCheckin = cycle
		l.Coins += upd.Coins
		l.Diamonds += upd.Diamonds
		return s.view(l), nil
	}

	// 多次 CAS 失败，重新读一次判断是否已被并发请求签到
	l, err := s.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	if utils.DaysBetween(l.LastCheckinDate, s.clock.Today()) == 0 {
		s.metrics.RecordCheckIn(ctx, "already_done")
		return nil, errors.CheckInAlreadyDone
	}
	s.metrics.RecordCheckIn(ctx, "conflict")
	return nil, fmt.Errorf("check-in for user %s kept conflicting after %d attempts", userID, casAttempts)
}

// UpdateStreak 今天已更新时原样返回
func (s *RewardService) UpdateStreak(ctx context.Context, userID string) (*dto.RewardLedgerView, error) {
	for attempt := 1; attempt <= casAttempts; attempt++ {
		l, err := s.Ensure(ctx, userID)
		if err != nil {
			return nil, err
		}

		today := s.clock.Today()
		gap := utils.DaysBetween(l.LastStreakDate, today)
		if gap == 0 {
			return s.view(l), nil
		}

		streak := l.Streak
		if gap > 1 {
			streak = 0
		}
		streak++

		ok, err := s.repo.SaveStreak(ctx, userID, l.LastStreakDate, streak, today)
		if err != nil {
			return nil, fmt.Errorf("failed to save streak: %w", err)
		}
		if !ok {
			continue
		}

		l.Streak = streak
		l.LastStreakDate = today
		return s.view(l), nil
	}

	l, err := s.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	if utils.DaysBetween(l.LastStreakDate, s.clock.Today()) == 0 {
		return s.view(l), nil
	}
	return nil, fmt.Errorf("streak update for user %s kept conflicting after %d attempts", userID, casAttempts)
}

// Credit 领取任务时入账，tx 非空时加入调用方事务
func (s *RewardService) Credit(ctx context.Context, tx *gorm.DB, userID string, kind model.RewardKind, amount int64) error {
	var coins, diamonds int64
	switch kind {
	case model.RewardCoins:
		coins = amount
	case model.RewardDiamonds:
		diamonds = amount
	default:
		return fmt.Errorf("unknown reward kind %q", kind)
	}

	ok, err := s.repo.AddCurrency(ctx, tx, userID, coins, diamonds)
	if err != nil {
		return fmt.Errorf("failed to credit reward: %w", err)
	}
	if !ok {
		return errors.RewardLedgerNotFound
	}
	return nil
}

// View 在事务外重新读取账本视图
func (s *RewardService) View(ctx context.Context, userID string) (*dto.RewardLedgerView, error) {
	l, err := s.repo.Get(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward ledger: %w", err)
	}
	if l == nil {
		return nil, errors.RewardLedgerNotFound
	}
	return s.view(l), nil
}
