package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"HabitQuest/internal/model"
	"HabitQuest/internal/repository"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/metrics"
	"HabitQuest/utils"
)

// SignalSet 从习惯记录推导出的当期信号
type SignalSet struct {
	HydrateML            int64
	TasksCompleted       int64
	MealsLogged          int64
	FocusMinutes         int64
	MonthlyQuestsClaimed int64
	CheckedInToday       bool
}

// signalExtractors trigger -> 信号值，新增 trigger 必须在这里登记
var signalExtractors = map[model.QuestTrigger]func(SignalSet) int64{
	model.TriggerHydrateGoal:        func(s SignalSet) int64 { return s.HydrateML },
	model.TriggerTasksCompleted:     func(s SignalSet) int64 { return s.TasksCompleted },
	model.TriggerLogMeal:            func(s SignalSet) int64 { return s.MealsLogged },
	model.TriggerFocusTime:          func(s SignalSet) int64 { return s.FocusMinutes },
	model.TriggerCheckin:            func(s SignalSet) int64 { return boolToInt(s.CheckedInToday) },
	model.TriggerMonthlyDailyQuests: func(s SignalSet) int64 { return s.MonthlyQuestsClaimed },
}

// Value 未登记的 trigger 返回 0
func (s SignalSet) Value(trigger model.QuestTrigger) int64 {
	extract, ok := signalExtractors[trigger]
	if !ok {
		return 0
	}
	return extract(s)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Aggregator 并发读取各个信号源，单个信号失败降级为零值
type Aggregator struct {
	habits   repository.HabitLogReader
	ledger   repository.LedgerRepo
	progress repository.ProgressRepo
	clock    *utils.Clock
	metrics  *metrics.QuestMetrics
	log      *zap.Logger
	timeout  time.Duration
}

func NewAggregator(
	habits repository.HabitLogReader,
	ledger repository.LedgerRepo,
	progress repository.ProgressRepo,
	clock *utils.Clock,
	m *metrics.QuestMetrics,
	timeout time.Duration,
) *Aggregator {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Aggregator{
		habits:   habits,
		ledger:   ledger,
		progress: progress,
		clock:    clock,
		metrics:  m,
		log:      logger.Component("signal_aggregator"),
		timeout:  timeout,
	}
}

// Collect 不返回错误；失败的信号记日志、计数后按零值处理
func (a *Aggregator) Collect(ctx context.Context, userID string, p utils.Periods) SignalSet {
	var (
		set SignalSet
		g   errgroup.Group
	)

	fetch := func(name string, dst *int64, read func(ctx context.Context) (int64, error)) {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			v, err := read(cctx)
			if err != nil {
				a.degrade(ctx, userID, name, err)
				return nil
			}
			*dst = v
			return nil
		})
	}

	var checkedIn int64
	dayFrom, dayTo := a.clock.DayBounds(p.DayStart)

	fetch("hydrate", &set.HydrateML, func(ctx context.Context) (int64, error) {
		return a.habits.HydrateConsumed(ctx, userID, p.DayStart)
	})
	fetch("tasks_completed", &set.TasksCompleted, func(ctx context.Context) (int64, error) {
		return a.habits.CompletedTaskCount(ctx, userID, dayFrom, dayTo)
	})
	fetch("meals_logged", &set.MealsLogged, func(ctx context.Context) (int64, error) {
		return a.habits.LoggedMealCount(ctx, userID, p.DayStart)
	})
	fetch("focus_minutes", &set.FocusMinutes, func(ctx context.Context) (int64, error) {
		return a.habits.FocusMinutes(ctx, userID, p.DayStart)
	})
	fetch("checked_in_today", &checkedIn, func(ctx context.Context) (int64, error) {
		ok, err := a.CheckedInToday(ctx, userID, p)
		return boolToInt(ok), err
	})
	fetch("monthly_quests_claimed", &set.MonthlyQuestsClaimed, func(ctx context.Context) (int64, error) {
		return a.MonthlyQuestsClaimed(ctx, userID, p)
	})

	_ = g.Wait()
	set.CheckedInToday = checkedIn == 1
	return set
}

// CheckedInToday 只读账本，不创建
func (a *Aggregator) CheckedInToday(ctx context.Context, userID string, p utils.Periods) (bool, error) {
	l, err := a.ledger.Get(ctx, nil, userID)
	if err != nil {
		return false, fmt.Errorf("failed to read reward ledger: %w", err)
	}
	if l == nil {
		return false, nil
	}
	return sameDate(l.LastCheckinDate, p.DayStart), nil
}

// MonthlyQuestsClaimed 本月已领取的任务数，领取时也会直接调用
func (a *Aggregator) MonthlyQuestsClaimed(ctx context.Context, userID string, p utils.Periods) (int64, error) {
	n, err := a.progress.CountClaimedBetween(ctx, userID, p.MonthStart, p.NextMonthStart())
	if err != nil {
		return 0, fmt.Errorf("failed to count claimed quests: %w", err)
	}
	return n, nil
}

func (a *Aggregator) degrade(ctx context.Context, userID, signal string, err error) {
	a.metrics.RecordSignalFailure(ctx, signal)
	a.log.Warn("Signal read failed, using zero value",
		zap.String("user_id", userID),
		zap.String("signal", signal),
		zap.Error(err),
	)
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
