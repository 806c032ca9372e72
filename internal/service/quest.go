package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitQuest/internal/model"
	"HabitQuest/internal/model/dto"
	"HabitQuest/pkg/errors"
	"HabitQuest/pkg/logger"
	"HabitQuest/pkg/metrics"
	"HabitQuest/pkg/snowflake"
	"HabitQuest/utils"
)

const (
	claimSuccessMessage = "Reward claimed successfully!"

	defaultHistoryLimit = 30
	maxHistoryLimit     = 100
)

// EventPublisher 进度事件投递，由 queue.QuestEventProducer 实现
type EventPublisher interface {
	PublishQuestProgress(ctx context.Context, evt *model.QuestProgressEvent) error
}

// ClaimLocker 领取互斥锁，由 cache.ClaimLocker 实现
type ClaimLocker interface {
	TryLock(ctx context.Context, userID string, questID int64) (func(), bool, error)
}

type noopLocker struct{}

func (noopLocker) TryLock(context.Context, string, int64) (func(), bool, error) {
	return func() {}, true, nil
}

// QuestDeps QuestService 的依赖
type QuestDeps struct {
	DB             *gorm.DB
	Catalog        Catalog
	Progress       *ProgressStore
	Signals        *Aggregator
	Rewards        *RewardService
	Locker         ClaimLocker
	Publisher      EventPublisher
	Clock          *utils.Clock
	Metrics        *metrics.QuestMetrics
	PublishTimeout time.Duration
}

// QuestService 任务引擎：列表、领取、进度事件
type QuestService struct {
	db             *gorm.DB
	catalog        Catalog
	progress       *ProgressStore
	signals        *Aggregator
	rewards        *RewardService
	locker         ClaimLocker
	publisher      EventPublisher
	clock          *utils.Clock
	metrics        *metrics.QuestMetrics
	log            *zap.Logger
	publishTimeout time.Duration
}

func NewQuestService(d QuestDeps) *QuestService {
	if d.PublishTimeout <= 0 {
		d.PublishTimeout = 2 * time.Second
	}
	if d.Locker == nil {
		d.Locker = noopLocker{}
	}
	return &QuestService{
		db:             d.DB,
		catalog:        d.Catalog,
		progress:       d.Progress,
		signals:        d.Signals,
		rewards:        d.Rewards,
		locker:         d.Locker,
		publisher:      d.Publisher,
		clock:          d.Clock,
		metrics:        d.Metrics,
		log:            logger.Component("quest_engine"),
		publishTimeout: d.PublishTimeout,
	}
}

// periodFor 日任务取当天，月任务取当月 1 号
func periodFor(def *model.QuestDefinition, p utils.Periods) time.Time {
	if def.Kind == model.QuestKindMonthly {
		return p.MonthStart
	}
	return p.DayStart
}

// capProgress 限制在 [0, cap]
func capProgress(value, limit int64) int64 {
	if value < 0 {
		return 0
	}
	if value > limit {
		return limit
	}
	return value
}

// ListQuests 返回所有生效任务及当期进度，单个任务进度失败时 progress 为 null
func (s *QuestService) ListQuests(ctx context.Context, userID string) ([]dto.QuestView, error) {
	started := time.Now()
	defer func() {
		s.metrics.RecordListDuration(ctx, time.Since(started).Seconds())
	}()

	periods := s.clock.CurrentPeriods()

	defs, err := s.catalog.Active(ctx)
	if err != nil {
		return nil, err
	}

	signals := s.signals.Collect(ctx, userID, periods)

	views := make([]dto.QuestView, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		view := questView(def)

		prog, err := s.progress.GetOrCreate(ctx, userID, def.ID, periodFor(def, periods))
		if err != nil {
			s.log.Warn("Quest progress unavailable, listing without progress",
				zap.String("user_id", userID),
				zap.Int64("quest_id", def.ID),
				zap.Error(err),
			)
			views = append(views, view)
			continue
		}

		if !prog.Claimed() {
			value := capProgress(signals.Value(def.Trigger), def.EffectiveCap())
			written, err := s.progress.Update(ctx, prog, value)
			if err != nil {
				s.log.Warn("Failed to persist recomputed progress",
					zap.String("user_id", userID),
					zap.Int64("quest_id", def.ID),
					zap.Error(err),
				)
			} else if written {
				s.metrics.RecordProgressWrite(ctx, "list")
			}
		}

		fillProgress(&view, def, prog)
		views = append(views, view)
	}

	return views, nil
}

func questView(def *model.QuestDefinition) dto.QuestView {
	return dto.QuestView{
		ID:           def.ID,
		Title:        def.Title,
		Description:  def.Description,
		Kind:         string(def.Kind),
		Trigger:      string(def.Trigger),
		RewardKind:   string(def.RewardKind),
		Target:       def.Target,
		RewardAmount: def.RewardAmount,
	}
}

func fillProgress(view *dto.QuestView, def *model.QuestDefinition, prog *model.QuestProgress) {
	view.Progress = &dto.QuestProgressData{
		ClaimedAt:       prog.ClaimedAt,
		PeriodStartDate: utils.FormatDate(prog.PeriodStartDate),
		CurrentProgress: prog.CurrentProgress,
	}
	view.IsCompleted = prog.CurrentProgress >= def.Target
	view.IsClaimable = view.IsCompleted && !prog.Claimed()
}

// Claim 领取当期奖励；标记领取与入账在同一事务内完成
func (s *QuestService) Claim(ctx context.Context, userID string, questID int64) (*dto.ClaimResult, error) {
	def, err := s.catalog.Get(ctx, questID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		s.metrics.RecordClaim(ctx, "not_found")
		return nil, errors.QuestNotFound
	}

	periods := s.clock.CurrentPeriods()
	prog, err := s.progress.Find(ctx, userID, questID, periodFor(def, periods))
	if err != nil {
		return nil, err
	}
	if prog == nil {
		s.metrics.RecordClaim(ctx, "not_found")
		return nil, errors.QuestProgressNotFound
	}
	if prog.Claimed() {
		s.metrics.RecordClaim(ctx, "already_claimed")
		return nil, errors.QuestAlreadyClaimed
	}

	current := prog.CurrentProgress
	if def.Trigger == model.TriggerMonthlyDailyQuests {
		// 月度累计任务以实时统计为准，统计失败直接报错
		n, err := s.signals.MonthlyQuestsClaimed(ctx, userID, periods)
		if err != nil {
			s.metrics.RecordClaim(ctx, "error")
			return nil, fmt.Errorf("failed to recompute monthly progress: %w", err)
		}
		current = capProgress(n, def.EffectiveCap())
		if _, err := s.progress.Update(ctx, prog, current); err != nil {
			s.log.Warn("Failed to persist monthly progress before claim",
				zap.String("user_id", userID),
				zap.Int64("quest_id", questID),
				zap.Error(err),
			)
		}
	}
	if current < def.Target {
		s.metrics.RecordClaim(ctx, "not_completed")
		return nil, errors.QuestNotCompleted
	}

	release, locked, err := s.locker.TryLock(ctx, userID, questID)
	switch {
	case err != nil:
		// Redis 不可用时依赖条件更新保证只领一次
		s.log.Warn("Claim lock unavailable, relying on conditional update",
			zap.String("user_id", userID),
			zap.Int64("quest_id", questID),
			zap.Error(err),
		)
	case !locked:
		s.metrics.RecordClaim(ctx, "in_progress")
		return nil, errors.ClaimInProgress
	default:
		defer release()
	}

	if _, err := s.rewards.Ensure(ctx, userID); err != nil {
		return nil, err
	}

	claimedAt := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.progress.MarkClaimed(ctx, tx, prog.ID, claimedAt)
		if err != nil {
			return err
		}
		if !ok {
			return errors.QuestAlreadyClaimed
		}
		return s.rewards.Credit(ctx, tx, userID, def.RewardKind, def.RewardAmount)
	})
	if err != nil {
		if stderrors.Is(err, errors.QuestAlreadyClaimed) {
			s.metrics.RecordClaim(ctx, "already_claimed")
			return nil, errors.QuestAlreadyClaimed
		}
		s.metrics.RecordClaim(ctx, "error")
		s.log.Error("Quest claim transaction failed",
			zap.String("user_id", userID),
			zap.Int64("quest_id", questID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to claim quest: %w", err)
	}

	s.metrics.RecordClaim(ctx, "success")
	s.log.Info("Quest reward claimed",
		zap.String("user_id", userID),
		zap.Int64("quest_id", questID),
		zap.String("reward_kind", string(def.RewardKind)),
		zap.Int64("reward_amount", def.RewardAmount),
	)

	ledger, err := s.rewards.View(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.ClaimResult{Message: claimSuccessMessage, Rewards: *ledger}, nil
}

// Notify 投递进度事件，只保证最多一次；投递失败只记日志
func (s *QuestService) Notify(ctx context.Context, userID string, trigger model.QuestTrigger, increment int64, setValue *int64) error {
	if !trigger.Valid() {
		return errors.InvalidTrigger
	}
	if increment < 0 || (setValue != nil && *setValue < 0) {
		return errors.ValidationFailed.WithMessage("Progress values must not be negative")
	}
	if increment == 0 && setValue == nil {
		return errors.ValidationFailed.WithMessage("Either increment or set_value is required")
	}

	messageID, err := snowflake.NextMessageID("qp")
	if err != nil {
		messageID = "qp_" + uuid.NewString()
	}

	evt := &model.QuestProgressEvent{
		MessageID:  messageID,
		UserID:     userID,
		Trigger:    trigger,
		Increment:  increment,
		SetValue:   setValue,
		OccurredAt: s.clock.Now().UTC(),
	}

	if s.publisher == nil {
		s.metrics.RecordEventPublished(ctx, string(trigger), "dropped")
		return nil
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.PublishQuestProgress(pctx, evt); err != nil {
		s.metrics.RecordEventPublished(ctx, string(trigger), "failed")
		s.log.Warn("Failed to publish quest progress event",
			zap.String("message_id", messageID),
			zap.String("user_id", userID),
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
		return nil
	}

	s.metrics.RecordEventPublished(ctx, string(trigger), "ok")
	return nil
}

// ApplyProgressEvent 消费端调用，返回被更新的任务数；不属于当前周期的事件直接忽略。
// 只有一个任务都没写入时才返回错误
func (s *QuestService) ApplyProgressEvent(ctx context.Context, evt *model.QuestProgressEvent) (int, error) {
	if !evt.Trigger.Valid() {
		return 0, errors.InvalidTrigger
	}
	if !utils.ValidateUserID(evt.UserID) {
		return 0, errors.InvalidUserID
	}

	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = s.clock.Now()
	}
	eventPeriods := s.clock.PeriodsAt(occurred)
	current := s.clock.CurrentPeriods()

	defs, err := ActiveByTrigger(ctx, s.catalog, evt.Trigger)
	if err != nil {
		return 0, err
	}

	// 单个任务失败不影响其他任务
	updated := 0
	var failures []error
	for i := range defs {
		def := &defs[i]
		period := periodFor(def, eventPeriods)
		if !period.Equal(periodFor(def, current)) {
			s.log.Debug("Skipping progress event for a past period",
				zap.String("message_id", evt.MessageID),
				zap.Int64("quest_id", def.ID),
				zap.Time("period", period),
			)
			continue
		}

		written, err := s.applyToQuest(ctx, evt, def, period)
		if err != nil {
			failures = append(failures, fmt.Errorf("quest %d: %w", def.ID, err))
			s.metrics.RecordEventQuestFailure(ctx, string(evt.Trigger))
			s.log.Warn("Failed to apply progress event to quest",
				zap.String("message_id", evt.MessageID),
				zap.String("user_id", evt.UserID),
				zap.Int64("quest_id", def.ID),
				zap.Error(err),
			)
			continue
		}
		if written {
			updated++
			s.metrics.RecordProgressWrite(ctx, "event")
		}
	}

	s.metrics.RecordEventApplied(ctx, string(evt.Trigger), updated)
	if len(failures) > 0 && updated == 0 {
		return 0, stderrors.Join(failures...)
	}
	return updated, nil
}

func (s *QuestService) applyToQuest(ctx context.Context, evt *model.QuestProgressEvent, def *model.QuestDefinition, period time.Time) (bool, error) {
	prog, err := s.progress.GetOrCreate(ctx, evt.UserID, def.ID, period)
	if err != nil {
		return false, err
	}
	if prog.Claimed() {
		return false, nil
	}

	value := prog.CurrentProgress + evt.Increment
	if evt.SetValue != nil {
		value = *evt.SetValue
	}
	return s.progress.Update(ctx, prog, capProgress(value, def.EffectiveCap()))
}

// History 某任务最近若干周期的进度
func (s *QuestService) History(ctx context.Context, userID string, questID int64, limit int) ([]dto.QuestHistoryItem, error) {
	def, err := s.catalog.Get(ctx, questID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, errors.QuestNotFound
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.progress.History(ctx, userID, questID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]dto.QuestHistoryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, dto.QuestHistoryItem{
			ClaimedAt:       r.ClaimedAt,
			PeriodStartDate: utils.FormatDate(r.PeriodStartDate),
			CurrentProgress: r.CurrentProgress,
			IsCompleted:     r.CurrentProgress >= def.Target,
		})
	}
	return items, nil
}
