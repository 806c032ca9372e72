package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HabitQuest/internal/cache"
	"HabitQuest/internal/model"
	"HabitQuest/internal/model/dto"
	"HabitQuest/internal/repository"
	"HabitQuest/pkg/errors"
)

func viewByID(t *testing.T, views []dto.QuestView, id int64) dto.QuestView {
	t.Helper()
	for _, v := range views {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("quest %d not listed", id)
	return dto.QuestView{}
}

func TestListQuestsReturnsEveryActiveQuestOnce(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)

	views, err := e.svc.ListQuests(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, views, 6)

	for i, v := range views {
		assert.Equal(t, int64(i+1), v.ID)
		require.NotNil(t, v.Progress)
		assert.Zero(t, v.Progress.CurrentProgress)
		assert.False(t, v.IsClaimable)
	}

	monthly := viewByID(t, views, questMonthly)
	assert.Equal(t, "2025-01-01", monthly.Progress.PeriodStartDate)
	assert.Equal(t, "2025-01-10", viewByID(t, views, questDrink).Progress.PeriodStartDate)
}

func TestDrinkGoalEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	e.logWater(t, e.today(), 2000)

	views, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	drink := viewByID(t, views, questDrink)
	assert.Equal(t, int64(2000), drink.Progress.CurrentProgress)
	assert.True(t, drink.IsCompleted)
	assert.True(t, drink.IsClaimable)

	res, err := e.svc.Claim(ctx, testUser, questDrink)
	require.NoError(t, err)
	assert.Equal(t, "Reward claimed successfully!", res.Message)
	assert.Equal(t, int64(20), res.Rewards.Coins)

	views, err = e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	drink = viewByID(t, views, questDrink)
	assert.True(t, drink.IsCompleted)
	assert.False(t, drink.IsClaimable)
	assert.NotNil(t, drink.Progress.ClaimedAt)

	_, err = e.svc.Claim(ctx, testUser, questDrink)
	assert.ErrorIs(t, err, errors.QuestAlreadyClaimed)

	ledger, err := e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(20), ledger.Coins)
}

func TestListCapsProgress(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	e.logWater(t, e.today(), 3500)
	e.logMeal(t, e.today(), `["eggs"]`)
	e.logMeal(t, e.today(), `["noodles"]`)
	e.logFocus(t, e.today(), 45)

	views, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), viewByID(t, views, questDrink).Progress.CurrentProgress)
	assert.Equal(t, int64(1), viewByID(t, views, questMeal).Progress.CurrentProgress)
	assert.Equal(t, int64(45), viewByID(t, views, questFocus).Progress.CurrentProgress)
	assert.False(t, viewByID(t, views, questFocus).IsCompleted)
}

func TestListReplacesProgressWithCurrentSignal(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	e.logFocus(t, e.today(), 50)
	_, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)

	// 记录服务修正了专注时长
	require.NoError(t, e.db.Model(&model.FocusLog{}).Where("user_id = ?", testUser).Update("focus_done", 20).Error)

	views, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(20), viewByID(t, views, questFocus).Progress.CurrentProgress)
}

func TestClaimGating(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	_, err := e.svc.Claim(ctx, testUser, 999)
	assert.ErrorIs(t, err, errors.QuestNotFound)

	_, err = e.svc.Claim(ctx, testUser, questRetired)
	assert.ErrorIs(t, err, errors.QuestNotFound)

	_, err = e.svc.Claim(ctx, testUser, questDrink)
	assert.ErrorIs(t, err, errors.QuestProgressNotFound)

	e.logWater(t, e.today(), 1999)
	_, err = e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	_, err = e.svc.Claim(ctx, testUser, questDrink)
	assert.ErrorIs(t, err, errors.QuestNotCompleted)

	e.logWater(t, e.today(), 1)
	_, err = e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	_, err = e.svc.Claim(ctx, testUser, questDrink)
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, testUser, questDrink)
	assert.ErrorIs(t, err, errors.QuestAlreadyClaimed)
}

func TestRolloverStartsFreshPeriod(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	e.logWater(t, e.today(), 2000)
	_, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	_, err = e.svc.Claim(ctx, testUser, questDrink)
	require.NoError(t, err)

	e.advanceDays(1)
	views, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	drink := viewByID(t, views, questDrink)
	assert.Equal(t, "2025-01-11", drink.Progress.PeriodStartDate)
	assert.Zero(t, drink.Progress.CurrentProgress)
	assert.Nil(t, drink.Progress.ClaimedAt)

	_, err = e.svc.Claim(ctx, testUser, questDrink)
	assert.ErrorIs(t, err, errors.QuestNotCompleted)

	history, err := e.svc.History(ctx, testUser, questDrink, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2025-01-11", history[0].PeriodStartDate)
	assert.True(t, history[1].IsCompleted)
	assert.NotNil(t, history[1].ClaimedAt)
}

func TestMonthlyQuestUsesLiveClaimCount(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	_, err := e.rewards.CheckIn(ctx, testUser)
	require.NoError(t, err)
	e.logWater(t, e.today(), 2000)
	e.logMeal(t, e.today(), `["salad"]`)

	_, err = e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, testUser, questMonthly)
	assert.ErrorIs(t, err, errors.QuestNotCompleted)

	for _, id := range []int64{questDrink, questCheckin, questMeal} {
		_, err := e.svc.Claim(ctx, testUser, id)
		require.NoError(t, err, "quest %d", id)
	}

	// 不重新列表，领取时实时统计
	res, err := e.svc.Claim(ctx, testUser, questMonthly)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rewards.Diamonds)
	assert.Equal(t, int64(10+20+5+5), res.Rewards.Coins)
}

func TestConcurrentClaimCreditsOnce(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	e.logWater(t, e.today(), 2000)
	_, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.Claim(ctx, testUser, questDrink)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, errors.QuestAlreadyClaimed)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	ledger, err := e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(20), ledger.Coins)
}

func TestClaimLockRejectsParallelClaim(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := cache.NewClaimLocker(client, 10*time.Second)
	svc := NewQuestService(QuestDeps{
		DB:       e.db,
		Catalog:  NewCachedCatalog(e.quests, cache.NewProtectedCache(client, "quest", time.Minute)),
		Progress: e.progress,
		Signals:  e.signals,
		Rewards:  e.rewards,
		Locker:   locker,
		Clock:    e.clock,
	})

	e.logWater(t, e.today(), 2000)
	_, err := svc.ListQuests(ctx, testUser)
	require.NoError(t, err)

	// 模拟另一个请求正持有锁
	release, ok, err := locker.TryLock(ctx, testUser, questDrink)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Claim(ctx, testUser, questDrink)
	assert.ErrorIs(t, err, errors.ClaimInProgress)

	release()
	res, err := svc.Claim(ctx, testUser, questDrink)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.Rewards.Coins)
}

func TestClaimProceedsWhenLockBackendFails(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	// 没有 Redis 监听的端口
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewQuestService(QuestDeps{
		DB:       e.db,
		Catalog:  e.catalog,
		Progress: e.progress,
		Signals:  e.signals,
		Rewards:  e.rewards,
		Locker:   cache.NewClaimLocker(client, time.Second),
		Clock:    e.clock,
	})

	e.logWater(t, e.today(), 2000)
	_, err := svc.ListQuests(ctx, testUser)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, testUser, questDrink)
	require.NoError(t, err)
}

func TestApplyProgressEvent(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	evt := &model.QuestProgressEvent{
		MessageID:  "qp_1",
		UserID:     testUser,
		Trigger:    model.TriggerFocusTime,
		Increment:  25,
		OccurredAt: e.now,
	}
	n, err := e.svc.ApplyProgressEvent(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.svc.ApplyProgressEvent(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := e.progress.Find(ctx, testUser, questFocus, e.today())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(50), p.CurrentProgress)

	set := int64(500)
	n, err = e.svc.ApplyProgressEvent(ctx, &model.QuestProgressEvent{
		UserID: testUser, Trigger: model.TriggerFocusTime, SetValue: &set, OccurredAt: e.now,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	p, err = e.progress.Find(ctx, testUser, questFocus, e.today())
	require.NoError(t, err)
	assert.Equal(t, int64(60), p.CurrentProgress, "capped at target")

	// 昨天发生的事件不影响今天
	n, err = e.svc.ApplyProgressEvent(ctx, &model.QuestProgressEvent{
		UserID: testUser, Trigger: model.TriggerHydrateGoal, Increment: 300, OccurredAt: e.now.AddDate(0, 0, -1),
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = e.svc.ApplyProgressEvent(ctx, &model.QuestProgressEvent{UserID: testUser, Trigger: "sleep_early", Increment: 1})
	assert.ErrorIs(t, err, errors.InvalidTrigger)
}

func TestApplyProgressEventLeavesClaimedRows(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	e.logWater(t, e.today(), 2000)
	_, err := e.svc.ListQuests(ctx, testUser)
	require.NoError(t, err)
	_, err = e.svc.Claim(ctx, testUser, questDrink)
	require.NoError(t, err)

	zero := int64(0)
	n, err := e.svc.ApplyProgressEvent(ctx, &model.QuestProgressEvent{
		UserID: testUser, Trigger: model.TriggerHydrateGoal, SetValue: &zero, OccurredAt: e.now,
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	p, err := e.progress.Find(ctx, testUser, questDrink, e.today())
	require.NoError(t, err)
	assert.Equal(t, int64(2000), p.CurrentProgress)
}

type flakyProgressRepo struct {
	repository.ProgressRepo
	failQuest int64
	failures  int
}

func (r *flakyProgressRepo) Find(ctx context.Context, userID string, questID int64, periodStart time.Time) (*model.QuestProgress, error) {
	if questID == r.failQuest && r.failures > 0 {
		r.failures--
		return nil, stderrors.New("connection reset")
	}
	return r.ProgressRepo.Find(ctx, userID, questID, periodStart)
}

func TestApplyProgressEventSkipsFailedQuest(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	require.NoError(t, e.quests.Upsert(ctx, []model.QuestDefinition{{
		BaseModel: model.BaseModel{ID: 8}, Title: "Focus 120 minutes", Kind: model.QuestKindDaily,
		Trigger: model.TriggerFocusTime, Target: 120, RewardKind: model.RewardCoins, RewardAmount: 5, IsActive: true,
	}}))

	flaky := &flakyProgressRepo{ProgressRepo: repository.NewProgressRepo(e.db), failQuest: 8, failures: 1}
	svc := NewQuestService(QuestDeps{
		DB:       e.db,
		Catalog:  e.catalog,
		Progress: NewProgressStore(flaky),
		Signals:  e.signals,
		Rewards:  e.rewards,
		Clock:    e.clock,
	})

	evt := &model.QuestProgressEvent{
		MessageID: "qp_x", UserID: testUser, Trigger: model.TriggerFocusTime, Increment: 25, OccurredAt: e.now,
	}
	n, err := svc.ApplyProgressEvent(ctx, evt)
	require.NoError(t, err, "a written event must not be reported as failed")
	assert.Equal(t, 1, n)

	p, err := e.progress.Find(ctx, testUser, questFocus, e.today())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(25), p.CurrentProgress)

	p, err = e.progress.Find(ctx, testUser, 8, e.today())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestApplyProgressEventFailsWhenNothingWritten(t *testing.T) {
	e := newTestEnv(t)
	e.seedQuests(t)
	ctx := context.Background()

	flaky := &flakyProgressRepo{ProgressRepo: repository.NewProgressRepo(e.db), failQuest: questFocus, failures: 1}
	svc := NewQuestService(QuestDeps{
		DB:       e.db,
		Catalog:  e.catalog,
		Progress: NewProgressStore(flaky),
		Signals:  e.signals,
		Rewards:  e.rewards,
		Clock:    e.clock,
	})

	evt := &model.QuestProgressEvent{
		MessageID: "qp_y", UserID: testUser, Trigger: model.TriggerFocusTime, Increment: 25, OccurredAt: e.now,
	}
	n, err := svc.ApplyProgressEvent(ctx, evt)
	assert.Error(t, err)
	assert.Zero(t, n)

	// 重放后正常写入
	n, err = svc.ApplyProgressEvent(ctx, evt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNotify(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.svc.Notify(ctx, testUser, model.TriggerHydrateGoal, 250, nil))
	require.Len(t, e.publisher.events, 1)
	evt := e.publisher.events[0]
	assert.Equal(t, testUser, evt.UserID)
	assert.Equal(t, model.TriggerHydrateGoal, evt.Trigger)
	assert.Equal(t, int64(250), evt.Increment)
	assert.NotEmpty(t, evt.MessageID)
	assert.Equal(t, e.now, evt.OccurredAt)

	err := e.svc.Notify(ctx, testUser, model.QuestTrigger("sleep_early"), 1, nil)
	assert.ErrorIs(t, err, errors.InvalidTrigger)

	err = e.svc.Notify(ctx, testUser, model.TriggerFocusTime, 0, nil)
	assert.ErrorIs(t, err, errors.ValidationFailed)

	// 投递失败被吞掉
	e.publisher.err = stderrors.New("broker unreachable")
	assert.NoError(t, e.svc.Notify(ctx, testUser, model.TriggerFocusTime, 10, nil))
	assert.Len(t, e.publisher.events, 1)
}
