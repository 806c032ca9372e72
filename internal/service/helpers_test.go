package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"HabitQuest/internal/model"
	"HabitQuest/internal/repository"
	"HabitQuest/storage/database"
	"HabitQuest/utils"
)

const testUser = "7f1d6a9e-4a7c-4b5e-9a43-3f2c1d0e8b11"

// 2025-01-10 12:00 UTC+7
var testNow = time.Date(2025, time.January, 10, 5, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	require.NoError(t, db.AutoMigrate(&model.HydrateLog{}, &model.SleepLog{}, &model.DietLog{}, &model.FocusLog{}))
	return db
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.QuestProgressEvent
	err    error
}

func (p *recordingPublisher) PublishQuestProgress(_ context.Context, evt *model.QuestProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	now       time.Time
	clock     *utils.Clock
	quests    repository.QuestRepo
	progress  *ProgressStore
	signals   *Aggregator
	rewards   *RewardService
	catalog   Catalog
	svc       *QuestService
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{db: newTestDB(t), now: testNow, publisher: &recordingPublisher{}}
	e.clock = utils.NewClock(7).WithNow(func() time.Time { return e.now })

	progressRepo := repository.NewProgressRepo(e.db)
	ledgerRepo := repository.NewLedgerRepo(e.db)
	e.quests = repository.NewQuestRepo(e.db)

	e.progress = NewProgressStore(progressRepo)
	e.signals = NewAggregator(repository.NewHabitLogReader(e.db), ledgerRepo, progressRepo, e.clock, nil, time.Second)
	e.rewards = NewRewardService(ledgerRepo, e.clock, CheckInRewards{Coins: 10, BonusDiamond: 1}, nil)
	e.catalog = NewCachedCatalog(e.quests, nil)
	e.svc = NewQuestService(QuestDeps{
		DB:        e.db,
		Catalog:   e.catalog,
		Progress:  e.progress,
		Signals:   e.signals,
		Rewards:   e.rewards,
		Publisher: e.publisher,
		Clock:     e.clock,
	})
	return e
}

func (e *testEnv) advanceDays(n int) {
	e.now = e.now.AddDate(0, 0, n)
}

func (e *testEnv) today() time.Time {
	return e.clock.Today()
}

const (
	questDrink int64 = iota + 1
	questCheckin
	questMeal
	questTasks
	questFocus
	questMonthly
	questRetired
)

func (e *testEnv) seedQuests(t *testing.T) {
	t.Helper()

	defs := []model.QuestDefinition{
		{Title: "Drink 2000ml water", Kind: model.QuestKindDaily, Trigger: model.TriggerHydrateGoal, Target: 2000, RewardKind: model.RewardCoins, RewardAmount: 20, IsActive: true},
		{Title: "Check in", Kind: model.QuestKindDaily, Trigger: model.TriggerCheckin, Target: 1, RewardKind: model.RewardCoins, RewardAmount: 5, IsActive: true},
		{Title: "Log a meal", Kind: model.QuestKindDaily, Trigger: model.TriggerLogMeal, Target: 1, RewardKind: model.RewardCoins, RewardAmount: 5, IsActive: true},
		{Title: "Finish 3 tasks", Kind: model.QuestKindDaily, Trigger: model.TriggerTasksCompleted, Target: 3, RewardKind: model.RewardCoins, RewardAmount: 15, IsActive: true},
		{Title: "Focus 60 minutes", Kind: model.QuestKindDaily, Trigger: model.TriggerFocusTime, Target: 60, RewardKind: model.RewardCoins, RewardAmount: 10, IsActive: true},
		{Title: "Claim 3 quests this month", Kind: model.QuestKindMonthly, Trigger: model.TriggerMonthlyDailyQuests, Target: 3, RewardKind: model.RewardDiamonds, RewardAmount: 2, IsActive: true},
		{Title: "Retired", Kind: model.QuestKindDaily, Trigger: model.TriggerHydrateGoal, Target: 500, RewardKind: model.RewardCoins, RewardAmount: 1, IsActive: true},
	}
	for i := range defs {
		defs[i].ID = int64(i + 1)
	}
	require.NoError(t, e.quests.Upsert(context.Background(), defs))

	_, err := e.quests.DeactivateExcept(context.Background(), []int64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
}

func (e *testEnv) logWater(t *testing.T, date time.Time, ml int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.HydrateLog{UserID: testUser, Date: date, ConsumedWater: ml}).Error)
}

func (e *testEnv) logMeal(t *testing.T, date time.Time, dishes string) {
	t.Helper()
	log := &model.DietLog{UserID: testUser, Date: date, Meal: "lunch"}
	if dishes != "" {
		log.Dishes = datatypes.JSON(dishes)
	}
	require.NoError(t, e.db.Create(log).Error)
}

func (e *testEnv) logTask(t *testing.T, at time.Time, completed bool) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.SleepLog{UserID: testUser, ScheduledTime: at.UTC(), Title: "task", Completed: completed}).Error)
}

func (e *testEnv) logFocus(t *testing.T, date time.Time, minutes int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.FocusLog{UserID: testUser, Date: date, FocusDone: minutes}).Error)
}
