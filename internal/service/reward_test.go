package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HabitQuest/internal/model"
	"HabitQuest/pkg/errors"
)

func TestGetCreatesLedgerWithSentinelDates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	v, err := e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, "2000-01-01", v.LastCheckinDate)
	assert.Equal(t, "2000-01-01", v.LastStreakDate)
	assert.Zero(t, v.Coins)
	assert.Zero(t, v.DailyCheckin)

	// 第二次读取不会再建一行
	_, err = e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	var n int64
	require.NoError(t, e.db.Model(&model.RewardLedger{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestCheckInIsIdempotentPerDay(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	v, err := e.rewards.CheckIn(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, v.DailyCheckin)
	assert.Equal(t, int64(10), v.Coins)
	assert.Equal(t, "2025-01-10", v.LastCheckinDate)

	_, err = e.rewards.CheckIn(ctx, testUser)
	assert.ErrorIs(t, err, errors.CheckInAlreadyDone)

	v, err = e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v.Coins)
	assert.Equal(t, 1, v.DailyCheckin)
}

func TestCheckInCycleWrapAwardsDiamond(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for i := 1; i <= 6; i++ {
		v, err := e.rewards.CheckIn(ctx, testUser)
		require.NoError(t, err)
		assert.Equal(t, i, v.DailyCheckin)
		assert.Zero(t, v.Diamonds)
		e.advanceDays(1)
	}

	v, err := e.rewards.CheckIn(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, v.DailyCheckin)
	assert.Equal(t, int64(1), v.Diamonds)
	assert.Equal(t, int64(70), v.Coins)

	e.advanceDays(1)
	v, err = e.rewards.CheckIn(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, v.DailyCheckin)
	assert.Equal(t, int64(1), v.Diamonds)
}

func TestCheckInGapResetsCycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.rewards.CheckIn(ctx, testUser)
	require.NoError(t, err)
	e.advanceDays(1)
	v, err := e.rewards.CheckIn(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, v.DailyCheckin)

	e.advanceDays(3)
	v, err = e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, v.DailyCheckin, "reads report a broken cycle as zero")

	var stored model.RewardLedger
	require.NoError(t, e.db.Where("user_id = ?", testUser).First(&stored).Error)
	assert.Equal(t, 2, stored.DailyCheckin, "reads never persist the reset")

	v, err = e.rewards.CheckIn(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, v.DailyCheckin)
	assert.Equal(t, int64(30), v.Coins)
}

func TestUpdateStreak(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	v, err := e.rewards.UpdateStreak(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Streak)

	v, err = e.rewards.UpdateStreak(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Streak, "same day is a no-op")

	e.advanceDays(1)
	v, err = e.rewards.UpdateStreak(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Streak)
	assert.Equal(t, "2025-01-11", v.LastStreakDate)

	e.advanceDays(2)
	v, err = e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Streak)

	v, err = e.rewards.UpdateStreak(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Streak)
}

func TestCreditRequiresLedger(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	err := e.rewards.Credit(ctx, nil, testUser, model.RewardCoins, 5)
	assert.ErrorIs(t, err, errors.RewardLedgerNotFound)

	_, err = e.rewards.Get(ctx, testUser)
	require.NoError(t, err)
	require.NoError(t, e.rewards.Credit(ctx, nil, testUser, model.RewardDiamonds, 3))
	require.NoError(t, e.rewards.Credit(ctx, nil, testUser, model.RewardCoins, 7))

	v, err := e.rewards.View(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Diamonds)
	assert.Equal(t, int64(7), v.Coins)

	assert.Error(t, e.rewards.Credit(ctx, nil, testUser, model.RewardKind("gems"), 1))
}
