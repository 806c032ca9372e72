package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HabitQuest/internal/model"
)

func TestGetOrCreateReturnsSameRow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.progress.GetOrCreate(ctx, testUser, questDrink, e.today())
	require.NoError(t, err)
	assert.Zero(t, first.CurrentProgress)
	assert.False(t, first.Claimed())

	second, err := e.progress.GetOrCreate(ctx, testUser, questDrink, e.today())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateRollsOverToNewPeriod(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	old, err := e.progress.GetOrCreate(ctx, testUser, questDrink, e.today())
	require.NoError(t, err)
	_, err = e.progress.Update(ctx, old, 1500)
	require.NoError(t, err)

	e.advanceDays(1)
	fresh, err := e.progress.GetOrCreate(ctx, testUser, questDrink, e.today())
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Zero(t, fresh.CurrentProgress)
	assert.Equal(t, day(2025, time.January, 11), fresh.PeriodStartDate.UTC())

	history, err := e.progress.History(ctx, testUser, questDrink, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, fresh.ID, history[0].ID)
	assert.Equal(t, int64(1500), history[1].CurrentProgress, "previous period is kept untouched")

	again, err := e.progress.GetOrCreate(ctx, testUser, questDrink, day(2025, time.January, 10))
	require.NoError(t, err)
	assert.Equal(t, old.ID, again.ID)
	assert.Equal(t, int64(1500), again.CurrentProgress)
}

func TestGetOrCreateConcurrentCallersShareRow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := e.progress.GetOrCreate(ctx, testUser, questFocus, e.today())
			errs[i] = err
			if p != nil {
				ids[i] = p.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var n int64
	require.NoError(t, e.db.Model(&model.QuestProgress{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestUpdateSkipsUnchangedAndClaimed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	p, err := e.progress.GetOrCreate(ctx, testUser, questDrink, e.today())
	require.NoError(t, err)

	written, err := e.progress.Update(ctx, p, 0)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = e.progress.Update(ctx, p, 800)
	require.NoError(t, err)
	assert.True(t, written)

	ok, err := e.progress.MarkClaimed(ctx, nil, p.ID, e.now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.progress.MarkClaimed(ctx, nil, p.ID, e.now)
	require.NoError(t, err)
	assert.False(t, ok, "second claim affects no rows")

	reloaded, err := e.progress.Find(ctx, testUser, questDrink, e.today())
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.True(t, reloaded.Claimed())

	written, err = e.progress.Update(ctx, reloaded, 2000)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, int64(800), reloaded.CurrentProgress)
}
