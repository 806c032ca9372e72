package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodsAtUsesBusinessZone(t *testing.T) {
	clock := NewClock(7)

	// 2024-03-31 18:30 UTC 已经是 UTC+7 的 4 月 1 日
	now := time.Date(2024, time.March, 31, 18, 30, 0, 0, time.UTC)
	p := clock.PeriodsAt(now)

	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), p.DayStart)
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), p.MonthStart)
	assert.Equal(t, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), p.NextMonthStart())

	// 16:59 UTC 还是 3 月 31 日
	p = clock.PeriodsAt(time.Date(2024, time.March, 31, 16, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), p.DayStart)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), p.MonthStart)
}

func TestPeriodsAtIsDeterministic(t *testing.T) {
	clock := NewClock(7)
	now := time.Date(2025, time.July, 15, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, clock.PeriodsAt(now), clock.PeriodsAt(now))
}

func TestWithNow(t *testing.T) {
	fixed := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)
	clock := NewClock(7).WithNow(func() time.Time { return fixed })

	assert.Equal(t, time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC), clock.Today())
	assert.Equal(t, "2025-01-10", FormatDate(clock.CurrentPeriods().DayStart))
}

func TestDayBounds(t *testing.T) {
	clock := NewClock(7)
	start, end := clock.DayBounds(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2025, time.January, 9, 17, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, DaysBetween(a, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, 9162, DaysBetween(SentinelDate, time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)))
}

func TestValidateUserID(t *testing.T) {
	assert.True(t, ValidateUserID("7f1d6a9e-4a7c-4b5e-9a43-3f2c1d0e8b11"))
	assert.False(t, ValidateUserID("42"))

	id, ok := ParseQuestID("12")
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	_, ok = ParseQuestID("-3")
	assert.False(t, ok)
}
