package utils

import (
	"fmt"
	"time"
)

// 业务日期统一用 UTC 零点的 time.Time 表示（只保留日历日期），
// 这样写入 date 列再读出来不会因为时区漂移一天。

// SentinelDate 账本首次创建时使用的历史日期，保证“断签”规则自然生效
var SentinelDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Periods 当前业务日与业务月的起点
type Periods struct {
	DayStart   time.Time
	MonthStart time.Time
}

// NextMonthStart 下个月 1 号
func (p Periods) NextMonthStart() time.Time {
	return p.MonthStart.AddDate(0, 1, 0)
}

// Clock 业务时钟，固定时区偏移
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock 按 UTC 偏移小时数创建业务时钟
func NewClock(offsetHours int) *Clock {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return &Clock{
		loc: time.FixedZone(name, offsetHours*3600),
		now: time.Now,
	}
}

// WithNow 替换时间源，测试用
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

func (c *Clock) Now() time.Time {
	return c.now()
}

// Today 业务时区下今天的日期
func (c *Clock) Today() time.Time {
	return c.DateOf(c.now())
}

// DateOf 取 t 在业务时区下的日历日期
func (c *Clock) DateOf(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// CurrentPeriods 计算当前的日/月周期起点
func (c *Clock) CurrentPeriods() Periods {
	return c.PeriodsAt(c.now())
}

// PeriodsAt 纯函数版本
func (c *Clock) PeriodsAt(now time.Time) Periods {
	day := c.DateOf(now)
	return Periods{
		DayStart:   day,
		MonthStart: time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
}

// DayBounds 业务日 date 对应的真实时间区间 [start, end)
func (c *Clock) DayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, c.loc)
	return start, start.AddDate(0, 0, 1)
}

// DaysBetween 两个业务日期相差的天数（to - from）
func DaysBetween(from, to time.Time) int {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// FormatDate 输出 2006-01-02
func FormatDate(date time.Time) string {
	return date.Format(time.DateOnly)
}
