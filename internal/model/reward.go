package model

import "time"

// CheckInCycleLength 签到周期天数，daily_checkin 取值 0-6
const CheckInCycleLength = 7

// RewardLedger 用户奖励账本，每个用户一行，永不删除
type RewardLedger struct {
	BaseModel
	LastCheckinDate time.Time `gorm:"type:date;not null" json:"last_checkin_date"`
	LastStreakDate  time.Time `gorm:"type:date;not null" json:"last_streak_date"`
	UserID          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	Coins           int64     `gorm:"not null;default:0" json:"coins"`
	Diamonds        int64     `gorm:"not null;default:0" json:"diamonds"`
	Streak          int       `gorm:"not null;default:0" json:"streak"`
	DailyCheckin    int       `gorm:"not null;default:0" json:"daily_checkin"`
}

// TableName 指定表名
func (RewardLedger) TableName() string {
	return "reward_ledgers"
}
