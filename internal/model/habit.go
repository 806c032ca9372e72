package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// 以下为习惯记录表，由记录服务写入，任务引擎只读

// HydrateLog 饮水记录，每人每天一行
type HydrateLog struct {
	BaseModel
	Date          time.Time `gorm:"type:date;not null;index:idx_hydrate_logs_user_date" json:"date"`
	UserID        string    `gorm:"type:varchar(36);not null;index:idx_hydrate_logs_user_date" json:"user_id"`
	ConsumedWater int64     `gorm:"not null;default:0" json:"consumed_water"`
}

func (HydrateLog) TableName() string {
	return "hydrate_logs"
}

// SleepLog 作息任务
type SleepLog struct {
	BaseModel
	ScheduledTime time.Time `gorm:"not null;index:idx_sleep_logs_user_time" json:"scheduled_time"`
	UserID        string    `gorm:"type:varchar(36);not null;index:idx_sleep_logs_user_time" json:"user_id"`
	Title         string    `gorm:"type:varchar(128)" json:"title"`
	Completed     bool      `gorm:"not null;default:false" json:"completed"`
}

func (SleepLog) TableName() string {
	return "sleep_logs"
}

// DietLog 饮食记录，dishes 为 JSON 数组或对象
type DietLog struct {
	BaseModel
	Date   time.Time      `gorm:"type:date;not null;index:idx_diet_logs_user_date" json:"date"`
	UserID string         `gorm:"type:varchar(36);not null;index:idx_diet_logs_user_date" json:"user_id"`
	Meal   string         `gorm:"type:varchar(32)" json:"meal"`
	Dishes datatypes.JSON `json:"dishes"`
}

func (DietLog) TableName() string {
	return "diet_logs"
}

// HasDishes 记录了至少一道菜
func (d *DietLog) HasDishes() bool {
	switch strings.Join(strings.Fields(string(d.Dishes)), "") {
	case "", "null", "[]", "{}":
		return false
	}
	return true
}

// FocusLog 专注记录，focus_done 单位分钟
type FocusLog struct {
	BaseModel
	Date      time.Time `gorm:"type:date;not null;index:idx_focus_logs_user_date" json:"date"`
	UserID    string    `gorm:"type:varchar(36);not null;index:idx_focus_logs_user_date" json:"user_id"`
	FocusDone int64     `gorm:"not null;default:0" json:"focus_done"`
}

func (FocusLog) TableName() string {
	return "focus_logs"
}
