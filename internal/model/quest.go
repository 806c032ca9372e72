package model

import "time"

// QuestKind 任务周期
type QuestKind string

const (
	QuestKindDaily   QuestKind = "daily"
	QuestKindMonthly QuestKind = "monthly"
)

func (k QuestKind) Valid() bool {
	return k == QuestKindDaily || k == QuestKindMonthly
}

// QuestTrigger 驱动任务进度的信号标签，封闭枚举
type QuestTrigger string

const (
	TriggerHydrateGoal        QuestTrigger = "hydrate_goal"         // 当日饮水量 ml
	TriggerTasksCompleted     QuestTrigger = "tasks_completed"      // 当日完成的作息任务数
	TriggerLogMeal            QuestTrigger = "log_meal"             // 当日记录过饮食
	TriggerFocusTime          QuestTrigger = "focus_time"           // 当日专注分钟数
	TriggerCheckin            QuestTrigger = "checkin"              // 当日已签到
	TriggerMonthlyDailyQuests QuestTrigger = "monthly_daily_quests" // 本月已领取的任务数
)

// AllTriggers 全部合法触发器
var AllTriggers = []QuestTrigger{
	TriggerHydrateGoal,
	TriggerTasksCompleted,
	TriggerLogMeal,
	TriggerFocusTime,
	TriggerCheckin,
	TriggerMonthlyDailyQuests,
}

func (t QuestTrigger) Valid() bool {
	for _, v := range AllTriggers {
		if v == t {
			return true
		}
	}
	return false
}

// OneShot 二值型触发器，进度上限为 1
func (t QuestTrigger) OneShot() bool {
	return t == TriggerCheckin || t == TriggerLogMeal
}

// RewardKind 奖励币种
type RewardKind string

const (
	RewardCoins    RewardKind = "coins"
	RewardDiamonds RewardKind = "diamonds"
)

func (k RewardKind) Valid() bool {
	return k == RewardCoins || k == RewardDiamonds
}

// QuestDefinition 任务定义，由 cmd/seed 维护，引擎只读
type QuestDefinition struct {
	BaseModel
	Title        string       `gorm:"type:varchar(128);not null" json:"title"`
	Description  string       `gorm:"type:text" json:"description"`
	Kind         QuestKind    `gorm:"type:varchar(16);not null" json:"kind"`
	Trigger      QuestTrigger `gorm:"column:trigger_tag;type:varchar(32);not null;index" json:"trigger"`
	RewardKind   RewardKind   `gorm:"type:varchar(16);not null" json:"reward_kind"`
	Target       int64        `gorm:"not null" json:"target"`
	RewardAmount int64        `gorm:"not null;default:0" json:"reward_amount"`
	IsActive     bool         `gorm:"not null;index" json:"is_active"`
}

// TableName 指定表名
func (QuestDefinition) TableName() string {
	return "quests"
}

// EffectiveCap 进度上限：二值触发器为 1，其余为 target
func (q *QuestDefinition) EffectiveCap() int64 {
	if q.Trigger.OneShot() {
		return 1
	}
	return q.Target
}

// QuestProgress 用户在某个周期内的任务进度，按 (user, quest, period) 追加写入
type QuestProgress struct {
	BaseModel
	PeriodStartDate time.Time  `gorm:"type:date;not null;uniqueIndex:uk_quest_progress_user_quest_period,priority:3" json:"period_start_date"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	UserID          string     `gorm:"type:varchar(36);not null;uniqueIndex:uk_quest_progress_user_quest_period,priority:1;index:idx_quest_progress_user_claimed,priority:1" json:"user_id"`
	QuestID         int64      `gorm:"not null;uniqueIndex:uk_quest_progress_user_quest_period,priority:2" json:"quest_id"`
	CurrentProgress int64      `gorm:"not null;default:0" json:"current_progress"`
}

// TableName 指定表名
func (QuestProgress) TableName() string {
	return "quest_progress"
}

func (p *QuestProgress) Claimed() bool {
	return p.ClaimedAt != nil
}
