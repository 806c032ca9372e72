package dto

import "time"

// ========== Quest 相关 DTO ==========

// QuestProgressData 当前周期的进度
type QuestProgressData struct {
	ClaimedAt       *time.Time `json:"claimed_at"`
	PeriodStartDate string     `json:"period_start_date"`
	CurrentProgress int64      `json:"current_progress"`
}

// QuestView 任务定义 + 进度；进度读取失败时 Progress 为 null
type QuestView struct {
	Progress     *QuestProgressData `json:"progress"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Kind         string             `json:"kind"`
	Trigger      string             `json:"trigger"`
	RewardKind   string             `json:"reward_kind"`
	ID           int64              `json:"id"`
	Target       int64              `json:"target"`
	RewardAmount int64              `json:"reward_amount"`
	IsCompleted  bool               `json:"is_completed"`
	IsClaimable  bool               `json:"is_claimable"`
}

// ClaimResult 领取结果
type ClaimResult struct {
	Message string           `json:"message"`
	Rewards RewardLedgerView `json:"rewards"`
}

// QuestHistoryItem 历史周期
type QuestHistoryItem struct {
	ClaimedAt       *time.Time `json:"claimed_at"`
	PeriodStartDate string     `json:"period_start_date"`
	CurrentProgress int64      `json:"current_progress"`
	IsCompleted     bool       `json:"is_completed"`
}

// QuestHistoryQuery 历史查询参数
type QuestHistoryQuery struct {
	Limit int `query:"limit"`
}

// QuestEventRequest 习惯记录服务上报的进度事件
type QuestEventRequest struct {
	SetValue  *int64 `json:"set_value"`
	UserID    string `json:"user_id"`
	Trigger   string `json:"trigger"`
	Increment int64  `json:"increment"`
}
