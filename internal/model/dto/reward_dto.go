package dto

// ========== Reward 相关 DTO ==========

// RewardLedgerView 账本视图，断签超过一天的计数按 0 展示
type RewardLedgerView struct {
	LastCheckinDate string `json:"last_checkin_date"`
	LastStreakDate  string `json:"last_streak_date"`
	Coins           int64  `json:"coins"`
	Diamonds        int64  `json:"diamonds"`
	Streak          int    `json:"streak"`
	DailyCheckin    int    `json:"daily_checkin"`
}
