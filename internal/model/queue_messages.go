package model

import "time"

// QuestProgressEvent 习惯记录服务写完数据后投递的进度事件
// SetValue 非空时直接覆盖进度，否则在当前进度上累加 Increment
type QuestProgressEvent struct {
	OccurredAt time.Time    `json:"occurred_at"`
	SetValue   *int64       `json:"set_value,omitempty"`
	MessageID  string       `json:"message_id"` // 消息唯一ID，用于幂等性检查
	UserID     string       `json:"user_id"`
	Trigger    QuestTrigger `json:"trigger"`
	Increment  int64        `json:"increment"`
}
