package utils

import (
	"strconv"

	"github.com/google/uuid"
)

// ValidateUserID 用户 ID 来自认证服务签发的 uuid
func ValidateUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ParseQuestID 任务 ID 为正整数
func ParseQuestID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
