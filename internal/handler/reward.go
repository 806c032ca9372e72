package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitQuest/internal/service"
	"HabitQuest/pkg/response"
)

// RewardHandler 奖励账本接口
type RewardHandler struct {
	rewards *service.RewardService
}

func NewRewardHandler(rewards *service.RewardService) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

// GetRewards 查询账本
// GET /v1/rewards
func (h *RewardHandler) GetRewards(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	view, err := h.rewards.Get(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, view)
}

// CheckIn 每日签到
// PUT /v1/rewards/checkin
func (h *RewardHandler) CheckIn(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	view, err := h.rewards.CheckIn(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, view)
}

// UpdateStreak 更新连胜
// PUT /v1/rewards/streak
func (h *RewardHandler) UpdateStreak(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	view, err := h.rewards.UpdateStreak(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, view)
}
