package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitQuest/internal/middleware"
	"HabitQuest/internal/model"
	"HabitQuest/internal/model/dto"
	"HabitQuest/internal/service"
	"HabitQuest/pkg/errors"
	"HabitQuest/pkg/response"
	"HabitQuest/utils"
)

// QuestHandler 任务相关接口
type QuestHandler struct {
	quests *service.QuestService
}

func NewQuestHandler(quests *service.QuestService) *QuestHandler {
	return &QuestHandler{quests: quests}
}

// currentUser 取认证后的用户 ID，失败时已写入响应
func currentUser(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return "", false
	}
	if !utils.ValidateUserID(userID) {
		response.Error(ctx, c, errors.InvalidUserID)
		return "", false
	}
	return userID, true
}

func questIDParam(ctx context.Context, c *app.RequestContext) (int64, bool) {
	id, ok := utils.ParseQuestID(c.Param("quest_id"))
	if !ok {
		response.Error(ctx, c, errors.InvalidQuestID)
		return 0, false
	}
	return id, true
}

// ListQuests 当前所有任务及进度
// GET /v1/quests
func (h *QuestHandler) ListQuests(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	views, err := h.quests.ListQuests(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, views)
}

// ClaimQuest 领取任务奖励
// POST /v1/quests/:quest_id/claim
func (h *QuestHandler) ClaimQuest(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	questID, ok := questIDParam(ctx, c)
	if !ok {
		return
	}

	result, err := h.quests.Claim(ctx, userID, questID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// QuestHistory 任务历史周期
// GET /v1/quests/:quest_id/history?limit=30
func (h *QuestHandler) QuestHistory(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	questID, ok := questIDParam(ctx, c)
	if !ok {
		return
	}

	var q dto.QuestHistoryQuery
	if err := c.BindQuery(&q); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	items, err := h.quests.History(ctx, userID, questID, q.Limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, items)
}

// ReportEvent 习惯记录写入后上报进度，异步生效
// POST /v1/quests/events
func (h *QuestHandler) ReportEvent(ctx context.Context, c *app.RequestContext) {
	userID, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req dto.QuestEventRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.UserID != "" && req.UserID != userID {
		response.Error(ctx, c, errors.ValidationFailed.WithMessage("user_id does not match the authenticated user"))
		return
	}

	if err := h.quests.Notify(ctx, userID, model.QuestTrigger(req.Trigger), req.Increment, req.SetValue); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Accepted(ctx, c, map[string]interface{}{"accepted": true})
}
