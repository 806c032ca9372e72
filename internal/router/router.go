package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/route"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"HabitQuest/internal/handler"
	"HabitQuest/internal/middleware"
)

// Deps 路由需要的依赖
type Deps struct {
	DB      *gorm.DB
	Redis   *goredis.Client // nil 时限流直接放行
	Quests  *handler.QuestHandler
	Rewards *handler.RewardHandler
	Metrics *middleware.HTTPMetrics
	Tracer  app.HandlerFunc
}

func Register(h *route.Engine, d Deps) {
	h.Use(middleware.RecoverMiddleware())
	if d.Tracer != nil {
		h.Use(d.Tracer)
	}
	h.Use(middleware.CORSMiddleware())
	if d.Metrics != nil {
		h.Use(d.Metrics.Middleware())
	}

	h.GET("/healthz", handler.Healthz(d.DB))

	v1 := h.Group("/v1")

	// 任务路由
	quests := v1.Group("/quests")
	quests.Use(middleware.AuthMiddleware())
	{
		quests.GET("", d.Quests.ListQuests)
		quests.POST("/events", middleware.RateLimitMiddleware(d.Redis, middleware.EventRateLimitConfig), d.Quests.ReportEvent)
		quests.POST("/:quest_id/claim", middleware.RateLimitMiddleware(d.Redis, middleware.ClaimRateLimitConfig), d.Quests.ClaimQuest)
		quests.GET("/:quest_id/history", d.Quests.QuestHistory)
	}

	// 奖励账本路由
	rewards := v1.Group("/rewards")
	rewards.Use(middleware.AuthMiddleware())
	{
		rewards.GET("", d.Rewards.GetRewards)
		rewards.PUT("/checkin", middleware.RateLimitMiddleware(d.Redis, middleware.CheckInRateLimitConfig), d.Rewards.CheckIn)
		rewards.PUT("/streak", middleware.RateLimitMiddleware(d.Redis, middleware.CheckInRateLimitConfig), d.Rewards.UpdateStreak)
	}
}
