package handler

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"gorm.io/gorm"

	"HabitQuest/pkg/response"
)

// Healthz 存活 + 数据库连通性
// GET /healthz
func Healthz(db *gorm.DB) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		response.Success(ctx, c, map[string]string{"status": "ok"})
	}
}
