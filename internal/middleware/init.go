package middleware

import (
	"go.uber.org/zap"

	"HabitQuest/pkg/logger"
)

// Init 初始化需要全局状态的中间件，必须在 token.Init 之后调用
func Init() error {
	if err := initAuthMiddleware(); err != nil {
		logger.Logger.Error("Failed to initialize auth middleware", zap.Error(err))
		return err
	}

	logger.Logger.Info("All middlewares initialized successfully")
	return nil
}
