package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitQuest/internal/model"
	"HabitQuest/pkg/logger"
)

// Models 任务引擎拥有的表；习惯记录表由记录服务迁移
func Models() []interface{} {
	return []interface{}{
		&model.QuestDefinition{},
		&model.QuestProgress{},
		&model.RewardLedger{},
	}
}

// Migrate 运行数据库迁移
func Migrate(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.AutoMigrate(Models()...); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
