package repository

import (
	"context"

	"gorm.io/gorm"
)

// pick 有事务用事务，否则用默认连接
func pick(ctx context.Context, db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
