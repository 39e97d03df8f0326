// Package store 管理 SQLite 凭据库的打开与迁移。
package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hanekoo/zaiwen2api/account"
)

// Open 打开（必要时创建）SQLite 数据库并完成表迁移。
// path 传 ":memory:" 可得到内存库，测试用。
func Open(path string, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}

	if err := account.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate account schema: %w", err)
	}

	logger.Info("凭据库就绪", zap.String("path", path))
	return db, nil
}

// Close 关闭底层连接。gorm 自身不暴露 Close，需经由 sql.DB。
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.Close()
}
