// Package infra は外部サービス・外部ツールとの接続を提供する。
package infra

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"device-provisioner/config"
)

// NewDB はgormによるプロビジョニング台帳への接続を初期化する。
// DSNが "mysql://" で始まる場合は共有のMySQL台帳に、それ以外は
// ローカルのSQLiteファイルに接続する。
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(dialectorFor(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	if cfg.OtelEnabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("registering tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func dialectorFor(dsn string) gorm.Dialector {
	if rest, ok := strings.CutPrefix(dsn, "mysql://"); ok {
		return mysql.Open(rest)
	}
	return sqlite.Open(dsn)
}
