// Package sqlitestore is the reference gorm+sqlite implementation of the
// store repository contracts, grounded on database/gorm_db.go.
package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/watchtower-nvr/core/store/migrations"
)

// Open connects to a sqlite database at dataSourceName, runs migrations,
// and returns a ready-to-use *gorm.DB. Grounded on database/gorm_db.go's
// InitGormDB, extended to run goose migrations instead of AutoMigrate.
func Open(dataSourceName string, log *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: zapGormLogger{log: log},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(1) // sqlite: single-writer, serialize through gorm's pool
	sqlDB.SetConnMaxLifetime(time.Hour)

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		log.Warnw("failed to set WAL mode", "error", err)
	}

	if err := migrations.Run(sqlDB); err != nil {
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}

	return db, nil
}

// zapGormLogger adapts a zap.SugaredLogger to gorm's logger.Interface so
// slow-query and error logging goes through the same structured sink as
// the rest of the process, instead of gorm's own stdout writer.
type zapGormLogger struct {
	log *zap.SugaredLogger
}

func (l zapGormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l zapGormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	l.log.Debugf(msg, args...)
}

func (l zapGormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	l.log.Warnf(msg, args...)
}

func (l zapGormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	l.log.Errorf(msg, args...)
}

func (l zapGormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	if err != nil {
		l.log.Debugw("gorm query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
		return
	}
	if elapsed > time.Second {
		l.log.Warnw("slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
