package database

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger sends GORM output to logrus at the matching level
type gormLogger struct {
	log           logrus.FieldLogger
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log logrus.FieldLogger, slowThreshold time.Duration) *gormLogger {
	return &gormLogger{log: log, level: logger.Warn, slowThreshold: slowThreshold}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.log.Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.log.Errorf(msg, args...)
	}
}

// Trace reports failed and slow statements. Missing rows are not failures.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	fields := func() logrus.Fields {
		sql, rows := fc()
		return logrus.Fields{"elapsed_ms": elapsed.Milliseconds(), "rows": rows, "sql": sql}
	}

	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.WithFields(fields()).WithError(err).Error("Query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		l.log.WithFields(fields()).Warn("Slow query")
	case l.level >= logger.Info:
		l.log.WithFields(fields()).Info("Query")
	}
}
