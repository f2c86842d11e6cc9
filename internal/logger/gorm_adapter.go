package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerAdapter routes GORM output for the session journal through a
// Logger. Statements log at trace; failed and slow statements at warn.
type GormLoggerAdapter struct {
	log  Logger
	slow time.Duration
}

var _ gormlogger.Interface = (*GormLoggerAdapter)(nil)

// NewGormLoggerAdapter returns an adapter. A zero slow threshold disables
// slow statement warnings.
func NewGormLoggerAdapter(log Logger, slow time.Duration) *GormLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLoggerAdapter{log: log, slow: slow}
}

// LogMode is a no-op; levels come from the logging configuration.
func (a *GormLoggerAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface { return a }

func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.log.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.log.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.log.Error(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []Field{String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed)}

	// a missing record is an expected lookup outcome for the journal
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		a.log.Warn("journal statement failed", append(fields, Error(err))...)
		return
	}
	if a.slow > 0 && elapsed > a.slow {
		a.log.Warn("slow journal statement", fields...)
		return
	}
	a.log.Trace("journal statement", fields...)
}
