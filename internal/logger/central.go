package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	// Embedded zone database so IANA timezones load on minimal images.
	_ "time/tzdata"
)

// CentralLogger owns the output handlers and hands out module loggers.
type CentralLogger struct {
	config   LoggingConfig
	timezone *time.Location
	handler  slog.Handler
	file     *os.File
	mu       sync.Mutex
}

var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal sets the process-wide CentralLogger.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the process-wide CentralLogger, falling back to a console
// logger at info level when none was set.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = &CentralLogger{
			config:   LoggingConfig{DefaultLevel: DefaultLogLevel},
			timezone: time.Local,
			handler:  newTextHandler(os.Stdout, slog.LevelInfo, time.Local),
		}
	}
	return globalLogger
}

// NewCentralLogger builds console and file handlers from cfg.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	c := *cfg
	if c.DefaultLevel == "" {
		c.DefaultLevel = DefaultLogLevel
	}

	tz := time.Local
	if c.Timezone != "" && c.Timezone != "Local" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", c.Timezone, err)
		}
		tz = loc
	}

	cl := &CentralLogger{config: c, timezone: tz}

	var handlers []slog.Handler
	if c.Console.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, levelOr(c.Console.Level, c.DefaultLevel), tz))
	}
	if c.FileOutput.Enabled {
		path := c.FileOutput.Path
		if path == "" {
			path = DefaultLogPath
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		cl.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level: levelOr(c.FileOutput.Level, c.DefaultLevel),
		}))
	}

	switch len(handlers) {
	case 0:
		cl.handler = newTextHandler(os.Stdout, parseSlogLevel(LogLevel(c.DefaultLevel)), tz)
	case 1:
		cl.handler = handlers[0]
	default:
		cl.handler = newFanoutHandler(handlers...)
	}
	return cl, nil
}

func levelOr(level, fallback string) slog.Level {
	if level == "" {
		level = fallback
	}
	return parseSlogLevel(LogLevel(level))
}

// Module returns a logger scoped to name. Module level overrides apply to
// the top-level module name.
func (cl *CentralLogger) Module(name string) Logger {
	level := cl.config.DefaultLevel
	if override, ok := cl.config.ModuleLevels[name]; ok {
		level = override
	}
	return &moduleLogger{
		module: name,
		logger: slog.New(cl.handler),
		level:  parseSlogLevel(LogLevel(level)),
	}
}

// Root returns a logger without a module name. Loggers derived from it with
// Module pick up the configured module level overrides.
func (cl *CentralLogger) Root() Logger {
	return &moduleLogger{
		logger:    slog.New(cl.handler),
		level:     parseSlogLevel(LogLevel(cl.config.DefaultLevel)),
		overrides: cl.config.ModuleLevels,
	}
}

// Flush syncs the log file, if any.
func (cl *CentralLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Sync()
}

// Close flushes and closes the log file.
func (cl *CentralLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := errors.Join(cl.file.Sync(), cl.file.Close())
	cl.file = nil
	return err
}
