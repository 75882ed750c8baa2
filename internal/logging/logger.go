// Package logging provides categorized logging for chorus.
// Every category is a named child of one shared zap logger, so a single
// level and encoder apply to the scheduler, the agents and the store alike.
// Until Initialize is called all loggers are no-ops.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, setup, shutdown
	CategoryConfig    Category = "config"    // Config load and reload
	CategoryStore     Category = "store"     // Content store operations
	CategoryAgent     Category = "agent"     // Agent runner cycles
	CategorySelector  Category = "selector"  // Reply-target selection
	CategoryScheduler Category = "scheduler" // Timers, ticks, overlap skips
	CategoryFeed      Category = "feed"      // RSS inspiration and news cache
	CategoryAPI       Category = "api"       // Generation provider calls
	CategoryImagery   Category = "imagery"   // Image resolution
	CategoryHTTP      Category = "http"      // Read API server
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Logger is a printf-style logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared zap logger. Safe to call more than once;
// the last call wins.
func Initialize(cfg Config) error {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)

	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") || strings.EqualFold(cfg.Format, "text") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Use(logger)
	return nil
}

// Use installs an existing zap logger, e.g. the CLI's or zaptest's.
func Use(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = logger
	loggers = make(map[Category]*Logger)
}

// Base returns the shared zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// ParseLevel converts a config level string into a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// SetLevel changes the level of every logger at runtime.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level reports the current level.
func Level() zapcore.Level {
	return level.Level()
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a context logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *ContextLogger {
	return &ContextLogger{sugar: l.sugar.With(keysAndValues...)}
}

// ContextLogger provides structured logging with key-value context
type ContextLogger struct {
	sugar *zap.SugaredLogger
}

func (c *ContextLogger) Debug(format string, args ...interface{}) { c.sugar.Debugf(format, args...) }
func (c *ContextLogger) Info(format string, args ...interface{})  { c.sugar.Infof(format, args...) }
func (c *ContextLogger) Warn(format string, args ...interface{})  { c.sugar.Warnf(format, args...) }
func (c *ContextLogger) Error(format string, args ...interface{}) { c.sugar.Errorf(format, args...) }

// With adds more fields.
func (c *ContextLogger) With(keysAndValues ...interface{}) *ContextLogger {
	return &ContextLogger{sugar: c.sugar.With(keysAndValues...)}
}

// ForAgent returns an agent-category logger tagged with the agent handle.
func ForAgent(handle string) *ContextLogger {
	return Get(CategoryAgent).With("agent", handle)
}

// Sync flushes buffered entries (call at shutdown).
func Sync() {
	_ = Base().Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Scheduler(format string, args ...interface{})      { Get(CategoryScheduler).Info(format, args...) }
func SchedulerDebug(format string, args ...interface{}) { Get(CategoryScheduler).Debug(format, args...) }
func SchedulerWarn(format string, args ...interface{})  { Get(CategoryScheduler).Warn(format, args...) }

func Feed(format string, args ...interface{})      { Get(CategoryFeed).Info(format, args...) }
func FeedDebug(format string, args ...interface{}) { Get(CategoryFeed).Debug(format, args...) }
func FeedWarn(format string, args ...interface{})  { Get(CategoryFeed).Warn(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }

func Imagery(format string, args ...interface{})     { Get(CategoryImagery).Info(format, args...) }
func ImageryWarn(format string, args ...interface{}) { Get(CategoryImagery).Warn(format, args...) }

func HTTP(format string, args ...interface{})      { Get(CategoryHTTP).Info(format, args...) }
func HTTPError(format string, args ...interface{}) { Get(CategoryHTTP).Error(format, args...) }

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures an operation and logs its duration when stopped.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer starts timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
