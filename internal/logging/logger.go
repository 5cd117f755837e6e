// Package logging provides config-driven categorized logging for Annopedia.
// Every category writes to stderr; when a log directory is configured each
// category also gets its own file under that directory.
// Categories can be switched off individually; a disabled category returns a no-op logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"annopedia/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot   Category = "boot"   // Boot/initialization
	CategoryAPI    Category = "api"    // HTTP requests and responses
	CategoryAuth   Category = "auth"   // Authenticator chain
	CategoryStore  Category = "store"  // SQLite store and migrations
	CategoryImport Category = "import" // Unannotated data uploads
	CategoryExport Category = "export" // CSV/JSON exports
	CategoryMail   Category = "mail"   // Invitation e-mails
	CategoryAudit  Category = "audit"  // Administrative mutations
)

// Logger is a category-tagged sugared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*Logger)
	files   []*os.File
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	root    = zap.NewNop()
	encoder zapcore.Encoder
	sink    zapcore.WriteSyncer
	logsDir string
	current config.LoggingConfig
)

// Initialize configures the shared level, encoding and sinks.
// Calling it again replaces the previous configuration and closes open files.
func Initialize(cfg config.LoggingConfig) error {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console", "text":
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	CloseAll()

	mu.Lock()
	level.SetLevel(lvl)
	encoder = enc
	sink = zapcore.Lock(os.Stderr)
	if cfg.Quiet {
		sink = zapcore.AddSync(discard{})
	}
	logsDir = cfg.Dir
	current = cfg
	root = zap.New(zapcore.NewCore(encoder, sink, level))
	mu.Unlock()

	Boot("logging initialized (level=%s, format=%s, dir=%q)", lvl, cfg.Format, cfg.Dir)
	return nil
}

// SetLevel changes the level of every logger at runtime.
func SetLevel(name string) error {
	lvl, err := parseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level returns the current level name.
func Level() string {
	return level.Level().String()
}

// L returns the uncategorized root logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories not listed in the config are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return current.IsCategoryEnabled(string(category))
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

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
	if encoder == nil {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	core := zapcore.NewCore(encoder, sink, level)
	if logsDir != "" {
		date := time.Now().Format("2006-01-02")
		path := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", path, err)
		} else {
			files = append(files, file)
			core = zapcore.NewTee(core, zapcore.NewCore(encoder, zapcore.AddSync(file), level))
		}
	}

	l := &Logger{
		category: category,
		sugar:    zap.New(core).With(zap.String("category", string(category))).Sugar(),
	}
	loggers[category] = l
	return l
}

// CloseAll syncs and closes all category log files.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		_ = l.sugar.Sync()
	}
	for _, f := range files {
		_ = f.Close()
	}
	files = nil
	loggers = make(map[Category]*Logger)
}

func parseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// =============================================================================
// LOGGER METHODS
// =============================================================================

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// StructuredLog writes a message with key-value fields at the given level.
func (l *Logger) StructuredLog(lvl string, msg string, fields map[string]interface{}) {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	switch lvl {
	case "debug":
		l.sugar.Debugw(msg, kv...)
	case "warn":
		l.sugar.Warnw(msg, kv...)
	case "error":
		l.sugar.Errorw(msg, kv...)
	default:
		l.sugar.Infow(msg, kv...)
	}
}

// With returns a logger carrying extra key-value context.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(kv...)}
}

// =============================================================================
// CATEGORY HELPERS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIError logs error to the api category
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

// Auth logs to the auth category
func Auth(format string, args ...interface{}) { Get(CategoryAuth).Info(format, args...) }

// AuthDebug logs debug to the auth category
func AuthDebug(format string, args ...interface{}) { Get(CategoryAuth).Debug(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

// Import logs to the import category
func Import(format string, args ...interface{}) { Get(CategoryImport).Info(format, args...) }

// Export logs to the export category
func Export(format string, args ...interface{}) { Get(CategoryExport).Info(format, args...) }

// Mail logs to the mail category
func Mail(format string, args ...interface{}) { Get(CategoryMail).Info(format, args...) }

// MailError logs error to the mail category
func MailError(format string, args ...interface{}) { Get(CategoryMail).Error(format, args...) }

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures one operation for a category.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
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
