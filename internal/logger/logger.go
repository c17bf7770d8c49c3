// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// Поддерживается логирование времени выполнения функций.
package logger

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	prefix string
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	once   sync.Once
)

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func build(format string) *zap.Logger {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = level
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: build zap: %v\n", err)
		return zap.NewNop()
	}
	return l
}

func initDefault() {
	level.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	base = build(os.Getenv("LOG_FORMAT"))
	sugar = base.Sugar()
}

func get() *zap.SugaredLogger {
	once.Do(initDefault)
	mu.RLock()
	defer mu.RUnlock()
	if prefix != "" {
		return sugar.Named(prefix)
	}
	return sugar
}

// Configure переинициализирует логгер по значениям из конфига (log_level, log_format).
func Configure(lvl, format string) {
	once.Do(initDefault)
	level.SetLevel(parseLevel(lvl))
	l := build(format)
	mu.Lock()
	old := base
	base = l
	sugar = l.Sugar()
	mu.Unlock()
	_ = old.Sync()
}

// SetPrefix задаёт префикс для всех последующих логов (например "api").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// Sync сбрасывает буферы; вызывать перед выходом из процесса.
func Sync() {
	once.Do(initDefault)
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Info пишет сообщение уровня info.
func Info(v ...any) { get().Info(v...) }

// Infof форматирует и пишет сообщение уровня info.
func Infof(format string, v ...any) { get().Infof(format, v...) }

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) { get().Debugf(format, v...) }

// Warnf форматирует предупреждение.
func Warnf(format string, v ...any) { get().Warnf(format, v...) }

// Error пишет ошибку.
func Error(v ...any) { get().Error(v...) }

// Errorf форматирует ошибку.
func Errorf(format string, v ...any) { get().Errorf(format, v...) }

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При уровне info логирует только вызовы дольше 100ms; при debug логирует все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if level.Enabled(zapcore.DebugLevel) || elapsed >= 100*time.Millisecond {
		get().Infow("duration", "fn", fn, "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
