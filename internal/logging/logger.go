// Package logging provides structured logging for the voice-task service.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, case-insensitive. Unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config selects where and how logs are written.
type Config struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"` // console | json
	Output     string `json:"output" env:"LOG_OUTPUT"` // stdout | file
	Path       string `json:"path" env:"LOG_PATH"`     // directory for file output
	Filename   string `json:"filename"`
	RotateSize int    `json:"rotate_size_mb"`
	RotateNum  int    `json:"rotate_num"`
	KeepDays   int    `json:"keep_days"`
}

// DefaultConfig logs INFO to stdout in console format.
func DefaultConfig() Config {
	return Config{
		Level:      "INFO",
		Format:     "console",
		Output:     "stdout",
		Path:       "./logs",
		Filename:   "voicetasks.log",
		RotateSize: 100,
		RotateNum:  10,
		KeepDays:   7,
	}
}

// Logger is a structured logger
type Logger struct {
	sugar *zap.SugaredLogger
}

var (
	level         = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	defaultLogger atomic.Pointer[Logger]
)

func init() {
	defaultLogger.Store(newLogger(zapcore.Lock(os.Stdout), "console", term.IsTerminal(int(os.Stdout.Fd()))))
}

func newLogger(ws zapcore.WriteSyncer, format string, color bool) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if color {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encCfg.EncodeCaller = nil
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, ws, level)
	return &Logger{sugar: zap.New(core).Sugar()}
}

// Configure replaces the default logger according to cfg.
func Configure(cfg Config) error {
	var ws zapcore.WriteSyncer
	color := false

	switch cfg.Output {
	case "", "stdout":
		ws = zapcore.Lock(os.Stdout)
		color = cfg.Format != "json" && term.IsTerminal(int(os.Stdout.Fd()))
	case "file":
		if cfg.Path == "" {
			return fmt.Errorf("log path is required when output is 'file'")
		}
		if err := os.MkdirAll(cfg.Path, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = DefaultConfig().Filename
		}
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.Path, name),
			MaxSize:    positive(cfg.RotateSize, 100),
			MaxBackups: positive(cfg.RotateNum, 10),
			MaxAge:     positive(cfg.KeepDays, 7),
			Compress:   true,
		})
	default:
		return fmt.Errorf("unknown log output %q", cfg.Output)
	}

	SetLevel(ParseLevel(cfg.Level))
	defaultLogger.Store(newLogger(ws, cfg.Format, color))
	return nil
}

func positive(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// SetLevel sets the global log level
func SetLevel(l Level) {
	level.SetLevel(l.zapLevel())
}

// GetLevel returns the global log level
func GetLevel() Level {
	switch level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return ERROR
	default:
		return INFO
	}
}

// SetOutput sends plain console output to w
func SetOutput(w io.Writer) {
	defaultLogger.Store(newLogger(zapcore.Lock(zapcore.AddSync(w)), "console", false))
}

// Sync flushes buffered log entries
func Sync() error {
	return defaultLogger.Load().sugar.Sync()
}

// Zap exposes the underlying logger for libraries that take one
func Zap() *zap.Logger {
	return defaultLogger.Load().sugar.Desugar()
}

// WithField returns a logger with a field added
func WithField(key string, value interface{}) *Logger {
	return defaultLogger.Load().WithField(key, value)
}

// WithFields returns a logger with multiple fields added
func WithFields(fields map[string]interface{}) *Logger {
	return defaultLogger.Load().WithFields(fields)
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(key, value)}
}

// WithFields adds multiple fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{sugar: l.sugar.With(args...)}
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	defaultLogger.Load().sugar.Debugf(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	defaultLogger.Load().sugar.Infof(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	defaultLogger.Load().sugar.Warnf(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	defaultLogger.Load().sugar.Errorf(msg, args...)
}

// Logger methods
func (l *Logger) Debug(msg string, args ...interface{}) { l.sugar.Debugf(msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.sugar.Infof(msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.sugar.Warnf(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.sugar.Errorf(msg, args...) }
