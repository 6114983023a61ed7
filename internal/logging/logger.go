package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/npnl/enigma-request/internal/config"
)

// Init builds a logger that writes each level to its own rotating JSON file
// under cfg.Directory and, when enabled, everything to a colored console.
// The returned level gates all cores and can be changed at runtime.
func Init(cfg config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "time",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, level, fmt.Errorf("could not create log directory: %w", err)
		}
		for _, l := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
			cores = append(cores, newFileCore(cfg, l, level, encoderConfig))
		}
	}
	if cfg.Console {
		cores = append(cores, newConsoleCore(level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), level, nil
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), level, nil
}

// newFileCore writes exactly one level to a file named like
// '2025-07-30-info.log'. Levels at or above ErrorLevel share the error file.
func newFileCore(cfg config.LoggingConfig, fileLevel zapcore.Level, min zap.AtomicLevel, enc zapcore.EncoderConfig) zapcore.Core {
	fileName := filepath.Join(cfg.Directory, fmt.Sprintf("%s-%s.log", time.Now().Format("2006-01-02"), fileLevel.String()))
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})
	enabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		if !min.Enabled(l) {
			return false
		}
		if fileLevel == zapcore.ErrorLevel {
			return l >= zapcore.ErrorLevel
		}
		return l == fileLevel
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), writer, enabler)
}

func newConsoleCore(min zap.AtomicLevel) zapcore.Core {
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(os.Stdout),
		min,
	)
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}
