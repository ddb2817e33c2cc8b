package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log 全局日志实例
var Log *zap.Logger

func init() {
	// 在 Init 之前也能安全使用
	Log, _ = zap.NewDevelopment()
}

// Init 根据配置初始化全局日志
func Init(level, format string) error {
	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	lv, err := zapcore.ParseLevel(level)
	if err != nil {
		lv = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lv)

	l, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// Sync 刷新缓冲日志
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
