package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// logger 是一个全局 logger 实例，Init 之前为 Nop
	logger = zap.NewNop()
	once   sync.Once
)

// ParseLevel 解析日志级别，未知级别返回 info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init 初始化日志系统。outputPath 为空时只输出到控制台
func Init(level string, outputPath string) error {
	var initErr error
	once.Do(func() {
		l, err := New(level, outputPath)
		if err != nil {
			initErr = err
			return
		}
		logger = l
	})
	return initErr
}

// New 构建一个独立的 logger：控制台输出 + 可选的 app.log / error.log 文件
func New(level string, outputPath string) (*zap.Logger, error) {
	logLevel := ParseLevel(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), logLevel),
	}

	if outputPath != "" {
		if err := os.MkdirAll(outputPath, 0o755); err != nil {
			return nil, fmt.Errorf("无法创建日志目录: %w", err)
		}

		appFile, err := os.OpenFile(filepath.Join(outputPath, "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("无法打开日志文件: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(appFile), logLevel))

		// 错误文件只记录错误及以上级别
		errorFile, err := os.OpenFile(filepath.Join(outputPath, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			appFile.Close()
			return nil, fmt.Errorf("无法打开错误日志文件: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(errorFile), zapcore.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// L 返回全局 logger
func L() *zap.Logger {
	return logger
}

// Debug 记录调试信息
func Debug(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

// Info 记录一般信息
func Info(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

// Warn 记录警告信息
func Warn(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}

// Error 记录错误信息
func Error(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
}

// Fatal 记录致命错误并退出程序
func Fatal(msg string, fields ...zap.Field) {
	logger.Fatal(msg, fields...)
}

// Sync 刷新日志缓冲
func Sync() {
	_ = logger.Sync()
}
