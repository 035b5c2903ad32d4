package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogger 保存配置好的 zap 日志记录器实例。
// 它由 SetupLogger 函数配置；在此之前是 Nop logger，调用安全但不输出。
var DefaultLogger = zap.NewNop()

// SetupLogger 初始化 zap 日志记录器。
// level 对应配置中的 LOG_LEVEL（"debug", "info", "warn", "error"）。
// debug 级别使用开发环境预设（彩色、易读、带调用者信息），
// 其他级别使用生产环境预设（JSON 格式，性能优先）。
func SetupLogger(level string) {
	var zapConfig zap.Config

	parsedLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		parsedLevel = zapcore.InfoLevel // 无法解析时退回 info
	}

	if parsedLevel == zapcore.DebugLevel {
		// 开发环境预设配置，易于阅读
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别显示
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // 标准时间格式
		zapConfig.DisableStacktrace = true                                     // 开发模式下通常不需要完整堆栈跟踪
		zapConfig.EncoderConfig.CallerKey = "caller"
		zapConfig.EncoderConfig.NameKey = "logger"
		zapConfig.EncoderConfig.MessageKey = "msg"
	} else {
		// 生产环境预设配置，JSON 格式
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.TimeKey = "ts"
		zapConfig.EncoderConfig.EncodeTime = zapcore.EpochMillisTimeEncoder // 毫秒时间戳
		zapConfig.EncoderConfig.CallerKey = ""                              // 生产环境不记录调用者
	}

	zapConfig.Level = zap.NewAtomicLevelAt(parsedLevel)

	// 输出到标准输出/标准错误
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	var buildErr error
	DefaultLogger, buildErr = zapConfig.Build()
	if buildErr != nil {
		// logger 构建失败是严重问题，直接 panic
		panic(fmt.Sprintf("无法初始化 zap 日志记录器: %v", buildErr))
	}

	DefaultLogger.Info("Zap 日志记录器已初始化", zap.String("logLevel", parsedLevel.String()))
}

// GetLogger 返回配置好的 zap 日志记录器实例。
// 在使用此函数之前，应先调用 SetupLogger。
func GetLogger() *zap.Logger {
	return DefaultLogger
}

// SyncLogger 刷新所有缓冲的日志条目。
// 建议在应用程序退出前调用此函数（例如在 main 函数的 defer 中）。
func SyncLogger() {
	if DefaultLogger != nil {
		_ = DefaultLogger.Sync() // 忽略 sync 的错误
	}
}
