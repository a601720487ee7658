// Package logging 配置 nvc 使用的全局 zerolog 日志。
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/liangyou/nvc/pkg/models"
)

// SetupLogger 按日志级别初始化全局日志，输出到 stderr。
func SetupLogger(level models.LogLevel) {
	SetupLoggerTo(os.Stderr, level)
}

// SetupLoggerTo 与 SetupLogger 相同，但允许指定输出目标。
func SetupLoggerTo(out io.Writer, level models.LogLevel) {
	zerolog.SetGlobalLevel(zerologLevel(level))

	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(out),
	}
	log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()

	if level == models.LogDebug {
		log.Logger = log.Logger.With().Caller().Logger()
	}
	log.Debug().Str("level", string(level)).Msg("Logger initialized")
}

// GetLogger 返回带组件名的子日志。
func GetLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// LogOperationStart 记录操作开始，返回用于记录结束与耗时的函数。
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().
		Str("operation", operation).
		Msg("Operation started")

	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}

func zerologLevel(level models.LogLevel) zerolog.Level {
	switch level {
	case models.LogQuiet:
		return zerolog.Disabled
	case models.LogError:
		return zerolog.ErrorLevel
	case models.LogDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
