package pkg

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 全局结构化日志，Init 之前也可用
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// InitLogger 重建全局 logger，非生产环境输出 debug 级别
func InitLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	if !strings.EqualFold(env, "production") {
		level = slog.LevelDebug
	}
	Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(Logger)
	return Logger
}

// Component 带组件名的子 logger
func Component(name string) *slog.Logger {
	return Logger.With(slog.String("component", name))
}
