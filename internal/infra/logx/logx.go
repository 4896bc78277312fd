package logx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config 是构造 slog logger 的最小配置。
type Config struct {
	// Level：debug / info / warn / error（默认 warn：CLI 平时只输出结果）。
	Level string
	// Format：text / json。
	Format string
}

// ParseLevel 把文本级别转换为 slog.Level，未知值回退为 warn。
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "dbg":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// New 构造写到 w 的 logger；w 为 nil 时写 stderr（stdout 留给 JSON 输出）。
func New(w io.Writer, cfg Config) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// Discard 返回丢弃所有输出的 logger。
func Discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

// OrDiscard 在 l 为 nil 时返回 Discard()。
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
