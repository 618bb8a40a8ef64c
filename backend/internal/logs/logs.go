package logs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirrors the log section of the server config.
type Options struct {
	Level  string // debug / info / warn / error
	Format string // json / text
	// 为空时写 stdout，否则按大小滚动写文件
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu     sync.Mutex
	writer *lumberjack.Logger
)

// Init builds the process logger and installs it as the slog default.
func Init(opt Options) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = os.Stdout
	if opt.Path != "" {
		writer = &lumberjack.Logger{
			Filename:   opt.Path,
			MaxSize:    orDefault(opt.MaxSizeMB, 50),
			MaxBackups: orDefault(opt.MaxBackups, 5),
			MaxAge:     orDefault(opt.MaxAgeDays, 14),
			Compress:   true,
		}
		out = writer
	}
	logger := New(out, opt)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger on w without touching the default.
func New(w io.Writer, opt Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opt.Level)}
	if strings.EqualFold(opt.Format, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Close flushes the rotating file, if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if writer == nil {
		return nil
	}
	err := writer.Close()
	writer = nil
	return err
}

// Discard is for tests and for components built without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
