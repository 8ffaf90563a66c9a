package applog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const levelTrace = slog.Level(-8)

// DefaultLogger wraps slog.Logger and implements AppLogger.
type DefaultLogger struct {
	logger *slog.Logger
	closer io.Closer
}

// NewAppDefaultLogger builds a text logger on stdout using the level in
// "log.level". When "log.file.path" is set, records are also written to a
// size-rotated file.
func NewAppDefaultLogger() *DefaultLogger {
	level := parseLogLevel(viper.GetString("log.level"))

	var out io.Writer = os.Stdout
	var closer io.Closer
	if path := strings.TrimSpace(viper.GetString("log.file.path")); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    viper.GetInt("log.file.max_size_mb"),
			MaxBackups: viper.GetInt("log.file.max_backups"),
			MaxAge:     viper.GetInt("log.file.max_age_days"),
			Compress:   viper.GetBool("log.file.compress"),
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	return NewLogger(out, level, closer)
}

// NewLogger builds a DefaultLogger writing to w. closer may be nil.
func NewLogger(w io.Writer, level slog.Level, closer io.Closer) *DefaultLogger {
	return &DefaultLogger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel})),
		closer: closer,
	}
}

// Close releases the rotating file, if any.
func (l *DefaultLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *DefaultLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args)
}

func (l *DefaultLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args)
}

func (l *DefaultLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args)
}

func (l *DefaultLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args)
}

func (l *DefaultLogger) Trace(msg string, args ...any) {
	l.log(levelTrace, msg, args)
}

func (l *DefaultLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args)
	_ = l.Close()
	os.Exit(1)
}

func (l *DefaultLogger) log(level slog.Level, msg string, args []any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	// skip log and the exported level method
	if src := callerSource(2); src != "" {
		args = append([]any{"source", src}, args...)
	}
	l.logger.Log(context.Background(), level, msg, args...)
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

func parseLogLevel(s string) slog.Level {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "trace":
		return levelTrace
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
