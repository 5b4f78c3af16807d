// log carries the driver's context logger: clog-backed helpers whose records
// are stamped with the caller's program counter, so source attribution points
// at the driver code and not at this wrapper.
package log

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/chainguard-dev/clog"
)

// With returns a context whose logger carries 'args' on every later record.
func With(ctx context.Context, args ...any) context.Context {
	return clog.WithLogger(ctx, clog.FromContext(ctx).With(args...))
}

func Debug(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelDebug, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelInfo, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelWarn, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelError, msg, args...)
}

// emit hands a record to the context logger's handler directly, skipping the
// logger's own source capture which would name this file. The skip count is
// [runtime.Callers, emit, exported helper].
func emit(ctx context.Context, level slog.Level, msg string, args ...any) {
	logger := clog.FromContext(ctx)
	if !logger.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	record.Add(args...)
	_ = logger.Handler().Handle(ctx, record)
}
