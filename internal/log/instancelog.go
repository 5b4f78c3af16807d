package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/gosimple/slug"
	slogmulti "github.com/samber/slog-multi"

	"github.com/harnesslab/openstack-driver/internal/drivers"
)

// SetupInstanceLogging tees the context logger into a per-instance log file
// under 'logsDirectory'. Only records carrying the drivers.LogAttributeKey
// attribute (SSH bootstrap output and the like) land in the file, the
// structured stream is untouched.
//
// The returned closer releases the file. When 'logsDirectory' is empty this
// is a no-op.
func SetupInstanceLogging(ctx context.Context, logsDirectory, serverName string) (context.Context, func()) {
	if logsDirectory == "" {
		return ctx, func() {}
	}

	if err := os.MkdirAll(logsDirectory, 0o755); err != nil {
		clog.WarnContext(ctx, "failed to create logs directory", "path", logsDirectory, "error", err.Error())
		return ctx, func() {}
	}

	logPath := filepath.Join(logsDirectory, fmt.Sprintf("%s.log", slug.Make(serverName)))
	logFile, err := os.Create(logPath)
	if err != nil {
		clog.WarnContext(ctx, "failed to create instance log file", "path", logPath, "error", err.Error())
		return ctx, func() {}
	}

	fileHandler := &instanceHandler{w: logFile}

	// Fan out to both the existing handler and the file handler.
	handler := clog.FromContext(ctx).Handler()
	handler = slogmulti.Fanout(handler, fileHandler)

	clog.InfoContext(ctx, "logging instance output to file", "path", logPath)
	ctx = clog.WithLogger(ctx, clog.New(handler))

	return ctx, func() {
		if err := logFile.Close(); err != nil {
			clog.WarnContext(ctx, "failed to close instance log file", "path", logPath, "error", err.Error())
		}
	}
}

// instanceHandler writes only the driver output attribute of each record to
// its file, yielding a plain transcript of what the instance produced.
type instanceHandler struct {
	w io.WriteCloser
}

func (h *instanceHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *instanceHandler) Handle(_ context.Context, record slog.Record) error {
	var line string
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == drivers.LogAttributeKey {
			line = a.Value.String()
			return false
		}
		return true
	})
	if line == "" {
		return nil
	}
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *instanceHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *instanceHandler) WithGroup(string) slog.Handler { return h }
