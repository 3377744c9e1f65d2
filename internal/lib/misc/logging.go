package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"runtime"
	"time"
)

func Errorf(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelError, format, args...)
}

func Warnf(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelWarn, format, args...)
}

func Infof(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelInfo, format, args...)
}

func Debugf(logger *slog.Logger, format string, args ...any) {
	helperf(logger, slog.LevelDebug, format, args...)
}

func helperf(logger *slog.Logger, level slog.Level, format string, args ...any) {
	if !logger.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip [Callers, helperf, [info/warn/debug]f]
	r := slog.NewRecord(time.Now(), level, fmt.Sprintf(format, args...), pcs[0])
	_ = logger.Handler().Handle(context.Background(), r)
}

// NewLogger returns the process logger. Interactive (tty) use gets the compact console handler, anything
// else (daemon under systemd, k8s, ...) gets json with the key names google cloud logging expects.
func NewLogger(out io.Writer, interactive bool, level slog.Leveler) *slog.Logger {
	if interactive {
		return slog.New(NewConsoleHandler(out, ConsoleHandlerOptions{SlogOpts: slog.HandlerOptions{Level: level}}))
	}
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				a.Key = "message"
			} else if a.Key == slog.LevelKey && len(groups) == 0 {
				a.Key = "severity"
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

type ConsoleHandlerOptions struct {
	SlogOpts slog.HandlerOptions
}

// ConsoleHandler prints just the message followed by any attributes as a json object.
type ConsoleHandler struct {
	slog.Handler
	l     *log.Logger
	attrs []slog.Attr
}

func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	var extra string
	if numAttrs := r.NumAttrs() + len(h.attrs); numAttrs > 0 {
		fields := make(map[string]any, numAttrs)
		for _, a := range h.attrs {
			fields[a.Key] = a.Value.String()
		}
		r.Attrs(func(a slog.Attr) bool {
			fields[a.Key] = a.Value.String()
			return true
		})
		b, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		extra = string(b)
	}
	if r.Level >= slog.LevelWarn {
		h.l.Println(r.Level.String(), r.Message, extra)
		return nil
	}
	h.l.Println(r.Message, extra)
	return nil
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ConsoleHandler{
		Handler: h.Handler.WithAttrs(attrs),
		l:       h.l,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func NewConsoleHandler(out io.Writer, opts ConsoleHandlerOptions) *ConsoleHandler {
	return &ConsoleHandler{
		Handler: slog.NewJSONHandler(out, &opts.SlogOpts),
		l:       log.New(out, "", 0),
	}
}
