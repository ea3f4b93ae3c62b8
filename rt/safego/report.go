package safego

import (
	"context"
	"log/slog"
)

// LogError writes info as one slog error record. component prefixes the message.
//
// It is exported so that packages built on safego (rt/task) report in the same shape.
func LogError(ctx context.Context, l *slog.Logger, component string, info ErrorInfo) {
	if l == nil {
		l = slog.Default()
	}
	attrs := append(baseAttrs(info.Name, info.Tags), slog.Any("err", info.Err))
	l.LogAttrs(ctx, slog.LevelError, component+": error", attrs...)
}

// LogPanic writes info as one slog error record including the stack.
func LogPanic(ctx context.Context, l *slog.Logger, component string, info PanicInfo) {
	if l == nil {
		l = slog.Default()
	}
	attrs := append(baseAttrs(info.Name, info.Tags),
		slog.Any("value", info.Value),
		slog.String("stack", string(info.Stack)),
	)
	l.LogAttrs(ctx, slog.LevelError, component+": panic", attrs...)
}

func baseAttrs(name string, tags []Tag) []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	if name != "" {
		attrs = append(attrs, slog.String("name", name))
	}
	if len(tags) > 0 {
		group := make([]any, 0, len(tags))
		for _, t := range tags {
			group = append(group, slog.String(t.Key, t.Value))
		}
		attrs = append(attrs, slog.Group("tags", group...))
	}
	return attrs
}
