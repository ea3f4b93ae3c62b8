package safego

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

type config struct {
	name string
	tags []Tag

	finally []func()

	onError             ErrorHandler
	onPanic             PanicHandler
	reportContextCancel bool
	silentPanics        bool

	logger *slog.Logger
}

// Option configures a single Go/Run call.
type Option func(*config)

// WithName names the supervised function in reports.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithTag appends one tag to reports.
func WithTag(key, value string) Option {
	return func(c *config) { c.tags = append(c.tags, Tag{Key: key, Value: value}) }
}

// WithTags appends tags to reports.
func WithTags(tags ...Tag) Option {
	return func(c *config) { c.tags = append(c.tags, tags...) }
}

// WithFinally registers fn to run when the supervised function finishes, whatever the outcome.
// Finalizers run in LIFO order; a panicking finalizer is contained and reported.
func WithFinally(fn func()) Option {
	return func(c *config) {
		if fn != nil {
			c.finally = append(c.finally, fn)
		}
	}
}

// WithErrorHandler replaces the default slog error report.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) { c.onError = h }
}

// WithPanicHandler replaces the default slog panic report.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) { c.onPanic = h }
}

// WithReportContextCancel controls whether context cancellation errors are reported.
func WithReportContextCancel(report bool) Option {
	return func(c *config) { c.reportContextCancel = report }
}

// WithSilentPanics recovers panics without reporting them.
func WithSilentPanics() Option {
	return func(c *config) { c.silentPanics = true }
}

// WithLogger sets the logger used for default reports. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Go runs fn in a new goroutine under supervision.
func Go(ctx context.Context, fn func(context.Context) error, opts ...Option) {
	go Run(ctx, fn, opts...)
}

// Run runs fn synchronously under supervision.
//
// If ctx is nil, it is treated as context.Background().
func Run(ctx context.Context, fn func(context.Context) error, opts ...Option) {
	if ctx == nil {
		ctx = context.Background()
	}
	var c config
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	defer c.runFinalizers(ctx)
	defer func() {
		p := recover()
		if p == nil || c.silentPanics {
			return
		}
		c.reportPanic(ctx, PanicInfo{
			Name:  c.name,
			Tags:  CloneTags(c.tags),
			Value: p,
			Stack: debug.Stack(),
		})
	}()

	err := fn(ctx)
	if err == nil {
		return
	}
	if !c.reportContextCancel && IsContextCancel(err) {
		return
	}
	c.reportError(ctx, ErrorInfo{Name: c.name, Tags: CloneTags(c.tags), Err: err})
}

func (c *config) runFinalizers(ctx context.Context) {
	for i := len(c.finally) - 1; i >= 0; i-- {
		fn := c.finally[i]
		func() {
			defer func() {
				if p := recover(); p != nil {
					c.reportPanic(ctx, PanicInfo{
						Name:  c.name,
						Tags:  CloneTags(c.tags),
						Value: fmt.Sprintf("safego: finalizer panicked: %v", p),
						Stack: debug.Stack(),
					})
				}
			}()
			fn()
		}()
	}
}

func (c *config) reportError(ctx context.Context, info ErrorInfo) {
	if c.onError == nil {
		LogError(ctx, c.logger, "safego", info)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			LogPanic(ctx, c.logger, "safego", PanicInfo{
				Name:  info.Name,
				Tags:  info.Tags,
				Value: fmt.Sprintf("safego: error handler panicked: %v", p),
				Stack: debug.Stack(),
			})
		}
	}()
	c.onError(ctx, info)
}

func (c *config) reportPanic(ctx context.Context, info PanicInfo) {
	if c.onPanic == nil {
		LogPanic(ctx, c.logger, "safego", info)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			LogPanic(ctx, c.logger, "safego", PanicInfo{
				Name:  info.Name,
				Tags:  info.Tags,
				Value: fmt.Sprintf("safego: panic handler panicked: %v", p),
				Stack: debug.Stack(),
			})
		}
	}()
	c.onPanic(ctx, info)
}

// IsContextCancel reports whether err is (or wraps) context.Canceled or DeadlineExceeded.
func IsContextCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// CloneTags returns a copy of tags (nil for empty input).
func CloneTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}
