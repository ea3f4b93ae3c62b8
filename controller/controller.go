// Package controller implements the three periodic stopwatch tasks and registers them with a
// task.Manager.
//
//   - stopwatch.accumulate folds elapsed ticks into the accumulated total while running.
//   - stopwatch.input polls the console once and applies at most one command.
//   - stopwatch.display prints the accumulated time in seconds.
//
// Every task body touches the shared stopwatch.State only through its transactional methods
// and never blocks, so the tasks can run on one dispatcher goroutine or concurrently.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/evan-idocoding/zwatch/clock"
	"github.com/evan-idocoding/zwatch/console"
	"github.com/evan-idocoding/zwatch/stopwatch"
)

// DefaultPrecision is the number of decimals printed by the display task.
const DefaultPrecision = 6

// Controller binds the stopwatch state to a clock, an input source and an output sink.
type Controller struct {
	state  *stopwatch.State
	clock  clock.Clock
	source console.Source
	sink   console.Sink

	logger    *slog.Logger
	precision func() int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPrecision sets a provider for the number of printed decimals. It is read on every
// display run, so it can be backed by a tuning variable. Results are clamped to [0, 9].
func WithPrecision(fn func() int) Option {
	return func(c *Controller) {
		if fn != nil {
			c.precision = fn
		}
	}
}

// New creates a Controller. state, clk, src and sink must be non-nil.
func New(state *stopwatch.State, clk clock.Clock, src console.Source, sink console.Sink, opts ...Option) *Controller {
	if state == nil || clk == nil || src == nil || sink == nil {
		panic("controller: New requires state, clock, source and sink")
	}
	c := &Controller{
		state:     state,
		clock:     clk,
		source:    src,
		sink:      sink,
		logger:    slog.Default(),
		precision: func() int { return DefaultPrecision },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State returns the shared stopwatch state.
func (c *Controller) State() *stopwatch.State { return c.state }

// Accumulate is the time-accumulation task body.
func (c *Controller) Accumulate(ctx context.Context) error {
	now := c.clock.Now()
	if delta := c.state.Accumulate(now); delta > 0 && c.logger.Enabled(ctx, slog.LevelDebug) {
		c.logger.DebugContext(ctx, "stopwatch: accumulated", "tick", uint32(now), "delta", uint64(delta))
	}
	return nil
}

// HandleInput is the input task body. It consumes at most one pending line.
func (c *Controller) HandleInput(ctx context.Context) error {
	var buf [console.DefaultMaxLine]byte
	n, ok := c.source.ReadLine(buf[:])
	if !ok {
		return nil
	}
	cmd := stopwatch.ParseCommand(buf[:n])
	if cmd == stopwatch.None {
		c.logger.DebugContext(ctx, "stopwatch: input ignored", "line", string(buf[:n]))
		return nil
	}
	now := c.clock.Now()
	snap, changed := c.state.Apply(cmd, now)
	if changed {
		c.logger.InfoContext(ctx, "stopwatch: "+cmd.String(),
			"mode", snap.Mode.String(),
			"accumulated", uint64(snap.Accumulated),
			"tick", uint32(now),
		)
	} else {
		c.logger.DebugContext(ctx, "stopwatch: "+cmd.String()+" had no effect", "mode", snap.Mode.String())
	}
	return nil
}

// Display is the display task body.
func (c *Controller) Display(context.Context) error {
	if err := c.sink.WriteLine(c.Format(c.state.Snapshot())); err != nil {
		return fmt.Errorf("controller: display: %w", err)
	}
	return nil
}

// Format renders the accumulated time of snap in seconds.
func (c *Controller) Format(snap stopwatch.Snapshot) string {
	p := c.precision()
	if p < 0 {
		p = 0
	} else if p > 9 {
		p = 9
	}
	return strconv.FormatFloat(clock.Seconds(c.clock, snap.Accumulated), 'f', p, 64)
}
