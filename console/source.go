// Package console connects the stopwatch to its character streams: a line-oriented input
// Source polled by the input task, and a Sink the display task prints to.
//
// Blocking reads never happen on a task. LineReader owns the blocking read in its own
// goroutine and hands complete lines to the task through a bounded queue, so the input task
// can poll once per period and never stalls the scheduler or holds the stopwatch lock while
// waiting for a keystroke.
package console

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/evan-idocoding/zwatch/rt/safego"
)

const (
	// DefaultMaxLine is the number of bytes kept from each input line.
	DefaultMaxLine = 16
	// DefaultQueueSize is the number of complete lines buffered between reader and task.
	DefaultQueueSize = 16

	readBufferSize = 4096
)

// Source is a non-blocking line source.
type Source interface {
	// ReadLine copies the next pending line (without its terminator) into buf and returns its
	// length. ok is false when no line is pending; it never blocks. A line longer than buf
	// is truncated.
	ReadLine(buf []byte) (n int, ok bool)
}

type readerConfig struct {
	maxLine   int
	queueSize int
	logger    *slog.Logger
}

// ReaderOption configures a LineReader.
type ReaderOption func(*readerConfig)

// WithMaxLine sets how many bytes of each line are kept. The rest of the line is discarded.
// Values <= 0 fall back to DefaultMaxLine.
func WithMaxLine(n int) ReaderOption {
	return func(c *readerConfig) { c.maxLine = n }
}

// WithQueueSize sets how many lines may wait for the consumer. Values <= 0 fall back to
// DefaultQueueSize.
func WithQueueSize(n int) ReaderOption {
	return func(c *readerConfig) { c.queueSize = n }
}

// WithLogger sets the logger for read failures and dropped lines. Default is slog.Default().
func WithLogger(l *slog.Logger) ReaderOption {
	return func(c *readerConfig) { c.logger = l }
}

// LineReader reads lines from an io.Reader in a background goroutine and serves them through
// the Source interface.
type LineReader struct {
	r       io.Reader
	maxLine int
	logger  *slog.Logger

	lines chan []byte
	done  chan struct{}

	dropped   atomic.Uint64
	truncated atomic.Uint64
	read      atomic.Uint64

	mu  sync.Mutex
	err error
}

// NewLineReader starts reading r. The goroutine ends at the first read error (io.EOF when
// the stream is closed); Done is closed then and Err reports the error.
//
// ctx only bounds the hand-off of lines; a read blocked in r is not interrupted by ctx.
// Close the underlying stream to stop the reader.
func NewLineReader(ctx context.Context, r io.Reader, opts ...ReaderOption) *LineReader {
	cfg := readerConfig{maxLine: DefaultMaxLine, queueSize: DefaultQueueSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.maxLine <= 0 {
		cfg.maxLine = DefaultMaxLine
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = DefaultQueueSize
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	lr := &LineReader{
		r:       r,
		maxLine: cfg.maxLine,
		logger:  cfg.logger,
		lines:   make(chan []byte, cfg.queueSize),
		done:    make(chan struct{}),
	}
	safego.Go(ctx, lr.run,
		safego.WithName("console.reader"),
		safego.WithLogger(cfg.logger),
		safego.WithFinally(func() { close(lr.done) }),
	)
	return lr
}

// ReadLine implements Source.
func (lr *LineReader) ReadLine(buf []byte) (int, bool) {
	select {
	case line := <-lr.lines:
		return copy(buf, line), true
	default:
		return 0, false
	}
}

// Done is closed when the reader goroutine has exited.
func (lr *LineReader) Done() <-chan struct{} { return lr.done }

// Err returns the error that ended the reader, or nil while it is running.
func (lr *LineReader) Err() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.err
}

// Failed reports whether the reader ended with something other than end of input.
func (lr *LineReader) Failed() bool {
	err := lr.Err()
	return err != nil && !errors.Is(err, io.EOF)
}

// Pending returns the number of lines waiting for the consumer.
func (lr *LineReader) Pending() int { return len(lr.lines) }

// Stats returns the number of lines read, dropped on a full queue, and truncated.
func (lr *LineReader) Stats() (read, dropped, truncated uint64) {
	return lr.read.Load(), lr.dropped.Load(), lr.truncated.Load()
}

func (lr *LineReader) run(ctx context.Context) error {
	br := bufio.NewReaderSize(lr.r, readBufferSize)
	for {
		line, truncated, err := readTruncated(br, lr.maxLine)
		if line != nil {
			lr.read.Add(1)
			if truncated {
				lr.truncated.Add(1)
			}
			lr.push(ctx, line)
		}
		if err != nil {
			lr.mu.Lock()
			lr.err = err
			lr.mu.Unlock()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (lr *LineReader) push(ctx context.Context, line []byte) {
	select {
	case lr.lines <- line:
	case <-ctx.Done():
	default:
		n := lr.dropped.Add(1)
		lr.logger.Warn("console: input queue full, line dropped", "dropped", n)
	}
}

// readTruncated reads one line and keeps at most max bytes of it, without the "\n" or "\r\n"
// terminator. line is nil only when nothing was read before err.
func readTruncated(br *bufio.Reader, max int) (line []byte, truncated bool, err error) {
	out := make([]byte, 0, max)
	seen := false
	for {
		frag, err := br.ReadSlice('\n')
		if len(frag) > 0 {
			seen = true
		}
		ended := len(frag) > 0 && frag[len(frag)-1] == '\n'
		if ended {
			frag = frag[:len(frag)-1]
		}
		if room := max - len(out); len(frag) > room {
			// A '\r' that is part of a "\r\n" terminator does not count as lost content.
			if !(ended && len(frag) == room+1 && frag[room] == '\r') {
				truncated = true
			}
			frag = frag[:room]
		}
		out = append(out, frag...)

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case ended:
			return bytes.TrimSuffix(out, []byte{'\r'}), truncated, nil
		case err != nil:
			if !seen {
				return nil, false, err
			}
			return out, truncated, err
		}
	}
}
