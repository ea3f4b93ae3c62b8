package console

import (
	"io"
	"sync"
)

// Sink receives display lines.
type Sink interface {
	// WriteLine writes s followed by a newline.
	WriteLine(s string) error
}

// WriterSink is a Sink over an io.Writer. Each line is written with a single Write call and
// writes are serialized.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewWriterSink returns a Sink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WriteLine implements Sink.
func (s *WriterSink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(append(s.buf[:0], line...), '\n')
	_, err := s.w.Write(s.buf)
	return err
}
