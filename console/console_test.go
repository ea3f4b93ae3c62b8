package console

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
)

func quiet() ReaderOption { return WithLogger(slog.New(slog.DiscardHandler)) }

func drain(src Source, size int) []string {
	var out []string
	buf := make([]byte, size)
	for {
		n, ok := src.ReadLine(buf)
		if !ok {
			return out
		}
		out = append(out, string(buf[:n]))
	}
}

func readAll(t *testing.T, in string, opts ...ReaderOption) (*LineReader, []string) {
	t.Helper()
	lr := NewLineReader(context.Background(), strings.NewReader(in), append([]ReaderOption{quiet()}, opts...)...)
	<-lr.Done()
	return lr, drain(lr, 64)
}

func TestLineReader_Lines(t *testing.T) {
	t.Parallel()

	lr, got := readAll(t, "r\ns\n\nc")
	want := []string{"r", "s", "", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") || len(got) != len(want) {
		t.Fatalf("lines=%q, want %q", got, want)
	}
	if !errors.Is(lr.Err(), io.EOF) || lr.Failed() {
		t.Fatalf("err=%v failed=%v, want io.EOF and not failed", lr.Err(), lr.Failed())
	}
	if read, dropped, truncated := lr.Stats(); read != 4 || dropped != 0 || truncated != 0 {
		t.Fatalf("stats=%d/%d/%d, want 4/0/0", read, dropped, truncated)
	}
}

func TestLineReader_TruncatesLongLines(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 40)
	lr, got := readAll(t, "r"+long+"\ns\n", WithMaxLine(16))
	if len(got) != 2 || got[0] != "r"+strings.Repeat("x", 15) || got[1] != "s" {
		t.Fatalf("lines=%q", got)
	}
	if _, _, truncated := lr.Stats(); truncated != 1 {
		t.Fatalf("truncated=%d, want 1", truncated)
	}
}

func TestLineReader_CRLF(t *testing.T) {
	t.Parallel()

	lr, got := readAll(t, "r\r\nc\r\n", WithMaxLine(1))
	if len(got) != 2 || got[0] != "r" || got[1] != "c" {
		t.Fatalf("lines=%q, want [r c]", got)
	}
	if _, _, truncated := lr.Stats(); truncated != 0 {
		t.Fatalf("truncated=%d, want 0 (CR is part of the terminator)", truncated)
	}
}

func TestLineReader_QueueOverflowDropsNewest(t *testing.T) {
	t.Parallel()

	lr, got := readAll(t, "1\n2\n3\n4\n5\n", WithQueueSize(2))
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("lines=%q, want [1 2]", got)
	}
	if _, dropped, _ := lr.Stats(); dropped != 3 {
		t.Fatalf("dropped=%d, want 3", dropped)
	}
}

func TestLineReader_NonBlockingAndShortBuffer(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	lr := NewLineReader(context.Background(), pr, quiet())
	buf := make([]byte, 1)
	if _, ok := lr.ReadLine(buf); ok {
		t.Fatalf("ReadLine ok=true with no input")
	}

	if _, err := io.WriteString(pw, "clear\n"); err != nil {
		t.Fatal(err)
	}
	_ = pw.Close()
	<-lr.Done()

	n, ok := lr.ReadLine(buf)
	if !ok || n != 1 || buf[0] != 'c' {
		t.Fatalf("ReadLine=(%d, %v) buf=%q, want first byte c", n, ok, buf[:n])
	}
}

func TestLineReader_ReadFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("device gone")
	lr := NewLineReader(context.Background(), iotest.ErrReader(boom), quiet())
	<-lr.Done()
	if !errors.Is(lr.Err(), boom) || !lr.Failed() {
		t.Fatalf("err=%v failed=%v, want device gone", lr.Err(), lr.Failed())
	}
}

func TestReadTruncated_SmallBufio(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("a", 100) + "\nb\n"
	br := bufio.NewReaderSize(strings.NewReader(in), 16)

	line, truncated, err := readTruncated(br, 20)
	if err != nil || !truncated || string(line) != strings.Repeat("a", 20) {
		t.Fatalf("line=%q truncated=%v err=%v", line, truncated, err)
	}
	line, truncated, err = readTruncated(br, 20)
	if err != nil || truncated || string(line) != "b" {
		t.Fatalf("line=%q truncated=%v err=%v, want b", line, truncated, err)
	}
	line, _, err = readTruncated(br, 20)
	if line != nil || !errors.Is(err, io.EOF) {
		t.Fatalf("line=%q err=%v, want nil/EOF", line, err)
	}
}

func TestWriterSink(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	sink := NewWriterSink(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = sink.WriteLine("0.100000")
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("lines=%d, want 400", len(lines))
	}
	for _, l := range lines {
		if l != "0.100000" {
			t.Fatalf("interleaved line %q", l)
		}
	}

	failing := NewWriterSink(writerFunc(func([]byte) (int, error) { return 0, io.ErrClosedPipe }))
	if err := failing.WriteLine("x"); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("err=%v, want ErrClosedPipe", err)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

type fakeRaw struct {
	reads   []fakeRead
	flushes int
	closed  bool
	written bytes.Buffer
}

type fakeRead struct {
	data string
	err  error
}

func (f *fakeRaw) Read(b []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, io.EOF
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return copy(b, r.data), r.err
}

func (f *fakeRaw) Write(b []byte) (int, error) { return f.written.Write(b) }
func (f *fakeRaw) Flush() error                { f.flushes++; return nil }
func (f *fakeRaw) Close() error                { f.closed = true; return nil }

func TestSerialPort_RetriesTimeouts(t *testing.T) {
	t.Parallel()

	raw := &fakeRaw{reads: []fakeRead{{err: io.EOF}, {err: io.EOF}, {data: "r\n"}}}
	p := newSerialPort(raw, SerialConfig{Device: "/dev/fake", ReadTimeout: 1})
	buf := make([]byte, 8)
	n, err := p.Read(buf)
	if err != nil || string(buf[:n]) != "r\n" {
		t.Fatalf("Read=(%q, %v), want r\\n", buf[:n], err)
	}

	_ = p.Flush()
	if raw.flushes != 1 {
		t.Fatalf("flushes=%d, want 1", raw.flushes)
	}
	if err := p.Close(); err != nil || !raw.closed {
		t.Fatalf("Close err=%v closed=%v", err, raw.closed)
	}
	if _, err := p.Read(buf); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("Read after Close=%v, want os.ErrClosed", err)
	}
}

func TestSerialPort_BlockingEOFIsTerminal(t *testing.T) {
	t.Parallel()

	raw := &fakeRaw{reads: []fakeRead{{err: io.EOF}, {data: "late"}}}
	p := newSerialPort(raw, SerialConfig{Device: "/dev/fake"})
	if _, err := p.Read(make([]byte, 8)); !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v, want io.EOF", err)
	}
}

func TestOpenSerial_RequiresDevice(t *testing.T) {
	t.Parallel()

	if _, err := OpenSerial(SerialConfig{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("err=%v, want ErrNoDevice", err)
	}
}
