package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// DefaultBaud is used when SerialConfig.Baud is zero.
const DefaultBaud = 115200

// SerialConfig describes a serial console.
type SerialConfig struct {
	// Device path (e.g. "/dev/ttyUSB0", "COM3").
	Device string
	// Baud rate. Zero means DefaultBaud.
	Baud int
	// ReadTimeout bounds each low-level read. Zero means blocking reads. With a timeout, Read
	// still blocks until data arrives or the port is closed; the timeout only lets the reader
	// notice Close on drivers where closing does not interrupt a pending read.
	ReadTimeout time.Duration
}

// Port is an open serial port.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not read, and data written but not transmitted.
	Flush() error
}

// ErrNoDevice is returned by OpenSerial when SerialConfig.Device is empty.
var ErrNoDevice = errors.New("console: serial device is required")

// OpenSerial opens the serial device described by cfg.
func OpenSerial(cfg SerialConfig) (Port, error) {
	if cfg.Device == "" {
		return nil, ErrNoDevice
	}
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("console: open serial %s: %w", cfg.Device, err)
	}
	sp := newSerialPort(p, cfg)
	// Drop keystrokes buffered before the stopwatch was listening.
	if err := sp.Flush(); err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("console: flush serial %s: %w", cfg.Device, err)
	}
	return sp, nil
}

type rawPort interface {
	io.ReadWriteCloser
	Flush() error
}

type serialPort struct {
	raw    rawPort
	device string
	polled bool // read timeout configured: an empty read is a timeout, not end of stream
	closed atomic.Bool
}

func newSerialPort(raw rawPort, cfg SerialConfig) *serialPort {
	return &serialPort{raw: raw, device: cfg.Device, polled: cfg.ReadTimeout > 0}
}

func (p *serialPort) Read(b []byte) (int, error) {
	for {
		if p.closed.Load() {
			return 0, fmt.Errorf("console: serial %s: %w", p.device, os.ErrClosed)
		}
		n, err := p.raw.Read(b)
		if n > 0 || err == nil {
			return n, nil
		}
		if p.polled && errors.Is(err, io.EOF) {
			continue
		}
		return 0, err
	}
}

func (p *serialPort) Write(b []byte) (int, error) {
	return p.raw.Write(b)
}

func (p *serialPort) Flush() error {
	return p.raw.Flush()
}

func (p *serialPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.raw.Close()
}
