// Package config loads the zwatch YAML configuration.
//
// Load starts from Default and overlays the file, so a file only needs the keys it changes.
// Durations use Go syntax ("100ms", "5s"). Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evan-idocoding/zwatch/console"
	"github.com/evan-idocoding/zwatch/controller"
	"github.com/evan-idocoding/zwatch/rt/task"
	"github.com/evan-idocoding/zwatch/rt/tuning/tuningslog"
)

// ErrInvalid is returned (wrapped) by Validate and Load for semantically invalid values.
var ErrInvalid = errors.New("config: invalid")

// Input and output endpoints.
const (
	EndpointStdin  = "stdin"
	EndpointStdout = "stdout"
	EndpointSerial = "serial"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// MaxLineLimit bounds input.max_line.
const MaxLineLimit = 4096

// Task periods must lie in [MinTaskPeriod, MaxTaskPeriod]. Runtime tuning uses the same bounds.
const (
	MinTaskPeriod = time.Millisecond
	MaxTaskPeriod = time.Hour
)

type Config struct {
	Clock           ClockConfig   `yaml:"clock"`
	Tasks           TasksConfig   `yaml:"tasks"`
	Input           InputConfig   `yaml:"input"`
	Output          OutputConfig  `yaml:"output"`
	Serial          SerialConfig  `yaml:"serial"`
	Ops             OpsConfig     `yaml:"ops"`
	Log             LogConfig     `yaml:"log"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ClockConfig struct {
	Resolution time.Duration `yaml:"resolution"`
}

type TasksConfig struct {
	Dispatch   string     `yaml:"dispatch"`
	Accumulate TaskConfig `yaml:"accumulate"`
	Input      TaskConfig `yaml:"input"`
	Display    TaskConfig `yaml:"display"`
}

type TaskConfig struct {
	Period   time.Duration `yaml:"period"`
	Priority int           `yaml:"priority"`
}

type InputConfig struct {
	Source    string `yaml:"source"`
	MaxLine   int    `yaml:"max_line"`
	QueueSize int    `yaml:"queue_size"`
	ExitOnEOF bool   `yaml:"exit_on_eof"`
}

type OutputConfig struct {
	Sink      string `yaml:"sink"`
	Precision int    `yaml:"precision"`
}

type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type OpsConfig struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration: three 100ms tasks reading stdin and printing
// to stdout with six decimals.
func Default() *Config {
	p := controller.DefaultPlan()
	return &Config{
		Clock: ClockConfig{Resolution: time.Millisecond},
		Tasks: TasksConfig{
			Dispatch:   "serial",
			Accumulate: TaskConfig(p.Accumulate),
			Input:      TaskConfig(p.Input),
			Display:    TaskConfig(p.Display),
		},
		Input: InputConfig{
			Source:    EndpointStdin,
			MaxLine:   console.DefaultMaxLine,
			QueueSize: console.DefaultQueueSize,
		},
		Output: OutputConfig{
			Sink:      EndpointStdout,
			Precision: controller.DefaultPrecision,
		},
		Serial: SerialConfig{Baud: console.DefaultBaud},
		Log:    LogConfig{Level: "info", Format: FormatText},

		ShutdownTimeout: 5 * time.Second,
	}
}

// Load reads path over Default and validates the result. An empty path yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return cfg, nil
}

// Parse decodes YAML data over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, field, fmt.Sprintf(format, args...)))
	}

	if c.Clock.Resolution <= 0 {
		bad("clock.resolution", "must be > 0, got %s", c.Clock.Resolution)
	}
	if _, err := task.ParseDispatchMode(c.Tasks.Dispatch); err != nil {
		bad("tasks.dispatch", "must be serial or concurrent, got %q", c.Tasks.Dispatch)
	}
	for _, tc := range []struct {
		name string
		t    TaskConfig
	}{
		{"tasks.accumulate", c.Tasks.Accumulate},
		{"tasks.input", c.Tasks.Input},
		{"tasks.display", c.Tasks.Display},
	} {
		if tc.t.Period < MinTaskPeriod || tc.t.Period > MaxTaskPeriod {
			bad(tc.name+".period", "must be in [%s, %s], got %s", MinTaskPeriod, MaxTaskPeriod, tc.t.Period)
		}
	}

	switch c.Input.Source {
	case EndpointStdin, EndpointSerial:
	default:
		bad("input.source", "must be stdin or serial, got %q", c.Input.Source)
	}
	if c.Input.MaxLine < 1 || c.Input.MaxLine > MaxLineLimit {
		bad("input.max_line", "must be in [1, %d], got %d", MaxLineLimit, c.Input.MaxLine)
	}
	if c.Input.QueueSize < 1 {
		bad("input.queue_size", "must be >= 1, got %d", c.Input.QueueSize)
	}

	switch c.Output.Sink {
	case EndpointStdout, EndpointSerial:
	default:
		bad("output.sink", "must be stdout or serial, got %q", c.Output.Sink)
	}
	if c.Output.Precision < 0 || c.Output.Precision > 9 {
		bad("output.precision", "must be in [0, 9], got %d", c.Output.Precision)
	}

	if c.UsesSerial() {
		if c.Serial.Device == "" {
			bad("serial.device", "required when input or output is serial")
		}
		if c.Serial.Baud <= 0 {
			bad("serial.baud", "must be > 0, got %d", c.Serial.Baud)
		}
	}
	if c.Serial.ReadTimeout < 0 {
		bad("serial.read_timeout", "must be >= 0, got %s", c.Serial.ReadTimeout)
	}

	if _, ok := tuningslog.ParseLevel(c.Log.Level); !ok {
		bad("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		bad("log.format", "must be text or json, got %q", c.Log.Format)
	}
	if c.ShutdownTimeout <= 0 {
		bad("shutdown_timeout", "must be > 0, got %s", c.ShutdownTimeout)
	}
	return errors.Join(errs...)
}

// UsesSerial reports whether input or output goes to the serial port.
func (c *Config) UsesSerial() bool {
	return c.Input.Source == EndpointSerial || c.Output.Sink == EndpointSerial
}

// Plan returns the task scheduling plan.
func (c *Config) Plan() controller.Plan {
	return controller.Plan{
		Accumulate: controller.TaskPlan(c.Tasks.Accumulate),
		Input:      controller.TaskPlan(c.Tasks.Input),
		Display:    controller.TaskPlan(c.Tasks.Display),
	}
}

// SerialPort returns the console serial configuration.
func (c *Config) SerialPort() console.SerialConfig {
	return console.SerialConfig{
		Device:      c.Serial.Device,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}
