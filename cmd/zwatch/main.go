// Command zwatch runs a console stopwatch.
//
// Type r to run, s to stop and c to clear, each followed by Enter. The accumulated seconds are
// printed once per display period.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/evan-idocoding/zwatch"
	"github.com/evan-idocoding/zwatch/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("zwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath  = fs.String("config", "", "YAML config file (defaults when empty)")
		device      = fs.String("serial", "", "serial device for input and output (overrides config)")
		opsAddr     = fs.String("ops", "", "ops HTTP listen address, e.g. 127.0.0.1:6060 (overrides config)")
		printConfig = fs.Bool("print-config", false, "print the effective config and exit")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "zwatch: unexpected arguments: %v\n", fs.Args())
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "zwatch: %v\n", err)
		return 1
	}
	if *device != "" {
		cfg.Serial.Device = *device
		cfg.Input.Source = config.EndpointSerial
		cfg.Output.Sink = config.EndpointSerial
	}
	if *opsAddr != "" {
		cfg.Ops.Addr = *opsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "zwatch: %v\n", err)
		return 1
	}

	if *printConfig {
		b, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(stderr, "zwatch: %v\n", err)
			return 1
		}
		_, _ = stdout.Write(b)
		return 0
	}

	svc, err := zwatch.NewService(cfg, zwatch.WithStdout(stdout), zwatch.WithLogOutput(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "zwatch: %v\n", err)
		return 1
	}
	if err := svc.Run(context.Background()); err != nil {
		fmt.Fprintf(stderr, "zwatch: %v\n", err)
		return 1
	}
	return 0
}
