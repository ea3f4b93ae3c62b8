//go:build unix

package zwatch

import (
	"os"
	"syscall"
)

// A closed terminal (SIGHUP) stops the stopwatch like Ctrl-C does.
func defaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
}
