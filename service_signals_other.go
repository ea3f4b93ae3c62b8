//go:build !unix

package zwatch

import "os"

func defaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
