package stopwatch

import "fmt"

// Command is a user action applied to the stopwatch.
//
// Clear is an action, not a mode: it is applied in either mode and never changes the mode.
type Command uint8

const (
	// None is the result of parsing empty or unrecognized input.
	None Command = iota
	Run
	Stop
	Clear
)

func (c Command) String() string {
	switch c {
	case None:
		return "none"
	case Run:
		return "run"
	case Stop:
		return "stop"
	case Clear:
		return "clear"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// ParseCommand maps an input line to a Command.
//
// Only the first byte is significant and matching is case-sensitive: 'r', 's', 'c'.
// Empty input and any other first byte yield None.
func ParseCommand(line []byte) Command {
	if len(line) == 0 {
		return None
	}
	switch line[0] {
	case 'r':
		return Run
	case 's':
		return Stop
	case 'c':
		return Clear
	default:
		return None
	}
}
