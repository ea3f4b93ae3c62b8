package safego

import "context"

// Tag is a key/value pair attached to reports. Order is preserved.
type Tag struct {
	Key   string
	Value string
}

// ErrorHandler receives errors returned by a supervised function.
type ErrorHandler func(ctx context.Context, info ErrorInfo)

// ErrorInfo describes an error returned by a supervised function.
type ErrorInfo struct {
	Name string
	Tags []Tag
	Err  error
}

// PanicHandler receives recovered panics.
type PanicHandler func(ctx context.Context, info PanicInfo)

// PanicInfo describes a recovered panic.
type PanicInfo struct {
	Name  string
	Tags  []Tag
	Value any
	Stack []byte
}
