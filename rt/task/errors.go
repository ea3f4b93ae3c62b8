package task

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when called more than once.
	ErrAlreadyStarted = errors.New("task: manager already started")
	// ErrClosed is returned when the manager is shutting down or already stopped.
	ErrClosed = errors.New("task: manager closed")

	// ErrInvalidName is returned by Add when a task name is invalid.
	//
	// Name rules:
	//   - name is optional (empty means unnamed)
	//   - non-empty name must match [A-Za-z0-9._-]
	//   - name is normalized by strings.TrimSpace before validation
	ErrInvalidName = errors.New("task: invalid name")

	// ErrDuplicateName is returned by Add when a non-empty task name is already registered.
	ErrDuplicateName = errors.New("task: duplicate name")

	// ErrInvalidPeriod is returned by Add and Handle.SetPeriod when the period is not positive.
	ErrInvalidPeriod = errors.New("task: invalid period")
)
