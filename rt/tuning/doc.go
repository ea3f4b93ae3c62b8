// Package tuning provides runtime-tunable parameters for online hot changes.
//
// # Design highlights
//
//   - One generic handle, Var[T], registered through typed constructors:
//     Tuning.Duration, Tuning.Int64, Tuning.Enum.
//   - Read path (Get) is lock-free and non-blocking.
//   - Write path (Set / Reset*) is thread-safe and blocking.
//   - The zero value of Tuning is ready to use.
//
// # Callback semantics (onChange)
//
// Each variable can register one or more onChange callbacks via WithOnChange.
//
// Callbacks are executed synchronously on the write path, after the new value is applied,
// serially in registration order. They run even if the new value equals the current value.
// Callback panics are recovered and swallowed; the write still succeeds.
//
// All write APIs in a Tuning instance are serialized (including callbacks). Callbacks must be
// fast and must not block, because a slow callback blocks every other write.
//
//	tu := tuning.New()
//	period, _ := tu.Duration("tasks.display.period", 100*time.Millisecond,
//		tuning.WithMin(10*time.Millisecond),
//		tuning.WithOnChange(func(d time.Duration) { _ = h.SetPeriod(d) }),
//	)
//	_ = tu.SetFromString("tasks.display.period", "250ms")
//	_ = period.Get()
//
// # Key rules
//
// Keys must be non-empty and can only contain characters in [A-Za-z0-9._-].
// '/' and whitespace are not allowed. Keys are case-sensitive.
//
// # Source / default
//
// Source reflects the current effective state, not history:
//   - SourceDefault: current value equals the registered default value
//   - SourceRuntimeSet: current value differs from the registered default value
//
// LastUpdatedAt is zero until the first successful runtime write.
//
// # Re-entrant writes (important)
//
// onChange callbacks MUST NOT call tuning write APIs. tuning detects re-entrant writes and
// returns ErrReentrantWrite instead of deadlocking.
//
// # Redaction
//
// Variables registered with WithRedact show "<redacted>" for Value/DefaultValue in
// Snapshot/Lookup and for the override value in ExportOverrides.
package tuning
