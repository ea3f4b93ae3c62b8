// Package tuningslog binds tuning variables to log/slog.
//
// Note: tuning's Set is a blocking model and executes callbacks synchronously. Do NOT call
// Set/SetFromString on latency-sensitive hot paths.
package tuningslog
