// Package safego runs functions with panic containment and error reporting.
//
// Background goroutines in zwatch (the console line reader, the ops server) must never take
// the process down and must never fail silently. safego wraps a function so that:
//   - a returned error is reported to an ErrorHandler, or logged with slog at error level;
//   - a panic is recovered and reported to a PanicHandler, or logged with its stack;
//   - WithFinally functions always run, in LIFO order.
//
// Errors are never returned to the caller of Go/Run.
//
// context.Canceled and context.DeadlineExceeded are not reported by default because they
// are the normal way a supervised loop ends on shutdown. Use WithReportContextCancel(true)
// to see them.
//
//	safego.Go(ctx, readLoop,
//		safego.WithName("console.reader"),
//		safego.WithLogger(logger),
//		safego.WithFinally(wg.Done),
//	)
package safego
