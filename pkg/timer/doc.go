// Package timer implements a single-worker interval scheduler.
//
// Callers register subscribers to be notified once after a delay or
// repeatedly at a fixed interval. One dedicated worker goroutine sleeps
// until the earliest deadline and fires exactly the subscribers whose
// deadline has passed, outside any lock, in registration order.
//
// The engine is the timing backbone for periodic background work
// (rescans, cleanup, watchdog pings) so that callers do not need to own
// their own goroutines or tickers.
//
// Concurrency model:
//   - a mutex guards the subscriber registry (Add/Remove/scan),
//   - a buffered wake channel interrupts the worker's sleep; a signal
//     sent while the worker is not sleeping is retained, never lost,
//   - callbacks run synchronously on the worker goroutine and may call
//     Add/Remove themselves.
//
// A slow or non-returning callback stalls the whole schedule; callers
// must respect that. A panicking callback is reported and skipped, it
// never kills the worker.
package timer
