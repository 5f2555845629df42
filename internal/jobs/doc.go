// Package jobs turns configured commands into timer subscribers.
//
// Each job registers itself on the shared timer engine. Interval jobs
// are periodic elements; cron jobs are once-elements that re-arm for
// the next cron activation from inside their own callback. Executions
// run the configured command, log the outcome, publish job events, and
// append a run record to storage when it is configured.
package jobs
