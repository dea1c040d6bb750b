// Package dispatch runs the background loop that delivers reminders.
//
// # Overview
//
// A single loop peeks the store's earliest entry, sleeps until it is due
// (racing a timer against the store's wake signal), pops it, delivers it,
// and finalizes: one-shot tasks are deleted, recurring ones are rescheduled
// at their next occurrence. Failed deliveries are re-queued with a fixed
// backoff, never dropped.
//
// # Liveness
//
// The wake signal is strictly a latency optimization. Even if every signal
// is missed the loop re-checks state at least once per idle ceiling, so a
// newly inserted earlier entry is discovered within that bound.
//
// # Failure isolation
//
// Any unexpected error is logged and followed by a bounded backoff; a
// single task's failure never halts servicing of other due tasks. The
// finalize step is not transactional with the pop: a crash in between
// leaves the task un-rescheduled, an accepted at-most-once outcome that is
// always logged.
package dispatch
