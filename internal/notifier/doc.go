// Package notifier renders reminder notifications and pushes them through
// the transport adapter. Delivery failures are assumed transient: the
// dispatch loop owns the retry policy, this package only reports the error.
package notifier
