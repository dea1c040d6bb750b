// Package store persists pending reminder entries and always knows the
// globally earliest active one.
//
// Cancellation is a soft delete: the entry's tombstone flag flips and the
// structure is left alone. Tombstones are reclaimed lazily: for free when
// they surface at the head during peek/pop, or in bulk by Compact once the
// tombstoned fraction crosses a threshold. This keeps per-cancel cost flat
// while bounding physical growth.
package store

import (
	"context"
	"errors"

	"dailybot/internal/reminder"
)

var ErrNotFound = errors.New("no active entry for task")

// Compaction triggers: both must hold before an automatic compaction runs,
// so small stores never pay the rebuild cost.
const (
	compactTombstoneFraction = 0.25
	compactMinEntries        = 100
)

// Store is the scheduler's ordered collection of pending entries.
//
// All methods are safe for concurrent use. Upsert and Cancel are durable
// before they return on persistent implementations; only an in-flight
// dispatch can be lost on crash, never an entry's existence.
type Store interface {
	// Upsert inserts or replaces the active entry for e.TaskID, clearing any
	// tombstone for that id. When the new time undercuts the current minimum
	// active time (or the store was empty) the wake signal fires.
	Upsert(ctx context.Context, e reminder.Entry) error

	// PeekMin returns the earliest active entry without removing it.
	PeekMin(ctx context.Context) (reminder.Entry, bool, error)

	// PopMin atomically removes and returns the earliest active entry.
	// Under concurrent races at most one caller pops a given entry.
	PopMin(ctx context.Context) (reminder.Entry, bool, error)

	// Cancel tombstones the active entry for taskID without restructuring.
	// Returns ErrNotFound when no active entry exists for that id.
	Cancel(ctx context.Context, taskID int64) error

	// HasPending reports whether at least one active entry exists.
	HasPending(ctx context.Context) (bool, error)

	// Compact physically purges tombstones. Implementations also run it
	// automatically past the tombstone threshold; housekeeping may call it
	// on a timer as a backstop.
	Compact(ctx context.Context) error

	// Stats returns current active and tombstoned entry counts.
	Stats(ctx context.Context) (active, tombstones int, err error)
}

func shouldCompact(active, tombstones int) bool {
	total := active + tombstones
	if total <= compactMinEntries {
		return false
	}
	return float64(tombstones)/float64(total) > compactTombstoneFraction
}
