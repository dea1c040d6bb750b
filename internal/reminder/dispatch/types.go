package dispatch

import (
	"context"
	"time"

	"dailybot/internal/reminder"
	"dailybot/internal/storage"
	"dailybot/internal/tasks"
)

// Config controls the dispatch loop.
type Config struct {
	// IdleCeiling caps any sleep, bounding rediscovery latency when a wake
	// signal is missed. Default 5m.
	IdleCeiling time.Duration

	// RetryBackoff delays the re-queued entry after a delivery failure.
	// Default 1m.
	RetryBackoff time.Duration

	// ErrorBackoff follows any unexpected loop error. Default 1m.
	ErrorBackoff time.Duration

	// GiveUpLogThreshold is the consecutive-failure count past which a
	// task's delivery failures escalate to error-level logs. Delivery is
	// still retried; this only makes persistent failure visible in
	// operational logs. Default 5.
	GiveUpLogThreshold int
}

func (c Config) withDefaults() Config {
	if c.IdleCeiling <= 0 {
		c.IdleCeiling = 5 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Minute
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Minute
	}
	if c.GiveUpLogThreshold <= 0 {
		c.GiveUpLogThreshold = 5
	}
	return c
}

// Notifier delivers one rendered reminder. Failures are assumed transient.
type Notifier interface {
	Deliver(ctx context.Context, e reminder.Entry, task tasks.Task) error
}

// Orchestrator is the thin coordination contract between the loop and the
// owning business-task store.
type Orchestrator interface {
	// PeekNext returns the earliest pending entry without removing it.
	PeekNext(ctx context.Context) (reminder.Entry, bool, error)

	// PopNext atomically removes and returns the earliest pending entry.
	PopNext(ctx context.Context) (reminder.Entry, bool, error)

	// Add submits an entry, superseding any active entry for its task.
	Add(ctx context.Context, e reminder.Entry) error

	// GetTask loads the full business task for rendering and finalization.
	GetTask(ctx context.Context, taskID int64) (tasks.Task, error)

	// FinalizeAfterNotification deletes a one-shot task or reschedules a
	// recurring one after a successful delivery.
	FinalizeAfterNotification(ctx context.Context, task tasks.Task) error
}

// AuditSink records delivery outcomes. *storage.DB satisfies it; tests pass
// nil to skip auditing.
type AuditSink interface {
	AppendDelivery(ctx context.Context, e storage.DeliveryAudit) error
}
