package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"dailybot/internal/eventbus"
	"dailybot/internal/reminder"
	"dailybot/internal/reminder/store"
	"dailybot/internal/storage"
	"dailybot/internal/tasks"
	logx "dailybot/pkg/logx"
)

// Loop is the scheduler's background state machine. Exactly one logical
// instance runs per process; the app wires it under the supervisor.
type Loop struct {
	cfg   Config
	orch  Orchestrator
	notif Notifier
	wake  *store.WakeSignal
	bus   eventbus.Bus
	audit AuditSink // may be nil
	log   logx.Logger
	now   func() time.Time

	// failures counts consecutive delivery failures per task, for the
	// give-up-threshold escalation. Only the loop goroutine touches it.
	failures map[int64]int
}

func NewLoop(cfg Config, orch Orchestrator, notif Notifier, wake *store.WakeSignal,
	bus eventbus.Bus, audit AuditSink, log logx.Logger) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		cfg:      cfg.withDefaults(),
		orch:     orch,
		notif:    notif,
		wake:     wake,
		bus:      bus,
		audit:    audit,
		log:      log,
		now:      time.Now,
		failures: map[int64]int{},
	}
}

// Run services entries until ctx is cancelled. Cancellation is checked at
// every sleep boundary; an in-flight dispatch finishes before exit.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("dispatch loop started",
		logx.Duration("idle_ceiling", l.cfg.IdleCeiling),
		logx.Duration("retry_backoff", l.cfg.RetryBackoff))

	for {
		if ctx.Err() != nil {
			l.log.Info("dispatch loop stopped")
			return
		}

		next, ok, err := l.orch.PeekNext(ctx)
		if err != nil {
			l.log.Error("peek failed", logx.Err(err))
			l.pause(ctx, l.cfg.ErrorBackoff)
			continue
		}

		if !ok {
			// Idle: nothing pending. Sleep up to the ceiling or until woken.
			l.sleep(ctx, l.cfg.IdleCeiling)
			continue
		}

		if until := next.ScheduledAt.Sub(l.now()); until > 0 {
			// Waiting: not due yet. After waking, re-peek; an earlier entry
			// may have arrived or this one may have been cancelled.
			l.sleep(ctx, min(until, l.cfg.IdleCeiling))
			continue
		}

		l.dispatch(ctx, next)
	}
}

// dispatch pops and delivers one due entry.
func (l *Loop) dispatch(ctx context.Context, expected reminder.Entry) {
	popped, ok, err := l.orch.PopNext(ctx)
	if err != nil {
		l.log.Error("pop failed", logx.Err(err))
		l.pause(ctx, l.cfg.ErrorBackoff)
		return
	}
	if !ok {
		// Cancelled between peek and pop: benign race.
		return
	}
	if popped.TaskID != expected.TaskID || !popped.ScheduledAt.Equal(expected.ScheduledAt) {
		// A different entry slipped ahead between peek and pop. Put it back
		// and re-evaluate from the top; never discard a popped entry.
		l.log.Debug("pop raced, re-queueing",
			logx.Int64("expected", expected.TaskID), logx.Int64("got", popped.TaskID))
		if err := l.orch.Add(ctx, popped); err != nil {
			l.log.Error("re-queue after pop race failed",
				logx.Int64("task", popped.TaskID), logx.Err(err))
			l.pause(ctx, l.cfg.ErrorBackoff)
		}
		return
	}

	// The entry is ours now; finish the dispatch even if shutdown starts.
	dctx := context.WithoutCancel(ctx)
	dispatchID := uuid.NewString()
	log := l.log.With(logx.Int64("task", popped.TaskID), logx.String("dispatch", dispatchID))

	task, err := l.orch.GetTask(dctx, popped.TaskID)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			// The owning task vanished; the entry is an orphan with
			// nothing left to notify about.
			log.Warn("task gone before dispatch, dropping entry")
			return
		}
		log.Error("loading task failed, re-queueing entry", logx.Err(err))
		l.requeue(dctx, popped, log)
		l.pause(ctx, l.cfg.ErrorBackoff)
		return
	}

	start := l.now()
	deliverErr := l.notif.Deliver(dctx, popped, task)
	took := time.Since(start)

	l.appendAudit(dctx, dispatchID, popped, deliverErr, took)

	if deliverErr != nil {
		l.failures[popped.TaskID]++
		count := l.failures[popped.TaskID]
		if count >= l.cfg.GiveUpLogThreshold {
			log.Error("delivery keeps failing",
				logx.Int("consecutive_failures", count), logx.Err(deliverErr))
		} else {
			log.Warn("delivery failed, will retry",
				logx.Int("consecutive_failures", count), logx.Err(deliverErr))
		}
		l.requeue(dctx, popped, log)
		l.publish(eventbus.TypeRetryQueued, popped)
		return
	}

	delete(l.failures, popped.TaskID)
	log.Info("reminder delivered", logx.Duration("took", took), logx.Bool("recurring", task.Recurring()))
	l.publish(eventbus.TypeDispatched, popped)

	if err := l.orch.FinalizeAfterNotification(dctx, task); err != nil {
		// The entry is already gone; the task stays un-finalized rather than
		// risking a duplicate notification. Accepted, but never silent.
		log.Error("finalize after notification failed", logx.Err(err))
		return
	}
	if task.Recurring() {
		l.publish(eventbus.TypeRescheduled, popped)
	} else {
		l.publish(eventbus.TypeCompleted, popped)
	}
}

// requeue re-submits a failed entry with the retry backoff applied.
func (l *Loop) requeue(ctx context.Context, e reminder.Entry, log logx.Logger) {
	e.ScheduledAt = l.now().Add(l.cfg.RetryBackoff)
	if err := l.orch.Add(ctx, e); err != nil {
		// Storage refused the retry entry. This is the one path that can
		// lose a delivery, so shout about it.
		log.Error("re-queueing failed entry failed", logx.Err(err),
			logx.Time("wanted_at", e.ScheduledAt))
	}
}

func (l *Loop) appendAudit(ctx context.Context, dispatchID string, e reminder.Entry, deliverErr error, took time.Duration) {
	if l.audit == nil {
		return
	}
	rec := storage.DeliveryAudit{
		DispatchID: dispatchID,
		TaskID:     e.TaskID,
		UserID:     e.UserID,
		GuildID:    e.GuildID,
		Method:     string(e.Method),
		OK:         deliverErr == nil,
		TookMS:     took.Milliseconds(),
	}
	if deliverErr != nil {
		rec.Error = deliverErr.Error()
	}
	if err := l.audit.AppendDelivery(ctx, rec); err != nil {
		l.log.Warn("delivery audit write failed", logx.Err(err))
	}
}

func (l *Loop) publish(eventType string, e reminder.Entry) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: eventType, Data: EntryEvent{
		TaskID:      e.TaskID,
		GuildID:     e.GuildID,
		ScheduledAt: e.ScheduledAt,
	}})
}

// EntryEvent is the bus payload for dispatch lifecycle events.
type EntryEvent struct {
	TaskID      int64
	GuildID     int64
	ScheduledAt time.Time
}

// sleep blocks for d, a wake signal, or cancellation, whichever first.
func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-l.wake.C():
	case <-timer.C:
	}
}

// pause is sleep without the wake signal, used after errors so a hot wake
// cannot turn an error path into a tight loop.
func (l *Loop) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
