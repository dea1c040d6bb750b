package dispatch

import (
	"context"
	"fmt"
	"time"

	"dailybot/internal/reminder"
	"dailybot/internal/reminder/store"
	"dailybot/internal/tasks"
	logx "dailybot/pkg/logx"
)

// orchestrator binds the reminder store, the business task store and the
// recurrence calculator into the loop's coordination contract.
type orchestrator struct {
	entries store.Store
	tasks   *tasks.Store
	log     logx.Logger
	now     func() time.Time
}

func NewOrchestrator(entries store.Store, taskStore *tasks.Store, log logx.Logger) Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &orchestrator{entries: entries, tasks: taskStore, log: log, now: time.Now}
}

func (o *orchestrator) PeekNext(ctx context.Context) (reminder.Entry, bool, error) {
	return o.entries.PeekMin(ctx)
}

func (o *orchestrator) PopNext(ctx context.Context) (reminder.Entry, bool, error) {
	return o.entries.PopMin(ctx)
}

func (o *orchestrator) Add(ctx context.Context, e reminder.Entry) error {
	return o.entries.Upsert(ctx, e)
}

func (o *orchestrator) GetTask(ctx context.Context, taskID int64) (tasks.Task, error) {
	return o.tasks.Get(ctx, taskID)
}

// FinalizeAfterNotification implements the delete-vs-reschedule branch. The
// scheduler entry is already gone when this runs; a failure here means the
// task is not re-notified (at-most-once for this step), which callers log.
func (o *orchestrator) FinalizeAfterNotification(ctx context.Context, task tasks.Task) error {
	if !task.Recurring() {
		if err := o.tasks.Delete(ctx, task.ID); err != nil {
			return fmt.Errorf("delete one-shot task %d: %w", task.ID, err)
		}
		return nil
	}

	next, ok := reminder.NextOccurrence(*task.Rule, o.now(), task.NextRun)
	if !ok {
		return fmt.Errorf("task %d: rule %q produced no next occurrence", task.ID, task.Rule.Kind)
	}
	if err := o.tasks.Reschedule(ctx, task.ID, next); err != nil {
		return fmt.Errorf("reschedule task %d: %w", task.ID, err)
	}
	if err := o.entries.Upsert(ctx, task.Entry(next)); err != nil {
		return fmt.Errorf("re-enter task %d at %v: %w", task.ID, next, err)
	}
	o.log.Debug("recurring task rescheduled",
		logx.Int64("task", task.ID), logx.Time("next", next))
	return nil
}
