package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dailybot/internal/reminder"
	"dailybot/internal/reminder/store"
	logx "dailybot/pkg/logx"
)

// Service is the submit side of the scheduler: task create/edit/cancel
// flows run here, on arbitrary caller goroutines, and never wait on the
// dispatch loop. Per-task calls are issued sequentially by the command
// layer; calls for different tasks interleave freely.
type Service struct {
	tasks   *Store
	entries store.Store
	log     logx.Logger
	now     func() time.Time
}

func NewService(taskStore *Store, entries store.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{tasks: taskStore, entries: entries, log: log, now: time.Now}
}

// CreateOneShot stores the task and schedules its single reminder.
func (s *Service) CreateOneShot(ctx context.Context, t Task, at time.Time) (Task, error) {
	if t.Rule != nil {
		return Task{}, errors.New("one-shot task must not carry a recurrence rule")
	}
	at = at.UTC()
	if !at.After(s.now()) {
		return Task{}, fmt.Errorf("reminder time %v is in the past", at)
	}
	t.NextRun = at
	if err := s.tasks.Create(ctx, &t); err != nil {
		return Task{}, err
	}
	if err := s.entries.Upsert(ctx, t.Entry(at)); err != nil {
		return Task{}, fmt.Errorf("schedule task %d: %w", t.ID, err)
	}
	s.log.Info("one-shot task scheduled", logx.Int64("task", t.ID), logx.Time("at", at))
	return t, nil
}

// CreateRecurring stores the task and schedules its first occurrence.
func (s *Service) CreateRecurring(ctx context.Context, t Task) (Task, error) {
	if t.Rule == nil {
		return Task{}, errors.New("recurring task needs a recurrence rule")
	}
	if err := t.Rule.Validate(); err != nil {
		return Task{}, err
	}

	now := s.now()
	// EveryNDays needs a last-scheduled instant; at creation that is "now",
	// so the first fire lands one interval out.
	first, ok := reminder.NextOccurrence(*t.Rule, now, now)
	if !ok {
		return Task{}, fmt.Errorf("rule %q produced no first occurrence", t.Rule.Kind)
	}
	t.NextRun = first
	if err := s.tasks.Create(ctx, &t); err != nil {
		return Task{}, err
	}
	if err := s.entries.Upsert(ctx, t.Entry(first)); err != nil {
		return Task{}, fmt.Errorf("schedule task %d: %w", t.ID, err)
	}
	s.log.Info("recurring task scheduled",
		logx.Int64("task", t.ID), logx.String("kind", string(t.Rule.Kind)), logx.Time("first", first))
	return t, nil
}

// Cancel removes the task and tombstones its pending reminder. The entry
// cancellation is logically immediate: the dispatch loop's next peek will
// not see it, even though physical cleanup is deferred.
func (s *Service) Cancel(ctx context.Context, taskID int64) error {
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return err
	}
	if err := s.entries.Cancel(ctx, taskID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("cancel entry for task %d: %w", taskID, err)
	}
	s.log.Info("task cancelled", logx.Int64("task", taskID))
	return nil
}

// Reschedule moves a task's next reminder, superseding the pending entry.
func (s *Service) Reschedule(ctx context.Context, taskID int64, at time.Time) error {
	at = at.UTC()
	if !at.After(s.now()) {
		return fmt.Errorf("reminder time %v is in the past", at)
	}
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.tasks.Reschedule(ctx, taskID, at); err != nil {
		return err
	}
	if err := s.entries.Upsert(ctx, t.Entry(at)); err != nil {
		return fmt.Errorf("reschedule entry for task %d: %w", taskID, err)
	}
	s.log.Info("task rescheduled", logx.Int64("task", taskID), logx.Time("at", at))
	return nil
}

// List returns a user's tasks for display.
func (s *Service) List(ctx context.Context, guildID, userID int64) ([]Task, error) {
	return s.tasks.ListByUser(ctx, guildID, userID)
}
