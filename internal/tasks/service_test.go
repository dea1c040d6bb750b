package tasks_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dailybot/internal/reminder"
	"dailybot/internal/reminder/store"
	"dailybot/internal/storage"
	"dailybot/internal/tasks"
	logx "dailybot/pkg/logx"
)

func newService(t *testing.T) (*tasks.Service, *store.Memory) {
	t.Helper()
	db, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "dailybot.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	entries := store.NewMemory(store.NewWakeSignal())
	return tasks.NewService(tasks.NewStore(db), entries, logx.Nop()), entries
}

func TestCreateOneShotSchedulesEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, entries := newService(t)

	at := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	task, err := svc.CreateOneShot(ctx, tasks.Task{
		UserID: 1, GuildID: 2, Title: "dentist", Method: reminder.MethodDM,
	}, at)
	if err != nil {
		t.Fatalf("CreateOneShot: %v", err)
	}

	e, ok, err := entries.PeekMin(ctx)
	if err != nil || !ok {
		t.Fatalf("PeekMin = %v, %v, %v", e, ok, err)
	}
	if e.TaskID != task.ID || !e.ScheduledAt.Equal(at) || e.Recurring {
		t.Fatalf("entry mismatch: %+v", e)
	}
}

func TestCreateOneShotRejectsPast(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t)

	_, err := svc.CreateOneShot(context.Background(), tasks.Task{
		UserID: 1, GuildID: 2, Title: "x", Method: reminder.MethodDM,
	}, time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected error for past reminder time")
	}
}

func TestCreateRecurringSchedulesFirstOccurrence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, entries := newService(t)

	rule := &reminder.Rule{Kind: reminder.RuleEveryNDays, IntervalDays: 3, Hour: 8, Minute: 0}
	task, err := svc.CreateRecurring(ctx, tasks.Task{
		UserID: 1, GuildID: 2, Title: "standup", Method: reminder.MethodChannel, ChannelID: 9, Rule: rule,
	})
	if err != nil {
		t.Fatalf("CreateRecurring: %v", err)
	}

	e, ok, err := entries.PeekMin(ctx)
	if err != nil || !ok {
		t.Fatalf("PeekMin = %v, %v, %v", e, ok, err)
	}
	if e.TaskID != task.ID || !e.Recurring {
		t.Fatalf("entry mismatch: %+v", e)
	}
	if !e.ScheduledAt.Equal(task.NextRun) {
		t.Fatalf("entry at %v, task NextRun %v", e.ScheduledAt, task.NextRun)
	}
	// One interval out, at the forced time of day.
	wantDay := time.Now().UTC().AddDate(0, 0, 3)
	if e.ScheduledAt.Day() != wantDay.Day() || e.ScheduledAt.Hour() != 8 || e.ScheduledAt.Minute() != 0 {
		t.Fatalf("first occurrence = %v, want day %d at 08:00", e.ScheduledAt, wantDay.Day())
	}
}

func TestCancelRemovesTaskAndEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, entries := newService(t)

	task, err := svc.CreateOneShot(ctx, tasks.Task{
		UserID: 1, GuildID: 2, Title: "x", Method: reminder.MethodDM,
	}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateOneShot: %v", err)
	}

	if err := svc.Cancel(ctx, task.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if pending, _ := entries.HasPending(ctx); pending {
		t.Fatal("entry still pending after cancel")
	}
	if err := svc.Cancel(ctx, task.ID); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("second cancel = %v, want ErrNotFound", err)
	}
}

func TestRescheduleSupersedesEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, entries := newService(t)

	task, err := svc.CreateOneShot(ctx, tasks.Task{
		UserID: 1, GuildID: 2, Title: "x", Method: reminder.MethodDM,
	}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateOneShot: %v", err)
	}

	newAt := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	if err := svc.Reschedule(ctx, task.ID, newAt); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	e, ok, _ := entries.PeekMin(ctx)
	if !ok || !e.ScheduledAt.Equal(newAt) {
		t.Fatalf("entry = %+v (ok=%v), want scheduled at %v", e, ok, newAt)
	}
	// Exactly one active entry for the id.
	if _, ok, _ := entries.PopMin(ctx); !ok {
		t.Fatal("expected one entry")
	}
	if _, ok, _ := entries.PopMin(ctx); ok {
		t.Fatal("superseded entry still active")
	}
}
