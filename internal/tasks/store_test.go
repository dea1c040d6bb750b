package tasks_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dailybot/internal/reminder"
	"dailybot/internal/storage"
	"dailybot/internal/tasks"
	logx "dailybot/pkg/logx"
)

func newStore(t *testing.T) *tasks.Store {
	t.Helper()
	db, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "dailybot.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return tasks.NewStore(db)
}

func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	rule := &reminder.Rule{
		Kind:   reminder.RuleWeekly,
		Days:   reminder.Weekdays(0).With(time.Monday).With(time.Friday),
		Hour:   9,
		Minute: 30,
	}
	in := tasks.Task{
		UserID:    1001,
		GuildID:   42,
		ChannelID: 7,
		Title:     "standup notes",
		Method:    reminder.MethodChannel,
		Mention:   "@here",
		Rule:      rule,
		NextRun:   time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC),
	}
	if err := s.Create(ctx, &in); err != nil {
		t.Fatalf("create: %v", err)
	}
	if in.ID == 0 {
		t.Fatal("create did not assign an id")
	}

	got, err := s.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != in.Title || got.Method != in.Method || got.Mention != in.Mention {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Rule == nil || got.Rule.Kind != reminder.RuleWeekly || !got.Rule.Days.Has(time.Friday) {
		t.Fatalf("rule did not survive: %+v", got.Rule)
	}
	if !got.NextRun.Equal(in.NextRun) {
		t.Fatalf("NextRun = %v, want %v", got.NextRun, in.NextRun)
	}
	if !got.Recurring() {
		t.Fatal("task with rule should be recurring")
	}
}

func TestOneShotTaskHasNoRule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	in := tasks.Task{UserID: 1, GuildID: 2, Title: "dentist", Method: reminder.MethodDM}
	if err := s.Create(ctx, &in); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rule != nil {
		t.Fatalf("one-shot task came back with a rule: %+v", got.Rule)
	}
	if got.Recurring() {
		t.Fatal("one-shot task reported recurring")
	}
}

func TestRescheduleAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	in := tasks.Task{UserID: 1, GuildID: 2, Title: "gym", Method: reminder.MethodDM}
	if err := s.Create(ctx, &in); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := time.Date(2025, time.April, 1, 18, 0, 0, 0, time.UTC)
	if err := s.Reschedule(ctx, in.ID, next); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	got, err := s.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.NextRun.Equal(next) {
		t.Fatalf("NextRun = %v, want %v", got.NextRun, next)
	}

	if err := s.Delete(ctx, in.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, in.ID); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, in.ID); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("double delete = %v, want ErrNotFound", err)
	}
	if err := s.Reschedule(ctx, in.ID, next); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("reschedule missing = %v, want ErrNotFound", err)
	}
}

func TestListByUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	for _, title := range []string{"a", "b"} {
		task := tasks.Task{UserID: 10, GuildID: 1, Title: title, Method: reminder.MethodDM}
		if err := s.Create(ctx, &task); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := tasks.Task{UserID: 11, GuildID: 1, Title: "c", Method: reminder.MethodDM}
	if err := s.Create(ctx, &other); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ListByUser(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Title != "a" || got[1].Title != "b" {
		t.Fatalf("order mismatch: %+v", got)
	}
}

func TestCreateValidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t)

	bad := tasks.Task{UserID: 1, GuildID: 2, Title: "", Method: reminder.MethodDM}
	if err := s.Create(ctx, &bad); err == nil {
		t.Fatal("expected error for empty title")
	}
	bad = tasks.Task{UserID: 1, GuildID: 2, Title: "x", Method: "pigeon"}
	if err := s.Create(ctx, &bad); err == nil {
		t.Fatal("expected error for invalid method")
	}
}
