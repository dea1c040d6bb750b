package tasks

import (
	"errors"
	"fmt"
	"time"

	"dailybot/internal/reminder"
)

var ErrNotFound = errors.New("task not found")

// Task is the business object a reminder entry points back to. The
// recurrence rule lives here; the scheduler entry only carries a flag.
type Task struct {
	ID        int64
	UserID    int64
	GuildID   int64
	ChannelID int64
	Title     string
	Method    reminder.NotificationMethod
	Mention   string

	// Rule is nil for one-shot tasks.
	Rule *reminder.Rule

	// NextRun is the occurrence most recently handed to the scheduler (UTC).
	// For EveryNDays rules it doubles as the "last scheduled" input when
	// computing the following occurrence.
	NextRun   time.Time
	CreatedAt time.Time
}

func (t Task) Recurring() bool { return t.Rule != nil }

func (t *Task) Validate() error {
	if t.Title == "" {
		return errors.New("task title is required")
	}
	if !t.Method.Valid() {
		return fmt.Errorf("invalid notification method %q", t.Method)
	}
	if t.Rule != nil {
		if err := t.Rule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Entry builds the scheduler entry for this task at the given instant.
func (t Task) Entry(at time.Time) reminder.Entry {
	return reminder.Entry{
		TaskID:      t.ID,
		ScheduledAt: at.UTC(),
		UserID:      t.UserID,
		GuildID:     t.GuildID,
		Title:       t.Title,
		Method:      t.Method,
		Recurring:   t.Recurring(),
		Mention:     t.Mention,
	}
}
