package reminder

import (
	"strings"
	"time"
)

// NotificationMethod selects where a reminder is delivered.
type NotificationMethod string

const (
	MethodDM      NotificationMethod = "dm"
	MethodChannel NotificationMethod = "channel"
	MethodBoth    NotificationMethod = "both"
)

func (m NotificationMethod) Valid() bool {
	switch m {
	case MethodDM, MethodChannel, MethodBoth:
		return true
	}
	return false
}

// ParseMethod normalizes a user-supplied method string.
func ParseMethod(s string) (NotificationMethod, bool) {
	m := NotificationMethod(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

// Entry is one pending notification event tied to a single task.
//
// At most one active (non-tombstoned) entry exists per TaskID; re-submitting
// for the same id atomically supersedes the prior active entry. Entries are
// owned by the store: callers never mutate one in place, they submit
// replacements or cancellations.
type Entry struct {
	TaskID      int64
	ScheduledAt time.Time // UTC; the ordering key
	UserID      int64
	GuildID     int64
	Title       string
	Method      NotificationMethod
	Recurring   bool
	Deleted     bool // tombstone flag, managed by the store
	Mention     string
}

// Before reports whether e orders ahead of other. Ties on ScheduledAt break
// on TaskID so the order is total and stable.
func (e Entry) Before(other Entry) bool {
	if !e.ScheduledAt.Equal(other.ScheduledAt) {
		return e.ScheduledAt.Before(other.ScheduledAt)
	}
	return e.TaskID < other.TaskID
}

// Due reports whether the entry's scheduled time has arrived.
func (e Entry) Due(now time.Time) bool {
	return !e.ScheduledAt.After(now)
}
