package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"dailybot/internal/reminder"
	"dailybot/internal/storage"
	logx "dailybot/pkg/logx"
)

// SQLite is the durable Store on the shared database handle.
//
// Each operation is one critical section covering the structure mutation and
// its durable write; SQLite autocommits per statement, so a returned Upsert
// or Cancel has hit disk. PopMin soft-deletes the row (tombstone) rather
// than deleting it, keeping the write path uniform with Cancel; Compact
// purges the rows for real.
type SQLite struct {
	mu   sync.Mutex
	db   *sql.DB
	log  logx.Logger
	wake *WakeSignal
}

func NewSQLite(db *storage.DB, wake *WakeSignal, log logx.Logger) *SQLite {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SQLite{db: db.SQL(), log: log, wake: wake}
}

const entryColumns = `task_id, scheduled_at, user_id, guild_id, title, method, recurring, mention`

func (s *SQLite) Upsert(ctx context.Context, e reminder.Entry) error {
	s.mu.Lock()
	prevMin, havePrev, err := s.minScheduledLocked(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reminders(task_id, scheduled_at, user_id, guild_id, title, method, recurring, deleted, mention)
		 VALUES(?,?,?,?,?,?,?,0,?)
		 ON CONFLICT(task_id) DO UPDATE SET
		   scheduled_at=excluded.scheduled_at, user_id=excluded.user_id,
		   guild_id=excluded.guild_id, title=excluded.title,
		   method=excluded.method, recurring=excluded.recurring,
		   deleted=0, mention=excluded.mention`,
		e.TaskID, e.ScheduledAt.UTC().Unix(), e.UserID, e.GuildID,
		e.Title, string(e.Method), boolInt(e.Recurring), nullStr(e.Mention),
	)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("upsert reminder %d: %w", e.TaskID, err)
	}

	if !havePrev || e.ScheduledAt.UTC().Unix() < prevMin {
		s.wake.Fire()
	}
	return nil
}

func (s *SQLite) PeekMin(ctx context.Context) (reminder.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peekLocked(ctx)
}

func (s *SQLite) PopMin(ctx context.Context) (reminder.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		e, ok, err := s.peekLocked(ctx)
		if err != nil || !ok {
			return reminder.Entry{}, false, err
		}
		// The deleted=0 guard makes removal at-most-once even if another
		// handle tombstones the row between the peek and this update.
		res, err := s.db.ExecContext(ctx,
			`UPDATE reminders SET deleted=1 WHERE task_id=? AND deleted=0`, e.TaskID)
		if err != nil {
			return reminder.Entry{}, false, fmt.Errorf("pop reminder %d: %w", e.TaskID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			s.maybeCompactLocked(ctx)
			return e, true, nil
		}
		// Lost the race for this entry; try the next minimum.
	}
}

func (s *SQLite) Cancel(ctx context.Context, taskID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET deleted=1 WHERE task_id=? AND deleted=0`, taskID)
	if err != nil {
		return fmt.Errorf("cancel reminder %d: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.maybeCompactLocked(ctx)
	return nil
}

func (s *SQLite) HasPending(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reminders WHERE deleted=0)`).Scan(&pending)
	if err != nil {
		return false, err
	}
	return pending, nil
}

func (s *SQLite) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked(ctx)
}

func (s *SQLite) Stats(ctx context.Context) (active, tombstones int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked(ctx)
}

func (s *SQLite) peekLocked(ctx context.Context) (reminder.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM reminders
		 WHERE deleted=0 ORDER BY scheduled_at, task_id LIMIT 1`)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Entry{}, false, nil
	}
	if err != nil {
		return reminder.Entry{}, false, fmt.Errorf("peek reminder: %w", err)
	}
	return e, true, nil
}

func (s *SQLite) minScheduledLocked(ctx context.Context) (int64, bool, error) {
	var at sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(scheduled_at) FROM reminders WHERE deleted=0`).Scan(&at)
	if err != nil {
		return 0, false, fmt.Errorf("min scheduled: %w", err)
	}
	return at.Int64, at.Valid, nil
}

func (s *SQLite) statsLocked(ctx context.Context) (active, tombstones int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) - COALESCE(SUM(deleted),0), COALESCE(SUM(deleted),0) FROM reminders`).
		Scan(&active, &tombstones)
	if err != nil {
		return 0, 0, fmt.Errorf("reminder stats: %w", err)
	}
	return active, tombstones, nil
}

func (s *SQLite) maybeCompactLocked(ctx context.Context) {
	active, tombstones, err := s.statsLocked(ctx)
	if err != nil {
		s.log.Warn("compaction check failed", logx.Err(err))
		return
	}
	if !shouldCompact(active, tombstones) {
		return
	}
	if err := s.compactLocked(ctx); err != nil {
		s.log.Warn("compaction failed", logx.Err(err))
	}
}

func (s *SQLite) compactLocked(ctx context.Context) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE deleted=1`)
	if err != nil {
		return fmt.Errorf("compact reminders: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("compacted reminder tombstones",
			logx.Int64("purged", n), logx.Duration("took", time.Since(start)))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (reminder.Entry, error) {
	var (
		e         reminder.Entry
		at        int64
		method    string
		recurring int
		mention   sql.NullString
	)
	err := row.Scan(&e.TaskID, &at, &e.UserID, &e.GuildID, &e.Title, &method, &recurring, &mention)
	if err != nil {
		return reminder.Entry{}, err
	}
	e.ScheduledAt = time.Unix(at, 0).UTC()
	e.Method = reminder.NotificationMethod(method)
	e.Recurring = recurring != 0
	e.Mention = mention.String
	return e, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
