package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dailybot/internal/reminder"
	"dailybot/internal/storage"
)

// Store persists business tasks on the shared database handle.
type Store struct {
	db *sql.DB
}

func NewStore(db *storage.DB) *Store {
	return &Store{db: db.SQL()}
}

const taskColumns = `id, user_id, guild_id, channel_id, title, method, mention,
	rule_kind, rule_days, rule_interval_days, rule_hour, rule_minute, next_run, created_at`

// Create inserts the task and assigns its id.
func (s *Store) Create(ctx context.Context, t *Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var (
		ruleKind     any
		ruleDays     int
		ruleInterval int
		ruleHour     int
		ruleMinute   int
	)
	if t.Rule != nil {
		ruleKind = string(t.Rule.Kind)
		ruleDays = int(t.Rule.Days)
		ruleInterval = t.Rule.IntervalDays
		ruleHour = t.Rule.Hour
		ruleMinute = t.Rule.Minute
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(user_id, guild_id, channel_id, title, method, mention,
		   rule_kind, rule_days, rule_interval_days, rule_hour, rule_minute, next_run, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.UserID, t.GuildID, t.ChannelID, t.Title, string(t.Method), nullStr(t.Mention),
		ruleKind, ruleDays, ruleInterval, ruleHour, ruleMinute,
		unixOrZero(t.NextRun), t.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create task id: %w", err)
	}
	t.ID = id
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reschedule records the occurrence most recently handed to the scheduler.
func (s *Store) Reschedule(ctx context.Context, id int64, next time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET next_run = ? WHERE id = ?`, next.UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("reschedule task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns a user's tasks in a guild, oldest first.
func (s *Store) ListByUser(ctx context.Context, guildID, userID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE guild_id = ? AND user_id = ? ORDER BY id`,
		guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t            Task
		method       string
		mention      sql.NullString
		ruleKind     sql.NullString
		ruleDays     int
		ruleInterval int
		ruleHour     int
		ruleMinute   int
		nextRun      int64
		createdAt    int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.GuildID, &t.ChannelID, &t.Title, &method, &mention,
		&ruleKind, &ruleDays, &ruleInterval, &ruleHour, &ruleMinute, &nextRun, &createdAt)
	if err != nil {
		return Task{}, err
	}
	t.Method = reminder.NotificationMethod(method)
	t.Mention = mention.String
	if ruleKind.Valid {
		t.Rule = &reminder.Rule{
			Kind:         reminder.RuleKind(ruleKind.String),
			Days:         reminder.Weekdays(ruleDays),
			IntervalDays: ruleInterval,
			Hour:         ruleHour,
			Minute:       ruleMinute,
		}
	}
	if nextRun != 0 {
		t.NextRun = time.Unix(nextRun, 0).UTC()
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return t, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().Unix()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
