package storage

import (
	"context"
	"strings"
	"time"
)

// DeliveryAudit records the outcome of one delivery attempt.
// Keep it compact and schema-stable.
type DeliveryAudit struct {
	At         time.Time
	DispatchID string
	TaskID     int64
	UserID     int64
	GuildID    int64
	Method     string
	OK         bool
	Error      string
	TookMS     int64
}

func (d *DB) AppendDelivery(ctx context.Context, e DeliveryAudit) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO delivery_audit(at, dispatch_id, task_id, user_id, guild_id, method, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.DispatchID, e.TaskID, e.UserID, e.GuildID,
		e.Method, boolInt(e.OK), nullStr(e.Error), e.TookMS,
	)
	return err
}

// PruneDeliveries removes audit rows older than the retention window.
func (d *DB) PruneDeliveries(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := time.Now().Add(-keep).UTC().Format(time.RFC3339Nano)
	res, err := d.db.ExecContext(ctx, `DELETE FROM delivery_audit WHERE at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
