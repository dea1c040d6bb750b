package config

type Config struct {
	Discord Discord `json:"discord"`
	Logging Logging `json:"logging"`
	Storage Storage `json:"storage"`

	Dispatch     *Dispatch     `json:"dispatch,omitempty"`
	Notifier     *Notifier     `json:"notifier,omitempty"`
	Housekeeping *Housekeeping `json:"housekeeping,omitempty"`
	Debug        *Debug        `json:"debug,omitempty"`
}

type Discord struct {
	Token string `json:"token"`
	// OwnerUserIDs may issue administrative commands regardless of guild
	// permissions.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
}

type Logging struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type Storage struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy handler).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// Dispatch controls the delivery loop.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type Dispatch struct {
	// IdleCeiling caps how long the loop sleeps without a wake signal.
	IdleCeiling string `json:"idle_ceiling,omitempty"`
	// RetryBackoff delays re-delivery after a failed send.
	RetryBackoff string `json:"retry_backoff,omitempty"`
	// ErrorBackoff delays the loop after a storage error.
	ErrorBackoff string `json:"error_backoff,omitempty"`
}

type Notifier struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	Burst      int `json:"burst,omitempty"`
	// SendTimeout bounds a single Discord API call (Go duration string).
	SendTimeout string `json:"send_timeout,omitempty"`
}

type Housekeeping struct {
	Enabled        bool   `json:"enabled"`
	CompactEvery   string `json:"compact_every,omitempty"`
	PruneEvery     string `json:"prune_every,omitempty"`
	AuditRetention string `json:"audit_retention,omitempty"`
	JobTimeout     string `json:"job_timeout,omitempty"`
}

// Debug controls the operational HTTP server (metrics, pprof, health).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6061").
//   - If you bind to a non-loopback address, set a token (do not log it).
type Debug struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
