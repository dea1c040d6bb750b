package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dailybot/internal/reminder"
	"dailybot/internal/tasks"
	"dailybot/internal/transport"
	logx "dailybot/pkg/logx"
)

type Config struct {
	RatePerSec int           // outbound sends per second (default 5)
	Burst      int           // limiter burst (default RatePerSec)
	Timeout    time.Duration // per-send timeout (default 10s)
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Burst <= 0 {
		c.Burst = c.RatePerSec
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

type Service struct {
	cfg     Config
	adapter transport.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log,
	}
}

// Deliver renders the reminder and sends it through every route the entry's
// method selects. A non-nil return means the caller should retry later.
func (s *Service) Deliver(ctx context.Context, e reminder.Entry, task tasks.Task) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	text := Render(e)

	var errs []error
	switch e.Method {
	case reminder.MethodDM:
		errs = append(errs, s.adapter.SendDM(sendCtx, e.UserID, text))
	case reminder.MethodChannel:
		errs = append(errs, s.sendChannel(sendCtx, task, text))
	case reminder.MethodBoth:
		errs = append(errs, s.adapter.SendDM(sendCtx, e.UserID, text))
		errs = append(errs, s.sendChannel(sendCtx, task, text))
	default:
		return fmt.Errorf("unknown notification method %q", e.Method)
	}
	return errors.Join(errs...)
}

func (s *Service) sendChannel(ctx context.Context, task tasks.Task, text string) error {
	if task.ChannelID == 0 {
		return fmt.Errorf("task %d has no channel configured", task.ID)
	}
	return s.adapter.SendChannel(ctx, task.ChannelID, text)
}

// Render builds the outgoing message text for an entry.
func Render(e reminder.Entry) string {
	var b strings.Builder
	b.WriteString("⏰ ")
	if e.Mention != "" {
		b.WriteString(e.Mention)
		b.WriteString(" ")
	}
	b.WriteString("**")
	b.WriteString(e.Title)
	b.WriteString("**")
	if e.Recurring {
		b.WriteString(" (recurring)")
	}
	return b.String()
}
