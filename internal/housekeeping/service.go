// Package housekeeping runs periodic maintenance jobs: compaction of the
// reminder store and pruning of old delivery audit rows.
package housekeeping

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dailybot/internal/eventbus"
	"dailybot/internal/reminder/store"
	"dailybot/internal/storage"
	logx "dailybot/pkg/logx"
)

type Config struct {
	Enabled bool

	// CompactEvery is the interval between forced store compactions.
	CompactEvery time.Duration
	// AuditRetention bounds the age of delivery audit rows; older rows
	// are deleted on each prune run.
	AuditRetention time.Duration
	// PruneEvery is the interval between audit prune runs.
	PruneEvery time.Duration
	// JobTimeout bounds each individual job run.
	JobTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CompactEvery <= 0 {
		c.CompactEvery = time.Hour
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 30 * 24 * time.Hour
	}
	if c.PruneEvery <= 0 {
		c.PruneEvery = 6 * time.Hour
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Minute
	}
	return c
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	entries store.Store
	db      *storage.DB
	bus     eventbus.Bus
	log     logx.Logger

	c    *cron.Cron
	base context.Context
	stop context.CancelFunc
}

func New(cfg Config, entries store.Store, db *storage.DB, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{cfg: cfg.withDefaults(), entries: entries, db: db, bus: bus, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}
	s.base, s.stop = context.WithCancel(ctx)

	c := cron.New()
	if _, err := c.AddFunc("@every "+s.cfg.CompactEvery.String(), func() { s.runJob("compact", s.compact) }); err != nil {
		s.stop()
		return err
	}
	if _, err := c.AddFunc("@every "+s.cfg.PruneEvery.String(), func() { s.runJob("prune_audit", s.pruneAudit) }); err != nil {
		s.stop()
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("housekeeping started",
		logx.Duration("compact_every", s.cfg.CompactEvery),
		logx.Duration("prune_every", s.cfg.PruneEvery))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	stopCtx := s.c.Stop()
	s.stop()
	<-stopCtx.Done()
	s.c = nil
	s.log.Info("housekeeping stopped")
}

func (s *Service) runJob(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.base, s.cfg.JobTimeout)
	defer cancel()

	started := time.Now()
	err := job(ctx)
	took := time.Since(started)
	if err != nil {
		s.log.Warn("housekeeping job failed",
			logx.String("job", name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("housekeeping job done",
		logx.String("job", name), logx.Duration("took", took))
}

func (s *Service) compact(ctx context.Context) error {
	_, tombstones, err := s.entries.Stats(ctx)
	if err != nil {
		return err
	}
	if tombstones == 0 {
		return nil
	}
	if err := s.entries.Compact(ctx); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCompacted, Time: time.Now(), Data: tombstones})
	}
	s.log.Info("store compacted", logx.Int("tombstones", tombstones))
	return nil
}

func (s *Service) pruneAudit(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	n, err := s.db.PruneDeliveries(ctx, s.cfg.AuditRetention)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("audit rows pruned", logx.Int64("rows", n))
	}
	return nil
}
