// Package metrics exposes Prometheus collectors for the dispatch pipeline.
// Counters are fed from the event bus so the hot path never touches the
// registry directly.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dailybot/internal/eventbus"
	"dailybot/internal/reminder/store"
	logx "dailybot/pkg/logx"
)

type Registry struct {
	reg *prometheus.Registry

	dispatched  prometheus.Counter
	retries     prometheus.Counter
	completed   prometheus.Counter
	rescheduled prometheus.Counter
	compactions prometheus.Counter

	pending    prometheus.GaugeFunc
	tombstones prometheus.GaugeFunc
}

// New builds a registry with all pipeline collectors registered. entries
// backs the pending/tombstone gauges and is read on every scrape.
func New(entries store.Store) *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.dispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dailybot", Subsystem: "dispatch",
		Name: "delivered_total", Help: "Reminders delivered successfully.",
	})
	r.retries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dailybot", Subsystem: "dispatch",
		Name: "retries_total", Help: "Deliveries requeued after a failure.",
	})
	r.completed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dailybot", Subsystem: "dispatch",
		Name: "completed_total", Help: "One-shot reminders finalized.",
	})
	r.rescheduled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dailybot", Subsystem: "dispatch",
		Name: "rescheduled_total", Help: "Recurring reminders rescheduled.",
	})
	r.compactions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dailybot", Subsystem: "store",
		Name: "compactions_total", Help: "Store compaction runs.",
	})
	r.pending = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dailybot", Subsystem: "store",
		Name: "pending_entries", Help: "Active (non-tombstoned) schedule entries.",
	}, func() float64 {
		active, _, err := entries.Stats(context.Background())
		if err != nil {
			return -1
		}
		return float64(active)
	})
	r.tombstones = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dailybot", Subsystem: "store",
		Name: "tombstoned_entries", Help: "Soft-deleted entries awaiting compaction.",
	}, func() float64 {
		_, tomb, err := entries.Stats(context.Background())
		if err != nil {
			return -1
		}
		return float64(tomb)
	})

	r.reg.MustRegister(collectors.NewGoCollector())
	r.reg.MustRegister(r.dispatched, r.retries, r.completed, r.rescheduled,
		r.compactions, r.pending, r.tombstones)
	return r
}

// Prometheus returns the underlying registry for promhttp mounting.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

// Watch consumes bus events until ctx ends, incrementing the matching
// counters. Meant to run on its own supervised goroutine.
func (r *Registry) Watch(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			switch e.Type {
			case eventbus.TypeDispatched:
				r.dispatched.Inc()
			case eventbus.TypeRetryQueued:
				r.retries.Inc()
			case eventbus.TypeCompleted:
				r.completed.Inc()
			case eventbus.TypeRescheduled:
				r.rescheduled.Inc()
			case eventbus.TypeCompacted:
				r.compactions.Inc()
			default:
				log.Trace("unhandled bus event", logx.String("type", e.Type))
			}
		}
	}
}
