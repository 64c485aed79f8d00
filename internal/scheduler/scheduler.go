// Package scheduler runs the monitoring loop: on every tick it snapshots the
// tracked items, re-checks the ones that are due and fans out notifications
// for significant price changes.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akovalyov/priceguard/internal/catalog"
	"github.com/akovalyov/priceguard/internal/notify"
	"github.com/akovalyov/priceguard/internal/tracker"
)

// Store is the subset of repository operations the loop needs.
type Store interface {
	AllItems(ctx context.Context) ([]tracker.TrackedItem, error)
	Intervals(ctx context.Context) (map[int64]int, error)
	UpdatePrice(ctx context.Context, itemID int64, price float64, at time.Time) error
	MarkChecked(ctx context.Context, itemID int64, at time.Time) error
}

type Lookup interface {
	Lookup(ctx context.Context, ref string) (catalog.Item, error)
}

type Config struct {
	// TickSeconds is the base resolution of the loop; each owner's own
	// interval decides which ticks actually re-check their items.
	TickSeconds int
	// DefaultIntervalSeconds applies to owners without a settings row.
	DefaultIntervalSeconds int
	// Workers bounds the number of concurrent item checks within a pass.
	Workers int
}

const (
	defaultTick     = 30
	defaultInterval = 1800
	defaultWorkers  = 4
)

type Scheduler struct {
	store    Store
	lookup   Lookup
	notifier notify.Notifier
	cfg      Config
	log      *zap.Logger

	now func() time.Time
}

func New(store Store, lookup Lookup, notifier notify.Notifier, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = defaultTick
	}
	if cfg.DefaultIntervalSeconds <= 0 {
		cfg.DefaultIntervalSeconds = defaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Scheduler{
		store:    store,
		lookup:   lookup,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. Passes never overlap: the next tick is
// consumed only after the previous pass has fully finished.
func (s *Scheduler) Run(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.Duration("tick", tick),
		zap.Int("default_interval_seconds", s.cfg.DefaultIntervalSeconds),
		zap.Int("workers", s.cfg.Workers),
	)

	// one pass right away
	s.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

// pass re-checks every due item from a point-in-time snapshot. Items added
// or removed while the pass runs are picked up on the next tick.
func (s *Scheduler) pass(ctx context.Context) {
	now := s.now()

	intervals, err := s.store.Intervals(ctx)
	if err != nil {
		s.log.Error("failed to load interval settings", zap.Error(err))
		return
	}
	items, err := s.store.AllItems(ctx)
	if err != nil {
		s.log.Error("failed to snapshot tracked items", zap.Error(err))
		return
	}

	var due []tracker.TrackedItem
	for _, it := range items {
		seconds, ok := intervals[it.OwnerID]
		if !ok {
			seconds = s.cfg.DefaultIntervalSeconds
		}
		if now.Sub(it.LastCheckedAt) >= time.Duration(seconds)*time.Second {
			due = append(due, it)
		}
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("pass started", zap.Int("tracked", len(items)), zap.Int("due", len(due)))

	jobs := make(chan tracker.TrackedItem)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				s.checkItem(ctx, it)
			}
		}()
	}

dispatch:
	for _, it := range due {
		select {
		case <-ctx.Done():
			// stop feeding the pool; in-flight items finish on their own
			break dispatch
		case jobs <- it:
		}
	}
	close(jobs)
	wg.Wait()
}

// checkItem runs the lookup-detect-update-notify sequence for one item. Any
// failure here is isolated: it is logged and the rest of the pass goes on.
func (s *Scheduler) checkItem(ctx context.Context, it tracker.TrackedItem) {
	info, err := s.lookup.Lookup(ctx, it.ExternalRef)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			// possibly delisted; keep tracking rather than silently
			// dropping the user's item over an upstream glitch
			s.log.Warn("item not found in catalog, keeping it tracked",
				zap.Int64("item_id", it.ID), zap.String("ref", it.ExternalRef))
			return
		}
		s.log.Info("catalog unavailable, item will be retried next tick",
			zap.Int64("item_id", it.ID), zap.String("ref", it.ExternalRef), zap.Error(err))
		return
	}

	// once the lookup succeeded the item is finished even if shutdown
	// starts, so a persisted change is never cut off from its notification
	finishCtx := context.WithoutCancel(ctx)

	now := s.now()
	change, significant := tracker.Detect(it.LastPrice, info.Price)
	if !significant {
		if err := s.store.MarkChecked(finishCtx, it.ID, now); err != nil {
			s.log.Error("failed to mark item checked", zap.Int64("item_id", it.ID), zap.Error(err))
		}
		return
	}

	// history must stay accurate even when delivery fails, so the store is
	// updated before the notification goes out
	if err := s.store.UpdatePrice(finishCtx, it.ID, change.New, now); err != nil {
		s.log.Error("failed to persist price change", zap.Int64("item_id", it.ID), zap.Error(err))
		return
	}

	event := notify.NewPriceChange(it.Name, it.ExternalRef, change.Old, change.New, change.Delta)
	if err := s.notifier.Notify(finishCtx, it.OwnerID, event); err != nil {
		s.log.Error("notification dropped",
			zap.String("event_id", event.EventID),
			zap.Int64("owner_id", it.OwnerID),
			zap.Int64("item_id", it.ID),
			zap.Error(err))
		return
	}

	s.log.Info("price change notified",
		zap.String("event_id", event.EventID),
		zap.Int64("item_id", it.ID),
		zap.Float64("old_price", change.Old),
		zap.Float64("new_price", change.New),
		zap.Float64("delta", change.Delta),
	)
}
