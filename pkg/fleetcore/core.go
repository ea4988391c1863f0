// Package fleetcore composes every coordination-engine component (C1-C9)
// into a single runnable handle: the Event Store, Projection Engine, Lock
// Manager, Mailbox/Cursor Service, Sortie/Mission lifecycle, Dispatch
// Scheduler, Checkpoint Writer, Compaction Service and External API Surface,
// plus the background tickers that drive them (heartbeat sweep, lock sweep,
// blocker escalation, compaction). It is the single composition root a
// `main` package needs — mirroring the teacher's pattern of a top-level
// service struct that owns every subsystem's lifecycle rather than letting
// each subsystem self-start.
package fleetcore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleettools/coordinator/pkg/api"
	"github.com/fleettools/coordinator/pkg/checkpoint"
	"github.com/fleettools/coordinator/pkg/compaction"
	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/database"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/locks"
	"github.com/fleettools/coordinator/pkg/mailbox"
	"github.com/fleettools/coordinator/pkg/metrics"
	"github.com/fleettools/coordinator/pkg/projections"
	"github.com/fleettools/coordinator/pkg/scheduler"

	"github.com/robfig/cron/v3"
)

// Core is the coordination engine's composition root.
type Core struct {
	cfg config.Config

	DB         *database.Client
	Store      *eventstore.Store
	Engine     *projections.Engine
	Locks      *locks.Manager
	Mailbox    *mailbox.Service
	Lifecycle  *lifecycle.Service
	Scheduler  *scheduler.Service
	Checkpoint *checkpoint.Writer
	Compaction *compaction.Service
	Metrics    *metrics.Registry
	API        *api.API

	notifier *eventstore.Notifier
	cron     *cron.Cron

	closeOnce sync.Once
}

// New wires every component in dependency order and starts the Postgres
// LISTEN/NOTIFY notifier, but does not yet start the background tickers —
// call Run for that. Construction order matches the Ownership Map (§3):
// Engine before Store (Store needs a Projector), everything else after
// Store since they all append through it.
func New(ctx context.Context, cfg config.Config) (*Core, error) {
	dbCfg := database.Config{
		Host: cfg.Database.Host, Port: cfg.Database.Port, User: cfg.Database.User,
		Password: cfg.Database.Password, Database: cfg.Database.Database, SSLMode: cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns, MaxIdleConns: cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime, ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}
	if err := dbCfg.Validate(); err != nil {
		return nil, fmt.Errorf("fleetcore: invalid database configuration: %w", err)
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("fleetcore: failed to connect to database: %w", err)
	}

	engine := projections.New(db.Client)

	notifier := eventstore.NewNotifier(database.DSN(dbCfg))
	if err := notifier.Start(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("fleetcore: failed to start notifier: %w", err)
	}

	busyTimeout := time.Duration(cfg.AppendBusyTimeoutMs) * time.Millisecond
	store := eventstore.New(db.Client, engine, notifier, busyTimeout)

	lm := locks.New(store, db.Client)
	mb := mailbox.New(store, db.Client)
	lc := lifecycle.New(store, db.Client)
	sc := scheduler.New(store, db.Client, lc, lm, mb, cfg)
	cp := checkpoint.New(store, db.Client, lc, lm, mb, cfg)
	cm := compaction.New(store, db.Client, cfg)
	mt := metrics.New()
	a := api.New(store, db, lc, sc, lm, mb, cp, mt)

	return &Core{
		cfg: cfg, DB: db, Store: store, Engine: engine, Locks: lm, Mailbox: mb,
		Lifecycle: lc, Scheduler: sc, Checkpoint: cp, Compaction: cm, Metrics: mt, API: a,
		notifier: notifier, cron: cron.New(),
	}, nil
}

// Run starts the background tickers — heartbeat sweep, lock sweep, blocker
// escalation, compaction — all as cron.Cron entries so they share the
// teacher's one scheduling primitive rather than one goroutine+ticker per
// concern. It blocks until ctx is cancelled, then stops the cron scheduler
// and waits for any in-flight job to finish.
func (c *Core) Run(ctx context.Context) error {
	if _, err := c.cron.AddFunc(every(c.cfg.HeartbeatCheckMs), func() {
		if n, err := c.Scheduler.SweepStaleSpecialists(ctx); err != nil {
			slog.Error("heartbeat sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("heartbeat sweep marked specialists stale", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("fleetcore: failed to schedule heartbeat sweep: %w", err)
	}

	if _, err := c.cron.AddFunc(every(c.cfg.LockSweepMs), func() {
		if n, err := c.Locks.Sweep(ctx); err != nil {
			slog.Error("lock sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("lock sweep expired locks", "count", n)
			c.Metrics.ActiveLocks.Sub(float64(n))
		}
	}); err != nil {
		return fmt.Errorf("fleetcore: failed to schedule lock sweep: %w", err)
	}

	if _, err := c.cron.AddFunc(every(c.cfg.BlockerTimeoutMs/3), func() {
		missions, err := c.Lifecycle.ListMissions(ctx, lifecycle.ListMissionsFilter{Status: "in_progress"})
		if err != nil {
			slog.Error("blocker escalation: failed to list active missions", "error", err)
			return
		}
		for _, m := range missions {
			if n, err := c.Scheduler.EscalateStaleBlockers(ctx, m.ID); err != nil {
				slog.Error("blocker escalation failed", "mission_id", m.ID, "error", err)
			} else if n > 0 {
				c.Metrics.BlockerEscalated.Add(float64(n))
			}
		}
	}); err != nil {
		return fmt.Errorf("fleetcore: failed to schedule blocker escalation: %w", err)
	}

	// Compaction runs far less often than the liveness sweeps — hourly is
	// plenty for a threshold measured in thousands of events or days of age.
	if _, err := c.cron.AddFunc("@hourly", func() {
		result, err := c.Compaction.Run(ctx)
		if err != nil {
			slog.Error("compaction run failed", "error", err)
			return
		}
		if result.StreamsCompacted > 0 {
			c.Metrics.StreamsCompacted.Add(float64(result.StreamsCompacted))
			slog.Info("compaction run completed", "streams", result.StreamsCompacted, "events_archived", result.EventsArchived)
		}
	}); err != nil {
		return fmt.Errorf("fleetcore: failed to schedule compaction: %w", err)
	}

	c.cron.Start()
	<-ctx.Done()
	stopCtx := c.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// every turns a millisecond interval from the configuration table into a
// cron "@every" spec; a non-positive interval disables the job by spacing
// it a full day apart instead of refusing to schedule anything.
func every(ms int) string {
	if ms <= 0 {
		ms = 24 * 60 * 60 * 1000
	}
	return fmt.Sprintf("@every %dms", ms)
}

// Close stops the notifier and closes the database connection. Safe to call
// more than once.
func (c *Core) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.notifier.Stop(ctx)
		err = c.DB.Close()
	})
	return err
}
