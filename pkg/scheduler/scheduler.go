// Package scheduler implements the Dispatch Scheduler (C6): DAG resolution,
// parallel/sequential spawning, completion propagation, blocker handling and
// review gating described in §4.6. The Scheduler never writes projections
// directly — it only appends events, exactly like every other surface
// component (§4 "the Scheduler never writes projections directly").
package scheduler

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/locks"
	"github.com/fleettools/coordinator/pkg/mailbox"
)

// Service is the Dispatch Scheduler (C6).
type Service struct {
	store     *eventstore.Store
	client    *ent.Client
	lifecycle *lifecycle.Service
	locks     *locks.Manager
	mailbox   *mailbox.Service

	blockerTimeout time.Duration
	staleThreshold time.Duration
}

// New builds a Service. cfg supplies the sweep/escalation intervals (§6
// configuration table).
func New(store *eventstore.Store, client *ent.Client, lc *lifecycle.Service, lm *locks.Manager, mb *mailbox.Service, cfg config.Config) *Service {
	return &Service{
		store:          store,
		client:         client,
		lifecycle:      lc,
		locks:          lm,
		mailbox:        mb,
		blockerTimeout: time.Duration(cfg.BlockerTimeoutMs) * time.Millisecond,
		staleThreshold: time.Duration(cfg.StaleThresholdMs) * time.Millisecond,
	}
}
