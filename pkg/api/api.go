// Package api implements the External API Surface (C8): every §6 operation
// as a transport-agnostic Go method returning a Response envelope. There is
// no HTTP router and no JSON wire binding here — "HTTP transport wire-up" is
// explicitly out of scope (§1 Non-goals); a future collaborator binds these
// methods to whatever transport it needs.
package api

import (
	"time"

	"github.com/fleettools/coordinator/pkg/checkpoint"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/database"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/locks"
	"github.com/fleettools/coordinator/pkg/mailbox"
	"github.com/fleettools/coordinator/pkg/metrics"
	"github.com/fleettools/coordinator/pkg/scheduler"
)

// API is the External API Surface (C8): a thin dispatcher over the
// lifecycle/scheduler/locks/mailbox/checkpoint components, holding no state
// of its own.
type API struct {
	store      *eventstore.Store
	client     *database.Client
	lifecycle  *lifecycle.Service
	scheduler  *scheduler.Service
	locks      *locks.Manager
	mailbox    *mailbox.Service
	checkpoint *checkpoint.Writer
	metrics    *metrics.Registry
}

// New builds an API surface over the already-constructed components.
func New(store *eventstore.Store, client *database.Client, lc *lifecycle.Service, sc *scheduler.Service,
	lm *locks.Manager, mb *mailbox.Service, cp *checkpoint.Writer, mt *metrics.Registry) *API {
	return &API{store: store, client: client, lifecycle: lc, scheduler: sc, locks: lm, mailbox: mb, checkpoint: cp, metrics: mt}
}

// APIError is the stable, machine-readable error shape of the Response
// envelope (§6 "Error codes (stable)").
type APIError struct {
	Code    string
	Message string
	Detail  any
}

// Response is the envelope every C8 operation returns: `{data, error?,
// timestamp}` per §6, as a Go generic rather than a JSON struct — transport
// adapters decide how to serialize it.
type Response[T any] struct {
	Data      T
	Error     *APIError
	Timestamp time.Time
}

// ok wraps a successful result.
func ok[T any](data T) Response[T] {
	return Response[T]{Data: data, Timestamp: time.Now().UTC()}
}

// fail wraps err into the stable error-code envelope (§6 "Error codes").
func fail[T any](err error) Response[T] {
	var zero T
	ce := toAPIError(err)
	return Response[T]{Data: zero, Error: ce, Timestamp: time.Now().UTC()}
}

func toAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	return &APIError{Code: string(coreerrors.KindOf(err)), Message: err.Error()}
}
