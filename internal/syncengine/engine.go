// Package syncengine maintains the live, continuously-reconciled local view
// of the two shipment partitions and owns the combined readiness signal.
package syncengine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/models"
	"example.com/comercialav/services/deliveries/internal/store"
)

// Partition names one of the two subscription targets
type Partition string

const (
	PartitionActive   Partition = "active"
	PartitionArchived Partition = "archived"
)

// Hooks are optional callbacks fired outside the engine lock
type Hooks struct {
	// OnWarning fires at most once per partition per session, when a
	// subscription fails and the partition degrades to an empty view.
	OnWarning func(partition Partition, message string)
	// OnSnapshot fires after a snapshot has been merged and sorted
	OnSnapshot func(partition Partition, deliveries []delivery.Delivery)
}

// Engine replicates both shipment partitions. The replicated lists are
// owned exclusively by the engine; readers get copies and all mutations go
// through the store (write-through, never write-back).
type Engine struct {
	store store.Store
	hooks Hooks

	mu             sync.Mutex
	alive          *atomic.Bool
	unsubscribes   []func()
	active         []delivery.Delivery
	archived       []delivery.Delivery
	activeLoaded   bool
	archivedLoaded bool
	activeWarned   bool
	archivedWarned bool
	pending        bool
}

// New creates a stopped engine
func New(st store.Store, hooks Hooks) *Engine {
	return &Engine{store: st, hooks: hooks, pending: true}
}

// Start opens both partition subscriptions. The liveness token handed to
// every callback closure is replaced on each Start, so callbacks from a
// previous session are no-ops even if they arrive late.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.alive != nil {
		e.mu.Unlock()
		return errors.New("sync engine already started")
	}
	alive := &atomic.Bool{}
	alive.Store(true)
	e.alive = alive
	e.active = nil
	e.archived = nil
	e.activeLoaded = false
	e.archivedLoaded = false
	e.activeWarned = false
	e.archivedWarned = false
	e.pending = true
	e.mu.Unlock()

	unsubActive, err := e.store.Subscribe(ctx, false,
		func(shipments []models.Shipment) { e.handleSnapshot(alive, PartitionActive, shipments) },
		func(err error) { e.handleError(alive, PartitionActive, err) },
	)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to active partition")
	}

	unsubArchived, err := e.store.Subscribe(ctx, true,
		func(shipments []models.Shipment) { e.handleSnapshot(alive, PartitionArchived, shipments) },
		func(err error) { e.handleError(alive, PartitionArchived, err) },
	)
	if err != nil {
		unsubActive()
		return errors.Wrap(err, "failed to subscribe to archived partition")
	}

	e.mu.Lock()
	e.unsubscribes = []func(){unsubActive, unsubArchived}
	e.mu.Unlock()

	log.Info().Msg("Sync engine started")
	return nil
}

// Stop tears both subscriptions down unconditionally and clears the local
// replicas. Safe to call on a stopped engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.alive != nil {
		e.alive.Store(false)
		e.alive = nil
	}
	unsubs := e.unsubscribes
	e.unsubscribes = nil
	e.active = nil
	e.archived = nil
	e.activeLoaded = false
	e.archivedLoaded = false
	e.pending = true
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	log.Info().Msg("Sync engine stopped")
}

// Syncing reports the combined readiness signal: true until both partitions
// have delivered at least one snapshot (or error) and no mutation is in
// flight.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.activeLoaded || !e.archivedLoaded || e.pending
}

// SetPending marks a mutation in flight. Cleared by the next snapshot or by
// ClearPending on a failed write.
func (e *Engine) SetPending() {
	e.mu.Lock()
	e.pending = true
	e.mu.Unlock()
}

// ClearPending clears the in-flight flag after a failed or empty mutation
func (e *Engine) ClearPending() {
	e.mu.Lock()
	e.pending = false
	e.mu.Unlock()
}

// Active returns a copy of the active partition, ascending by expected date
func (e *Engine) Active() []delivery.Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]delivery.Delivery(nil), e.active...)
}

// Archived returns a copy of the archived partition, descending by last update
func (e *Engine) Archived() []delivery.Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]delivery.Delivery(nil), e.archived...)
}

// VisibleActive filters the active partition by the session capabilities
func (e *Engine) VisibleActive(caps delivery.Capabilities) []delivery.Delivery {
	return delivery.FilterVisible(e.Active(), caps)
}

// VisibleArchived filters the archived partition by the session capabilities
func (e *Engine) VisibleArchived(caps delivery.Capabilities) []delivery.Delivery {
	return delivery.FilterVisible(e.Archived(), caps)
}

// Lookup finds a delivery in either partition
func (e *Engine) Lookup(id string) (delivery.Delivery, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.active {
		if d.ID == id {
			return d, true
		}
	}
	for _, d := range e.archived {
		if d.ID == id {
			return d, true
		}
	}
	return delivery.Delivery{}, false
}

func (e *Engine) handleSnapshot(alive *atomic.Bool, partition Partition, shipments []models.Shipment) {
	if !alive.Load() {
		return
	}

	deliveries := make([]delivery.Delivery, 0, len(shipments))
	for _, s := range shipments {
		deliveries = append(deliveries, delivery.FromShipment(s))
	}

	// Full replacement plus re-sort on every emission; nothing is cached
	// across snapshots.
	if partition == PartitionActive {
		sort.SliceStable(deliveries, func(i, j int) bool {
			return deliveries[i].ExpectedDate.Before(deliveries[j].ExpectedDate)
		})
	} else {
		sort.SliceStable(deliveries, func(i, j int) bool {
			return deliveries[i].LastUpdate.After(deliveries[j].LastUpdate)
		})
	}

	e.mu.Lock()
	if e.alive != alive {
		e.mu.Unlock()
		return
	}
	if partition == PartitionActive {
		e.active = deliveries
		e.activeLoaded = true
	} else {
		e.archived = deliveries
		e.archivedLoaded = true
	}
	e.pending = false
	e.mu.Unlock()

	log.Debug().Str("partition", string(partition)).Int("count", len(deliveries)).Msg("Snapshot merged")

	if e.hooks.OnSnapshot != nil {
		e.hooks.OnSnapshot(partition, deliveries)
	}
}

// handleError marks the failed partition loaded anyway so readiness is not
// blocked forever, and warns once. The transport retries on its own; a dead
// subscription degrades to a permanently-empty partition.
func (e *Engine) handleError(alive *atomic.Bool, partition Partition, err error) {
	if !alive.Load() {
		return
	}

	var warn bool
	e.mu.Lock()
	if e.alive != alive {
		e.mu.Unlock()
		return
	}
	if partition == PartitionActive {
		e.activeLoaded = true
		warn = !e.activeWarned
		e.activeWarned = true
	} else {
		e.archivedLoaded = true
		warn = !e.archivedWarned
		e.archivedWarned = true
	}
	e.pending = false
	e.mu.Unlock()

	log.Error().Err(err).Str("partition", string(partition)).Msg("Shipment subscription error")

	if warn && e.hooks.OnWarning != nil {
		message := "Could not sync active deliveries."
		if partition == PartitionArchived {
			message = "Could not sync the delivery history."
		}
		e.hooks.OnWarning(partition, message)
	}
}
