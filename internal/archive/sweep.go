// Package archive moves registered deliveries into the archived partition.
package archive

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/internal/models"
	"example.com/comercialav/services/deliveries/internal/store"
)

// Sweeper flips every registered, not-yet-archived shipment to archived in
// one atomic batch. The manual trigger and the weekly schedule share this
// exact selection and commit, so behavior is identical regardless of who
// pulls the trigger. Re-running with nothing eligible is a safe no-op.
type Sweeper struct {
	store store.Store
}

// NewSweeper creates a sweeper
func NewSweeper(st store.Store) *Sweeper {
	return &Sweeper{store: st}
}

// Run executes one sweep and returns the number of archived records
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	now := time.Now().UTC()

	count, err := s.store.BatchUpdate(ctx,
		map[string]interface{}{
			"archived": false,
			"status":   models.ShipmentStatusRegistered,
		},
		map[string]interface{}{
			"archived":    true,
			"archived_at": now,
			"updated_at":  now,
		},
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to archive registered shipments")
	}

	log.Info().Int64("archived", count).Msg("Archival sweep completed")
	return count, nil
}
