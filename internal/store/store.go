// Package store gives the rest of the service a narrow, push-based view of
// the shipment collection. Subscriptions deliver whole-snapshot replacements
// of one partition (active or archived); there are no deltas.
package store

import (
	"context"

	"github.com/pkg/errors"

	"example.com/comercialav/services/deliveries/internal/models"
)

// ErrNotFound is returned when a shipment id does not resolve to a record
var ErrNotFound = errors.New("shipment not found")

// SnapshotFunc receives a full replacement of one partition's contents
type SnapshotFunc func(shipments []models.Shipment)

// ErrorFunc receives subscription transport errors
type ErrorFunc func(err error)

// Store is the document store consumed by the sync engine and the mutation
// commands. Update takes raw column/value pairs and writes exactly what it
// is given; callers own derived fields, timestamps included.
type Store interface {
	// Subscribe opens a live subscription on one partition. The initial
	// snapshot and every subsequent one arrive through onSnapshot; transport
	// failures through onError. The returned function tears the
	// subscription down unconditionally.
	Subscribe(ctx context.Context, archived bool, onSnapshot SnapshotFunc, onError ErrorFunc) (unsubscribe func(), err error)

	Create(ctx context.Context, shipment *models.Shipment) (string, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	GetOne(ctx context.Context, id string) (*models.Shipment, error)

	// BatchUpdate applies fields to every record matching where in a single
	// atomic commit and returns the affected count.
	BatchUpdate(ctx context.Context, where map[string]interface{}, fields map[string]interface{}) (int64, error)
}
