package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/comercialav/services/deliveries/internal/models"
)

// MemoryStore is an in-memory Store used by tests and the "memory" database
// driver for local development. Snapshots are delivered synchronously on
// every mutation, which keeps test scenarios deterministic.
type MemoryStore struct {
	mu        sync.Mutex
	shipments map[string]models.Shipment
	subs      map[int]*memorySub
	nextSubID int
}

type memorySub struct {
	archived   bool
	onSnapshot SnapshotFunc
	onError    ErrorFunc
	alive      atomic.Bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shipments: make(map[string]models.Shipment),
		subs:      make(map[int]*memorySub),
	}
}

// Subscribe registers a partition subscription and delivers the initial
// snapshot before returning.
func (s *MemoryStore) Subscribe(ctx context.Context, archived bool, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error) {
	sub := &memorySub{archived: archived, onSnapshot: onSnapshot, onError: onError}
	sub.alive.Store(true)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = sub
	snapshot := s.partitionLocked(archived)
	s.mu.Unlock()

	onSnapshot(snapshot)

	unsubscribe := func() {
		sub.alive.Store(false)
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return unsubscribe, nil
}

// Create inserts a shipment and assigns it an id
func (s *MemoryStore) Create(ctx context.Context, shipment *models.Shipment) (string, error) {
	if shipment.ID == "" {
		shipment.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = now
	}
	if shipment.UpdatedAt.IsZero() {
		shipment.UpdatedAt = now
	}

	s.mu.Lock()
	s.shipments[shipment.ID] = *shipment
	s.mu.Unlock()

	s.broadcast()
	return shipment.ID, nil
}

// Update applies column values to one shipment
func (s *MemoryStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	shipment, ok := s.shipments[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if err := applyFields(&shipment, fields); err != nil {
		s.mu.Unlock()
		return err
	}
	s.shipments[id] = shipment
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// Delete removes one shipment
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.shipments[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.shipments, id)
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// GetOne fetches one shipment by id
func (s *MemoryStore) GetOne(ctx context.Context, id string) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shipment, ok := s.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := shipment
	return &copied, nil
}

// BatchUpdate applies fields to every record matching where, all at once
func (s *MemoryStore) BatchUpdate(ctx context.Context, where map[string]interface{}, fields map[string]interface{}) (int64, error) {
	s.mu.Lock()
	var matched []string
	for id, shipment := range s.shipments {
		if matchesWhere(shipment, where) {
			matched = append(matched, id)
		}
	}

	// Validate against a scratch copy first so a bad field set cannot
	// leave the batch half-applied.
	for _, id := range matched {
		scratch := s.shipments[id]
		if err := applyFields(&scratch, fields); err != nil {
			s.mu.Unlock()
			return 0, err
		}
	}
	for _, id := range matched {
		shipment := s.shipments[id]
		_ = applyFields(&shipment, fields)
		s.shipments[id] = shipment
	}
	count := int64(len(matched))
	s.mu.Unlock()

	if count > 0 {
		s.broadcast()
	}
	return count, nil
}

// EmitError pushes a subscription error to every subscriber of a partition.
// Test helper for the transport-failure path.
func (s *MemoryStore) EmitError(archived bool, err error) {
	s.mu.Lock()
	subs := s.matchingSubsLocked(archived)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.alive.Load() && sub.onError != nil {
			sub.onError(err)
		}
	}
}

func (s *MemoryStore) broadcast() {
	s.mu.Lock()
	type emission struct {
		sub      *memorySub
		snapshot []models.Shipment
	}
	var emissions []emission
	for _, sub := range s.subs {
		emissions = append(emissions, emission{sub: sub, snapshot: s.partitionLocked(sub.archived)})
	}
	s.mu.Unlock()

	// Callbacks run outside the lock; they may re-enter the store.
	for _, e := range emissions {
		if e.sub.alive.Load() {
			e.sub.onSnapshot(e.snapshot)
		}
	}
}

func (s *MemoryStore) matchingSubsLocked(archived bool) []*memorySub {
	var subs []*memorySub
	for _, sub := range s.subs {
		if sub.archived == archived {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (s *MemoryStore) partitionLocked(archived bool) []models.Shipment {
	shipments := make([]models.Shipment, 0)
	for _, shipment := range s.shipments {
		if shipment.Archived == archived {
			shipments = append(shipments, shipment)
		}
	}
	return shipments
}

func matchesWhere(shipment models.Shipment, where map[string]interface{}) bool {
	for column, value := range where {
		switch column {
		case "archived":
			want, _ := value.(bool)
			if shipment.Archived != want {
				return false
			}
		case "status":
			want, _ := value.(string)
			if shipment.Status != want {
				return false
			}
		case "island":
			want, _ := value.(string)
			if shipment.Island != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// applyFields interprets the same column/value pairs the gorm store hands to
// Updates. Only the columns the commands actually write are supported.
func applyFields(shipment *models.Shipment, fields map[string]interface{}) error {
	for column, value := range fields {
		switch column {
		case "updated_at":
			t, err := asTime(value)
			if err != nil {
				return err
			}
			shipment.UpdatedAt = t
		case "expected_notes":
			shipment.ExpectedNotes = asStringPtr(value)
		case "tracking_code":
			shipment.TrackingCode = asStringPtr(value)
		case "observations":
			shipment.Observations = asStringPtr(value)
		case "island":
			want, _ := value.(string)
			shipment.Island = want
		case "arrival_date_time":
			shipment.ArrivalDateTime = asTimePtr(value)
		case "pallets":
			shipment.Pallets = asIntPtr(value)
		case "packages":
			shipment.Packages = asIntPtr(value)
		case "status":
			want, _ := value.(string)
			shipment.Status = want
		case "arrival_by_user_id":
			shipment.ArrivalByUserID = asStringPtr(value)
		case "registered_at":
			shipment.RegisteredAt = asTimePtr(value)
		case "registered_by_user_id":
			shipment.RegisteredByUserID = asStringPtr(value)
		case "registered_by_name":
			shipment.RegisteredByName = asStringPtr(value)
		case "archived":
			want, _ := value.(bool)
			shipment.Archived = want
		case "archived_at":
			shipment.ArchivedAt = asTimePtr(value)
		case "photos":
			data, _ := value.([]byte)
			shipment.Photos = data
		default:
			return errors.Errorf("memory store: unsupported column %q", column)
		}
	}
	return nil
}

func asTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v != nil {
			return *v, nil
		}
	}
	return time.Time{}, errors.Errorf("memory store: expected time value, got %T", value)
}

func asTimePtr(value interface{}) *time.Time {
	switch v := value.(type) {
	case *time.Time:
		return v
	case time.Time:
		return &v
	}
	return nil
}

func asStringPtr(value interface{}) *string {
	switch v := value.(type) {
	case *string:
		return v
	case string:
		return &v
	}
	return nil
}

func asIntPtr(value interface{}) *int {
	switch v := value.(type) {
	case *int:
		return v
	case int:
		return &v
	}
	return nil
}
