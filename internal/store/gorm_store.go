package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/models"
)

// changeChannel carries a bare change signal; subscribers re-query their
// partition on every message, so each emission is a full snapshot.
const changeChannel = "deliveries:shipments:changed"

// GormStore implements Store on Postgres, with a Redis pub/sub channel
// driving snapshot re-emission. Without Redis it degrades to interval
// polling.
type GormStore struct {
	db           *gorm.DB
	readOnlyDB   *gorm.DB
	redis        *redis.Client
	pollInterval time.Duration
}

// NewGormStore creates the Postgres-backed store. redisClient may be nil.
func NewGormStore(db, readOnlyDB *gorm.DB, redisClient *redis.Client, pollInterval time.Duration) *GormStore {
	if readOnlyDB == nil {
		readOnlyDB = db
	}
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &GormStore{
		db:           db,
		readOnlyDB:   readOnlyDB,
		redis:        redisClient,
		pollInterval: pollInterval,
	}
}

// NewChangeClient creates the Redis client used for the change channel
func NewChangeClient(cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return client, nil
}

// Create inserts a new shipment. The store assigns the id.
func (s *GormStore) Create(ctx context.Context, shipment *models.Shipment) (string, error) {
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

	if err := s.db.WithContext(ctx).Create(shipment).Error; err != nil {
		return "", errors.Wrap(err, "failed to create shipment")
	}

	s.notifyChange(ctx)
	return shipment.ID, nil
}

// Update applies the given column values to one shipment
func (s *GormStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update shipment")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	s.notifyChange(ctx)
	return nil
}

// Delete removes one shipment
func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&models.Shipment{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete shipment")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	s.notifyChange(ctx)
	return nil
}

// GetOne fetches a single shipment by id. Reads go through the write
// connection so a command resolving prior state sees its own writes.
func (s *GormStore) GetOne(ctx context.Context, id string) (*models.Shipment, error) {
	var shipment models.Shipment
	err := s.db.WithContext(ctx).First(&shipment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get shipment")
	}
	return &shipment, nil
}

// BatchUpdate applies fields to all matching records in one statement, so
// the whole batch commits or none of it does.
func (s *GormStore) BatchUpdate(ctx context.Context, where map[string]interface{}, fields map[string]interface{}) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where(where).
		Updates(fields)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to batch-update shipments")
	}

	if result.RowsAffected > 0 {
		s.notifyChange(ctx)
	}
	return result.RowsAffected, nil
}

// Subscribe opens a live subscription on one partition
func (s *GormStore) Subscribe(ctx context.Context, archived bool, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	// Liveness flag captured by the emission closure: callbacks firing
	// after teardown must become no-ops.
	var alive atomic.Bool
	alive.Store(true)

	emit := func() {
		shipments, err := s.queryPartition(subCtx, archived)
		if !alive.Load() {
			return
		}
		if err != nil {
			onError(err)
			return
		}
		onSnapshot(shipments)
	}

	go func() {
		emit()

		if s.redis != nil {
			pubsub := s.redis.Subscribe(subCtx, changeChannel)
			defer pubsub.Close()
			ch := pubsub.Channel()
			for {
				select {
				case <-subCtx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						if alive.Load() {
							onError(errors.New("shipment change channel closed"))
						}
						return
					}
					emit()
				}
			}
		}

		// No Redis: poll the partition instead
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
				emit()
			}
		}
	}()

	unsubscribe := func() {
		alive.Store(false)
		cancel()
	}
	return unsubscribe, nil
}

func (s *GormStore) queryPartition(ctx context.Context, archived bool) ([]models.Shipment, error) {
	var shipments []models.Shipment
	err := s.readOnlyDB.WithContext(ctx).
		Where("archived = ?", archived).
		Find(&shipments).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query shipment partition")
	}
	return shipments, nil
}

func (s *GormStore) notifyChange(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Publish(ctx, changeChannel, "1").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to publish shipment change signal")
	}
}
