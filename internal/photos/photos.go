// Package photos manages the attachment side list of a delivery. Attachments
// are evidence, not state: adding or removing one never touches updated_at,
// so the history ordering of the archived partition is unaffected.
package photos

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/identity"
	"example.com/comercialav/services/deliveries/internal/models"
	"example.com/comercialav/services/deliveries/internal/store"
)

// ErrPhotoNotFound is returned when a photo id is not on the record
var ErrPhotoNotFound = errors.New("photo not found")

// BlobStore persists the photo bytes and hands back a serving URL
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) (url string, err error)
	Remove(ctx context.Context, key string) error
}

// DiskStore is the filesystem BlobStore
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates a disk-backed blob store rooted at cfg.Root
func NewDiskStore(cfg config.PhotoConfig) (*DiskStore, error) {
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create photo storage root")
	}
	return &DiskStore{root: cfg.Root, baseURL: cfg.BaseURL}, nil
}

// Put writes the photo bytes under the key
func (s *DiskStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	path := filepath.Join(s.root, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create photo directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write photo file")
	}
	return s.baseURL + "/" + key, nil
}

// Remove deletes the photo bytes. A missing file is not an error; the side
// list entry is what matters.
func (s *DiskStore) Remove(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove photo file")
	}
	return nil
}

// Service appends and removes photo entries on shipment records
type Service struct {
	store store.Store
	blobs BlobStore
}

// NewService creates the photo service
func NewService(st store.Store, blobs BlobStore) *Service {
	return &Service{store: st, blobs: blobs}
}

// Attach stores the photo bytes and appends the reference to the record's
// side list. Only the photos column is written.
func (s *Service) Attach(ctx context.Context, sess identity.Session, shipmentID string, data []byte) (models.ShipmentPhoto, error) {
	shipment, err := s.store.GetOne(ctx, shipmentID)
	if err != nil {
		return models.ShipmentPhoto{}, err
	}

	photoID := uuid.New().String()
	key := shipmentID + "/" + photoID + ".jpg"
	url, err := s.blobs.Put(ctx, key, data)
	if err != nil {
		return models.ShipmentPhoto{}, err
	}

	photo := models.ShipmentPhoto{
		ID:             photoID,
		URL:            url,
		UploadedBy:     sess.UserID,
		UploadedByName: sess.DisplayName,
		UploadedAt:     time.Now().UTC(),
	}

	photos, err := shipment.PhotoList()
	if err != nil {
		// A corrupt side list is replaced rather than propagated
		log.Warn().Err(err).Str("shipment_id", shipmentID).Msg("Resetting unreadable photo list")
		photos = nil
	}
	photos = append(photos, photo)

	encoded, err := models.EncodePhotos(photos)
	if err != nil {
		return models.ShipmentPhoto{}, err
	}

	if err := s.store.Update(ctx, shipmentID, map[string]interface{}{"photos": encoded}); err != nil {
		return models.ShipmentPhoto{}, errors.Wrap(err, "failed to attach photo")
	}

	log.Info().Str("shipment_id", shipmentID).Str("photo_id", photoID).Msg("Photo attached")
	return photo, nil
}

// Detach removes one photo reference and its stored bytes
func (s *Service) Detach(ctx context.Context, sess identity.Session, shipmentID, photoID string) error {
	shipment, err := s.store.GetOne(ctx, shipmentID)
	if err != nil {
		return err
	}

	photos, err := shipment.PhotoList()
	if err != nil {
		return err
	}

	kept := photos[:0]
	found := false
	for _, p := range photos {
		if p.ID == photoID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return ErrPhotoNotFound
	}

	encoded, err := models.EncodePhotos(kept)
	if err != nil {
		return err
	}

	if err := s.store.Update(ctx, shipmentID, map[string]interface{}{"photos": encoded}); err != nil {
		return errors.Wrap(err, "failed to detach photo")
	}

	if err := s.blobs.Remove(ctx, shipmentID+"/"+photoID+".jpg"); err != nil {
		log.Warn().Err(err).Str("photo_id", photoID).Msg("Photo bytes could not be removed")
	}

	log.Info().Str("shipment_id", shipmentID).Str("photo_id", photoID).Msg("Photo detached")
	return nil
}
