package photos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/comercialav/services/deliveries/config"
	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/identity"
	"example.com/comercialav/services/deliveries/internal/models"
	"example.com/comercialav/services/deliveries/internal/store"
)

func newPhotoHarness(t *testing.T) (*Service, *store.MemoryStore, string) {
	t.Helper()

	st := store.NewMemoryStore()
	blobs, err := NewDiskStore(config.PhotoConfig{
		Root:    t.TempDir(),
		BaseURL: "http://localhost:8080/photos",
	})
	require.NoError(t, err)

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := st.Create(context.Background(), &models.Shipment{
		SupplierName: "Proveedor", ExpectedDate: now, Island: "GC",
		Status: models.ShipmentStatusArrived, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	return NewService(st, blobs), st, id
}

func testSession() identity.Session {
	return identity.Session{
		UserID:      "u-almacen",
		DisplayName: "Pedro",
		Caps:        delivery.CapabilitiesFor(delivery.RoleWarehouse, delivery.IslandGC),
	}
}

func TestAttachAppendsWithoutTouchingUpdatedAt(t *testing.T) {
	svc, st, id := newPhotoHarness(t)

	before, err := st.GetOne(context.Background(), id)
	require.NoError(t, err)

	photo, err := svc.Attach(context.Background(), testSession(), id, []byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, photo.ID)
	require.Contains(t, photo.URL, "http://localhost:8080/photos/")
	require.Equal(t, "u-almacen", photo.UploadedBy)

	after, err := st.GetOne(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, before.UpdatedAt, after.UpdatedAt, "attachments must not move the record in history ordering")

	photos, err := after.PhotoList()
	require.NoError(t, err)
	require.Len(t, photos, 1)
	require.Equal(t, photo.ID, photos[0].ID)
}

func TestDetachRemovesOnlyNamedPhoto(t *testing.T) {
	svc, st, id := newPhotoHarness(t)

	first, err := svc.Attach(context.Background(), testSession(), id, []byte("one"))
	require.NoError(t, err)
	second, err := svc.Attach(context.Background(), testSession(), id, []byte("two"))
	require.NoError(t, err)

	require.NoError(t, svc.Detach(context.Background(), testSession(), id, first.ID))

	shipment, err := st.GetOne(context.Background(), id)
	require.NoError(t, err)
	photos, err := shipment.PhotoList()
	require.NoError(t, err)
	require.Len(t, photos, 1)
	require.Equal(t, second.ID, photos[0].ID)
}

func TestDetachUnknownPhoto(t *testing.T) {
	svc, _, id := newPhotoHarness(t)
	err := svc.Detach(context.Background(), testSession(), id, "nope")
	require.ErrorIs(t, err, ErrPhotoNotFound)
}

func TestAttachUnknownShipment(t *testing.T) {
	svc, _, _ := newPhotoHarness(t)
	_, err := svc.Attach(context.Background(), testSession(), "missing", []byte("x"))
	require.ErrorIs(t, err, store.ErrNotFound)
}
