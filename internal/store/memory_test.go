package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/comercialav/services/deliveries/internal/models"
)

func TestMemoryStoreUpdateUnknownID(t *testing.T) {
	st := NewMemoryStore()
	err := st.Update(context.Background(), "missing", map[string]interface{}{"observations": "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRejectsUnknownColumns(t *testing.T) {
	st := NewMemoryStore()
	id, err := st.Create(context.Background(), &models.Shipment{SupplierName: "S", Island: "GC", Status: models.ShipmentStatusPlanned})
	require.NoError(t, err)

	err = st.Update(context.Background(), id, map[string]interface{}{"no_such_column": 1})
	require.Error(t, err)
}

func TestMemoryStoreSubscribeDeliversInitialAndFollowingSnapshots(t *testing.T) {
	st := NewMemoryStore()

	var snapshots [][]models.Shipment
	unsubscribe, err := st.Subscribe(context.Background(), false,
		func(shipments []models.Shipment) { snapshots = append(snapshots, shipments) },
		nil,
	)
	require.NoError(t, err)

	require.Len(t, snapshots, 1)
	require.Empty(t, snapshots[0])

	_, err = st.Create(context.Background(), &models.Shipment{SupplierName: "S", Island: "GC", Status: models.ShipmentStatusPlanned})
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	require.Len(t, snapshots[1], 1)

	unsubscribe()
	_, err = st.Create(context.Background(), &models.Shipment{SupplierName: "T", Island: "TF", Status: models.ShipmentStatusPlanned})
	require.NoError(t, err)
	require.Len(t, snapshots, 2, "no emissions after unsubscribe")
}

func TestMemoryStorePartitionsByArchived(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Create(context.Background(), &models.Shipment{ID: "active", SupplierName: "A", Island: "GC", Status: models.ShipmentStatusPlanned})
	require.NoError(t, err)
	_, err = st.Create(context.Background(), &models.Shipment{ID: "gone", SupplierName: "B", Island: "GC", Status: models.ShipmentStatusRegistered, Archived: true})
	require.NoError(t, err)

	var archivedSnapshot []models.Shipment
	_, err = st.Subscribe(context.Background(), true,
		func(shipments []models.Shipment) { archivedSnapshot = shipments },
		nil,
	)
	require.NoError(t, err)

	require.Len(t, archivedSnapshot, 1)
	require.Equal(t, "gone", archivedSnapshot[0].ID)
}

func TestMemoryStoreBatchUpdateIsAllOrNothing(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Create(context.Background(), &models.Shipment{ID: "a", SupplierName: "A", Island: "GC", Status: models.ShipmentStatusRegistered})
	require.NoError(t, err)
	_, err = st.Create(context.Background(), &models.Shipment{ID: "b", SupplierName: "B", Island: "GC", Status: models.ShipmentStatusRegistered})
	require.NoError(t, err)

	// One bad column fails the whole batch, leaving both rows untouched
	_, err = st.BatchUpdate(context.Background(),
		map[string]interface{}{"status": models.ShipmentStatusRegistered},
		map[string]interface{}{"archived": true, "bogus": 1},
	)
	require.Error(t, err)

	for _, id := range []string{"a", "b"} {
		shipment, err := st.GetOne(context.Background(), id)
		require.NoError(t, err)
		require.False(t, shipment.Archived)
	}

	now := time.Now().UTC()
	count, err := st.BatchUpdate(context.Background(),
		map[string]interface{}{"status": models.ShipmentStatusRegistered, "archived": false},
		map[string]interface{}{"archived": true, "archived_at": now},
	)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
