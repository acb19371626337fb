package syncengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"example.com/comercialav/services/deliveries/internal/delivery"
	"example.com/comercialav/services/deliveries/internal/models"
	"example.com/comercialav/services/deliveries/internal/store"
)

func seedShipment(t *testing.T, st *store.MemoryStore, id, supplier string, expected time.Time, archived bool, status string, updated time.Time) {
	t.Helper()
	_, err := st.Create(context.Background(), &models.Shipment{
		ID:           id,
		SupplierName: supplier,
		ExpectedDate: expected,
		Island:       "GC",
		Status:       status,
		Archived:     archived,
		CreatedAt:    updated,
		UpdatedAt:    updated,
	})
	require.NoError(t, err)
}

func TestEngineSyncsBothPartitionsOnStart(t *testing.T) {
	st := store.NewMemoryStore()
	day := func(d int) time.Time { return time.Date(2025, 5, d, 0, 0, 0, 0, time.UTC) }

	seedShipment(t, st, "a", "Late", day(20), false, models.ShipmentStatusPlanned, day(1))
	seedShipment(t, st, "b", "Early", day(10), false, models.ShipmentStatusPlanned, day(2))
	seedShipment(t, st, "c", "Old", day(1), true, models.ShipmentStatusRegistered, day(3))
	seedShipment(t, st, "d", "Recent", day(2), true, models.ShipmentStatusRegistered, day(4))

	engine := New(st, Hooks{})
	require.True(t, engine.Syncing(), "engine must report syncing before start")

	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	require.False(t, engine.Syncing())

	active := engine.Active()
	require.Len(t, active, 2)
	// Ascending by expected date
	require.Equal(t, "b", active[0].ID)
	require.Equal(t, "a", active[1].ID)

	archived := engine.Archived()
	require.Len(t, archived, 2)
	// Descending by last update
	require.Equal(t, "d", archived[0].ID)
	require.Equal(t, "c", archived[1].ID)
}

func TestEngineReplacesSnapshotsWholesale(t *testing.T) {
	st := store.NewMemoryStore()
	seedShipment(t, st, "a", "One", time.Now(), false, models.ShipmentStatusPlanned, time.Now())

	engine := New(st, Hooks{})
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	require.Len(t, engine.Active(), 1)

	require.NoError(t, st.Delete(context.Background(), "a"))
	require.Empty(t, engine.Active(), "removed records must disappear from the replica")
}

func TestEnginePendingClearsOnNextSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	engine := New(st, Hooks{})
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	require.False(t, engine.Syncing())

	engine.SetPending()
	require.True(t, engine.Syncing())

	seedShipment(t, st, "x", "New", time.Now(), false, models.ShipmentStatusPlanned, time.Now())
	require.False(t, engine.Syncing(), "snapshot after the write must clear the pending flag")
}

func TestEngineWarnsOncePerPartition(t *testing.T) {
	st := store.NewMemoryStore()

	var mu sync.Mutex
	var warnings []string
	engine := New(st, Hooks{
		OnWarning: func(partition Partition, message string) {
			mu.Lock()
			warnings = append(warnings, message)
			mu.Unlock()
		},
	})
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	st.EmitError(false, errors.New("boom"))
	st.EmitError(false, errors.New("boom again"))
	st.EmitError(true, errors.New("boom"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{
		"Could not sync active deliveries.",
		"Could not sync the delivery history.",
	}, warnings)

	// Failed partitions still count as loaded so readiness is not stuck
	require.False(t, engine.Syncing())
}

func TestEngineIgnoresCallbacksAfterStop(t *testing.T) {
	st := store.NewMemoryStore()
	engine := New(st, Hooks{})
	require.NoError(t, engine.Start(context.Background()))

	engine.Stop()
	require.True(t, engine.Syncing(), "stopped engine reverts to not-ready")

	// Mutations after teardown must not repopulate the replicas
	seedShipment(t, st, "late", "Late", time.Now(), false, models.ShipmentStatusPlanned, time.Now())
	require.Empty(t, engine.Active())
	require.Empty(t, engine.Archived())
}

func TestEngineDoubleStartFails(t *testing.T) {
	st := store.NewMemoryStore()
	engine := New(st, Hooks{})
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	require.Error(t, engine.Start(context.Background()))
}

func TestEngineRestartsCleanly(t *testing.T) {
	st := store.NewMemoryStore()
	seedShipment(t, st, "a", "One", time.Now(), false, models.ShipmentStatusPlanned, time.Now())

	engine := New(st, Hooks{})
	require.NoError(t, engine.Start(context.Background()))
	engine.Stop()

	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()
	require.Len(t, engine.Active(), 1)
}

func TestEngineLookupAndVisibility(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	_, err := st.Create(context.Background(), &models.Shipment{
		ID: "gc", SupplierName: "GC Sup", ExpectedDate: now, Island: "GC",
		Status: models.ShipmentStatusPlanned, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = st.Create(context.Background(), &models.Shipment{
		ID: "tf", SupplierName: "TF Sup", ExpectedDate: now, Island: "TF",
		Status: models.ShipmentStatusPlanned, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	engine := New(st, Hooks{})
	require.NoError(t, engine.Start(context.Background()))
	defer engine.Stop()

	d, found := engine.Lookup("tf")
	require.True(t, found)
	require.Equal(t, delivery.IslandTF, d.Island)

	caps := delivery.CapabilitiesFor(delivery.RoleWarehouse, delivery.IslandTF)
	visible := engine.VisibleActive(caps)
	require.Len(t, visible, 1)
	require.Equal(t, "tf", visible[0].ID)
}
