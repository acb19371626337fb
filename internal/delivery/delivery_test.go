package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/comercialav/services/deliveries/internal/models"
)

func TestFromShipmentAppliesFallbacks(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	d := FromShipment(models.Shipment{
		ID:           "s-1",
		ExpectedDate: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		Island:       "XX",
		Status:       models.ShipmentStatusPlanned,
		CreatedAt:    created,
	})

	require.Equal(t, "Proveedor sin nombre", d.Supplier)
	require.Equal(t, IslandGC, d.Island)
	require.Equal(t, StatusInTransit, d.Status)
	// No update timestamp yet, so creation time stands in
	require.Equal(t, created, d.LastUpdate)
}

func TestFromShipmentPrefersUpdatedAt(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	updated := time.Date(2025, 3, 11, 15, 30, 0, 0, time.UTC)

	d := FromShipment(models.Shipment{
		ID:           "s-2",
		SupplierName: "Frutas del Norte",
		ExpectedDate: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		Island:       "TF",
		Status:       models.ShipmentStatusArrived,
		CreatedAt:    created,
		UpdatedAt:    updated,
	})

	require.Equal(t, "Frutas del Norte", d.Supplier)
	require.Equal(t, IslandTF, d.Island)
	require.Equal(t, StatusInWarehouse, d.Status)
	require.Equal(t, updated, d.LastUpdate)
}

func TestFromShipmentDecodesPhotos(t *testing.T) {
	encoded, err := models.EncodePhotos([]models.ShipmentPhoto{
		{ID: "p-1", URL: "http://photos/p-1.jpg", UploadedBy: "u-1"},
	})
	require.NoError(t, err)

	d := FromShipment(models.Shipment{
		ID:           "s-3",
		SupplierName: "Proveedor",
		Island:       "GC",
		Status:       models.ShipmentStatusPlanned,
		CreatedAt:    time.Now(),
		Photos:       encoded,
	})

	require.Len(t, d.Photos, 1)
	require.Equal(t, "p-1", d.Photos[0].ID)
}

func TestCapabilitiesForPurchasing(t *testing.T) {
	caps := CapabilitiesFor(RolePurchasing, "")

	require.True(t, caps.CanEditPurchasingFields)
	require.False(t, caps.CanEditWarehouseFields)
	require.ElementsMatch(t, Islands(), caps.VisibleIslands)
}

func TestCapabilitiesForWarehouseScopedToIsland(t *testing.T) {
	caps := CapabilitiesFor(RoleWarehouse, IslandTF)

	require.False(t, caps.CanEditPurchasingFields)
	require.True(t, caps.CanEditWarehouseFields)
	require.Equal(t, []IslandCode{IslandTF}, caps.VisibleIslands)
	require.True(t, caps.CanSee(IslandTF))
	require.False(t, caps.CanSee(IslandGC))
}

func TestCapabilitiesForWarehouseWithoutIslandSeesAll(t *testing.T) {
	caps := CapabilitiesFor(RoleWarehouse, "")
	require.ElementsMatch(t, Islands(), caps.VisibleIslands)
}

func TestRoleFromProfile(t *testing.T) {
	require.Equal(t, RoleWarehouse, RoleFromProfile(models.RoleAlmacen))
	require.Equal(t, RolePurchasing, RoleFromProfile(models.RoleCompras))
	require.Equal(t, RolePurchasing, RoleFromProfile(models.RoleAdmin))
	require.Equal(t, RolePurchasing, RoleFromProfile("unknown"))
}

func TestFilterVisible(t *testing.T) {
	deliveries := []Delivery{
		{ID: "a", Island: IslandGC},
		{ID: "b", Island: IslandTF},
		{ID: "c", Island: IslandGC},
	}

	caps := CapabilitiesFor(RoleWarehouse, IslandGC)
	visible := FilterVisible(deliveries, caps)

	require.Len(t, visible, 2)
	require.Equal(t, "a", visible[0].ID)
	require.Equal(t, "c", visible[1].ID)
	// Input is untouched
	require.Len(t, deliveries, 3)
}
