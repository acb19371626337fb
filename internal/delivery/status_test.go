package delivery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/comercialav/services/deliveries/internal/models"
)

func TestStatusFromRecord(t *testing.T) {
	cases := map[string]Status{
		models.ShipmentStatusPlanned:    StatusInTransit,
		models.ShipmentStatusArrived:    StatusInWarehouse,
		models.ShipmentStatusDelivered:  StatusInWarehouse, // legacy alias still present in old rows
		models.ShipmentStatusRegistered: StatusRegistered,
		"":                              StatusInTransit,
		"SOMETHING_ELSE":                StatusInTransit,
	}

	for raw, want := range cases {
		require.Equal(t, want, StatusFromRecord(raw), "raw status %q", raw)
	}
}

func TestStatusRankOrdersLifecycle(t *testing.T) {
	require.Less(t, StatusInTransit.Rank(), StatusInWarehouse.Rank())
	require.Less(t, StatusInWarehouse.Rank(), StatusRegistered.Rank())
}

func TestStatusRecordValueRoundTrip(t *testing.T) {
	for _, status := range []Status{StatusInTransit, StatusInWarehouse, StatusRegistered} {
		require.True(t, status.Valid())
		require.Equal(t, status, StatusFromRecord(status.RecordValue()))
	}
}
