package delivery

import "example.com/comercialav/services/deliveries/internal/models"

// Status is the lifecycle status exposed to callers. It only ever advances
// forward: IN_TRANSIT -> IN_WAREHOUSE -> REGISTERED.
type Status string

const (
	StatusInTransit   Status = "IN_TRANSIT"
	StatusInWarehouse Status = "IN_WAREHOUSE"
	StatusRegistered  Status = "REGISTERED"
)

// Rank orders statuses for the non-regression rule
func (s Status) Rank() int {
	switch s {
	case StatusInWarehouse:
		return 1
	case StatusRegistered:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusInTransit, StatusInWarehouse, StatusRegistered:
		return true
	}
	return false
}

// StatusFromRecord maps the persisted vocabulary to the external one.
// DELIVERED is a legacy alias for ARRIVED; unknown or empty values project
// to IN_TRANSIT.
func StatusFromRecord(raw string) Status {
	switch raw {
	case models.ShipmentStatusArrived, models.ShipmentStatusDelivered:
		return StatusInWarehouse
	case models.ShipmentStatusRegistered:
		return StatusRegistered
	default:
		return StatusInTransit
	}
}

// RecordValue maps the external vocabulary back to the persisted one
func (s Status) RecordValue() string {
	switch s {
	case StatusInWarehouse:
		return models.ShipmentStatusArrived
	case StatusRegistered:
		return models.ShipmentStatusRegistered
	default:
		return models.ShipmentStatusPlanned
	}
}
