package delivery

import (
	"time"

	"example.com/comercialav/services/deliveries/internal/models"
)

// IslandCode is the two-valued region assignment that drives warehouse
// routing, visibility and notification recipients.
type IslandCode string

const (
	IslandGC IslandCode = "GC"
	IslandTF IslandCode = "TF"
)

// Islands returns the fixed set of region codes
func Islands() []IslandCode {
	return []IslandCode{IslandGC, IslandTF}
}

// ValidIsland reports whether code is a known region code
func ValidIsland(code IslandCode) bool {
	return code == IslandGC || code == IslandTF
}

const fallbackSupplierName = "Proveedor sin nombre"

// Photo is an attachment reference on a delivery
type Photo struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	UploadedBy     string    `json:"uploaded_by"`
	UploadedByName string    `json:"uploaded_by_name,omitempty"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// Delivery is the canonical in-memory view of a shipment record
type Delivery struct {
	ID                string     `json:"id"`
	Supplier          string     `json:"supplier"`
	ExpectedDate      time.Time  `json:"expected_date"`
	Arrival           *time.Time `json:"arrival"`
	Pallets           *int       `json:"pallets"`
	Packages          *int       `json:"packages"`
	EstimatedPallets  *int       `json:"estimated_pallets"`
	EstimatedPackages *int       `json:"estimated_packages"`
	Status            Status     `json:"status"`
	LastUpdate        time.Time  `json:"last_update"`
	Notes             *string    `json:"notes,omitempty"`
	Tracking          *string    `json:"tracking"`
	Observations      *string    `json:"observations"`
	Island            IslandCode `json:"island"`
	TransportCompany  *string    `json:"transport_company"`
	Photos            []Photo    `json:"photos,omitempty"`
}

// FromShipment projects a persisted record into the canonical entity,
// applying defaults for missing fields.
func FromShipment(s models.Shipment) Delivery {
	d := Delivery{
		ID:                s.ID,
		Supplier:          s.SupplierName,
		ExpectedDate:      s.ExpectedDate,
		Arrival:           s.ArrivalDateTime,
		Pallets:           s.Pallets,
		Packages:          s.Packages,
		EstimatedPallets:  s.EstimatedPallets,
		EstimatedPackages: s.EstimatedPackages,
		Status:            StatusFromRecord(s.Status),
		Notes:             s.ExpectedNotes,
		Tracking:          s.TrackingCode,
		Observations:      s.Observations,
		Island:            IslandCode(s.Island),
		TransportCompany:  s.TransportCompany,
	}

	if d.Supplier == "" {
		d.Supplier = fallbackSupplierName
	}
	if !ValidIsland(d.Island) {
		d.Island = IslandGC
	}

	switch {
	case !s.UpdatedAt.IsZero():
		d.LastUpdate = s.UpdatedAt
	case !s.CreatedAt.IsZero():
		d.LastUpdate = s.CreatedAt
	default:
		d.LastUpdate = time.Now()
	}

	if photos, err := s.PhotoList(); err == nil {
		for _, p := range photos {
			d.Photos = append(d.Photos, Photo{
				ID:             p.ID,
				URL:            p.URL,
				UploadedBy:     p.UploadedBy,
				UploadedByName: p.UploadedByName,
				UploadedAt:     p.UploadedAt,
			})
		}
	}

	return d
}

// Role is the resolved user role
type Role string

const (
	RolePurchasing Role = "purchasing"
	RoleWarehouse  Role = "warehouse"
)

// RoleFromProfile maps the persisted role vocabulary to a Role. Anything
// that is not the warehouse role falls back to purchasing, admin included.
func RoleFromProfile(raw string) Role {
	if raw == models.RoleAlmacen {
		return RoleWarehouse
	}
	return RolePurchasing
}

// Capabilities is the per-session capability descriptor. It is computed once
// from role and region and passed explicitly into commands and views instead
// of branching on role strings.
type Capabilities struct {
	CanEditPurchasingFields bool
	CanEditWarehouseFields  bool
	VisibleIslands          []IslandCode
}

// CapabilitiesFor derives the capability descriptor from role and region.
// A warehouse user without a region assignment sees all regions.
func CapabilitiesFor(role Role, island IslandCode) Capabilities {
	if role == RoleWarehouse {
		visible := Islands()
		if ValidIsland(island) {
			visible = []IslandCode{island}
		}
		return Capabilities{
			CanEditWarehouseFields: true,
			VisibleIslands:         visible,
		}
	}
	return Capabilities{
		CanEditPurchasingFields: true,
		VisibleIslands:          Islands(),
	}
}

// CanSee reports whether a delivery in the given region is visible
func (c Capabilities) CanSee(island IslandCode) bool {
	for _, code := range c.VisibleIslands {
		if code == island {
			return true
		}
	}
	return false
}

// FilterVisible applies region visibility as a pure projection over a
// synced list; the input slice is never mutated.
func FilterVisible(deliveries []Delivery, caps Capabilities) []Delivery {
	visible := make([]Delivery, 0, len(deliveries))
	for _, d := range deliveries {
		if caps.CanSee(d.Island) {
			visible = append(visible, d)
		}
	}
	return visible
}
